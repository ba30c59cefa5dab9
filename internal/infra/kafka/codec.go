package kafka

import (
	"encoding/json"

	"github.com/IBM/sarama"
)

// JSON encodes v eagerly so marshal errors surface before the message is queued.
func JSON(v any) (sarama.Encoder, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return sarama.ByteEncoder(b), nil
}
