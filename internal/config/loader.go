package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Name string
		Env  string
		Addr string
		// PortScan is how many consecutive ports to try when Addr's port is taken.
		PortScan        int
		Dev             bool
		ShutdownTimeout time.Duration
		DenialStatus    int
	}

	Log struct {
		Dir   string
		Level string
		// File disables the rotated file output when false.
		File bool
	}

	Jwt struct {
		Secret    string
		AccessTTL time.Duration
		Issuer    string
	}

	Throttle struct {
		Limit int
		TTL   time.Duration
		// Storage is "memory" or "redis".
		Storage string
	}

	// 数据库
	PgSQL struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		MaxIdle  int
		MaxOpen  int
		LogLevel string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	Minio struct {
		Endpoint        string
		AccessKeyID     string
		SecretAccessKey string
		UseSSL          bool
		Bucket          string
		Region          string
	}

	Kafka struct {
		Brokers    []string
		AuditTopic string
	}
}

const envPrefix = "GNEST"

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gnest")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.addr", "0.0.0.0:8089")
	v.SetDefault("app.portscan", 1)
	v.SetDefault("app.dev", false)
	v.SetDefault("app.shutdowntimeout", 10*time.Second)
	v.SetDefault("app.denialstatus", 403)

	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", true)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.accessttl", 15*time.Minute)
	v.SetDefault("jwt.issuer", "gnest")

	v.SetDefault("throttle.limit", 100)
	v.SetDefault("throttle.ttl", time.Minute)
	v.SetDefault("throttle.storage", "memory")

	v.SetDefault("pgsql.host", "127.0.0.1")
	v.SetDefault("pgsql.port", 5432)
	v.SetDefault("pgsql.user", "postgres")
	v.SetDefault("pgsql.password", "")
	v.SetDefault("pgsql.dbname", "gnest")
	v.SetDefault("pgsql.sslmode", "disable")
	v.SetDefault("pgsql.maxidle", 10)
	v.SetDefault("pgsql.maxopen", 50)
	v.SetDefault("pgsql.loglevel", "warn")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("minio.endpoint", "127.0.0.1:9000")
	v.SetDefault("minio.accesskeyid", "")
	v.SetDefault("minio.secretaccesskey", "")
	v.SetDefault("minio.usessl", false)
	v.SetDefault("minio.bucket", "uploads")
	v.SetDefault("minio.region", "")

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.audittopic", "gnest.audit")
}

// LoadConfig reads path (optional, any format viper understands) and overlays
// GNEST_* environment variables, e.g. GNEST_PGSQL_HOST.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Throttle.Storage != "memory" && c.Throttle.Storage != "redis" {
		errs = append(errs, fmt.Errorf("throttle.storage must be memory or redis, got %q", c.Throttle.Storage))
	}
	if c.Throttle.Limit <= 0 {
		errs = append(errs, errors.New("throttle.limit must be positive"))
	}
	if c.App.DenialStatus < 400 || c.App.DenialStatus > 599 {
		errs = append(errs, fmt.Errorf("app.denialstatus must be a 4xx or 5xx status, got %d", c.App.DenialStatus))
	}
	return errors.Join(errs...)
}
