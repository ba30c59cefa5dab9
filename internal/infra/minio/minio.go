package minio

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	// Region skips the bucket location lookup when set.
	Region string
}

// Client wraps one bucket. The bucket is created on module init if missing.
type Client struct {
	cfg        Config
	client     *minio.Client
	bucketName string
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio: bucket is required")
	}
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:        cfg,
		client:     minioClient,
		bucketName: cfg.Bucket,
	}, nil
}

func (c *Client) Bucket() string { return c.bucketName }

// OnModuleInit 确保 bucket 存在
func (c *Client) OnModuleInit(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucketName)
	if err != nil {
		return fmt.Errorf("minio: bucket %s: %w", c.bucketName, err)
	}
	if exists {
		return nil
	}
	return c.client.MakeBucket(ctx, c.bucketName, minio.MakeBucketOptions{})
}

func (c *Client) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := c.client.PutObject(ctx, c.bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (c *Client) Delete(ctx context.Context, objectName string) error {
	return c.client.RemoveObject(ctx, c.bucketName, objectName, minio.RemoveObjectOptions{})
}

// PresignedURL defaults expiry to 15 minutes.
func (c *Client) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if expiry == 0 {
		expiry = 15 * time.Minute
	}
	u, err := c.client.PresignedGetObject(ctx, c.bucketName, objectName, expiry, make(url.Values))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
