package oss

import (
	"bytes"
	"fmt"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/pos_billing_server/config"
)

const uploadAttempts = 3

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// Configured 是否填写了 OSS 配置
func Configured(cfg *config.OSSConfig) bool {
	return cfg.Endpoint != "" && cfg.AccessKeyID != "" && cfg.BucketName != ""
}

// UploadFile 上传文件，失败时短暂退避重试
func (c *Client) UploadFile(objectKey string, data []byte, contentType string) (string, error) {
	var err error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		err = c.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType(contentType))
		if err == nil {
			return c.GetURL(objectKey), nil
		}
		if attempt < uploadAttempts {
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}
	}
	return "", fmt.Errorf("failed to upload file after %d attempts: %w", uploadAttempts, err)
}

// GetURL 获取文件访问 URL
func (c *Client) GetURL(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.%s/%s", c.bucketName, c.client.Config.Endpoint, objectKey)
}
