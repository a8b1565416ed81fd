package oss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/pos_billing_server/config"
)

func TestConfigured(t *testing.T) {
	assert.False(t, Configured(&config.OSSConfig{}))
	assert.False(t, Configured(&config.OSSConfig{Endpoint: "oss-cn-hangzhou.aliyuncs.com"}))
	assert.True(t, Configured(&config.OSSConfig{
		Endpoint:    "oss-cn-hangzhou.aliyuncs.com",
		AccessKeyID: "id",
		BucketName:  "reports",
	}))
}

func TestClient_GetURL_CDN(t *testing.T) {
	client, err := NewClient(&config.OSSConfig{
		Endpoint:        "oss-cn-hangzhou.aliyuncs.com",
		AccessKeyID:     "id",
		AccessKeySecret: "secret",
		BucketName:      "reports",
		CDNDomain:       "cdn.example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/billing-reports/2024/03/10/run.json",
		client.GetURL("billing-reports/2024/03/10/run.json"))
}
