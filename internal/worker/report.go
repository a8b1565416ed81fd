package worker

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReportArchive 保存每轮扣款的 JSON 报告，返回可访问的位置
type ReportArchive interface {
	Save(key string, data []byte) (string, error)
}

// ossUploader 由 oss.Client 实现
type ossUploader interface {
	UploadFile(objectKey string, data []byte, contentType string) (string, error)
}

type ossArchive struct {
	uploader ossUploader
}

// NewOSSArchive 报告上传到 OSS
func NewOSSArchive(uploader ossUploader) ReportArchive {
	return &ossArchive{uploader: uploader}
}

func (a *ossArchive) Save(key string, data []byte) (string, error) {
	return a.uploader.UploadFile(key, data, "application/json")
}

// LocalArchive OSS 未配置时写本地目录
type LocalArchive struct {
	dir string
}

func NewLocalArchive(dir string) *LocalArchive {
	return &LocalArchive{dir: dir}
}

func (a *LocalArchive) Save(key string, data []byte) (string, error) {
	path := filepath.Join(a.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return "local://" + filepath.ToSlash(path), nil
}
