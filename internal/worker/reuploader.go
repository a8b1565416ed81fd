package worker

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const reuploadInterval = 5 * time.Minute

// fallbackArchive 主归档失败时落到本地，由 Reuploader 稍后补传
type fallbackArchive struct {
	primary  ReportArchive
	fallback *LocalArchive
}

func NewFallbackArchive(primary ReportArchive, fallback *LocalArchive) ReportArchive {
	return &fallbackArchive{primary: primary, fallback: fallback}
}

func (a *fallbackArchive) Save(key string, data []byte) (string, error) {
	location, err := a.primary.Save(key, data)
	if err == nil {
		return location, nil
	}
	log.Printf("[Worker] report upload failed, keeping local copy: %v", err)
	return a.fallback.Save(key, data)
}

// Reuploader 后台把本地暂存的报告重传到 OSS
type Reuploader struct {
	dir      string
	uploader ossUploader
}

// NewReuploader 创建重传器
func NewReuploader(dir string, uploader ossUploader) *Reuploader {
	return &Reuploader{dir: dir, uploader: uploader}
}

// Start 后台重传循环，阻塞直到 ctx 取消
func (r *Reuploader) Start(ctx context.Context) {
	// 启动后先执行一次
	r.Run()

	ticker := time.NewTicker(reuploadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Worker] reuploader stopped")
			return
		case <-ticker.C:
			r.Run()
		}
	}
}

// Run 扫描一次本地目录，返回成功重传的数量
func (r *Reuploader) Run() int {
	var paths []string
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil || len(paths) == 0 {
		return 0
	}

	log.Printf("[Worker] reuploader: found %d local reports to re-upload", len(paths))

	uploaded := 0
	for _, path := range paths {
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[Worker] reuploader: failed to read %s: %v", path, err)
			continue
		}

		if _, err := r.uploader.UploadFile(filepath.ToSlash(rel), data, "application/json"); err != nil {
			log.Printf("[Worker] reuploader: failed to re-upload %s: %v", rel, err)
			continue
		}

		// 删除本地文件
		os.Remove(path)
		uploaded++
	}
	return uploaded
}
