// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"spatial-hub-go/internal/config"
	"spatial-hub-go/pkg/log"
)

// Entry 是一次单层列举返回的条目。IsFolder 为 true 时表示一个“文件夹”前缀，没有对应的对象。
type Entry struct {
	Name     string
	IsFolder bool
}

// NewMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}
	return client, nil
}

// MinioStore 把一个存储桶适配为一致性检查所需的列举/删除/探测能力。
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 创建一个新的 MinioStore 实例。
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

// List 非递归地列出 prefix 下一层的条目，子目录以 IsFolder=true 返回。
// 分页由 minio-go 的 channel 内部完成。
func (s *MinioStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	folderPrefix := FolderPrefix(prefix)
	var entries []Entry
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    folderPrefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", folderPrefix, obj.Err)
		}
		if entry, ok := EntryFromKey(folderPrefix, obj.Key); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// Remove 批量删除对象。任何一个对象删除失败都会使整批返回错误，
// 已不存在的对象视为删除成功。
func (s *MinioStore) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if len(paths) == 1 {
		err := s.client.RemoveObject(ctx, s.bucket, paths[0], minio.RemoveObjectOptions{})
		if err != nil && !IsNotFound(err) {
			return fmt.Errorf("remove object %q: %w", paths[0], err)
		}
		return nil
	}

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, p := range paths {
			select {
			case objectsCh <- minio.ObjectInfo{Key: p}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err == nil || IsNotFound(rErr.Err) {
			continue
		}
		errs = append(errs, fmt.Errorf("remove object %q: %w", rErr.ObjectName, rErr.Err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return ctx.Err()
}

// Exists 通过 StatObject 判断对象是否存在。
func (s *MinioStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat object %q: %w", path, err)
}

// IsNotFound 判断 MinIO/S3 错误是否表示对象不存在。
func IsNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"
}

// FolderPrefix 把一个逻辑目录路径转换为列举用的前缀（根目录为空串）。
func FolderPrefix(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	return path + "/"
}

// EntryFromKey 把列举返回的完整 key 转换为相对 prefix 的条目名。
// 目录占位对象（key 等于 prefix 本身）会被忽略。
func EntryFromKey(prefix, key string) (Entry, bool) {
	rel := strings.TrimPrefix(key, prefix)
	isFolder := strings.HasSuffix(rel, "/")
	rel = strings.TrimSuffix(rel, "/")
	if rel == "" {
		return Entry{}, false
	}
	return Entry{Name: rel, IsFolder: isFolder}, true
}
