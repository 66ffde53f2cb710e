package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"okitegami/backend/internal/domain"
	"okitegami/backend/internal/storage"
)

// Store 本地文件系统上的图片对象存储
//
// 对象路径使用 "/" 分隔的相对路径，如 letters/2024-04-01/<id>.jpg。
type Store struct {
	basePath      string
	publicBaseURL string
	platformUtils *PlatformUtils
}

var _ storage.ObjectStore = (*Store)(nil)

// NewStore 创建文件系统存储实例
func NewStore(basePath, publicBaseURL string) (*Store, error) {
	platformUtils := NewPlatformUtils()
	if strings.Contains(basePath, "..") {
		return nil, fmt.Errorf("invalid base path: path traversal detected: %s", basePath)
	}

	normalizedPath := platformUtils.NormalizePath(basePath)
	if err := os.MkdirAll(normalizedPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{
		basePath:      normalizedPath,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		platformUtils: platformUtils,
	}, nil
}

// BasePath 存储根目录
func (s *Store) BasePath() string {
	return s.basePath
}

// resolve 将对象路径转换为磁盘路径，并确保不越出根目录
func (s *Store) resolve(path string) (string, error) {
	if err := s.platformUtils.ValidateObjectPath(path); err != nil {
		return "", fmt.Errorf("%s: %w", err.Error(), domain.ErrValidation)
	}
	segs := strings.Split(path, "/")
	for i, seg := range segs {
		segs[i] = s.platformUtils.SanitizeSegment(seg)
	}
	full := filepath.Join(append([]string{s.basePath}, segs...)...)
	rel, err := filepath.Rel(s.basePath, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object path escapes storage root: %w", domain.ErrValidation)
	}
	return full, nil
}

// Upload 写入对象（同路径覆盖），先写临时文件再重命名
func (s *Store) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit object: %w", err)
	}
	return nil
}

// Open 读取对象内容
func (s *Store) Open(path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// PublicURL 返回对象的公开访问地址
func (s *Store) PublicURL(path string) string {
	if path == "" {
		return ""
	}
	return s.publicBaseURL + "/" + path
}

// Remove 删除对象，不存在的路径忽略
func (s *Store) Remove(ctx context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		full, err := s.resolve(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetStorageStats 获取存储统计信息
func (s *Store) GetStorageStats() (map[string]interface{}, error) {
	var totalSize int64
	var objectCount int

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		totalSize += info.Size()
		objectCount++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"total_size_bytes": totalSize,
		"total_size_mb":    float64(totalSize) / 1024 / 1024,
		"object_count":     objectCount,
		"base_path":        s.basePath,
	}, nil
}
