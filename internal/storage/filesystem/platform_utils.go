package filesystem

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

// PlatformUtils 平台兼容性工具
type PlatformUtils struct{}

// NewPlatformUtils 创建平台工具实例
func NewPlatformUtils() *PlatformUtils {
	return &PlatformUtils{}
}

// SanitizeSegment 清理单个路径片段，确保跨平台兼容
func (p *PlatformUtils) SanitizeSegment(name string) string {
	for _, char := range p.getInvalidChars() {
		name = strings.ReplaceAll(name, char, "_")
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	if len(name) > 200 {
		ext := filepath.Ext(name)
		name = name[:200-len(ext)] + ext
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}

// getInvalidChars 获取当前平台不允许的字符
func (p *PlatformUtils) getInvalidChars() []string {
	switch runtime.GOOS {
	case "darwin", "linux":
		return []string{"/", "\\", "\x00"}
	default:
		return []string{"<", ">", ":", "\"", "|", "?", "*", "\\", "/", "\x00"}
	}
}

// ValidateObjectPath 校验对象的相对路径：不能为空、不能是绝对路径、不能包含 ..
func (p *PlatformUtils) ValidateObjectPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty object path")
	}
	if len(path) > 1024 {
		return fmt.Errorf("path too long: %d characters", len(path))
	}
	if strings.HasPrefix(path, "/") || filepath.IsAbs(path) {
		return fmt.Errorf("absolute object path: %s", path)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return fmt.Errorf("invalid path segment in %s", path)
		}
	}
	return nil
}

// NormalizePath 转换为清理过的绝对路径
func (p *PlatformUtils) NormalizePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return filepath.Clean(absPath)
}
