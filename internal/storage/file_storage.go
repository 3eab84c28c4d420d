// internal/storage/file_storage.go
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStorage 提供扁平目录下的文件读写，不做任何缓存，每次调用都直接访问磁盘
type FileStorage struct {
	BaseDir string
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &FileStorage{BaseDir: baseDir}, nil
}

// Path 返回文件的完整路径
func (fs *FileStorage) Path(filename string) string {
	return filepath.Join(fs.BaseDir, filename)
}

// SaveTextFile 原子性写入：先写同目录临时文件，再 rename 覆盖目标
func (fs *FileStorage) SaveTextFile(filename string, content []byte) error {
	if err := os.MkdirAll(fs.BaseDir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	fullPath := fs.Path(filename)
	tmp, err := os.CreateTemp(fs.BaseDir, filename+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tempPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("保存临时文件失败: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("设置文件权限失败: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("保存文件失败: %w", err)
	}
	return nil
}

// SaveJSONFile 以两个空格缩进序列化后保存
func (fs *FileStorage) SaveJSONFile(filename string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	return fs.SaveTextFile(filename, content)
}

// LoadTextFile 读取文本文件
func (fs *FileStorage) LoadTextFile(filename string) ([]byte, error) {
	content, err := os.ReadFile(fs.Path(filename))
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return content, nil
}
