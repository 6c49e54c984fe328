package cooldown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the record as a JSON document at Path. The file holds a
// single record, so one file serves one key.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("冷却文件路径为空")
	}
	return &FileStore{path: path}, nil
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Load implements Store.
func (s *FileStore) Load(_ context.Context, _ string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("读取冷却文件失败: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, false, fmt.Errorf("解析冷却文件失败: %w", err)
	}
	if record.Timestamp.IsZero() {
		return Record{}, false, nil
	}
	return record, true, nil
}

// Save implements Store. The document is written to a temporary file and
// renamed over the old one.
func (s *FileStore) Save(_ context.Context, _ string, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化冷却记录失败: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建冷却目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cooldown-*.json")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入冷却记录失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("写入冷却记录失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("替换冷却文件失败: %w", err)
	}
	return nil
}
