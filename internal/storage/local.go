// Package storage はアップロードされたソーステキストの保存を提供します。
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yourusername/text-forge/internal/budget"
	"github.com/yourusername/text-forge/internal/jobapi"
)

const (
	contentFilename = "content.txt"
	metaFilename    = "meta.json"
)

var (
	ErrNotFound = errors.New("source not found")
	ErrNotText  = errors.New("source is not plain text")
	ErrTooLarge = errors.New("source exceeds the size limit")
	ErrEmpty    = errors.New("source is empty")
)

// Storage はソーステキストの保存先です。
type Storage interface {
	Save(ctx context.Context, name, content string) (*jobapi.Source, error)
	Load(ctx context.Context, id string) (string, error)
	Stat(ctx context.Context, id string) (*jobapi.Source, error)
}

type sourceMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CharCount   int       `json:"charCount"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (m *sourceMeta) toSource() *jobapi.Source {
	return &jobapi.Source{
		ID:          m.ID,
		Name:        m.Name,
		CharCount:   m.CharCount,
		ContentType: m.ContentType,
	}
}

// Local はローカルファイルシステムに <dir>/<id>/ の形で保存します。
type Local struct {
	dir      string
	maxBytes int64
}

// NewLocal は Local を作成し、保存先ディレクトリを用意します。
func NewLocal(dir string, maxBytes int64) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create sources dir: %w", err)
	}
	return &Local{dir: dir, maxBytes: maxBytes}, nil
}

// Save は内容を検証して保存します。テキスト以外は ErrNotText になります。
func (l *Local) Save(ctx context.Context, name, content string) (*jobapi.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := []byte(content)
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), l.maxBytes)
	}
	mtype, ok := budget.DetectText(data)
	if !ok {
		return nil, fmt.Errorf("%w: detected %s", ErrNotText, mtype)
	}

	meta := &sourceMeta{
		ID:          uuid.NewString(),
		Name:        name,
		CharCount:   utf8.RuneCount(data),
		ContentType: mtype,
		CreatedAt:   time.Now().UTC(),
	}
	dir := filepath.Join(l.dir, meta.ID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create source dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, contentFilename), data, 0o640); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to write source: %w", err)
	}
	if err := writeMeta(dir, meta); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return meta.toSource(), nil
}

// Load はソーステキストを読み込みます。
func (l *Local) Load(ctx context.Context, id string) (string, error) {
	dir, err := l.sourceDir(id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, contentFilename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("failed to read source: %w", err)
	}
	return string(data), nil
}

// Stat はソースのメタデータを返します。
func (l *Local) Stat(ctx context.Context, id string) (*jobapi.Source, error) {
	dir, err := l.sourceDir(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, metaFilename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read source meta: %w", err)
	}
	var meta sourceMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse source meta: %w", err)
	}
	return meta.toSource(), nil
}

// sourceDir は ID が uuid であることを確認してからパスを組み立てます。
func (l *Local) sourceDir(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return filepath.Join(l.dir, id), nil
}

func writeMeta(dir string, meta *sourceMeta) error {
	file, err := os.OpenFile(filepath.Join(dir, metaFilename), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open source meta: %w", err)
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}
