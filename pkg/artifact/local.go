package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxSize is the largest payment proof accepted.
const MaxSize = 10 << 20

var (
	ErrUnsupportedFormat = errors.New("unsupported artifact format")
	ErrTooLarge          = errors.New("artifact too large")
)

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// LocalStore keeps uploaded artifacts on local disk and hands back an opaque
// reference of the form "<prefix>/<uuid><ext>".
type LocalStore struct {
	dir    string
	prefix string
}

func NewLocalStore(dir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, prefix: prefix}, nil
}

func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	full := filepath.Join(s.dir, name)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return path.Join(s.prefix, name), nil
}
