package downloads

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalResolver serves files from a directory on disk.
type LocalResolver struct {
	root string
}

func NewLocalResolver(root string) (*LocalResolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve download dir: %w", err)
	}
	return &LocalResolver{root: abs}, nil
}

func (r *LocalResolver) Resolve(_ context.Context, fileKey string) (*Delivery, error) {
	key, err := cleanKey(fileKey)
	if err != nil {
		return nil, err
	}
	full := filepath.Join(r.root, filepath.FromSlash(key))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return nil, ErrFileNotFound
	}
	return &Delivery{FilePath: full, FileName: filepath.Base(full)}, nil
}
