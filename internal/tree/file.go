package tree

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileTree is a MemoryTree backed by a Netscape bookmark file. The file is
// rewritten after every mutation.
type FileTree struct {
	*MemoryTree
	path string
}

// OpenFile loads path, or starts an empty tree when the file does not exist.
func OpenFile(path string) (*FileTree, error) {
	mt := NewMemoryTree()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("opening bookmarks file: %w", err)
	default:
		defer f.Close()
		mt, err = ReadHTML(f)
		if err != nil {
			return nil, fmt.Errorf("parsing bookmarks file: %w", err)
		}
	}

	ft := &FileTree{MemoryTree: mt, path: path}
	mt.persist = ft.write
	return ft, nil
}

func (ft *FileTree) Path() string {
	return ft.path
}

// write replaces the file atomically. Callers hold the tree lock.
func (ft *FileTree) write() error {
	var buf bytes.Buffer
	if err := ft.writeHTML(&buf); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(ft.path), 0o755); err != nil {
		return fmt.Errorf("creating bookmarks dir: %w", err)
	}
	tmp := ft.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing bookmarks file: %w", err)
	}
	if err := os.Rename(tmp, ft.path); err != nil {
		return fmt.Errorf("replacing bookmarks file: %w", err)
	}
	return nil
}
