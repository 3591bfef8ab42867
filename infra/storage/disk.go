// Package storage keeps attachment files on the local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/model"
)

// ErrInvalidPath is returned for paths escaping the storage root.
var ErrInvalidPath = errors.New("invalid storage path")

// Disk stores files as {root}/{sheet}/{name}.
type Disk struct {
	root string
}

// NewDisk creates root if needed.
func NewDisk(root string) (*Disk, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Disk{root: abs}, nil
}

// Root returns the absolute storage directory.
func (d *Disk) Root() string { return d.root }

// resolve maps a relative slash path to an absolute path under root.
func (d *Disk) resolve(rel string) (string, error) {
	if rel == "" || strings.Contains(rel, "\\") || path.IsAbs(rel) {
		return "", ErrInvalidPath
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

func segment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return ErrInvalidPath
	}
	return nil
}

// Save writes r under sheetID/name and returns the relative path. Writes
// exceeding limit bytes are discarded with expense.ErrTooLarge.
func (d *Disk) Save(ctx context.Context, sheetID, name string, r io.Reader, limit int64) (string, int64, error) {
	if err := segment(sheetID); err != nil {
		return "", 0, err
	}
	if err := segment(name); err != nil {
		return "", 0, err
	}
	rel := path.Join(sheetID, name)
	abs, err := d.resolve(rel)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".upload-*")
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, io.LimitReader(ctxReader{ctx, r}, limit+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, err
	}
	if n > limit {
		return "", 0, expense.ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return "", 0, err
	}
	return rel, n, nil
}

// Open returns a reader on a stored file.
func (d *Disk) Open(_ context.Context, rel string) (io.ReadCloser, error) {
	abs, err := d.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", rel, model.ErrNotFound)
	}
	return f, err
}

// Delete removes a stored file. Missing files are ignored.
func (d *Disk) Delete(_ context.Context, rel string) error {
	abs, err := d.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DeleteSheet removes every file of a sheet.
func (d *Disk) DeleteSheet(_ context.Context, sheetID string) error {
	if err := segment(sheetID); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(d.root, sheetID))
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ expense.FileStorage = (*Disk)(nil)
