// Package audit stores the audit trail as JSON lines in a size-rotated file.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	coreaudit "github.com/kilianp07/ndf/core/audit"
)

// Options configures rotation. Sizes are in megabytes, ages in days.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// JSONLStore appends records to path and rotates it with lumberjack.
type JSONLStore struct {
	lj   *lumberjack.Logger
	path string
}

// NewJSONLStore creates the directory of path if needed.
func NewJSONLStore(path string, o Options) (*JSONLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		LocalTime:  false,
		Compress:   false,
	}
	return &JSONLStore{lj: lj, path: path}, nil
}

// Append writes one line. A write that crosses MaxSizeMB rotates the file.
func (s *JSONLStore) Append(_ context.Context, r coreaudit.Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.lj.Write(append(b, '\n'))
	return err
}

// Query scans the current file and its rotated backups.
func (s *JSONLStore) Query(ctx context.Context, q coreaudit.Query) ([]coreaudit.Record, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	var out []coreaudit.Record
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := readFile(f, q)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

// files lists the backups, named <name>-<timestamp><ext>, then path.
func (s *JSONLStore) files() ([]string, error) {
	ext := filepath.Ext(s.path)
	prefix := strings.TrimSuffix(s.path, ext)
	backups, err := filepath.Glob(prefix + "-*" + ext)
	if err != nil {
		return nil, err
	}
	sort.Strings(backups)
	if _, err := os.Stat(s.path); err == nil {
		backups = append(backups, s.path)
	}
	return backups, nil
}

func readFile(path string, q coreaudit.Query) ([]coreaudit.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var out []coreaudit.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var r coreaudit.Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, sc.Err()
}

// Close closes the current file.
func (s *JSONLStore) Close() error { return s.lj.Close() }

var _ coreaudit.Store = (*JSONLStore)(nil)
