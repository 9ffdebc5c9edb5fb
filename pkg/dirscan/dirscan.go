// Package dirscan enumerates the entries of a single directory without
// recursing, holding one open handle for the lifetime of the scan.
package dirscan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/afero"
)

const batchSize = 64

// Dir is an open directory handle. Names are read lazily, in whatever order
// the filesystem returns them, and the sequence cannot be restarted.
type Dir struct {
	file    afero.File
	path    string
	pending []string
	done    bool
	closed  bool
}

func Open(fs afero.Fs, path string) (*Dir, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.IsDir() {
		f.Close()
		return nil, &os.PathError{Op: "open", Path: path, Err: syscall.ENOTDIR}
	}
	return &Dir{file: f, path: path}, nil
}

// Next returns the next entry name. ok is false once the directory is
// exhausted or closed.
func (d *Dir) Next() (name string, ok bool, err error) {
	if d.closed {
		return "", false, nil
	}
	for len(d.pending) == 0 {
		if d.done {
			return "", false, nil
		}
		names, err := d.file.Readdirnames(batchSize)
		if errors.Is(err, io.EOF) {
			d.done = true
		} else if err != nil {
			d.done = true
			return "", false, fmt.Errorf("read directory %s: %w", d.path, err)
		}
		d.pending = names
	}
	name, d.pending = d.pending[0], d.pending[1:]
	return name, true, nil
}

func (d *Dir) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.pending = nil
	return d.file.Close()
}
