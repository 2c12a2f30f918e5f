// Package storage implements the File Set: the logical byte range
// [0, size) mapped onto one or more on-disk files, backed by afero so
// production code runs against the OS filesystem and tests run
// against an in-memory one.
package storage

import (
	"os"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const openFlags = os.O_CREATE | os.O_RDWR

// File is a logical file within the torrent's payload.
type File struct {
	Path         []string
	Length       int64
	GlobalOffset int64
}

// FileSet exposes the flat logical payload range [0, size) backed by
// one or more files on disk. Writes and reads that span file
// boundaries are split transparently.
type FileSet interface {
	Read(offset, length int64) ([]byte, error)
	Write(offset int64, data []byte) error
	Files() []File
	Size() int64
	Close() error
}

type handle struct {
	file afero.File
	lock sync.Mutex
}

type fileSet struct {
	fs       afero.Fs
	files    []File
	handles  []*handle
	size     int64
}

// Open creates (if absent) and opens every file of files under root,
// creating intermediate directories as needed, and returns a FileSet
// covering the flat range [0, size).
//
// Single-file torrents pass a single File{Path: []string{name}}; the
// file is created at root/name. Multi-file torrents pass one File per
// entry; each is created at root/name/<joined path components>.
func Open(fs afero.Fs, root, name string, files []File, multiFile bool) (FileSet, error) {
	fset := &fileSet{fs: fs}

	multi := multiFile
	base := root
	if multi {
		base = path.Join(root, name)
		if err := fs.MkdirAll(base, 0755); err != nil {
			return nil, errors.Wrapf(err, "create torrent root %s", base)
		}
	} else if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "create download root %s", root)
	}

	offset := int64(0)
	for _, f := range files {
		var fullPath string
		if multi {
			fullPath = path.Join(append([]string{base}, f.Path...)...)
			dir := path.Dir(fullPath)
			if err := fs.MkdirAll(dir, 0755); err != nil {
				return nil, errors.Wrapf(err, "create directory %s", dir)
			}
		} else {
			fullPath = path.Join(root, name)
		}

		fh, err := fs.OpenFile(fullPath, openFlags, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "open file %s", fullPath)
		}
		logical := File{Path: f.Path, Length: f.Length, GlobalOffset: offset}
		fset.files = append(fset.files, logical)
		fset.handles = append(fset.handles, &handle{file: fh})
		offset += f.Length
	}
	fset.size = offset
	return fset, nil
}

func (fs *fileSet) Files() []File { return fs.files }
func (fs *fileSet) Size() int64   { return fs.size }

func (fs *fileSet) Close() error {
	var firstErr error
	for _, h := range fs.handles {
		if err := h.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Read returns length bytes starting at the logical offset, splitting
// the read across file boundaries as necessary.
func (fs *fileSet) Read(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > fs.size {
		return nil, errors.Errorf("read [%d,%d) out of range [0,%d)", offset, offset+length, fs.size)
	}
	out := make([]byte, 0, length)
	remaining := length
	pos := offset
	for remaining > 0 {
		idx, localOff := fs.locate(pos)
		f := fs.files[idx]
		chunk := f.Length - localOff
		if chunk > remaining {
			chunk = remaining
		}
		buf := make([]byte, chunk)
		h := fs.handles[idx]
		h.lock.Lock()
		_, err := h.file.ReadAt(buf, localOff)
		h.lock.Unlock()
		if err != nil {
			return nil, errors.Wrapf(err, "read file %d at %d", idx, localOff)
		}
		out = append(out, buf...)
		remaining -= chunk
		pos += chunk
	}
	return out, nil
}

// Write stores data starting at the logical offset, splitting the
// write across file boundaries as necessary.
func (fs *fileSet) Write(offset int64, data []byte) error {
	if offset < 0 || offset+int64(len(data)) > fs.size {
		return errors.Errorf("write [%d,%d) out of range [0,%d)", offset, offset+int64(len(data)), fs.size)
	}
	remaining := data
	pos := offset
	for len(remaining) > 0 {
		idx, localOff := fs.locate(pos)
		f := fs.files[idx]
		chunk := f.Length - localOff
		if chunk > int64(len(remaining)) {
			chunk = int64(len(remaining))
		}
		h := fs.handles[idx]
		h.lock.Lock()
		_, err := h.file.WriteAt(remaining[:chunk], localOff)
		h.lock.Unlock()
		if err != nil {
			return errors.Wrapf(err, "write file %d at %d", idx, localOff)
		}
		remaining = remaining[chunk:]
		pos += chunk
	}
	return nil
}

// locate returns the file index and local offset within that file for
// the given logical offset.
func (fs *fileSet) locate(pos int64) (idx int, localOffset int64) {
	for i, f := range fs.files {
		if pos < f.GlobalOffset+f.Length {
			return i, pos - f.GlobalOffset
		}
	}
	last := len(fs.files) - 1
	return last, pos - fs.files[last].GlobalOffset
}

// JoinPath renders a multi-file torrent's path components using the
// platform-neutral "/" separator that the bencoded path list expects.
func JoinPath(components []string) string {
	return strings.Join(components, "/")
}
