package upload

import (
	"fmt"
	"io"
	"os"
)

// Source is a readable file handle of known size.
type Source interface {
	io.ReaderAt
	Size() int64
	Name() string
}

// FileSource is a Source backed by an open *os.File.
type FileSource struct {
	f    *os.File
	size int64
}

// OpenFile opens path for reading and records its current size.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &FileSource{f: f, size: fi.Size()}, nil
}

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *FileSource) Size() int64 {
	return s.size
}

func (s *FileSource) Name() string {
	return s.f.Name()
}

func (s *FileSource) Close() error {
	return s.f.Close()
}
