// Package bufsource opens archive files (.win32.index, .win32.datN) as
// buffered io.ReaderAt sources. SqPack reads are scattered and small —
// header fields, block table entries, block headers — so an unbuffered
// os.File.ReadAt would mean one syscall per field. Wrapping it in a
// read-ahead buffer turns runs of nearby small reads into far fewer
// underlying pread(2) calls.
package bufsource

import (
	"io"
	"os"

	bufra "github.com/avvmoto/buf-readerat"
)

// bufferSize is the read-ahead window used for every opened file.
// Untuned: chosen to comfortably cover an entry header (24 bytes) plus
// its block table in one underlying read, without over-reading on tiny
// files.
const bufferSize = 4096

// Source is a buffered, size-bounded view over an on-disk archive file.
// It implements io.ReaderAt and must be closed when no longer needed.
type Source struct {
	io.ReaderAt
	f *os.File
}

// Open opens path and wraps it in a buffered, size-clipped io.ReaderAt.
// Reads past the file's size return io.EOF rather than silently
// succeeding with zero bytes, matching the contract callers of
// sqindex.NewReader and sqdata.NewReader rely on.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	buffered := bufra.NewBufReaderAt(f, bufferSize)
	clipped := io.NewSectionReader(buffered, 0, info.Size())
	return &Source{ReaderAt: clipped, f: f}, nil
}

// Close closes the underlying file.
func (s *Source) Close() error {
	return s.f.Close()
}
