// Package sqdata parses SqPack ".win32.datN" files: the per-entry header
// and block table at an index entry's data offset, and a streaming
// decoder that concatenates the entry's stored and DEFLATE-compressed
// blocks into one logical byte stream.
package sqdata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sqpack-go/sqpack/internal/flate"
	"github.com/sqpack-go/sqpack/internal/sectionreader"
	"github.com/sqpack-go/sqpack/sqindex"
)

// ContentKind identifies the payload encoding named by an entry header.
// Only ContentBinary is decoded by BlockStream; the others are recognised
// but rejected by Reader.Open with an UnknownContentTypeError, exactly as
// the wider library treats them: parsed defensively, not decoded.
type ContentKind uint32

// The closed set of content kinds an entry header may declare.
const (
	ContentEmpty   ContentKind = 1
	ContentBinary  ContentKind = 2
	ContentModel   ContentKind = 3
	ContentTexture ContentKind = 4
)

func (k ContentKind) valid() bool {
	switch k {
	case ContentEmpty, ContentBinary, ContentModel, ContentTexture:
		return true
	default:
		return false
	}
}

// UnknownContentTypeError is returned when an entry header's content-kind
// field is outside {1,2,3,4}, or is one of {1,3,4} and therefore
// recognised but not decodable by this package.
type UnknownContentTypeError struct {
	Value uint32
}

func (e *UnknownContentTypeError) Error() string {
	return fmt.Sprintf("sqdata: unknown or unsupported content type %d", e.Value)
}

// ErrInvalidBlockSentinel is wrapped into the returned error when an
// on-disk block claims to be uncompressed (compressed_len >= 32000) but
// its compressed_len isn't exactly the 32000 sentinel.
var ErrInvalidBlockSentinel = errors.New("sqdata: uncompressed block violates the 32000 sentinel")

// EntryHeader is the 24-byte header stored at an index entry's data
// offset.
type EntryHeader struct {
	HeaderLen        uint32
	ContentKind      ContentKind
	UncompressedSize uint32
	BlocksCount      uint32
}

// BlockTableEntry is one 8-byte record of an entry's block table.
type BlockTableEntry struct {
	OffsetFromDataBody uint32
	OnDiskSize         uint16
}

const entryHeaderSize = 24
const blockTableEntrySize = 8
const blockHeaderSize = 16
const uncompressedSentinel = 32000

// Reader parses entry headers and block tables out of a single data file
// opened over src.
type Reader struct {
	src io.ReaderAt
}

// NewReader returns a Reader over src.
func NewReader(src io.ReaderAt) *Reader {
	return &Reader{src: src}
}

// ReadEntryHeader reads the 24-byte entry header at entry.DataOffset.
func (r *Reader) ReadEntryHeader(entry sqindex.FileEntry) (EntryHeader, error) {
	var buf [entryHeaderSize]byte
	if _, err := r.src.ReadAt(buf[:], int64(entry.DataOffset)); err != nil {
		return EntryHeader{}, fmt.Errorf("sqdata: reading entry header at %#x: %w", entry.DataOffset, err)
	}
	rawKind := binary.LittleEndian.Uint32(buf[4:8])
	hdr := EntryHeader{
		HeaderLen:        binary.LittleEndian.Uint32(buf[0:4]),
		ContentKind:      ContentKind(rawKind),
		UncompressedSize: binary.LittleEndian.Uint32(buf[8:12]),
		// bytes 12:20 are a reserved field followed by a block-buffer-size
		// field, neither consulted by this reader; blocks_count is at 20.
		BlocksCount: binary.LittleEndian.Uint32(buf[20:24]),
	}
	if !hdr.ContentKind.valid() {
		return EntryHeader{}, &UnknownContentTypeError{Value: rawKind}
	}
	return hdr, nil
}

// ReadBlockTable reads hdr.BlocksCount block-table records immediately
// following the entry header, at entry.DataOffset + 24.
func (r *Reader) ReadBlockTable(entry sqindex.FileEntry, hdr EntryHeader) ([]BlockTableEntry, error) {
	base := int64(entry.DataOffset) + entryHeaderSize
	out := make([]BlockTableEntry, hdr.BlocksCount)
	for i := range out {
		var buf [blockTableEntrySize]byte
		off := base + int64(i)*blockTableEntrySize
		if _, err := r.src.ReadAt(buf[:], off); err != nil {
			return nil, fmt.Errorf("sqdata: reading block table entry %d at %#x: %w", i, off, err)
		}
		out[i] = BlockTableEntry{
			OffsetFromDataBody: binary.LittleEndian.Uint32(buf[0:4]),
			OnDiskSize:         binary.LittleEndian.Uint16(buf[4:6]),
		}
	}
	return out, nil
}

// Open reads entry's header and block table and returns a BlockStream
// ready to decode its Binary payload. It returns an
// *UnknownContentTypeError if the entry's content kind is anything other
// than Binary — the core decodes Binary only.
func (r *Reader) Open(entry sqindex.FileEntry) (*BlockStream, error) {
	hdr, err := r.ReadEntryHeader(entry)
	if err != nil {
		return nil, err
	}
	if hdr.ContentKind != ContentBinary {
		return nil, &UnknownContentTypeError{Value: uint32(hdr.ContentKind)}
	}
	blocks, err := r.ReadBlockTable(entry, hdr)
	if err != nil {
		return nil, err
	}
	bodyOffset := int64(entry.DataOffset) + int64(hdr.HeaderLen)
	return newBlockStream(r.src, bodyOffset, hdr.UncompressedSize, blocks), nil
}

type streamState int

const (
	stateIdle streamState = iota
	stateReading
	stateDone
)

// BlockStream is a streaming byte source over a Binary entry's block
// sequence. It is modelled as an explicit Idle/Reading/Done state
// machine: Idle pops the next block table entry and loads it; Reading
// delegates to the current block's decoder until it's exhausted; Done is
// terminal. BlockStream owns src exclusively for its lifetime and is not
// safe for concurrent use.
type BlockStream struct {
	src              io.ReaderAt
	bodyOffset       int64
	uncompressedSize uint32
	pending          []BlockTableEntry

	state  streamState
	inner  io.Reader
	closer io.Closer
}

func newBlockStream(src io.ReaderAt, bodyOffset int64, uncompressedSize uint32, blocks []BlockTableEntry) *BlockStream {
	return &BlockStream{
		src:              src,
		bodyOffset:       bodyOffset,
		uncompressedSize: uncompressedSize,
		pending:          blocks,
		state:            stateIdle,
	}
}

// WithCloser attaches closer to the stream and returns it, so that Close
// releases whatever file handle src was opened from. Callers that built
// a Reader over a source with no separate lifetime (an in-memory buffer,
// for instance) never need to call it.
func (s *BlockStream) WithCloser(closer io.Closer) *BlockStream {
	s.closer = closer
	return s
}

// Close releases the file handle passed to WithCloser, if any.
func (s *BlockStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ContentKind always reports ContentBinary: it's the only kind
// BlockStream ever decodes.
func (s *BlockStream) ContentKind() ContentKind { return ContentBinary }

// UncompressedSize returns the entry's declared total decompressed size,
// useful for pre-allocating the caller's buffer.
func (s *BlockStream) UncompressedSize() uint32 { return s.uncompressedSize }

// Read implements io.Reader, yielding the concatenation of every block's
// decoded payload in table order. The total bytes yielded before a
// terminal io.EOF equals UncompressedSize.
func (s *BlockStream) Read(p []byte) (int, error) {
	for {
		switch s.state {
		case stateDone:
			return 0, io.EOF

		case stateIdle:
			if len(s.pending) == 0 {
				s.state = stateDone
				continue
			}
			next := s.pending[0]
			s.pending = s.pending[1:]
			inner, err := s.loadBlock(next)
			if err != nil {
				s.state = stateDone
				return 0, err
			}
			s.inner = inner
			s.state = stateReading
			continue

		case stateReading:
			n, err := s.inner.Read(p)
			if n > 0 {
				return n, nil
			}
			if err != nil && err != io.EOF {
				s.state = stateDone
				return 0, err
			}
			s.inner = nil
			s.state = stateIdle
			continue
		}
	}
}

// loadBlock reads one block's 16-byte header plus payload and returns an
// io.Reader over its decoded contents.
func (s *BlockStream) loadBlock(block BlockTableEntry) (io.Reader, error) {
	blockOffset := s.bodyOffset + int64(block.OffsetFromDataBody)

	var head [blockHeaderSize]byte
	if _, err := s.src.ReadAt(head[:], blockOffset); err != nil {
		return nil, fmt.Errorf("sqdata: reading block header at %#x: %w", blockOffset, err)
	}
	blockHeaderLen := binary.LittleEndian.Uint32(head[0:4])
	compressedLen := binary.LittleEndian.Uint32(head[8:12])
	decompressedLen := binary.LittleEndian.Uint32(head[12:16])

	isCompressed := compressedLen < uncompressedSentinel
	if !isCompressed && compressedLen != uncompressedSentinel {
		return nil, fmt.Errorf("sqdata: block at %#x: %w", blockOffset, ErrInvalidBlockSentinel)
	}

	onDiskPayloadLen := decompressedLen
	if isCompressed {
		onDiskPayloadLen = compressedLen
	}

	var readLen uint32
	if isCompressed && (uint32(block.OnDiskSize)+blockHeaderLen)%128 != 0 {
		readLen = compressedLen + 128 - ((uint32(block.OnDiskSize) - blockHeaderLen) % 128)
	} else {
		readLen = onDiskPayloadLen
	}

	payloadOffset := blockOffset + blockHeaderSize
	payload := make([]byte, readLen)
	if _, err := s.src.ReadAt(payload, payloadOffset); err != nil {
		return nil, fmt.Errorf("sqdata: reading block payload at %#x: %w", payloadOffset, err)
	}

	if !isCompressed {
		return bytes.NewReader(payload[:decompressedLen]), nil
	}

	section := sectionreader.Section(bytes.NewReader(payload), 0, int64(compressedLen))
	return flate.NewReader(section, int64(compressedLen), int64(decompressedLen)), nil
}
