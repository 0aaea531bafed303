package sqdata

import (
	"bytes"
	stdflate "compress/flate"
	"encoding/binary"
	"io"
	"testing"

	"github.com/sqpack-go/sqpack/sqindex"
)

// appendBlock writes a 16-byte block header plus payload (padded to the
// declared on-disk size) and returns the table entry for it. When
// padTo128 is set, a further 128 bytes of slack follow the aligned
// block: loadBlock's read-length formula can ask for a few bytes beyond
// the table-declared on-disk size, and those
// trailing bytes are never consumed by the DEFLATE decoder, which only
// looks at the first compressedLen of them.
func appendBlock(buf *[]byte, compressedLen, decompressedLen uint32, payload []byte, padTo128 bool) BlockTableEntry {
	offset := uint32(len(*buf))
	var head [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(head[0:4], blockHeaderSize)
	binary.LittleEndian.PutUint32(head[4:8], 0)
	binary.LittleEndian.PutUint32(head[8:12], compressedLen)
	binary.LittleEndian.PutUint32(head[12:16], decompressedLen)
	*buf = append(*buf, head[:]...)
	*buf = append(*buf, payload...)

	onDiskSize := uint32(blockHeaderSize + len(payload))
	if padTo128 {
		for (onDiskSize)%128 != 0 {
			*buf = append(*buf, 0)
			onDiskSize++
		}
		*buf = append(*buf, make([]byte, 128)...)
	}
	return BlockTableEntry{OffsetFromDataBody: offset, OnDiskSize: uint16(onDiskSize)}
}

func rawDeflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	w, err := stdflate.NewWriter(&out, stdflate.BestCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func buildEntry(t *testing.T, kind ContentKind, blocksBody []byte, blocks []BlockTableEntry, uncompressedSize uint32) ([]byte, sqindex.FileEntry) {
	t.Helper()
	const dataOffset = 0x80

	// header_len covers the fixed 24-byte entry header plus the block
	// table that immediately follows it; the block payload region starts
	// only after both.
	headerLen := uint32(entryHeaderSize + len(blocks)*blockTableEntrySize)

	var buf []byte
	buf = append(buf, make([]byte, dataOffset)...)

	var hdr [entryHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], headerLen)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(kind))
	binary.LittleEndian.PutUint32(hdr[8:12], uncompressedSize)
	binary.LittleEndian.PutUint32(hdr[20:24], uint32(len(blocks)))
	buf = append(buf, hdr[:]...)

	for _, b := range blocks {
		var rec [blockTableEntrySize]byte
		binary.LittleEndian.PutUint32(rec[0:4], b.OffsetFromDataBody)
		binary.LittleEndian.PutUint16(rec[4:6], b.OnDiskSize)
		buf = append(buf, rec[:]...)
	}

	buf = append(buf, blocksBody...)

	return buf, sqindex.FileEntry{DataOffset: dataOffset}
}

func TestBlockStreamUncompressed(t *testing.T) {
	payload := []byte("hello, sqpack world")
	var body []byte
	block := appendBlock(&body, uncompressedSentinel, uint32(len(payload)), payload, false)

	raw, entry := buildEntry(t, ContentBinary, body, []BlockTableEntry{block}, uint32(len(payload)))
	r := NewReader(&fakeReaderAt{raw})

	stream, err := r.Open(entry)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestBlockStreamCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 50)
	compressed := rawDeflate(t, payload)

	var body []byte
	block := appendBlock(&body, uint32(len(compressed)), uint32(len(payload)), compressed, true)

	raw, entry := buildEntry(t, ContentBinary, body, []BlockTableEntry{block}, uint32(len(payload)))
	r := NewReader(&fakeReaderAt{raw})

	stream, err := r.Open(entry)
	if err != nil {
		t.Fatal(err)
	}
	if stream.UncompressedSize() != uint32(len(payload)) {
		t.Errorf("UncompressedSize() = %d, want %d", stream.UncompressedSize(), len(payload))
	}

	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("decoded %d bytes, want %d; mismatch", len(got), len(payload))
	}
}

func TestBlockStreamMultipleBlocks(t *testing.T) {
	part1 := []byte("first block payload, stored")
	part2raw := bytes.Repeat([]byte("second block, compressed this time. "), 80)
	part2 := rawDeflate(t, part2raw)
	part3 := []byte("third block, stored again")

	var body []byte
	b1 := appendBlock(&body, uncompressedSentinel, uint32(len(part1)), part1, false)
	b2 := appendBlock(&body, uint32(len(part2)), uint32(len(part2raw)), part2, true)
	b3 := appendBlock(&body, uncompressedSentinel, uint32(len(part3)), part3, false)

	total := uint32(len(part1) + len(part2raw) + len(part3))
	raw, entry := buildEntry(t, ContentBinary, body, []BlockTableEntry{b1, b2, b3}, total)
	r := NewReader(&fakeReaderAt{raw})

	stream, err := r.Open(entry)
	if err != nil {
		t.Fatal(err)
	}

	// Drive with small reads to exercise the Idle/Reading/Done transitions.
	var got []byte
	buf := make([]byte, 7)
	for {
		n, err := stream.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}

	want := append(append(append([]byte{}, part1...), part2raw...), part3...)
	if !bytes.Equal(got, want) {
		t.Errorf("concatenated stream mismatch: got %d bytes, want %d", len(got), len(want))
	}

	// Further reads after EOF must keep reporting EOF (Done is terminal).
	n, err := stream.Read(buf)
	if n != 0 || err != io.EOF {
		t.Errorf("read after EOF = (%d, %v), want (0, io.EOF)", n, err)
	}
}

func TestInvalidBlockSentinel(t *testing.T) {
	payload := []byte("doesn't matter")
	var body []byte
	// compressed_len >= 32000 but not exactly 32000: malformed.
	block := appendBlock(&body, 32001, uint32(len(payload)), payload, false)

	raw, entry := buildEntry(t, ContentBinary, body, []BlockTableEntry{block}, uint32(len(payload)))
	r := NewReader(&fakeReaderAt{raw})

	stream, err := r.Open(entry)
	if err != nil {
		t.Fatal(err)
	}
	_, err = io.ReadAll(stream)
	if err == nil {
		t.Fatal("expected an error reading a block with an invalid sentinel")
	}
}

func TestUnknownContentType(t *testing.T) {
	raw, entry := buildEntry(t, ContentKind(99), nil, nil, 0)
	r := NewReader(&fakeReaderAt{raw})
	_, err := r.Open(entry)
	var unkErr *UnknownContentTypeError
	if err == nil {
		t.Fatal("expected an error for unknown content type")
	}
	if !asUnknownContentTypeError(err, &unkErr) {
		t.Fatalf("expected *UnknownContentTypeError, got %T: %v", err, err)
	}
	if unkErr.Value != 99 {
		t.Errorf("Value = %d, want 99", unkErr.Value)
	}
}

func TestNonBinaryContentTypeRejected(t *testing.T) {
	raw, entry := buildEntry(t, ContentModel, nil, nil, 0)
	r := NewReader(&fakeReaderAt{raw})
	_, err := r.Open(entry)
	var unkErr *UnknownContentTypeError
	if !asUnknownContentTypeError(err, &unkErr) {
		t.Fatalf("expected *UnknownContentTypeError for Model content, got %T: %v", err, err)
	}
	if unkErr.Value != uint32(ContentModel) {
		t.Errorf("Value = %d, want %d", unkErr.Value, ContentModel)
	}
}

func asUnknownContentTypeError(err error, target **UnknownContentTypeError) bool {
	if e, ok := err.(*UnknownContentTypeError); ok {
		*target = e
		return true
	}
	return false
}

type fakeReaderAt struct{ buf []byte }

func (f *fakeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}
