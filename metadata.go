package squashfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dmcgowan/go-squashfs/internal/disk"
)

// ErrRecordTooLarge is returned when a single record cannot fit in the
// metadata buffer.
var ErrRecordTooLarge = errors.New("record exceeds metadata buffer")

// metaReader stitches the chunks of a metadata table into one logical
// byte stream. Chunks are compressed independently of record
// boundaries, so a record may straddle two chunks; the rolling buffer
// holds the decompressed tail of the stream while bounding memory to
// twice the metadata block size.
type metaReader struct {
	r   io.ReaderAt
	off int64 // image offset of the next chunk header

	dec Decompressor

	buf   [2 * disk.MetadataSize]byte
	start int // first unconsumed byte in buf
	n     int // count of unconsumed bytes

	src [disk.MetadataSize]byte // compressed payload scratch
}

func newMetaReader(r io.ReaderAt, dec Decompressor, off int64) *metaReader {
	return &metaReader{
		r:   r,
		dec: dec,
		off: off,
	}
}

// peek returns a view of the next want unconsumed bytes, pulling and
// decompressing further chunks as needed. The view is only valid until
// the next peek or seek.
func (m *metaReader) peek(want int) ([]byte, error) {
	if want > len(m.buf)-disk.MetadataSize {
		return nil, fmt.Errorf("%d bytes: %w", want, ErrRecordTooLarge)
	}
	for m.n < want {
		if err := m.poll(); err != nil {
			return nil, err
		}
	}
	return m.buf[m.start : m.start+want], nil
}

// seek consumes n bytes from the front of the buffer. The bytes must
// have been made visible by a prior peek.
func (m *metaReader) seek(n int) {
	m.start += n
	m.n -= n
}

// poll reads one chunk from the image and appends its decompressed
// payload to the buffer.
func (m *metaReader) poll() error {
	var hdr [2]byte
	if _, err := m.r.ReadAt(hdr[:], m.off); err != nil {
		return fmt.Errorf("read chunk header at %d: %w", m.off, err)
	}
	m.off += 2
	length := binary.LittleEndian.Uint16(hdr[:])

	// Once the write position passes the midpoint, shift the
	// unconsumed tail back to the front. The tail is under one block
	// here, so the regions cannot overlap.
	if m.start+m.n > disk.MetadataSize {
		copy(m.buf[:m.n], m.buf[m.start:m.start+m.n])
		m.start = 0
	}
	write := m.start + m.n

	if length&disk.UncompressedFlag != 0 {
		length &^= disk.UncompressedFlag
		if int(length) > disk.MetadataSize {
			return fmt.Errorf("chunk at %d declares %d bytes: %w", m.off-2, length, ErrChunkOverflow)
		}
		if _, err := m.r.ReadAt(m.buf[write:write+int(length)], m.off); err != nil {
			return fmt.Errorf("read chunk at %d: %w", m.off, err)
		}
		m.off += int64(length)
		m.n += int(length)
		return nil
	}

	if int(length) > disk.MetadataSize {
		return fmt.Errorf("chunk at %d declares %d bytes: %w", m.off-2, length, ErrChunkOverflow)
	}
	src := m.src[:length]
	if _, err := m.r.ReadAt(src, m.off); err != nil {
		return fmt.Errorf("read chunk at %d: %w", m.off, err)
	}
	m.off += int64(length)

	n, err := m.dec.Decompress(m.buf[write:write+disk.MetadataSize], src)
	if err != nil {
		return fmt.Errorf("decompress chunk at %d: %w", m.off-int64(length), err)
	}
	m.n += n
	return nil
}
