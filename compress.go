package squashfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"

	"github.com/dmcgowan/go-squashfs/internal/disk"
)

// ErrChunkOverflow is returned when a metadata chunk declares or
// produces more bytes than the metadata block size allows.
var ErrChunkOverflow = errors.New("metadata chunk exceeds block size")

// Decompressor inflates one metadata chunk. Decompress writes the
// inflated bytes into dst and reports how many were written; it must
// fail rather than write past len(dst).
type Decompressor interface {
	Decompress(dst, src []byte) (int, error)
}

func newDecompressor(id uint16) (Decompressor, error) {
	switch id {
	case disk.CompressionGzip:
		return zlibDecompressor{}, nil
	case disk.CompressionLz4:
		return lz4Decompressor{}, nil
	case disk.CompressionZstd:
		return newZstdDecompressor()
	case disk.CompressionLzma, disk.CompressionLzo, disk.CompressionXz:
		return nil, fmt.Errorf("unsupported compression id %d", id)
	default:
		return nil, fmt.Errorf("unknown compression id %d", id)
	}
}

type zlibDecompressor struct{}

func (zlibDecompressor) Decompress(dst, src []byte) (int, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()

	n, err := io.ReadFull(r, dst)
	switch err {
	case nil:
		// dst is exactly full, anything further is an overflow
		var one [1]byte
		if m, err := io.ReadFull(r, one[:]); m > 0 {
			return n, ErrChunkOverflow
		} else if err != io.EOF {
			return n, fmt.Errorf("zlib: %w", err)
		}
		return n, nil
	case io.EOF, io.ErrUnexpectedEOF:
		return n, nil
	default:
		return n, fmt.Errorf("zlib: %w", err)
	}
}

type lz4Decompressor struct{}

func (lz4Decompressor) Decompress(dst, src []byte) (int, error) {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return 0, fmt.Errorf("lz4: %w", err)
	}
	return n, nil
}

type zstdDecompressor struct {
	d *zstd.Decoder
}

func newZstdDecompressor() (Decompressor, error) {
	d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &zstdDecompressor{d: d}, nil
}

func (z *zstdDecompressor) Decompress(dst, src []byte) (int, error) {
	out, err := z.d.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, fmt.Errorf("zstd: %w", err)
	}
	if len(out) > len(dst) {
		return 0, ErrChunkOverflow
	}
	return len(out), nil
}
