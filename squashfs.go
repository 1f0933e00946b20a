package squashfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/dmcgowan/go-squashfs/internal/disk"
)

// Open returns an Image reading from the given readerat.
// The readerat must hold a squashfs 4.0 image starting at offset 0.
// No additional memory mapping is done and must be handled by
// the caller.
func Open(r io.ReaderAt) (*Image, error) {
	var superBlock [disk.SizeSuperBlock]byte
	n, err := r.ReadAt(superBlock[:], 0)
	if err != nil {
		return nil, err
	}

	if n != disk.SizeSuperBlock {
		return nil, fmt.Errorf("invalid super block: read %d bytes", n)
	}

	i := Image{
		meta: r,
	}
	if err = decodeSuperBlock(superBlock, &i.sb); err != nil {
		return nil, err
	}

	i.dec, err = newDecompressor(i.sb.Compression)
	if err != nil {
		return nil, err
	}

	return &i, nil
}

// Image is an opened squashfs image.
type Image struct {
	sb disk.SuperBlock

	meta io.ReaderAt
	dec  Decompressor
}

// Info summarizes the parsed superblock.
type Info struct {
	Inodes           uint32
	ModTime          time.Time
	BlockSize        uint32
	BlockLog         uint16
	Fragments        uint32
	Compression      uint16
	Flags            uint16
	IDCount          uint16
	BytesUsed        uint64
	RootInode        uint64
	InodeTableStart  uint64
	DirTableStart    uint64
	FragTableStart   uint64
	ExportTableStart uint64
}

func (i *Image) Info() Info {
	return Info{
		Inodes:           i.sb.Inodes,
		ModTime:          time.Unix(int64(i.sb.MkfsTime), 0),
		BlockSize:        i.sb.BlockSize,
		BlockLog:         i.sb.BlockLog,
		Fragments:        i.sb.Fragments,
		Compression:      i.sb.Compression,
		Flags:            i.sb.Flags,
		IDCount:          i.sb.IDCount,
		BytesUsed:        i.sb.BytesUsed,
		RootInode:        i.sb.RootInode,
		InodeTableStart:  i.sb.InodeTableStart,
		DirTableStart:    i.sb.DirTableStart,
		FragTableStart:   i.sb.FragTableStart,
		ExportTableStart: i.sb.ExportTableStart,
	}
}

// InodeReader returns a reader positioned at the first inode of the
// table. Each call returns an independent reader with its own buffer
// and cursor.
func (i *Image) InodeReader() *InodeReader {
	return &InodeReader{
		meta:      newMetaReader(i.meta, i.dec, int64(i.sb.InodeTableStart)),
		count:     i.sb.Inodes,
		blockSize: i.sb.BlockSize,
		blockLog:  i.sb.BlockLog,
	}
}

func decodeSuperBlock(b [disk.SizeSuperBlock]byte, sb *disk.SuperBlock) error {
	if err := binary.Read(bytes.NewReader(b[:]), binary.LittleEndian, sb); err != nil {
		return err
	}
	if n := binary.Size(sb); n != disk.SizeSuperBlock {
		return fmt.Errorf("invalid super block: decoded %d bytes", n)
	}
	if sb.Magic != disk.MagicNumber {
		return fmt.Errorf("invalid super block: invalid magic number %x", sb.Magic)
	}
	if sb.Major != 4 || sb.Minor != 0 {
		return fmt.Errorf("unsupported squashfs version %d.%d", sb.Major, sb.Minor)
	}
	if sb.BlockLog > 20 || sb.BlockSize != 1<<sb.BlockLog {
		return fmt.Errorf("invalid super block: block size %d does not match log %d", sb.BlockSize, sb.BlockLog)
	}
	return nil
}
