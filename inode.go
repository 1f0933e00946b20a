package squashfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"

	"github.com/dmcgowan/go-squashfs/internal/disk"
)

var (
	// ErrEndOfTable is returned by Next once every inode declared by
	// the superblock has been read.
	ErrEndOfTable = errors.New("end of inode table")

	// ErrInvalidInodeType is returned when a record carries a type tag
	// of zero or above the highest known variant.
	ErrInvalidInodeType = errors.New("invalid inode type")
)

// Header holds the fields common to every inode variant.
type Header struct {
	Type  uint16
	Perm  uint16
	UID   uint16
	GID   uint16
	Mtime uint32
	Inode uint32
}

func (h Header) Base() Header {
	return h
}

// Mode returns the inode's type and permission bits as a FileMode.
func (h Header) Mode() fs.FileMode {
	return disk.TypeToFileMode(h.Type) | fs.FileMode(h.Perm)&fs.ModePerm
}

// Inode is one decoded inode record: a *Dir, *Reg, *Symlink, *Dev,
// *IPC, *LDir, *LReg, *LDev or *LIPC. Extended variants that share a
// layout with their basic counterpart decode into the same type; the
// header keeps the on-disk type tag.
type Inode interface {
	Base() Header
	Mode() fs.FileMode
}

type Dir struct {
	Header
	StartBlock  uint32
	Nlink       uint32
	FileSize    uint16
	Offset      uint16
	ParentInode uint32
}

type Reg struct {
	Header
	StartBlock uint32
	Fragment   uint32
	Offset     uint32
	FileSize   uint32
	BlockSizes []uint32
}

type Symlink struct {
	Header
	Nlink  uint32
	Target []byte
}

type Dev struct {
	Header
	Nlink uint32
	Rdev  uint32
}

type IPC struct {
	Header
	Nlink uint32
}

type LDir struct {
	Header
	Nlink       uint32
	FileSize    uint32
	StartBlock  uint32
	ParentInode uint32
	Offset      uint16
	Xattr       uint32
	Index       []DirIndex
}

// LBlock is one entry of an extended file's block list, a block length
// plus its extra per-block word.
type LBlock struct {
	Size uint32
	Meta uint32
}

type LReg struct {
	Header
	StartBlock uint64
	FileSize   uint64
	Sparse     uint64
	Nlink      uint32
	Fragment   uint32
	Offset     uint32
	Xattr      uint32
	Blocks     []LBlock
}

type LDev struct {
	Header
	Nlink uint32
	Rdev  uint32
	Xattr uint32
}

type LIPC struct {
	Header
	Nlink uint32
	Xattr uint32
}

// DirIndex is one decoded entry of an extended directory's index.
type DirIndex struct {
	Index uint32
	Start uint32
	Name  []byte
}

// InodeReader decodes the inode table one record at a time. Record
// boundaries are not known up front; each record's length is computed
// from fields discovered while parsing it.
type InodeReader struct {
	meta *metaReader

	index uint32
	count uint32

	blockSize uint32
	blockLog  uint16
}

// Next decodes the next inode record and advances past it. Once the
// superblock's inode count is exhausted it returns ErrEndOfTable.
func (r *InodeReader) Next() (Inode, error) {
	if r.index >= r.count {
		return nil, ErrEndOfTable
	}
	in, err := r.next()
	if err != nil {
		return nil, err
	}
	r.index++
	return in, nil
}

func (r *InodeReader) next() (Inode, error) {
	b, err := r.meta.peek(disk.SizeInodeHeader)
	if err != nil {
		return nil, err
	}
	typ := binary.LittleEndian.Uint16(b)
	if typ == 0 || typ > disk.TypeMax {
		return nil, fmt.Errorf("inode %d: type %d: %w", r.index, typ, ErrInvalidInodeType)
	}

	fixed := disk.InodeFixedSize(typ)
	b, err = r.meta.peek(fixed)
	if err != nil {
		return nil, err
	}

	switch typ {
	case disk.TypeDir:
		var in disk.InodeDir
		if err := decode(b, &in); err != nil {
			return nil, err
		}
		r.meta.seek(fixed)
		return &Dir{
			Header:      header(in.InodeHeader),
			StartBlock:  in.StartBlock,
			Nlink:       in.Nlink,
			FileSize:    in.FileSize,
			Offset:      in.Offset,
			ParentInode: in.ParentInode,
		}, nil

	case disk.TypeReg:
		var in disk.InodeReg
		if err := decode(b, &in); err != nil {
			return nil, err
		}
		total := in.InodeSize(r.blockSize, r.blockLog)
		if b, err = r.meta.peek(total); err != nil {
			return nil, err
		}
		blocks := make([]uint32, in.BlockCount(r.blockSize, r.blockLog))
		for i := range blocks {
			blocks[i] = binary.LittleEndian.Uint32(b[fixed+i*disk.SizeBlockEntry:])
		}
		r.meta.seek(total)
		return &Reg{
			Header:     header(in.InodeHeader),
			StartBlock: in.StartBlock,
			Fragment:   in.Fragment,
			Offset:     in.Offset,
			FileSize:   in.FileSize,
			BlockSizes: blocks,
		}, nil

	case disk.TypeSymlink, disk.TypeLSymlink:
		var in disk.InodeSymlink
		if err := decode(b, &in); err != nil {
			return nil, err
		}
		total := in.InodeSize()
		if b, err = r.meta.peek(total); err != nil {
			return nil, err
		}
		target := make([]byte, in.TargetSize)
		copy(target, b[fixed:])
		r.meta.seek(total)
		return &Symlink{
			Header: header(in.InodeHeader),
			Nlink:  in.Nlink,
			Target: target,
		}, nil

	case disk.TypeBlkdev, disk.TypeChrdev:
		var in disk.InodeDev
		if err := decode(b, &in); err != nil {
			return nil, err
		}
		r.meta.seek(fixed)
		return &Dev{
			Header: header(in.InodeHeader),
			Nlink:  in.Nlink,
			Rdev:   in.Rdev,
		}, nil

	case disk.TypeFifo, disk.TypeSocket:
		var in disk.InodeIPC
		if err := decode(b, &in); err != nil {
			return nil, err
		}
		r.meta.seek(fixed)
		return &IPC{
			Header: header(in.InodeHeader),
			Nlink:  in.Nlink,
		}, nil

	case disk.TypeLDir:
		var in disk.InodeLDir
		if err := decode(b, &in); err != nil {
			return nil, err
		}
		// The header is followed by IndexCount indexes of variable
		// size, each at least SizeDirIndex long. Start at that lower
		// bound, then extend one entry at a time: an entry's extent is
		// only known after reading its size field.
		total := fixed + int(in.IndexCount)*disk.SizeDirIndex
		if b, err = r.meta.peek(total); err != nil {
			return nil, err
		}
		index := make([]DirIndex, 0, in.IndexCount)
		offset := fixed
		for n := uint16(0); n < in.IndexCount; n++ {
			var idx disk.DirIndex
			if err := decode(b[offset:offset+disk.SizeDirIndex], &idx); err != nil {
				return nil, err
			}
			// size is length-1
			total += idx.NameLen()
			if b, err = r.meta.peek(total); err != nil {
				return nil, err
			}
			offset += disk.SizeDirIndex
			name := make([]byte, idx.NameLen())
			copy(name, b[offset:])
			offset += idx.NameLen()
			index = append(index, DirIndex{
				Index: idx.Index,
				Start: idx.Start,
				Name:  name,
			})
		}
		r.meta.seek(total)
		return &LDir{
			Header:      header(in.InodeHeader),
			Nlink:       in.Nlink,
			FileSize:    in.FileSize,
			StartBlock:  in.StartBlock,
			ParentInode: in.ParentInode,
			Offset:      in.Offset,
			Xattr:       in.Xattr,
			Index:       index,
		}, nil

	case disk.TypeLReg:
		var in disk.InodeLReg
		if err := decode(b, &in); err != nil {
			return nil, err
		}
		total := in.InodeSize(r.blockSize, r.blockLog)
		if b, err = r.meta.peek(total); err != nil {
			return nil, err
		}
		blocks := make([]LBlock, in.BlockCount(r.blockSize, r.blockLog))
		for i := range blocks {
			blocks[i].Size = binary.LittleEndian.Uint32(b[fixed+i*disk.SizeLBlockEntry:])
			blocks[i].Meta = binary.LittleEndian.Uint32(b[fixed+i*disk.SizeLBlockEntry+4:])
		}
		r.meta.seek(total)
		return &LReg{
			Header:     header(in.InodeHeader),
			StartBlock: in.StartBlock,
			FileSize:   in.FileSize,
			Sparse:     in.Sparse,
			Nlink:      in.Nlink,
			Fragment:   in.Fragment,
			Offset:     in.Offset,
			Xattr:      in.Xattr,
			Blocks:     blocks,
		}, nil

	case disk.TypeLBlkdev, disk.TypeLChrdev:
		var in disk.InodeLDev
		if err := decode(b, &in); err != nil {
			return nil, err
		}
		r.meta.seek(fixed)
		return &LDev{
			Header: header(in.InodeHeader),
			Nlink:  in.Nlink,
			Rdev:   in.Rdev,
			Xattr:  in.Xattr,
		}, nil

	case disk.TypeLFifo, disk.TypeLSocket:
		var in disk.InodeLIPC
		if err := decode(b, &in); err != nil {
			return nil, err
		}
		r.meta.seek(fixed)
		return &LIPC{
			Header: header(in.InodeHeader),
			Nlink:  in.Nlink,
			Xattr:  in.Xattr,
		}, nil

	default:
		return nil, fmt.Errorf("inode %d: type %d: %w", r.index, typ, ErrInvalidInodeType)
	}
}

func header(h disk.InodeHeader) Header {
	return Header{
		Type:  h.Type,
		Perm:  h.Mode,
		UID:   h.UID,
		GID:   h.GID,
		Mtime: h.Mtime,
		Inode: h.Inode,
	}
}

func decode(b []byte, v any) error {
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, v); err != nil {
		return fmt.Errorf("decode inode: %w", err)
	}
	return nil
}
