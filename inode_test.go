package squashfs

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmcgowan/go-squashfs/internal/disk"
)

const (
	testBlockSize = 4096
	testBlockLog  = 12
)

func mustAppend(t testing.TB, b []byte, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	err := binary.Write(&buf, binary.LittleEndian, v)
	require.NoError(t, err)
	return append(b, buf.Bytes()...)
}

func hdr(typ uint16, ino uint32) disk.InodeHeader {
	return disk.InodeHeader{
		Type:  typ,
		Mode:  0644,
		UID:   1,
		GID:   2,
		Mtime: 1400000000,
		Inode: ino,
	}
}

// testInodeReader serves table as a single stored chunk.
func testInodeReader(table []byte, count uint32) *InodeReader {
	return &InodeReader{
		meta:      newMetaReader(bytes.NewReader(rawChunk(table)), zlibDecompressor{}, 0),
		count:     count,
		blockSize: testBlockSize,
		blockLog:  testBlockLog,
	}
}

func TestFixedSizeInodes(t *testing.T) {
	var table []byte
	table = mustAppend(t, table, disk.InodeDir{
		InodeHeader: hdr(disk.TypeDir, 1),
		StartBlock:  7,
		Nlink:       2,
		FileSize:    27,
		Offset:      96,
		ParentInode: 5,
	})
	table = mustAppend(t, table, disk.InodeDev{
		InodeHeader: hdr(disk.TypeBlkdev, 2),
		Nlink:       1,
		Rdev:        0x0801,
	})
	table = mustAppend(t, table, disk.InodeDev{
		InodeHeader: hdr(disk.TypeChrdev, 3),
		Nlink:       1,
		Rdev:        0x0502,
	})
	table = mustAppend(t, table, disk.InodeIPC{
		InodeHeader: hdr(disk.TypeFifo, 4),
		Nlink:       1,
	})
	table = mustAppend(t, table, disk.InodeIPC{
		InodeHeader: hdr(disk.TypeSocket, 5),
		Nlink:       3,
	})
	table = mustAppend(t, table, disk.InodeLDev{
		InodeHeader: hdr(disk.TypeLBlkdev, 6),
		Nlink:       1,
		Rdev:        0x0801,
		Xattr:       9,
	})
	table = mustAppend(t, table, disk.InodeLIPC{
		InodeHeader: hdr(disk.TypeLFifo, 7),
		Nlink:       1,
		Xattr:       10,
	})
	r := testInodeReader(table, 7)

	in, err := r.Next()
	require.NoError(t, err)
	d, ok := in.(*Dir)
	require.True(t, ok, "expected *Dir, got %T", in)
	assert.Equal(t, uint32(1), d.Inode)
	assert.Equal(t, uint32(5), d.ParentInode)
	assert.Equal(t, uint16(27), d.FileSize)
	assert.Equal(t, fs.ModeDir|0644, d.Mode())

	in, err = r.Next()
	require.NoError(t, err)
	blk, ok := in.(*Dev)
	require.True(t, ok, "expected *Dev, got %T", in)
	assert.Equal(t, uint32(0x0801), blk.Rdev)
	assert.Equal(t, fs.ModeDevice|0644, blk.Mode())

	in, err = r.Next()
	require.NoError(t, err)
	chr, ok := in.(*Dev)
	require.True(t, ok, "expected *Dev, got %T", in)
	assert.Equal(t, fs.ModeDevice|fs.ModeCharDevice|0644, chr.Mode())

	in, err = r.Next()
	require.NoError(t, err)
	assert.IsType(t, &IPC{}, in)
	assert.Equal(t, fs.ModeNamedPipe|0644, in.Mode())

	in, err = r.Next()
	require.NoError(t, err)
	assert.IsType(t, &IPC{}, in)
	assert.Equal(t, fs.ModeSocket|0644, in.Mode())

	in, err = r.Next()
	require.NoError(t, err)
	ldev, ok := in.(*LDev)
	require.True(t, ok, "expected *LDev, got %T", in)
	assert.Equal(t, uint32(9), ldev.Xattr)

	in, err = r.Next()
	require.NoError(t, err)
	lipc, ok := in.(*LIPC)
	require.True(t, ok, "expected *LIPC, got %T", in)
	assert.Equal(t, uint32(10), lipc.Xattr)

	// every record consumed exactly its fixed size
	assert.Equal(t, 0, r.meta.n)
}

func TestRegInode(t *testing.T) {
	// two full blocks, no fragment
	table := mustAppend(t, nil, disk.InodeReg{
		InodeHeader: hdr(disk.TypeReg, 1),
		StartBlock:  96,
		Fragment:    disk.InvalidFrag,
		Offset:      0,
		FileSize:    2 * testBlockSize,
	})
	table = mustAppend(t, table, [2]uint32{5000, 3000})
	r := testInodeReader(table, 1)

	in, err := r.Next()
	require.NoError(t, err)
	reg, ok := in.(*Reg)
	require.True(t, ok, "expected *Reg, got %T", in)
	assert.Equal(t, uint32(2*testBlockSize), reg.FileSize)
	assert.Equal(t, []uint32{5000, 3000}, reg.BlockSizes)
	assert.Equal(t, 0, r.meta.n)
}

func TestRegInodeWithFragment(t *testing.T) {
	// one full block plus a fragment tail: no rounding, one entry
	table := mustAppend(t, nil, disk.InodeReg{
		InodeHeader: hdr(disk.TypeReg, 1),
		StartBlock:  96,
		Fragment:    3,
		Offset:      100,
		FileSize:    testBlockSize + 10,
	})
	table = mustAppend(t, table, uint32(4096))
	r := testInodeReader(table, 1)

	in, err := r.Next()
	require.NoError(t, err)
	reg := in.(*Reg)
	assert.Equal(t, []uint32{4096}, reg.BlockSizes)
	assert.Equal(t, 0, r.meta.n)
}

func TestRegBlockCount(t *testing.T) {
	for _, tc := range []struct {
		name     string
		fileSize uint32
		fragment uint32
		blocks   uint32
	}{
		{"empty", 0, disk.InvalidFrag, 0},
		{"partial rounds up", 10, disk.InvalidFrag, 1},
		{"exact multiple no extra block", 2 * testBlockSize, disk.InvalidFrag, 2},
		{"one under multiple", 2*testBlockSize - 1, disk.InvalidFrag, 2},
		{"one over multiple", 2*testBlockSize + 1, disk.InvalidFrag, 3},
		{"fragment tail floors", 2*testBlockSize + 1, 0, 2},
		{"all in fragment", 10, 7, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			in := disk.InodeReg{FileSize: tc.fileSize, Fragment: tc.fragment}
			assert.Equal(t, tc.blocks, in.BlockCount(testBlockSize, testBlockLog))

			lin := disk.InodeLReg{FileSize: uint64(tc.fileSize), Fragment: tc.fragment}
			assert.Equal(t, uint64(tc.blocks), lin.BlockCount(testBlockSize, testBlockLog))
		})
	}
}

func TestLRegInode(t *testing.T) {
	table := mustAppend(t, nil, disk.InodeLReg{
		InodeHeader: hdr(disk.TypeLReg, 1),
		StartBlock:  96,
		FileSize:    2 * testBlockSize,
		Nlink:       1,
		Fragment:    disk.InvalidFrag,
	})
	table = mustAppend(t, table, [4]uint32{4096, 1, 100, 2})
	r := testInodeReader(table, 1)

	in, err := r.Next()
	require.NoError(t, err)
	lreg, ok := in.(*LReg)
	require.True(t, ok, "expected *LReg, got %T", in)
	assert.Equal(t, []LBlock{{Size: 4096, Meta: 1}, {Size: 100, Meta: 2}}, lreg.Blocks)
	assert.Equal(t, 0, r.meta.n)
}

func TestSymlinkInode(t *testing.T) {
	target := "../lib64/libc.so.6"
	table := mustAppend(t, nil, disk.InodeSymlink{
		InodeHeader: hdr(disk.TypeSymlink, 1),
		Nlink:       1,
		TargetSize:  uint32(len(target)),
	})
	table = append(table, target...)
	r := testInodeReader(table, 1)

	in, err := r.Next()
	require.NoError(t, err)
	sym, ok := in.(*Symlink)
	require.True(t, ok, "expected *Symlink, got %T", in)
	assert.Equal(t, target, string(sym.Target))
	assert.Equal(t, fs.ModeSymlink|0644, sym.Mode())
	assert.Equal(t, 0, r.meta.n)
}

func TestLSymlinkInode(t *testing.T) {
	target := "x"
	table := mustAppend(t, nil, disk.InodeSymlink{
		InodeHeader: hdr(disk.TypeLSymlink, 1),
		Nlink:       1,
		TargetSize:  uint32(len(target)),
	})
	table = append(table, target...)
	r := testInodeReader(table, 1)

	in, err := r.Next()
	require.NoError(t, err)
	sym, ok := in.(*Symlink)
	require.True(t, ok, "expected *Symlink, got %T", in)
	assert.Equal(t, uint16(disk.TypeLSymlink), sym.Base().Type)
	assert.Equal(t, target, string(sym.Target))
}

func TestLDirInode(t *testing.T) {
	table := mustAppend(t, nil, disk.InodeLDir{
		InodeHeader: hdr(disk.TypeLDir, 1),
		Nlink:       3,
		FileSize:    120,
		StartBlock:  4,
		ParentInode: 9,
		IndexCount:  2,
		Offset:      60,
	})
	// index sizes are stored as name length minus one
	table = mustAppend(t, table, disk.DirIndex{Index: 0, Start: 0, Size: 3})
	table = append(table, "name"...)
	table = mustAppend(t, table, disk.DirIndex{Index: 1, Start: 64, Size: 0})
	table = append(table, "z"...)
	r := testInodeReader(table, 1)

	in, err := r.Next()
	require.NoError(t, err)
	ldir, ok := in.(*LDir)
	require.True(t, ok, "expected *LDir, got %T", in)
	assert.Equal(t, uint32(9), ldir.ParentInode)
	require.Len(t, ldir.Index, 2)
	assert.Equal(t, "name", string(ldir.Index[0].Name))
	assert.Equal(t, uint32(64), ldir.Index[1].Start)
	assert.Equal(t, "z", string(ldir.Index[1].Name))

	// consumed length is the ldir fixed part plus both full entries
	assert.Equal(t, 0, r.meta.n)
}

func TestLDirNoIndex(t *testing.T) {
	table := mustAppend(t, nil, disk.InodeLDir{
		InodeHeader: hdr(disk.TypeLDir, 1),
		Nlink:       2,
	})
	r := testInodeReader(table, 1)

	in, err := r.Next()
	require.NoError(t, err)
	ldir := in.(*LDir)
	assert.Empty(t, ldir.Index)
	assert.Equal(t, 0, r.meta.n)
}

func TestInodeStraddlesChunks(t *testing.T) {
	table := mustAppend(t, nil, disk.InodeReg{
		InodeHeader: hdr(disk.TypeReg, 1),
		Fragment:    disk.InvalidFrag,
		FileSize:    2 * testBlockSize,
	})
	table = mustAppend(t, table, [2]uint32{4096, 4096})

	// split mid-record across two chunks
	chunks := append(rawChunk(table[:20]), rawChunk(table[20:])...)
	r := &InodeReader{
		meta:      newMetaReader(bytes.NewReader(chunks), zlibDecompressor{}, 0),
		count:     1,
		blockSize: testBlockSize,
		blockLog:  testBlockLog,
	}

	in, err := r.Next()
	require.NoError(t, err)
	reg := in.(*Reg)
	assert.Equal(t, []uint32{4096, 4096}, reg.BlockSizes)
}

func TestEndOfTable(t *testing.T) {
	table := mustAppend(t, nil, disk.InodeIPC{
		InodeHeader: hdr(disk.TypeFifo, 1),
		Nlink:       1,
	})
	r := testInodeReader(table, 1)

	_, err := r.Next()
	require.NoError(t, err)

	_, err = r.Next()
	require.ErrorIs(t, err, ErrEndOfTable)

	// stays exhausted
	_, err = r.Next()
	require.ErrorIs(t, err, ErrEndOfTable)
}

func TestInvalidInodeType(t *testing.T) {
	for _, typ := range []uint16{0, disk.TypeMax + 1, 0xffff} {
		table := mustAppend(t, nil, hdr(typ, 1))
		r := testInodeReader(table, 1)

		_, err := r.Next()
		require.ErrorIs(t, err, ErrInvalidInodeType)

		// a failed read consumes nothing
		assert.Equal(t, disk.SizeInodeHeader, r.meta.n)
	}
}
