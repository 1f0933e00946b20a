package disk

const (
	MagicNumber = 0x73717368

	SizeSuperBlock = 96

	// MetadataSize is the fixed size of an uncompressed metadata block,
	// the maximum a single chunk may decompress to.
	MetadataSize = 8192

	// UncompressedFlag is set in a chunk header when the payload is
	// stored verbatim; the low 15 bits hold the payload length.
	UncompressedFlag = 0x8000

	// InvalidFrag marks a file inode which does not use a tail fragment.
	InvalidFrag = 0xffffffff

	SizeInodeHeader  = 16
	SizeInodeDir     = 32
	SizeInodeReg     = 32
	SizeInodeSymlink = 24
	SizeInodeDev     = 24
	SizeInodeIPC     = 20
	SizeInodeLDir    = 40
	SizeInodeLReg    = 56
	SizeInodeLDev    = 28
	SizeInodeLIPC    = 24

	SizeDirIndex = 12

	// Per-block length entry width in a file inode's trailing block list.
	SizeBlockEntry  = 4
	SizeLBlockEntry = 8
)

// Superblock compression ids.
const (
	CompressionGzip = 1 + iota
	CompressionLzma
	CompressionLzo
	CompressionXz
	CompressionLz4
	CompressionZstd
)

type SuperBlock struct {
	Magic             uint32
	Inodes            uint32
	MkfsTime          uint32
	BlockSize         uint32
	Fragments         uint32
	Compression       uint16
	BlockLog          uint16
	Flags             uint16
	IDCount           uint16
	Major             uint16
	Minor             uint16
	RootInode         uint64
	BytesUsed         uint64
	IDTableStart      uint64
	XattrIDTableStart uint64
	InodeTableStart   uint64
	DirTableStart     uint64
	FragTableStart    uint64
	ExportTableStart  uint64
}

// InodeHeader is the 16-byte part common to every inode variant.
type InodeHeader struct {
	Type  uint16
	Mode  uint16
	UID   uint16
	GID   uint16
	Mtime uint32
	Inode uint32
}

type InodeDir struct {
	InodeHeader
	StartBlock  uint32
	Nlink       uint32
	FileSize    uint16
	Offset      uint16
	ParentInode uint32
}

type InodeReg struct {
	InodeHeader
	StartBlock uint32
	Fragment   uint32
	Offset     uint32
	FileSize   uint32
}

// BlockCount returns the number of entries in the trailing block list.
// Files without a tail fragment round their last partial block up to a
// full one.
func (i *InodeReg) BlockCount(blockSize uint32, blockLog uint16) uint32 {
	blocks := i.FileSize
	if i.Fragment == InvalidFrag {
		blocks += blockSize - 1
	}
	return blocks >> blockLog
}

func (i *InodeReg) InodeSize(blockSize uint32, blockLog uint16) int {
	return SizeInodeReg + int(i.BlockCount(blockSize, blockLog))*SizeBlockEntry
}

type InodeSymlink struct {
	InodeHeader
	Nlink      uint32
	TargetSize uint32
}

func (i *InodeSymlink) InodeSize() int {
	return SizeInodeSymlink + int(i.TargetSize)
}

type InodeDev struct {
	InodeHeader
	Nlink uint32
	Rdev  uint32
}

type InodeIPC struct {
	InodeHeader
	Nlink uint32
}

type InodeLDir struct {
	InodeHeader
	Nlink       uint32
	FileSize    uint32
	StartBlock  uint32
	ParentInode uint32
	IndexCount  uint16
	Offset      uint16
	Xattr       uint32
}

type InodeLReg struct {
	InodeHeader
	StartBlock uint64
	FileSize   uint64
	Sparse     uint64
	Nlink      uint32
	Fragment   uint32
	Offset     uint32
	Xattr      uint32
}

func (i *InodeLReg) BlockCount(blockSize uint32, blockLog uint16) uint64 {
	blocks := i.FileSize
	if i.Fragment == InvalidFrag {
		blocks += uint64(blockSize) - 1
	}
	return blocks >> blockLog
}

func (i *InodeLReg) InodeSize(blockSize uint32, blockLog uint16) int {
	return SizeInodeLReg + int(i.BlockCount(blockSize, blockLog))*SizeLBlockEntry
}

type InodeLDev struct {
	InodeHeader
	Nlink uint32
	Rdev  uint32
	Xattr uint32
}

type InodeLIPC struct {
	InodeHeader
	Nlink uint32
	Xattr uint32
}

// DirIndex is the fixed part of an extended directory's index entry,
// followed on disk by Size+1 name bytes.
type DirIndex struct {
	Index uint32
	Start uint32
	Size  uint32
}

func (d *DirIndex) NameLen() int {
	return int(d.Size) + 1
}

// InodeFixedSize returns the fixed-part size for an inode type tag, or 0
// for an unknown tag.
func InodeFixedSize(t uint16) int {
	switch t {
	case TypeDir:
		return SizeInodeDir
	case TypeReg:
		return SizeInodeReg
	case TypeSymlink, TypeLSymlink:
		return SizeInodeSymlink
	case TypeBlkdev, TypeChrdev:
		return SizeInodeDev
	case TypeFifo, TypeSocket:
		return SizeInodeIPC
	case TypeLDir:
		return SizeInodeLDir
	case TypeLReg:
		return SizeInodeLReg
	case TypeLBlkdev, TypeLChrdev:
		return SizeInodeLDev
	case TypeLFifo, TypeLSocket:
		return SizeInodeLIPC
	default:
		return 0
	}
}
