package disk

import "io/fs"

// Inode type tags. Tags 8-14 are the extended variants of 1-7.
const (
	TypeDir = 1 + iota
	TypeReg
	TypeSymlink
	TypeBlkdev
	TypeChrdev
	TypeFifo
	TypeSocket
	TypeLDir
	TypeLReg
	TypeLSymlink
	TypeLBlkdev
	TypeLChrdev
	TypeLFifo
	TypeLSocket

	TypeMax = TypeLSocket
)

// BasicType maps an extended type tag to its basic counterpart.
func BasicType(t uint16) uint16 {
	if t > TypeSocket {
		return t - 7
	}
	return t
}

// Converts squashfs inode types to Go FileMode
func TypeToFileMode(t uint16) fs.FileMode {
	switch BasicType(t) {
	case TypeDir:
		return fs.ModeDir
	case TypeSymlink:
		return fs.ModeSymlink
	case TypeBlkdev:
		return fs.ModeDevice
	case TypeChrdev:
		return fs.ModeDevice | fs.ModeCharDevice
	case TypeFifo:
		return fs.ModeNamedPipe
	case TypeSocket:
		return fs.ModeSocket
	default:
		return 0
	}
}
