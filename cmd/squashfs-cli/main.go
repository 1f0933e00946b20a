package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/dmcgowan/go-squashfs"
)

func main() {
	app := &cli.App{
		Name:  "squashfs-cli",
		Usage: "inspect squashfs images",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("debug") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			infoCommand,
			inodesCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func openImage(ctx *cli.Context) (*squashfs.Image, func(), error) {
	path := ctx.Args().First()
	if path == "" {
		return nil, nil, errors.New("image path required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	img, err := squashfs.Open(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return img, func() { f.Close() }, nil
}

var infoCommand = &cli.Command{
	Name:      "info",
	Usage:     "print superblock summary",
	ArgsUsage: "<image>",
	Action: func(ctx *cli.Context) error {
		img, done, err := openImage(ctx)
		if err != nil {
			return err
		}
		defer done()

		info := img.Info()
		fmt.Printf("Inodes:            %d\n", info.Inodes)
		fmt.Printf("Created:           %s\n", info.ModTime)
		fmt.Printf("Block size:        %d (log %d)\n", info.BlockSize, info.BlockLog)
		fmt.Printf("Fragments:         %d\n", info.Fragments)
		fmt.Printf("Compression:       %d\n", info.Compression)
		fmt.Printf("Bytes used:        %d\n", info.BytesUsed)
		fmt.Printf("Inode table start: %#x\n", info.InodeTableStart)
		fmt.Printf("Dir table start:   %#x\n", info.DirTableStart)
		return nil
	},
}

var inodesCommand = &cli.Command{
	Name:      "inodes",
	Usage:     "walk the inode table",
	ArgsUsage: "<image>",
	Action: func(ctx *cli.Context) error {
		img, done, err := openImage(ctx)
		if err != nil {
			return err
		}
		defer done()

		r := img.InodeReader()
		for {
			in, err := r.Next()
			if errors.Is(err, squashfs.ErrEndOfTable) {
				return nil
			}
			if err != nil {
				return err
			}
			printInode(in)
		}
	},
}

func printInode(in squashfs.Inode) {
	h := in.Base()
	fmt.Printf("%-8d %s", h.Inode, in.Mode())
	switch in := in.(type) {
	case *squashfs.Reg:
		fmt.Printf(" size=%d blocks=%d fragment=%#x", in.FileSize, len(in.BlockSizes), in.Fragment)
	case *squashfs.LReg:
		fmt.Printf(" size=%d blocks=%d fragment=%#x", in.FileSize, len(in.Blocks), in.Fragment)
	case *squashfs.Dir:
		fmt.Printf(" parent=%d size=%d", in.ParentInode, in.FileSize)
	case *squashfs.LDir:
		fmt.Printf(" parent=%d size=%d indexes=%d", in.ParentInode, in.FileSize, len(in.Index))
	case *squashfs.Symlink:
		fmt.Printf(" -> %s", in.Target)
	case *squashfs.Dev:
		fmt.Printf(" rdev=%#x", in.Rdev)
	case *squashfs.LDev:
		fmt.Printf(" rdev=%#x", in.Rdev)
	}
	fmt.Println()
}
