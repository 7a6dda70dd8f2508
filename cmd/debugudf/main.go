package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/s0up4200/go-udfvol/internal/fs"
	"github.com/s0up4200/go-udfvol/internal/fs/udf"
)

func main() {
	image := pflag.String("image", "", "path to UDF image")
	keyHex := pflag.String("key-hex", "", "AES-XTS key as hex")
	lenient := pflag.Bool("lenient", false, "mount in lenient mode")
	maxEntries := pflag.Int("max", 200, "stop the tree dump after this many entries")
	pflag.Parse()
	if *image == "" {
		log.Fatal("--image required")
	}

	var key []byte
	if *keyHex != "" {
		k, err := hex.DecodeString(*keyHex)
		if err != nil {
			log.Fatalf("key: %v", err)
		}
		key = k
	} else if f, err := os.Open(*image); err == nil {
		bs, derr := udf.DetectBlockSize(f)
		_ = f.Close()
		fmt.Printf("detectedBlockSize=%d err=%v\n", bs, derr)
	}

	opts := fs.ImageOptions{Key: key, Compliance: udf.Strict}
	if *lenient {
		opts.Compliance = udf.Lenient
	}
	img, err := fs.OpenImage(*image, opts)
	if err != nil {
		log.Fatalf("OpenImage: %v", err)
	}
	defer img.Close()
	r := img.Reader

	info := r.Info()
	fmt.Printf("%s\n", r)
	fmt.Printf("label=%q volumeSet=%q partition=%d+%d files=%d dirs=%d free=%d bitmapFree=%d nextUID=%d recorded=%s impl=%q\n",
		info.Label, info.VolumeSetID, info.PartitionStart, info.PartitionLength,
		info.Files, info.Directories, info.FreeBlocks, info.BitmapFreeBlocks,
		info.NextUniqueID, info.Recorded, info.Implementation)

	for _, d := range r.VolumeDescriptors() {
		h := d.Header()
		fmt.Printf("%-5s serial=%d location=%d\n", h.Identifier, h.Serial, h.Location)
	}

	n := 0
	err = r.Root().Walk(func(dir *udf.Directory, file *udf.File) bool {
		if n >= *maxEntries {
			fmt.Printf("... stopped after %d entries\n", n)
			return false
		}
		n++
		if dir != nil {
			fe := dir.Entry()
			fmt.Printf("d %-40s uid=%d fe=%d len=%d\n", dir.Path(), fe.UniqueID, fe.DescriptorTag.Location, fe.InformationLength)
			return true
		}
		fe := file.Entry()
		fmt.Printf("f %-40s uid=%d fe=%d size=%d embedded=%t blocks=%d\n", file.Path(), fe.UniqueID, fe.DescriptorTag.Location, file.Size(), file.Embedded(), fe.LogicalBlocksRecorded)
		return true
	})
	if err != nil {
		fmt.Printf("walk err: %v\n", err)
	}
}
