// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	lz4 "github.com/pierrec/lz4"
)

// Pipeline caches easily reach megabytes of highly compressible blob
// data, so they go to disk through lz4.
const (
	cacheMagic   = "CPCH"
	cacheVersion = 1
)

type cacheHeader struct {
	Magic   [4]byte
	Version uint32
	Size    uint64
}

// SavePipelineCache writes the raw pipeline cache blob to path,
// replacing whatever was there.
func SavePipelineCache(path string, data []byte) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("os.Create(%s): %s", path, err.Error())
	}
	defer file.Close()

	header := cacheHeader{
		Version: cacheVersion,
		Size:    uint64(len(data)),
	}
	copy(header.Magic[:], cacheMagic)
	if err := binary.Write(file, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("binary.Write(%s): %s", path, err.Error())
	}

	compressed := lz4.NewWriter(file)
	if _, err := compressed.Write(data); err != nil {
		return fmt.Errorf("lz4.Write(%s): %s", path, err.Error())
	}
	if err := compressed.Close(); err != nil {
		return fmt.Errorf("lz4.Close(%s): %s", path, err.Error())
	}
	return nil
}

// LoadPipelineCache reads a previously saved pipeline cache blob. A
// missing file is not an error and yields an empty blob; a corrupt or
// mismatched file is.
func LoadPipelineCache(path string) ([]byte, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %s", path, err.Error())
	}
	defer file.Close()

	var header cacheHeader
	if err := binary.Read(file, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("binary.Read(%s): %s", path, err.Error())
	}
	if string(header.Magic[:]) != cacheMagic {
		return nil, fmt.Errorf("%s: not a pipeline cache file", path)
	}
	if header.Version != cacheVersion {
		return nil, fmt.Errorf("%s: unsupported cache version %d", path, header.Version)
	}

	data := make([]byte, header.Size)
	if _, err := io.ReadFull(lz4.NewReader(file), data); err != nil {
		return nil, fmt.Errorf("lz4.Read(%s): %s", path, err.Error())
	}
	return data, nil
}
