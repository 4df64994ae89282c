// util/file.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type zstdReadCloser struct {
	*zstd.Decoder
	f *os.File
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

// OpenFile opens the file at path for reading; if it's zstd compressed
// (as indicated by a ".zst" extension), the returned reader handles
// decompression transparently.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if filepath.Ext(path) != ".zst" {
		return f, nil
	}

	zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(0))
	if err != nil {
		f.Close()
		return nil, err
	}
	return zstdReadCloser{Decoder: zr, f: f}, nil
}

// OpenFileOrCompressed opens path if it exists and path+".zst" otherwise.
// The returned path is the one that was opened. If neither exists, the
// error from opening path is returned and satisfies
// errors.Is(err, fs.ErrNotExist).
func OpenFileOrCompressed(path string) (io.ReadCloser, string, error) {
	r, err := OpenFile(path)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return r, path, err
	}

	if zr, zerr := OpenFile(path + ".zst"); zerr == nil {
		return zr, path + ".zst", nil
	} else if !errors.Is(zerr, fs.ErrNotExist) {
		return nil, path + ".zst", zerr
	}
	return nil, path, err
}
