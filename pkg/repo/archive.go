/*
   HDFDrive - virtual IDE & SD card mass storage emulator
   Copyright (c) 2021, Alexander Vollschwitz

   This file is part of HDFDrive.

   HDFDrive is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   HDFDrive is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with HDFDrive. If not, see <http://www.gnu.org/licenses/>.
*/

package repo

import (
	"archive/zip"
	"compress/gzip"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	log "github.com/sirupsen/logrus"
)

// file extension of HDF images
const ImageExtension = "hdf"

/*
	ImageReader reads an HDF image from a plain or compressed file. For gzip,
	the image is the decompressed stream. For zip and 7-zip, it is the first
	entry of the archive.
*/
type ImageReader struct {
	reader     io.ReadCloser
	closers    []io.Closer
	name       string
	compressor string
}

//
func OpenImageReader(path string) (*ImageReader, error) {

	name, compressor := SplitNameCompressor(path)
	log.WithFields(log.Fields{
		"path":       path,
		"compressor": compressor,
	}).Debug("image reader requested")

	var ret *ImageReader
	var err error

	switch compressor {
	case "gzip", "gz":
		ret, err = openGZip(path)
	case "zip":
		ret, err = openZip(path)
	case "7z":
		ret, err = open7Zip(path)
	case "":
		var f *os.File
		if f, err = os.Open(path); err == nil {
			ret = &ImageReader{reader: f}
		}
	default:
		err = fmt.Errorf("unsupported compressor: %s", compressor)
	}

	if err != nil {
		return nil, err
	}

	if ret.name == "" {
		ret.name = name
	}
	ret.compressor = compressor
	return ret, nil
}

//
func (r *ImageReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

//
func (r *ImageReader) Close() error {
	err := r.reader.Close()
	for _, c := range r.closers {
		if e := c.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Name is the name of the image inside a compressed file, or the file name
// without compressor extension.
func (r *ImageReader) Name() string {
	return r.name
}

//
func (r *ImageReader) Compressor() string {
	return r.compressor
}

//
func openGZip(path string) (*ImageReader, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	ret := &ImageReader{reader: gzr, closers: []io.Closer{f}}
	if gzr.Name != "" {
		ret.name = filepath.Base(gzr.Name)
	}
	return ret, nil
}

//
func openZip(path string) (*ImageReader, error) {

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	if len(zr.File) == 0 {
		zr.Close()
		return nil, fmt.Errorf("empty zip archive")
	}
	if len(zr.File) > 1 {
		log.Warn("zip archive has more than one entry, using first")
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		zr.Close()
		return nil, err
	}

	return &ImageReader{
		reader:  rc,
		closers: []io.Closer{zr},
		name:    filepath.Base(zr.File[0].Name),
	}, nil
}

//
func open7Zip(path string) (*ImageReader, error) {

	zr, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	if len(zr.File) == 0 {
		zr.Close()
		return nil, fmt.Errorf("empty 7-zip archive")
	}
	if len(zr.File) > 1 {
		log.Warn("7-zip archive has more than one entry, using first")
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		zr.Close()
		return nil, err
	}

	return &ImageReader{
		reader:  rc,
		closers: []io.Closer{zr},
		name:    filepath.Base(zr.File[0].Name),
	}, nil
}

/*
	WorkingCopy returns the path of an image that can be inserted for the
	image file at path. Uncompressed images are used in place. A compressed
	image is unpacked into a folder below dir that is keyed by the archive's
	absolute path, and the unpacked image is what gets inserted, so changes
	never go back into the archive. Archives with the same name in different
	folders therefore get separate working copies. An existing working copy
	is reused, keeping changes committed to it earlier.
*/
func WorkingCopy(path, dir string) (string, error) {

	if _, compressor := SplitNameCompressor(path); compressor == "" {
		return path, nil
	}

	r, err := OpenImageReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	dir, err = workingCopyDir(path, dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	target := filepath.Join(dir, r.Name())
	logger := log.WithFields(log.Fields{"archive": path, "copy": target})

	if _, err := os.Stat(target); err == nil {
		logger.Info("using existing working copy")
		return target, nil
	}

	tmp := target + "_"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("error unpacking image: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, target); err != nil {
		return "", err
	}

	logger.Info("image unpacked")
	return target, nil
}

// workingCopyDir returns the folder below dir holding the working copy for
// the archive at path
func workingCopyDir(path, dir string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum([]byte(abs))
	return filepath.Join(dir, hex.EncodeToString(sum[:6])), nil
}

// SplitNameCompressor splits file into the base name and the compressor
// extension, if any.
func SplitNameCompressor(file string) (name, compressor string) {

	_, name = filepath.Split(file)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

	switch ext {
	case "gz", "gzip", "zip", "7z":
		return strings.TrimSuffix(name, filepath.Ext(name)), ext
	}

	return name, ""
}

// IsImage tells whether file is named like a plain or compressed HDF image.
func IsImage(file string) bool {
	name, _ := SplitNameCompressor(file)
	return strings.EqualFold(
		strings.TrimPrefix(filepath.Ext(name), "."), ImageExtension)
}
