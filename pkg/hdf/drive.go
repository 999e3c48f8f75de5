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

package hdf

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// SectorSize is the size of a logical sector as seen by ATA and MMC hosts.
const SectorSize = 512

//
var (
	ErrInvalidFormat = errors.New("not an RS-IDE image")
	ErrOutOfRange    = errors.New("sector out of range")
	ErrNoImage       = errors.New("no image")
)

// backing is what a drive needs from its image file.
type backing interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Sync() error
}

/*
	Drive is an inserted HDF image together with its write-back cache. Sectors
	written to the drive stay in the cache until Commit is called. Geometry and
	sector size are fixed once the image is inserted.
*/
type Drive struct {
	path   string
	file   backing
	header *Header
	//
	sectorSize int
	dataOffset int64
	geometry   Geometry
	//
	cache *cache
}

// Insert opens the HDF image at path for reading and writing.
func Insert(path string) (*Drive, error) {

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot open image: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot lock image: %w", err)
	}

	d, err := newDrive(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"image":    path,
		"geometry": d.geometry,
		"sector":   d.sectorSize,
	}).Info("image inserted")

	return d, nil
}

//
func newDrive(path string, f backing) (*Drive, error) {

	raw := make([]byte, HeaderSize)
	if _, err := f.ReadAt(raw, 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: truncated header", ErrInvalidFormat)
		}
		return nil, fmt.Errorf("cannot read header: %w", err)
	}

	h, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}

	if g := h.Geometry(); g.total() > math.MaxUint32 {
		return nil, fmt.Errorf("%w: geometry %v exceeds %d sectors",
			ErrInvalidFormat, g, uint32(math.MaxUint32))
	}

	return &Drive{
		path:       path,
		file:       f,
		header:     h,
		sectorSize: h.SectorSize(),
		dataOffset: int64(h.DataOffset),
		geometry:   h.Geometry(),
		cache:      newCache(),
	}, nil
}

/*
	Eject closes the image. Sectors that were written but not committed are
	discarded, not written back.
*/
func (d *Drive) Eject() error {

	if d.file == nil {
		return ErrNoImage
	}

	if lost := d.cache.discard(); lost > 0 {
		log.WithFields(log.Fields{
			"image":   d.path,
			"sectors": lost,
		}).Warn("discarding uncommitted sectors on eject")
	}

	err := d.file.Close()
	d.file = nil

	log.WithField("image", d.path).Info("image ejected")
	return err
}

/*
	ReadSector reads sector n into buf. A pending cache entry takes precedence
	over the image contents. For images with 256 byte sectors, each stored byte
	becomes the low byte of a 16 bit word, with 0xff as high byte.
*/
func (d *Drive) ReadSector(n uint32, buf *[SectorSize]byte) error {

	if d.file == nil {
		return ErrNoImage
	}

	if n >= d.TotalSectors() {
		return fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}

	if data, ok := d.cache.get(n); ok {
		d.unpack(data, buf)
		return nil
	}

	data := make([]byte, d.sectorSize)
	if _, err := d.file.ReadAt(data, d.offset(n)); err != nil {
		return fmt.Errorf("cannot read sector %d: %w", n, err)
	}

	d.unpack(data, buf)
	return nil
}

// WriteSector places data for sector n in the write-back cache, replacing
// any pending entry for that sector.
func (d *Drive) WriteSector(n uint32, data *[SectorSize]byte) error {

	if d.file == nil {
		return ErrNoImage
	}

	if n >= d.TotalSectors() {
		return fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}

	d.cache.put(n, d.pack(data))
	log.WithField("sector", n).Trace("sector cached")
	return nil
}

/*
	Commit writes all pending sectors to the image. A sector that cannot be
	written stays in the cache so that a later commit can retry it, and the
	remaining sectors are still attempted. The returned error lists every
	sector that failed.
*/
func (d *Drive) Commit() error {

	if d.file == nil {
		return ErrNoImage
	}

	if !d.cache.dirty() {
		return nil
	}

	var result *multierror.Error
	written := 0

	for _, n := range d.cache.sectors() {
		data, _ := d.cache.get(n)
		if _, err := d.file.WriteAt(data, d.offset(n)); err != nil {
			log.WithFields(log.Fields{
				"image":  d.path,
				"sector": n,
			}).Errorf("cannot commit sector: %v", err)
			result = multierror.Append(result,
				fmt.Errorf("sector %d: %w", n, err))
			continue
		}
		d.cache.remove(n)
		written++
	}

	if written > 0 {
		if err := d.file.Sync(); err != nil {
			result = multierror.Append(result,
				fmt.Errorf("cannot sync image: %w", err))
		}
	}

	log.WithFields(log.Fields{
		"image":   d.path,
		"written": written,
		"pending": d.cache.len(),
	}).Info("commit")

	return result.ErrorOrNil()
}

// Dirty tells whether there are sectors waiting to be committed.
func (d *Drive) Dirty() bool {
	return d.cache.dirty()
}

// Pending returns the number of sectors waiting to be committed.
func (d *Drive) Pending() int {
	return d.cache.len()
}

//
func (d *Drive) Path() string {
	return d.path
}

//
func (d *Drive) Geometry() Geometry {
	return d.geometry
}

//
func (d *Drive) SectorSize() int {
	return d.sectorSize
}

//
func (d *Drive) TotalSectors() uint32 {
	return d.geometry.Total()
}

// Identity returns a copy of the stored drive identity.
func (d *Drive) Identity() Identity {
	return d.header.Identity
}

//
func (d *Drive) Header() Header {
	return *d.header
}

//
func (d *Drive) offset(n uint32) int64 {
	return d.dataOffset + int64(n)*int64(d.sectorSize)
}

//
func (d *Drive) pack(data *[SectorSize]byte) []byte {
	if d.sectorSize == SectorSize {
		return data[:]
	}
	ret := make([]byte, d.sectorSize)
	for ix := range ret {
		ret[ix] = data[2*ix]
	}
	return ret
}

//
func (d *Drive) unpack(data []byte, buf *[SectorSize]byte) {
	if d.sectorSize == SectorSize {
		copy(buf[:], data)
		return
	}
	for ix, b := range data {
		buf[2*ix] = b
		buf[2*ix+1] = 0xff
	}
}
