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
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

//
const (
	MaxCylinders = 65535
	MaxHeads     = 16
	MaxSectors   = 255

	defaultModel    = "HDFDrive virtual disk"
	defaultFirmware = "1.0"
)

// NewHeader creates a revision 1.0 header for the given geometry, with LBA
// advertised in the capabilities word.
func NewHeader(g Geometry, halfSectors bool) (*Header, error) {

	if g.Cylinders < 1 || g.Cylinders > MaxCylinders ||
		g.Heads < 1 || g.Heads > MaxHeads ||
		g.Sectors < 1 || g.Sectors > MaxSectors {
		return nil, fmt.Errorf("%w: invalid geometry %s", ErrOutOfRange, g)
	}

	h := &Header{
		Revision:   Revision,
		DataOffset: HeaderSize,
	}
	if halfSectors {
		h.Flags |= FlagHalfSectors
	}

	id := &h.Identity
	id.SetWord(0, 0x0040) // fixed drive
	id.SetWord(IdentityCylinders, uint16(g.Cylinders))
	id.SetWord(IdentityHeads, uint16(g.Heads))
	id.SetWord(IdentitySectors, uint16(g.Sectors))
	id.setString(IdentitySerial, serialLength,
		fmt.Sprintf("%d%d%d", g.Cylinders, g.Heads, g.Sectors))
	id.setString(IdentityFirmware, firmwareLength, defaultFirmware)
	id.setString(IdentityModel, modelLength, defaultModel)
	id.SetWord(IdentityCapabilities, CapabilityLBA)

	return h, nil
}

/*
	Create writes a new, zero filled HDF image to path. An existing file at path
	is not overwritten.
*/
func Create(path string, g Geometry, halfSectors bool) error {

	h, err := NewHeader(g, halfSectors)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("cannot create image: %w", err)
	}

	if _, err := f.Write(h.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("cannot write header: %w", err)
	}

	size := int64(h.DataOffset) + int64(g.Total())*int64(h.SectorSize())
	if err := f.Truncate(size); err != nil {
		f.Close()
		return fmt.Errorf("cannot size image: %w", err)
	}

	if err := f.Close(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"image":    path,
		"geometry": g,
		"size":     size,
	}).Info("image created")

	return nil
}
