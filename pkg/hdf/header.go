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
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// RS-IDE container layout, revision 1.0
const (
	Signature    = "RS-IDE"
	ID           = 0x1a
	Revision     = 0x10
	HeaderSize   = 0x80
	IdentitySize = 106

	FlagHalfSectors = 0x01

	offsetSignature = 0x00
	offsetID        = 0x06
	offsetRevision  = 0x07
	offsetFlags     = 0x08
	offsetDataStart = 0x09
	offsetIdentity  = 0x16
)

// word indexes into the drive identity, as laid out by ATA IDENTIFY DEVICE
const (
	IdentityCylinders        = 1
	IdentityHeads            = 3
	IdentitySectors          = 6
	IdentitySerial           = 10
	IdentityFirmware         = 23
	IdentityModel            = 27
	IdentityCapabilities     = 49
	IdentityFieldValidity    = 53
	IdentityCurrentCylinders = 54
	IdentityCurrentHeads     = 55
	IdentityCurrentSectors   = 56
	IdentityCurrentCapacity  = 57
	IdentityTotalSectors     = 60

	CapabilityLBA = 0x0200
)

//
const (
	serialLength   = 20
	firmwareLength = 8
	modelLength    = 40
)

// Identity is the 106 byte drive identity block stored in the HDF header.
// Words are read as byte[2i] | byte[2i+1]<<8, which is the reverse of what
// the ATA standard prescribes for the string fields. Images in the wild
// depend on this, so it is kept.
type Identity [IdentitySize]byte

// Word returns identity word ix, or 0 if ix is outside the stored block.
func (id *Identity) Word(ix int) uint16 {
	if ix < 0 || 2*ix+1 >= len(id) {
		return 0
	}
	return uint16(id[2*ix]) | uint16(id[2*ix+1])<<8
}

//
func (id *Identity) SetWord(ix int, w uint16) {
	if ix < 0 || 2*ix+1 >= len(id) {
		return
	}
	id[2*ix] = byte(w)
	id[2*ix+1] = byte(w >> 8)
}

// Model returns the model string of the identity, trimmed of padding.
func (id *Identity) Model() string {
	return id.getString(IdentityModel, modelLength)
}

//
func (id *Identity) Serial() string {
	return id.getString(IdentitySerial, serialLength)
}

//
func (id *Identity) Firmware() string {
	return id.getString(IdentityFirmware, firmwareLength)
}

// setString stores s space padded at word ix, high byte of each word first,
// the way a host reading the words expects to see characters.
func (id *Identity) setString(ix, length int, s string) {
	if len(s) > length {
		s = s[:length]
	}
	b := []byte(fmt.Sprintf("%-*s", length, s))
	for i := 0; i < length; i += 2 {
		id.SetWord(ix+i/2, uint16(b[i])<<8|uint16(b[i+1]))
	}
}

//
func (id *Identity) getString(ix, length int) string {
	var sb strings.Builder
	for i := 0; i < length/2; i++ {
		w := id.Word(ix + i)
		sb.WriteByte(byte(w >> 8))
		sb.WriteByte(byte(w))
	}
	return strings.TrimSpace(sb.String())
}

// Header is the decoded RS-IDE header.
type Header struct {
	Revision   byte
	Flags      byte
	DataOffset uint16
	Identity   Identity
}

// ParseHeader decodes an RS-IDE header. The signature and id byte need to
// match, otherwise ErrInvalidFormat is returned.
func ParseHeader(data []byte) (*Header, error) {

	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: header too short, want %d, got %d",
			ErrInvalidFormat, HeaderSize, len(data))
	}

	sig := string(data[offsetSignature : offsetSignature+len(Signature)])
	if sig != Signature {
		return nil, fmt.Errorf("%w: bad signature %q", ErrInvalidFormat, sig)
	}

	if data[offsetID] != ID {
		return nil, fmt.Errorf("%w: bad id byte 0x%02x", ErrInvalidFormat,
			data[offsetID])
	}

	h := &Header{
		Revision: data[offsetRevision],
		Flags:    data[offsetFlags],
		DataOffset: binary.LittleEndian.Uint16(
			data[offsetDataStart : offsetDataStart+2]),
	}
	copy(h.Identity[:], data[offsetIdentity:offsetIdentity+IdentitySize])

	return h, nil
}

// Bytes encodes the header into its on-disk form.
func (h *Header) Bytes() []byte {
	ret := make([]byte, HeaderSize)
	copy(ret[offsetSignature:], Signature)
	ret[offsetID] = ID
	ret[offsetRevision] = h.Revision
	ret[offsetFlags] = h.Flags
	binary.LittleEndian.PutUint16(ret[offsetDataStart:], h.DataOffset)
	copy(ret[offsetIdentity:], h.Identity[:])
	return ret
}

// SectorSize returns the number of bytes each sector occupies in the image.
func (h *Header) SectorSize() int {
	if h.Flags&FlagHalfSectors != 0 {
		return SectorSize / 2
	}
	return SectorSize
}

//
func (h *Header) Geometry() Geometry {
	return Geometry{
		Cylinders: uint(h.Identity.Word(IdentityCylinders)),
		Heads:     uint(h.Identity.Word(IdentityHeads)),
		Sectors:   uint(h.Identity.Word(IdentitySectors)),
	}
}

// Geometry is a cylinder/head/sector layout.
type Geometry struct {
	Cylinders uint
	Heads     uint
	Sectors   uint
}

// Total returns the number of sectors, clamped to what LBA28 and the drive's
// 32 bit sector numbers can address.
func (g Geometry) Total() uint32 {
	if t := g.total(); t <= math.MaxUint32 {
		return uint32(t)
	}
	return math.MaxUint32
}

//
func (g Geometry) total() uint64 {
	return uint64(g.Cylinders) * uint64(g.Heads) * uint64(g.Sectors)
}

//
func (g Geometry) String() string {
	return fmt.Sprintf("C/H/S %d/%d/%d", g.Cylinders, g.Heads, g.Sectors)
}
