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

package mmc

import (
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

//
var ErrIncompatibleImage = errors.New("image not usable as SD card")

// longest response: R1, data token, block, two CRC bytes
const responseSize = 1 + 1 + hdf.SectorSize + 2

/*
	Card is an SD card in SPI mode, backed by an HDF image. The host clocks
	bytes in with Write and out with Read. Chip select is not modeled; the
	caller only passes on bytes while the card is selected.
*/
type Card struct {
	drive        *hdf.Drive
	cSize        uint32
	totalSectors uint32
	//
	r1       byte
	state    State
	command  byte
	argument [4]byte
	//
	sendBuffer [hdf.SectorSize]byte
	sendCount  int
	//
	response     [responseSize]byte
	responseNext int
	responseEnd  int
	//
	erase           eraseSequence
	eraseStartBlock uint32
	eraseEndBlock   uint32
	//
	cmd8Issued  bool
	cmd55Issued bool
}

//
func NewCard() *Card {
	c := &Card{}
	c.Reset()
	return c
}

/*
	Insert puts drive d into the card slot. The image needs 512 byte sectors
	and a capacity that is a multiple of 1024 sectors, since that is what the
	card reports in its CSD.
*/
func (c *Card) Insert(d *hdf.Drive) error {

	if d.SectorSize() != hdf.SectorSize {
		return fmt.Errorf("%w: sector size %d, need %d",
			ErrIncompatibleImage, d.SectorSize(), hdf.SectorSize)
	}

	total := d.TotalSectors()
	if total == 0 || total%SectorsPerUnit != 0 {
		return fmt.Errorf("%w: %d sectors, need a multiple of %d",
			ErrIncompatibleImage, total, SectorsPerUnit)
	}

	c.drive = d
	c.totalSectors = total
	c.cSize = total/SectorsPerUnit - 1
	c.Reset()

	log.WithFields(log.Fields{
		"sectors": total,
		"c_size":  c.cSize,
	}).Debug("SD card inserted")

	return nil
}

// Eject removes the drive from the card slot and returns it.
func (c *Card) Eject() *hdf.Drive {
	d := c.drive
	c.drive = nil
	c.totalSectors = 0
	c.cSize = 0
	c.Reset()
	return d
}

// Reset returns the card to its power-on state.
func (c *Card) Reset() {
	c.r1 = R1Idle
	c.state = StateWaitingForCommand
	c.command = 0
	c.argument = [4]byte{}
	c.sendCount = 0
	c.responseNext = 0
	c.responseEnd = 0
	c.erase = eraseNone
	c.cmd8Issued = false
	c.cmd55Issued = false
}

//
func (c *Card) Drive() *hdf.Drive {
	return c.drive
}

//
func (c *Card) TotalSectors() uint32 {
	return c.totalSectors
}

//
func (c *Card) CSize() uint32 {
	return c.cSize
}

// Status returns the current R1 status bits.
func (c *Card) Status() byte {
	return c.r1
}

//
func (c *Card) State() State {
	return c.state
}

// Write clocks one byte into the card. Without an inserted image, nothing
// happens.
func (c *Card) Write(b byte) {

	if c.drive == nil {
		return
	}

	switch c.state {

	case StateWaitingForCommand:
		if b&commandMask != commandStart {
			return
		}
		c.command = b &^ commandMask
		c.state = StateWaitingForData0

	case StateWaitingForData0, StateWaitingForData1,
		StateWaitingForData2, StateWaitingForData3:
		c.argument[c.state-StateWaitingForData0] = b
		c.state++

	case StateWaitingForCrc: // CRC is not checked in SPI mode
		c.state = StateWaitingForCommand
		c.execute()

	case StateWaitingForDataToken:
		if b == DataToken {
			c.sendCount = 0
			c.state = StateWaitingForData
		}

	case StateWaitingForData:
		c.sendBuffer[c.sendCount] = b
		if c.sendCount++; c.sendCount == len(c.sendBuffer) {
			c.state = StateWaitingForDataCrc1
		}

	case StateWaitingForDataCrc1:
		c.state = StateWaitingForDataCrc2

	case StateWaitingForDataCrc2:
		c.state = StateWaitingForCommand
		c.writeSingleBlock()
	}
}

// Read clocks one byte out of the card. Once the pending response is
// exhausted, 0xff is returned.
func (c *Card) Read() byte {
	if c.responseNext < c.responseEnd {
		b := c.response[c.responseNext]
		c.responseNext++
		return b
	}
	return 0xff
}

//
func (c *Card) arg() uint32 {
	return binary.BigEndian.Uint32(c.argument[:])
}

// respond replaces the pending response with data.
func (c *Card) respond(data ...byte) {
	c.responseEnd = copy(c.response[:], data)
	c.responseNext = 0
}

//
func (c *Card) respondR1() {
	c.respond(c.r1)
}

//
func (c *Card) respondR7(v uint32) {
	c.respond(c.r1, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// respondData queues R1 followed by a data packet with dummy CRC.
func (c *Card) respondData(data []byte) {
	c.response[0] = c.r1
	c.response[1] = DataToken
	n := copy(c.response[2:], data)
	c.response[2+n] = 0
	c.response[3+n] = 0
	c.responseEnd = 4 + n
	c.responseNext = 0
}

//
func (c *Card) illegal() {
	c.r1 |= R1IllegalCommand
	c.respondR1()
}

//
func (c *Card) parameterError() {
	c.r1 |= R1ParameterError
	c.respondR1()
}
