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

package ata

import (
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

// unit is one drive position on a channel, with the registers that are kept
// per drive rather than per channel.
type unit struct {
	drive  *hdf.Drive
	status byte
	error  byte
}

//
func (u *unit) reset() {
	u.status = StatusDRDY | StatusDSC
	u.error = 0
}

/*
	Channel is an ATA/IDE channel with a master and a slave position. The task
	file registers are shared by both drives; status and error are kept per
	drive. All transfers are PIO, one register access at a time.
*/
type Channel struct {
	bus      Bus
	units    [2]unit
	selected Unit
	//
	feature      byte
	sectorCount  byte
	sector       byte
	cylinderLow  byte
	cylinderHigh byte
	head         byte
	data2        byte
	//
	phase       Phase
	dataCounter int
	buffer      [hdf.SectorSize]byte
}

//
func NewChannel(bus Bus) *Channel {
	c := &Channel{bus: bus}
	c.Reset()
	return c
}

// Reset puts the channel into its power-on state. Attached drives stay
// attached.
func (c *Channel) Reset() {
	c.selected = Master
	c.feature = 0
	c.sectorCount = 1
	c.sector = 1
	c.cylinderLow = 0
	c.cylinderHigh = 0
	c.head = 0
	c.data2 = 0
	c.phase = PhaseReady
	c.dataCounter = 0
	for ix := range c.units {
		c.units[ix].reset()
	}
	log.Debug("ATA channel reset")
}

// Attach places drive d at position u, replacing whatever was there. The
// replaced drive is returned.
func (c *Channel) Attach(u Unit, d *hdf.Drive) *hdf.Drive {
	un := &c.units[u&1]
	prev := un.drive
	un.drive = d
	un.reset()
	if u&1 == c.selected {
		c.phase = PhaseReady
	}
	log.WithField("unit", u).Debug("ATA drive attached")
	return prev
}

// Detach removes the drive at position u and returns it.
func (c *Channel) Detach(u Unit) *hdf.Drive {
	return c.Attach(u, nil)
}

//
func (c *Channel) Drive(u Unit) *hdf.Drive {
	return c.units[u&1].drive
}

//
func (c *Channel) Bus() Bus {
	return c.bus
}

//
func (c *Channel) Phase() Phase {
	return c.phase
}

//
func (c *Channel) Selected() Unit {
	return c.selected
}

//
func (c *Channel) current() *unit {
	return &c.units[c.selected]
}

/*
	Read returns the value of register reg. Status, error, and data of an empty
	position read as 0xff, and so does everything on a channel without any
	drive.
*/
func (c *Channel) Read(reg Register) byte {

	if c.units[Master].drive == nil && c.units[Slave].drive == nil {
		return 0xff
	}

	u := c.current()
	var ret byte = 0xff

	switch reg {

	case RegData:
		if u.drive != nil {
			ret = c.readData()
		}

	case RegData2:
		ret = c.data2

	case RegError:
		if u.drive != nil {
			ret = u.error
		}

	case RegSectorCount:
		ret = c.sectorCount

	case RegSector:
		ret = c.sector

	case RegCylinderLow:
		ret = c.cylinderLow

	case RegCylinderHigh:
		ret = c.cylinderHigh

	case RegHead:
		ret = c.head

	case RegStatus:
		if u.drive != nil {
			ret = u.status
		}
	}

	if reg != RegData && reg != RegData2 {
		log.WithFields(log.Fields{
			"register": reg, "value": ret}).Trace("ATA read")
	}
	return ret
}

// Write sets register reg to value. Writing the command register executes
// the command on the selected drive.
func (c *Channel) Write(reg Register, value byte) {

	if reg != RegData && reg != RegData2 {
		log.WithFields(log.Fields{
			"register": reg, "value": value}).Trace("ATA write")
	}

	switch reg {

	case RegData:
		if c.current().drive != nil {
			c.writeData(value)
		}

	case RegData2:
		c.data2 = value

	case RegFeature:
		c.feature = value

	case RegSectorCount:
		c.sectorCount = value

	case RegSector:
		c.sector = value

	case RegCylinderLow:
		c.cylinderLow = value

	case RegCylinderHigh:
		c.cylinderHigh = value

	case RegHead:
		c.head = value
		if value&headDEV != 0 {
			c.selected = Slave
		} else {
			c.selected = Master
		}

	case RegCommand:
		c.execute(value)
	}
}

//
func (c *Channel) readData() byte {

	if c.phase != PhasePioIn {
		return 0xff
	}

	var ret byte

	switch c.bus {

	case Bus8:
		ret = c.buffer[c.dataCounter]
		c.dataCounter += 2

	case Bus16:
		ret = c.buffer[c.dataCounter]
		c.dataCounter++

	case Bus16ByteSwap:
		ret = c.buffer[c.dataCounter^1]
		c.dataCounter++

	case Bus16Data2:
		ret = c.buffer[c.dataCounter]
		c.data2 = c.buffer[c.dataCounter+1]
		c.dataCounter += 2
	}

	if c.dataCounter >= hdf.SectorSize {
		c.endPioIn()
	}

	return ret
}

//
func (c *Channel) writeData(value byte) {

	if c.phase != PhasePioOut {
		return
	}

	switch c.bus {

	case Bus8: // high byte keeps what the buffer held
		c.buffer[c.dataCounter] = value
		c.dataCounter += 2

	case Bus16:
		c.buffer[c.dataCounter] = value
		c.dataCounter++

	case Bus16ByteSwap:
		c.buffer[c.dataCounter^1] = value
		c.dataCounter++

	case Bus16Data2:
		c.buffer[c.dataCounter] = value
		c.buffer[c.dataCounter+1] = c.data2
		c.dataCounter += 2
	}

	if c.dataCounter >= hdf.SectorSize {
		c.endPioOut()
	}
}

//
func (c *Channel) endPioIn() {
	c.current().status &^= StatusDRQ
	if c.sectorCount != 0 {
		c.readSector()
	} else {
		c.phase = PhaseReady
	}
}

//
func (c *Channel) endPioOut() {
	c.current().status &^= StatusDRQ
	c.writeSector()
}

//
func (c *Channel) execute(cmd byte) {

	u := c.current()
	if u.drive == nil {
		log.WithFields(log.Fields{
			"unit": c.selected, "command": cmd}).Debug("command for empty unit")
		return
	}

	log.WithFields(log.Fields{
		"unit":    c.selected,
		"command": cmd,
	}).Debugf("ATA command 0x%02x", cmd)

	u.status &^= StatusERR | StatusDRQ | StatusBSY
	u.status |= StatusDRDY
	u.error = 0
	c.phase = PhaseReady

	switch cmd {

	case CmdReadSector, CmdReadSectorNoRetry:
		c.readSector()

	case CmdWriteSector, CmdWriteSectorNoRetry:
		c.phase = PhasePioOut
		c.dataCounter = 0
		u.status |= StatusDRQ

	case CmdIdentifyDrive, CmdIdentifyDriveATAPI:
		c.identifyDevice()

	case CmdInitializeDeviceParameters:
		// geometry of an inserted image does not change

	default:
		log.WithField("unit", c.selected).Warnf(
			"unknown ATA command 0x%02x", cmd)
		u.status |= StatusERR
		u.error = ErrorABRT
	}
}

//
func (c *Channel) readSector() {

	u := c.current()

	n, ok := c.seek()
	if !ok {
		c.phase = PhaseReady
		return
	}

	if err := u.drive.ReadSector(n, &c.buffer); err != nil {
		log.WithField("sector", n).Errorf("ATA read failed: %v", err)
		u.status |= StatusERR
		u.error = ErrorUNC
		c.phase = PhaseReady
		return
	}

	c.phase = PhasePioIn
	c.dataCounter = 0
	u.status |= StatusDRQ
}

//
func (c *Channel) writeSector() {

	u := c.current()

	n, ok := c.seek()
	if !ok {
		c.phase = PhaseReady
		return
	}

	if err := u.drive.WriteSector(n, &c.buffer); err != nil {
		log.WithField("sector", n).Errorf("ATA write failed: %v", err)
		u.status |= StatusERR
		u.error = ErrorUNC
		c.phase = PhaseReady
		return
	}

	c.dataCounter = 0

	if c.sectorCount != 0 {
		c.phase = PhasePioOut
		u.status |= StatusDRQ
	} else {
		c.phase = PhaseReady
	}
}

/*
	seek translates the address in the task file into a sector number of the
	selected drive. On success, the sector count is decremented and, if sectors
	remain, the address registers are advanced to the next sector. An address
	outside of the drive's geometry sets ERR and IDNF.
*/
func (c *Channel) seek() (uint32, bool) {

	u := c.current()
	g := u.drive.Geometry()
	var n uint32

	if c.head&headLBA != 0 {
		n = uint32(c.head&headMask)<<24 | uint32(c.cylinderHigh)<<16 |
			uint32(c.cylinderLow)<<8 | uint32(c.sector)

	} else {
		cylinder := uint(c.cylinderHigh)<<8 | uint(c.cylinderLow)
		head := uint(c.head & headMask)
		sector := uint(c.sector)

		if cylinder >= g.Cylinders || head >= g.Heads ||
			sector < 1 || sector > g.Sectors {
			c.idNotFound(cylinder, head, sector)
			return 0, false
		}

		n = uint32((cylinder*g.Heads+head)*g.Sectors + sector - 1)
	}

	if n >= u.drive.TotalSectors() {
		c.idNotFound(0, 0, uint(n))
		return 0, false
	}

	c.sectorCount--
	if c.sectorCount != 0 {
		c.nextAddress(g)
	}

	return n, true
}

//
func (c *Channel) idNotFound(cylinder, head, sector uint) {
	log.WithFields(log.Fields{
		"cylinder": cylinder,
		"head":     head,
		"sector":   sector,
		"lba":      c.head&headLBA != 0,
	}).Debug("ATA sector not found")
	u := c.current()
	u.status |= StatusERR
	u.error = ErrorIDNF
}

//
func (c *Channel) nextAddress(g hdf.Geometry) {

	if c.head&headLBA != 0 {
		if c.sector++; c.sector != 0 {
			return
		}
		if c.cylinderLow++; c.cylinderLow != 0 {
			return
		}
		if c.cylinderHigh++; c.cylinderHigh != 0 {
			return
		}
		c.head = c.head&^headMask | (c.head+1)&headMask
		return
	}

	if c.sector++; uint(c.sector) <= g.Sectors {
		return
	}
	c.sector = 1

	head := uint(c.head&headMask) + 1
	if head >= g.Heads {
		head = 0
		cylinder := (uint(c.cylinderHigh)<<8 | uint(c.cylinderLow)) + 1
		c.cylinderLow = byte(cylinder)
		c.cylinderHigh = byte(cylinder >> 8)
	}
	c.head = c.head&^headMask | byte(head)&headMask
}
