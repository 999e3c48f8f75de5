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
	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

/*
	identifyDevice fills the transfer buffer with the drive identity stored in
	the image, and overwrites the current geometry and capacity words with the
	drive's actual geometry. Total sectors are only filled in when the stored
	capabilities advertise LBA. The sector count is cleared so that the
	following PIO in phase does not read a disk sector afterwards.
*/
func (c *Channel) identifyDevice() {

	u := c.current()
	id := u.drive.Identity()
	g := u.drive.Geometry()
	total := g.Total()

	c.buffer = [hdf.SectorSize]byte{}
	copy(c.buffer[:], id[:])

	c.setWord(hdf.IdentityCurrentCylinders, uint16(g.Cylinders))
	c.setWord(hdf.IdentityCurrentHeads, uint16(g.Heads))
	c.setWord(hdf.IdentityCurrentSectors, uint16(g.Sectors))
	c.setWord(hdf.IdentityCurrentCapacity, uint16(total))
	c.setWord(hdf.IdentityCurrentCapacity+1, uint16(total>>16))

	if id.Word(hdf.IdentityCapabilities)&hdf.CapabilityLBA != 0 {
		c.setWord(hdf.IdentityTotalSectors, uint16(total))
		c.setWord(hdf.IdentityTotalSectors+1, uint16(total>>16))
	}

	c.sectorCount = 0
	c.phase = PhasePioIn
	c.dataCounter = 0
	u.status |= StatusDRQ
}

//
func (c *Channel) setWord(ix int, w uint16) {
	c.buffer[2*ix] = byte(w)
	c.buffer[2*ix+1] = byte(w >> 8)
}
