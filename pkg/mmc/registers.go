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

// product name reported in the CID register
const ProductName = "HDFDR"

/*
	CSD returns the card specific data register as a version 2.0 (SDHC) CSD.
	Apart from the device size C_SIZE, all fields are fixed. Capacity is
	(C_SIZE + 1) * 512k.
*/
func (c *Card) CSD() [16]byte {
	return [16]byte{
		0x40, // CSD structure 2.0
		0x0e, // TAAC
		0x00, // NSAC
		0x32, // TRAN_SPEED, 25MHz
		0x5b, // CCC, READ_BL_LEN
		0x59,
		0x00,
		byte(c.cSize>>16) & 0x3f, // C_SIZE
		byte(c.cSize >> 8),
		byte(c.cSize),
		0x7f, // ERASE_BLK_EN, SECTOR_SIZE
		0x80, // WP_GRP_SIZE
		0x0a, // R2W_FACTOR, WRITE_BL_LEN
		0x40,
		0x00,
		0x01, // CRC
	}
}

// CID returns the card identification register.
func (c *Card) CID() [16]byte {
	cid := [16]byte{
		0x00,     // MID
		'H', 'D', // OID
		0, 0, 0, 0, 0, // PNM
		0x10,                   // PRV 1.0
		0x00, 0x00, 0x00, 0x01, // PSN
		0x01, 0x5a, // MDT, 10/2021
		0x01, // CRC
	}
	copy(cid[3:8], ProductName)
	return cid
}
