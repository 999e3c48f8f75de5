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
	"fmt"
	"strings"
)

// Register addresses one of the task file registers of a channel. Error and
// Feature share an address, as do Command and Status.
type Register int

const (
	RegData Register = iota
	RegData2
	RegError
	RegSectorCount
	RegSector
	RegCylinderLow
	RegCylinderHigh
	RegHead
	RegStatus

	RegFeature = RegError
	RegCommand = RegStatus
)

//
func (r Register) String() string {
	switch r {
	case RegData:
		return "DATA"
	case RegData2:
		return "DATA2"
	case RegError:
		return "ERROR/FEATURE"
	case RegSectorCount:
		return "SECTOR_COUNT"
	case RegSector:
		return "SECTOR"
	case RegCylinderLow:
		return "CYLINDER_LOW"
	case RegCylinderHigh:
		return "CYLINDER_HIGH"
	case RegHead:
		return "HEAD/DRIVE"
	case RegStatus:
		return "STATUS/COMMAND"
	default:
		return fmt.Sprintf("<unknown register %d>", int(r))
	}
}

// status register bits
const (
	StatusERR  = 0x01
	StatusIDX  = 0x02
	StatusCORR = 0x04
	StatusDRQ  = 0x08
	StatusDSC  = 0x10
	StatusDWF  = 0x20
	StatusDRDY = 0x40
	StatusBSY  = 0x80
)

// error register bits
const (
	ErrorAMNF  = 0x01
	ErrorTK0NF = 0x02
	ErrorABRT  = 0x04
	ErrorMCR   = 0x08
	ErrorIDNF  = 0x10
	ErrorMC    = 0x20
	ErrorUNC   = 0x40
	ErrorBBK   = 0x80
)

// head/drive register bits
const (
	headMask = 0x0f
	headDEV  = 0x10
	headLBA  = 0x40
)

// commands
const (
	CmdReadSector                 = 0x20
	CmdReadSectorNoRetry          = 0x21
	CmdWriteSector                = 0x30
	CmdWriteSectorNoRetry         = 0x31
	CmdInitializeDeviceParameters = 0x91
	CmdIdentifyDriveATAPI         = 0xa1
	CmdIdentifyDrive              = 0xec
)

// Unit selects master or slave drive of a channel.
type Unit int

const (
	Master Unit = iota
	Slave
)

//
func (u Unit) String() string {
	if u == Slave {
		return "slave"
	}
	return "master"
}

// Phase is the PIO state of a channel.
type Phase int

const (
	PhaseReady Phase = iota
	PhasePioOut
	PhasePioIn
)

//
func (p Phase) String() string {
	switch p {
	case PhasePioOut:
		return "PIO out"
	case PhasePioIn:
		return "PIO in"
	default:
		return "ready"
	}
}

/*
	Bus is the way the data register is wired to the host. It is fixed when the
	channel is created.

	Bus8 only carries the low byte of each data word; the high byte is dropped
	on read and set to 0xff on write. Bus16 transfers one byte per access in
	buffer order, Bus16ByteSwap does the same with the bytes of each word
	swapped. Bus16Data2 carries the low byte through DATA and latches the high
	byte in DATA2.
*/
type Bus int

const (
	Bus8 Bus = iota
	Bus16
	Bus16ByteSwap
	Bus16Data2
)

//
func (b Bus) String() string {
	switch b {
	case Bus8:
		return "8"
	case Bus16:
		return "16"
	case Bus16ByteSwap:
		return "16swap"
	case Bus16Data2:
		return "16data2"
	default:
		return "<unknown>"
	}
}

//
func ParseBus(s string) (Bus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "8":
		return Bus8, nil
	case "", "16":
		return Bus16, nil
	case "16swap":
		return Bus16ByteSwap, nil
	case "16data2":
		return Bus16Data2, nil
	}
	return Bus16, fmt.Errorf("unknown data bus: %s", s)
}
