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
	"fmt"
)

// R1 response bits
const (
	R1Idle           = 0x01
	R1EraseReset     = 0x02
	R1IllegalCommand = 0x04
	R1CrcError       = 0x08
	R1EraseSeqError  = 0x10
	R1AddressError   = 0x20
	R1ParameterError = 0x40
)

// standard commands
const (
	CmdGoIdleState     = 0
	CmdSendIfCond      = 8
	CmdSendCSD         = 9
	CmdSendCID         = 10
	CmdReadSingleBlock = 17
	CmdWriteBlock      = 24
	CmdEraseWrBlkStart = 32
	CmdEraseWrBlkEnd   = 33
	CmdErase           = 38
	CmdAppCmd          = 55
	CmdReadOCR         = 58
)

// application commands, valid right after CmdAppCmd
const (
	AcmdSdSendOpCond = 41
)

// tokens
const (
	commandMask  = 0xc0
	commandStart = 0x40

	DataToken            = 0xfe
	DataResponseAccepted = 0x05
	DataErrorToken       = 0x01
	NotBusy              = 0x01
)

//
const (
	ocrPowerUp = 0x80000000
	ocrCCS     = 0x40000000

	ifCondVoltage = 0x0100
	opCondHCS     = 0x40
)

// SectorsPerUnit is the capacity granularity of a card: the CSD counts
// capacity in units of 512KB.
const SectorsPerUnit = 1024

// State is the position of the card in receiving a command or data block.
type State int

const (
	StateWaitingForCommand State = iota
	StateWaitingForData0
	StateWaitingForData1
	StateWaitingForData2
	StateWaitingForData3
	StateWaitingForCrc
	StateWaitingForDataToken
	StateWaitingForData
	StateWaitingForDataCrc1
	StateWaitingForDataCrc2
)

//
func (s State) String() string {
	switch s {
	case StateWaitingForCommand:
		return "waiting for command"
	case StateWaitingForData0, StateWaitingForData1,
		StateWaitingForData2, StateWaitingForData3:
		return fmt.Sprintf("waiting for argument byte %d",
			s-StateWaitingForData0)
	case StateWaitingForCrc:
		return "waiting for CRC"
	case StateWaitingForDataToken:
		return "waiting for data token"
	case StateWaitingForData:
		return "waiting for data"
	case StateWaitingForDataCrc1:
		return "waiting for data CRC 1"
	case StateWaitingForDataCrc2:
		return "waiting for data CRC 2"
	default:
		return "<unknown>"
	}
}

//
type eraseSequence int

const (
	eraseNone eraseSequence = iota
	eraseStart
	eraseEnd
)
