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
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

/*
	execute runs the command that has just been received completely. Error bits
	of the previous command are cleared first, IDLE is kept. Any command other
	than the three erase commands aborts a pending erase sequence and reports
	ERASE_RESET, but is then executed normally. A command following APP_CMD is
	looked up among the application commands instead.
*/
func (c *Card) execute() {

	c.r1 &= R1Idle

	app := c.cmd55Issued
	c.cmd55Issued = false

	if c.erase != eraseNone && (app || !isEraseCommand(c.command)) {
		log.Debug("erase sequence reset")
		c.erase = eraseNone
		c.r1 |= R1EraseReset
	}

	logger := log.WithFields(log.Fields{
		"command":  c.command,
		"argument": c.arg(),
		"app":      app,
	})

	if app {
		logger.Debugf("ACMD%d", c.command)
		c.executeApp()
		return
	}

	logger.Debugf("CMD%d", c.command)

	switch c.command {

	case CmdGoIdleState:
		c.r1 |= R1Idle
		c.cmd8Issued = false
		c.respondR1()

	case CmdSendIfCond:
		c.cmd8Issued = true
		c.respondR7(ifCondVoltage | uint32(c.argument[3]))

	case CmdSendCSD:
		if c.isIdle() {
			c.illegal()
			return
		}
		csd := c.CSD()
		c.respondData(csd[:])

	case CmdSendCID:
		if c.isIdle() {
			c.illegal()
			return
		}
		cid := c.CID()
		c.respondData(cid[:])

	case CmdReadSingleBlock:
		c.readSingleBlock()

	case CmdWriteBlock:
		c.writeBlock()

	case CmdEraseWrBlkStart:
		c.eraseWriteBlockStart()

	case CmdEraseWrBlkEnd:
		c.eraseWriteBlockEnd()

	case CmdErase:
		c.eraseBlocks()

	case CmdAppCmd:
		c.cmd55Issued = true
		c.respondR1()

	case CmdReadOCR:
		c.respondR7(ocrPowerUp | ocrCCS)

	default:
		logger.Warnf("unsupported SD command CMD%d", c.command)
		c.illegal()
	}
}

//
func (c *Card) executeApp() {

	switch c.command {

	case AcmdSdSendOpCond:
		if c.cmd8Issued && c.argument[0]&opCondHCS != 0 {
			c.r1 &^= R1Idle
		}
		c.respondR1()

	default:
		log.Warnf("unsupported SD application command ACMD%d", c.command)
		c.illegal()
	}
}

//
func isEraseCommand(cmd byte) bool {
	return cmd == CmdEraseWrBlkStart || cmd == CmdEraseWrBlkEnd ||
		cmd == CmdErase
}

//
func (c *Card) isIdle() bool {
	return c.r1&R1Idle != 0
}

//
func (c *Card) readSingleBlock() {

	if c.isIdle() {
		c.illegal()
		return
	}

	n := c.arg()
	if n >= c.totalSectors {
		c.parameterError()
		return
	}

	var buf [hdf.SectorSize]byte
	if err := c.drive.ReadSector(n, &buf); err != nil {
		log.WithField("sector", n).Errorf("SD read failed: %v", err)
		c.respond(c.r1, DataErrorToken)
		return
	}

	c.respondData(buf[:])
}

// writeBlock acknowledges a block write. The data follows in the data phase,
// which is entered unless the card rejected the command as illegal.
func (c *Card) writeBlock() {

	if c.isIdle() {
		c.illegal()
		return
	}

	if c.arg() >= c.totalSectors {
		c.r1 |= R1ParameterError
	}

	c.respondR1()
	c.state = StateWaitingForDataToken
}

//
func (c *Card) writeSingleBlock() {

	n := c.arg()
	if n >= c.totalSectors {
		c.parameterError()
		return
	}

	if err := c.drive.WriteSector(n, &c.sendBuffer); err != nil {
		log.WithField("sector", n).Errorf("SD write failed: %v", err)
		c.parameterError()
		return
	}

	c.respond(DataResponseAccepted, NotBusy)
}

//
func (c *Card) eraseSequenceError() {
	c.r1 |= R1EraseSeqError
	c.erase = eraseNone
	c.respondR1()
}

//
func (c *Card) eraseParameterError() {
	c.erase = eraseNone
	c.parameterError()
}

//
func (c *Card) eraseWriteBlockStart() {

	if c.erase != eraseNone {
		c.eraseSequenceError()
		return
	}

	n := c.arg()
	if n >= c.totalSectors {
		c.eraseParameterError()
		return
	}

	c.eraseStartBlock = n
	c.erase = eraseStart
	c.respondR1()
}

//
func (c *Card) eraseWriteBlockEnd() {

	if c.erase != eraseStart {
		c.eraseSequenceError()
		return
	}

	n := c.arg()
	if n >= c.totalSectors || n < c.eraseStartBlock {
		c.eraseParameterError()
		return
	}

	c.eraseEndBlock = n
	c.erase = eraseEnd
	c.respondR1()
}

// eraseBlocks zero fills the blocks selected with the two preceding erase
// commands. The sequence is over afterwards, whatever the outcome.
func (c *Card) eraseBlocks() {

	if c.erase != eraseEnd {
		c.eraseSequenceError()
		return
	}

	c.erase = eraseNone

	log.WithFields(log.Fields{
		"start": c.eraseStartBlock,
		"end":   c.eraseEndBlock,
	}).Debug("SD erase")

	var zero [hdf.SectorSize]byte
	for n := c.eraseStartBlock; n <= c.eraseEndBlock; n++ {
		if err := c.drive.WriteSector(n, &zero); err != nil {
			log.WithField("sector", n).Errorf("SD erase failed: %v", err)
			c.r1 |= R1ParameterError
			break
		}
		if n == c.eraseEndBlock { // avoid wrap at max uint32
			break
		}
	}

	c.respond(c.r1, NotBusy)
}
