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

package daemon

import (
	"bytes"
	"fmt"

	log "github.com/sirupsen/logrus"
)

//
const CmdHello = 'h'     // hello (send/receive to/from adapter)
const CmdPing = 'P'      // ping/pong (send/receive to/from adapter)
const CmdIDERead = 'i'   // read IDE register (send to adapter)
const CmdIDEWrite = 'o'  // write IDE register (receive from adapter)
const CmdSPIWrite = 's'  // byte into SD card (receive from adapter)
const CmdSPIRead = 'S'   // byte out of SD card (send to adapter)
const CmdSPIXfer = 'x'   // full duplex SPI transfer
const CmdCommit = 'c'    // commit all images
const CmdReset = 'r'     // reset devices
const CmdDebug = 'd'     // debug message (receive from adapter)
const CmdTimeStart = 't' // start stop watch
const CmdTimeEnd = 'q'   // stop stop watch

var ping = []byte("Ping")
var pong = []byte("Pong")

//
func newCommand(data []byte) *command {
	return &command{data: data}
}

//
type command struct {
	data []byte
}

//
func (c *command) dispatch(d *Daemon) error {

	switch c.cmd() {

	case CmdHello:
		d.synced = false
		return nil

	case CmdPing:
		if bytes.Equal(c.data, ping) {
			log.Debug("ping from adapter")
			return d.conduit.send(pong)
		}
		return nil

	case CmdIDERead:
		return c.ideRead(d)

	case CmdIDEWrite:
		return c.ideWrite(d)

	case CmdSPIWrite:
		return c.spiWrite(d)

	case CmdSPIRead:
		return c.spiRead(d)

	case CmdSPIXfer:
		return c.spiTransfer(d)

	case CmdCommit:
		return c.commit(d)

	case CmdReset:
		return c.reset(d)

	case CmdDebug:
		return c.debug(d)

	case CmdTimeStart:
		return c.timer(true, d)

	case CmdTimeEnd:
		return c.timer(false, d)
	}

	return fmt.Errorf("unknown command: %v", c.data)
}

//
func (c *command) cmd() byte {
	return c.data[0]
}

//
func (c *command) arg(ix int) byte {
	if 0 <= ix && ix < len(c.data)-1 {
		return c.data[ix+1]
	}
	return 0
}
