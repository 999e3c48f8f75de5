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
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"
)

//
const commandLength = 4

//
var helloDaemon = []byte("hlod")
var helloAdapter = []byte("hloa")

// conduit is the serial link to the bus adapter
type conduit struct {
	port io.ReadWriteCloser
}

//
func newConduit(port string) (*conduit, error) {
	p, err := openPort(port)
	if err != nil {
		return nil, err
	}
	return &conduit{port: p}, nil
}

//
func openPort(p string) (io.ReadWriteCloser, error) {
	return serial.Open(serial.OpenOptions{
		PortName:        p,
		BaudRate:        1000000,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
}

//
func (c *conduit) close() error {
	return c.port.Close()
}

/*
	syncOnHello waits for the adapter's hello. The adapter keeps sending hellos
	until it gets an answer, so there may be stale ones in the pipe. We wait for
	one that arrives after a pause, i.e. one that was sent after the pipe had
	been drained, and then send our own hello.
*/
func (c *conduit) syncOnHello() error {

	log.Info("syncing with adapter")
	hello := make([]byte, commandLength)

	for !bytes.Equal(hello, helloAdapter) {
		shiftLeft(hello)
		if err := c.receive(hello[len(hello)-1:]); err != nil {
			return err
		}
	}

	for {
		start := time.Now()
		cmd, err := c.receiveCommand()
		if err != nil {
			return err
		}
		if cmd.cmd() == CmdHello && time.Since(start) > 500*time.Millisecond {
			break
		}
		log.Debugf("discarding command: %v", cmd.data)
	}

	if err := c.send(helloDaemon); err != nil {
		return fmt.Errorf("error sending daemon hello: %v", err)
	}

	log.Info("synced with adapter")
	return nil
}

//
func (c *conduit) receive(data []byte) error {
	_, err := io.ReadFull(c.port, data)
	return err
}

//
func (c *conduit) send(data []byte) error {
	_, err := c.port.Write(data)
	return err
}

//
func (c *conduit) receiveCommand() (*command, error) {
	data := make([]byte, commandLength)
	if err := c.receive(data); err != nil {
		return nil, err
	}
	log.Tracef("command: %v", data)
	return newCommand(data), nil
}

//
func shiftLeft(buf []byte) {
	if len(buf) > 1 {
		copy(buf, buf[1:])
	}
}
