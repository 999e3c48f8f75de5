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
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/hdfdrive/pkg/ata"
)

// register gets the IDE register addressed by this command
func (c *command) register() (ata.Register, error) {
	reg := ata.Register(c.arg(0))
	if reg < ata.RegData || reg > ata.RegStatus {
		return reg, fmt.Errorf("illegal IDE register: %d", c.arg(0))
	}
	return reg, nil
}

//
func (c *command) ideRead(d *Daemon) error {

	reg, err := c.register()
	if err != nil {
		return err
	}

	d.ideLock.Lock(context.Background())
	val := d.channel.Read(reg)
	d.ideLock.Unlock()

	log.WithFields(log.Fields{
		"register": reg,
		"value":    fmt.Sprintf("%02x", val),
	}).Trace("IDE read")

	return d.conduit.send([]byte{val})
}

//
func (c *command) ideWrite(d *Daemon) error {

	reg, err := c.register()
	if err != nil {
		return err
	}

	val := c.arg(1)

	log.WithFields(log.Fields{
		"register": reg,
		"value":    fmt.Sprintf("%02x", val),
	}).Trace("IDE write")

	d.ideLock.Lock(context.Background())
	d.channel.Write(reg, val)
	d.ideLock.Unlock()

	return nil
}

//
func (c *command) spiWrite(d *Daemon) error {
	d.sdLock.Lock(context.Background())
	d.card.Write(c.arg(0))
	d.sdLock.Unlock()
	return nil
}

//
func (c *command) spiRead(d *Daemon) error {
	d.sdLock.Lock(context.Background())
	val := d.card.Read()
	d.sdLock.Unlock()
	return d.conduit.send([]byte{val})
}

// spiTransfer clocks one byte in each direction. The byte going out is the
// one that was pending before the incoming byte is processed.
func (c *command) spiTransfer(d *Daemon) error {
	d.sdLock.Lock(context.Background())
	val := d.card.Read()
	d.card.Write(c.arg(0))
	d.sdLock.Unlock()
	return d.conduit.send([]byte{val})
}

// commit failures are not protocol errors, so they are only logged
func (c *command) commit(d *Daemon) error {
	log.Info("commit requested by adapter")
	if err := d.CommitAll(); err != nil {
		log.Errorf("commit failed: %v", err)
	}
	return nil
}

//
func (c *command) reset(d *Daemon) error {
	target := ResetTarget(c.arg(0)) & ResetAll
	if target == 0 {
		target = ResetAll
	}
	log.WithField("target", target).Info("reset requested by adapter")
	return d.Reset(target)
}
