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
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/hdfdrive/pkg/ata"
)

// Slot is a place where an image can be inserted: one of the two units on
// the IDE channel, or the SD card socket.
type Slot int

const (
	SlotIDE0 Slot = iota
	SlotIDE1
	SlotSD
)

//
var Slots = []Slot{SlotIDE0, SlotIDE1, SlotSD}

//
func (s Slot) String() string {
	switch s {
	case SlotIDE0:
		return "ide0"
	case SlotIDE1:
		return "ide1"
	case SlotSD:
		return "sd"
	default:
		return fmt.Sprintf("<slot %d>", int(s))
	}
}

//
func (s Slot) isIDE() bool {
	return s == SlotIDE0 || s == SlotIDE1
}

//
func (s Slot) unit() ata.Unit {
	if s == SlotIDE1 {
		return ata.Slave
	}
	return ata.Master
}

//
func ParseSlot(s string) (Slot, error) {
	for _, sl := range Slots {
		if strings.EqualFold(s, sl.String()) {
			return sl, nil
		}
	}
	return -1, fmt.Errorf("unknown slot: %s", s)
}

/*
	lock serializes access to a device. A device is either the IDE channel,
	shared by both IDE slots, or the SD card. Lock blocks until the lock is
	acquired or the context is done, in which case it returns false.
*/
type lock chan bool

//
func newLock() lock {
	return make(chan bool, 1)
}

//
func (l lock) Lock(ctx context.Context) bool {
	select {
	case l <- true:
		log.Trace("device locked")
		return true
	case <-ctx.Done():
		log.Debug("device lock timed out")
		return false
	}
}

//
func (l lock) Unlock() {
	select {
	case <-l:
		log.Trace("device unlocked")
	default:
		log.Debug("device was already unlocked")
	}
}

//
func (l lock) isLocked() bool {
	return len(l) > 0
}
