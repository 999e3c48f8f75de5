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
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/hdfdrive/pkg/ata"
	"github.com/xelalexv/hdfdrive/pkg/hdf"
	"github.com/xelalexv/hdfdrive/pkg/mmc"
)

//
const DefaultCommitInterval = 30 * time.Second

const lockTimeout = 1 * time.Second
const statusLockTimeout = 5 * time.Millisecond

// slot states
const (
	StatusEmpty = "empty"
	StatusIdle  = "idle"
	StatusBusy  = "busy"
)

//
var (
	ErrDaemonStopped = errors.New("daemon stopped")
	ErrBusy          = errors.New("device busy")
	ErrDirty         = errors.New("image has uncommitted changes")
	ErrEmpty         = errors.New("no image inserted")
)

// ResetTarget selects the devices to reset
type ResetTarget byte

const (
	ResetIDE ResetTarget = 1 << iota
	ResetSD
	ResetAll = ResetIDE | ResetSD
)

//
func ParseResetTarget(s string) (ResetTarget, error) {
	switch s {
	case "ide":
		return ResetIDE, nil
	case "sd":
		return ResetSD, nil
	case "", "all":
		return ResetAll, nil
	}
	return 0, fmt.Errorf("unknown reset target: %s", s)
}

// the daemon that connects the emulated IDE channel and SD card with the bus
// adapter
type Daemon struct {
	//
	channel *ata.Channel
	card    *mmc.Card
	ideLock lock
	sdLock  lock
	//
	conduit    *conduit
	conduitMux sync.Mutex
	port       string
	synced     bool
	connected  int32
	//
	commitInterval time.Duration
	stop           chan bool
	stopOnce       sync.Once
	//
	debugStart time.Time
}

//
func NewDaemon(port string, bus ata.Bus, commitInterval time.Duration) *Daemon {
	return &Daemon{
		channel:        ata.NewChannel(bus),
		card:           mmc.NewCard(),
		ideLock:        newLock(),
		sdLock:         newLock(),
		port:           port,
		commitInterval: commitInterval,
		stop:           make(chan bool),
	}
}

//
func (d *Daemon) Serve() error {
	go d.autoCommit()
	return d.listen()
}

// Stop stops the daemon, and commits & ejects all inserted images.
func (d *Daemon) Stop() error {

	log.Info("daemon stopping...")
	d.stopOnce.Do(func() { close(d.stop) })

	d.conduitMux.Lock()
	if d.conduit != nil {
		if err := d.conduit.close(); err != nil {
			log.Errorf("error closing port: %v", err)
		}
	}
	d.conduitMux.Unlock()

	var result *multierror.Error
	for _, s := range Slots {
		if err := d.Commit(s); err != nil && !errors.Is(err, ErrEmpty) {
			result = multierror.Append(result, fmt.Errorf("%s: %w", s, err))
			continue
		}
		if err := d.Eject(s, false); err != nil && !errors.Is(err, ErrEmpty) {
			result = multierror.Append(result, fmt.Errorf("%s: %w", s, err))
		}
	}

	return result.ErrorOrNil()
}

//
func (d *Daemon) isStopped() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

//
func (d *Daemon) listen() error {

	if err := d.resetConduit(); err != nil {
		return err
	}

	var cmd *command
	var err error

	for ; ; cmd = nil {

		if d.isStopped() {
			return ErrDaemonStopped
		}

		if d.synced {
			if cmd, err = d.conduit.receiveCommand(); err != nil {
				log.Errorf("error receiving command: %v", err)
				d.synced = false
			}

		} else {
			if err = d.conduit.syncOnHello(); err != nil {
				log.Errorf("error syncing with adapter: %v", err)
			} else {
				d.synced = true
				atomic.StoreInt32(&d.connected, 1)
			}
		}

		if err != nil {
			atomic.StoreInt32(&d.connected, 0)
			if err := d.resetConduit(); err != nil {
				return err
			}

		} else if cmd != nil {
			if err = cmd.dispatch(d); err != nil {
				log.Errorf("error dispatching command: %v", err)
				d.synced = false
			}
		}
	}
}

//
func (d *Daemon) resetConduit() error {

	d.synced = false

	d.conduitMux.Lock()
	if d.conduit != nil {
		log.Infof("closing port %s", d.port)
		if err := d.conduit.close(); err != nil {
			log.Errorf("error closing port: %v", err)
		}
		d.conduit = nil
	}
	d.conduitMux.Unlock()

	maxBackoff := 15 * time.Second

	for backoff := time.Second; ; {

		if d.isStopped() {
			return ErrDaemonStopped
		}

		log.Infof("opening port %s", d.port)
		con, err := newConduit(d.port)
		if err == nil {
			d.conduitMux.Lock()
			d.conduit = con
			d.conduitMux.Unlock()
			return nil
		}

		log.Errorf("cannot open serial port: %v", err)
		if backoff < maxBackoff {
			backoff *= 2
		}

		select {
		case <-d.stop:
			return ErrDaemonStopped
		case <-time.After(backoff):
		}
	}
}

// IsConnected determines whether the daemon is currently synced with an
// adapter.
func (d *Daemon) IsConnected() bool {
	return atomic.LoadInt32(&d.connected) == 1
}

//
func (d *Daemon) Bus() ata.Bus {
	return d.channel.Bus()
}

//
func (d *Daemon) lockFor(s Slot) lock {
	if s.isIDE() {
		return d.ideLock
	}
	return d.sdLock
}

//
func (d *Daemon) acquire(s Slot, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return d.lockFor(s).Lock(ctx)
}

// drive gets the drive in slot s; caller needs to hold the slot's lock
func (d *Daemon) drive(s Slot) *hdf.Drive {
	if s.isIDE() {
		return d.channel.Drive(s.unit())
	}
	return d.card.Drive()
}

/*
	Insert puts drive drv into slot s. If the slot already holds an image with
	uncommitted changes, insert fails unless force is set. A replaced image is
	ejected, and its uncommitted changes are lost.
*/
func (d *Daemon) Insert(s Slot, drv *hdf.Drive, force bool) error {

	if !d.acquire(s, lockTimeout) {
		return fmt.Errorf("%w: %s", ErrBusy, s)
	}
	defer d.lockFor(s).Unlock()

	present := d.drive(s)
	if present != nil && present.Dirty() && !force {
		return fmt.Errorf("%w: %s", ErrDirty, s)
	}

	if s.isIDE() {
		d.channel.Attach(s.unit(), drv)
	} else if err := d.card.Insert(drv); err != nil {
		return err
	}

	if present != nil {
		if err := present.Eject(); err != nil {
			log.Errorf("error ejecting replaced image %s: %v", present.Path(), err)
		}
	}

	log.WithFields(log.Fields{
		"slot":     s,
		"image":    drv.Path(),
		"geometry": drv.Geometry(),
	}).Info("image inserted")

	return nil
}

// Eject removes the image from slot s. An image with uncommitted changes is
// only ejected if force is set.
func (d *Daemon) Eject(s Slot, force bool) error {

	if !d.acquire(s, lockTimeout) {
		return fmt.Errorf("%w: %s", ErrBusy, s)
	}
	defer d.lockFor(s).Unlock()

	drv := d.drive(s)
	if drv == nil {
		return fmt.Errorf("%w: %s", ErrEmpty, s)
	}

	if drv.Dirty() && !force {
		return fmt.Errorf("%w: %s", ErrDirty, s)
	}

	if s.isIDE() {
		d.channel.Detach(s.unit())
	} else {
		d.card.Eject()
	}

	log.WithFields(log.Fields{
		"slot":  s,
		"image": drv.Path(),
	}).Info("image ejected")

	return drv.Eject()
}

// Commit writes back all pending sectors of the image in slot s.
func (d *Daemon) Commit(s Slot) error {
	return d.WithDrive(s, func(drv *hdf.Drive) error {
		if !drv.Dirty() {
			return nil
		}
		log.WithFields(log.Fields{
			"slot":    s,
			"sectors": drv.Pending(),
		}).Info("committing")
		return drv.Commit()
	})
}

// CommitAll commits all slots that hold an image.
func (d *Daemon) CommitAll() error {
	var result *multierror.Error
	for _, s := range Slots {
		if err := d.Commit(s); err != nil && !errors.Is(err, ErrEmpty) {
			result = multierror.Append(result, fmt.Errorf("%s: %w", s, err))
		}
	}
	return result.ErrorOrNil()
}

// WithDrive calls fn with the drive in slot s, while holding the slot's lock.
func (d *Daemon) WithDrive(s Slot, fn func(drv *hdf.Drive) error) error {

	if !d.acquire(s, lockTimeout) {
		return fmt.Errorf("%w: %s", ErrBusy, s)
	}
	defer d.lockFor(s).Unlock()

	drv := d.drive(s)
	if drv == nil {
		return fmt.Errorf("%w: %s", ErrEmpty, s)
	}

	return fn(drv)
}

//
func (d *Daemon) GetStatus(s Slot) string {

	if !d.acquire(s, statusLockTimeout) {
		return StatusBusy
	}
	defer d.lockFor(s).Unlock()

	if d.drive(s) == nil {
		return StatusEmpty
	}
	return StatusIdle
}

// Reset resets the selected devices. Inserted images stay in place.
func (d *Daemon) Reset(target ResetTarget) error {

	if target&ResetIDE != 0 {
		if !d.acquire(SlotIDE0, lockTimeout) {
			return fmt.Errorf("%w: IDE channel", ErrBusy)
		}
		d.channel.Reset()
		d.ideLock.Unlock()
		log.Info("IDE channel reset")
	}

	if target&ResetSD != 0 {
		if !d.acquire(SlotSD, lockTimeout) {
			return fmt.Errorf("%w: SD card", ErrBusy)
		}
		d.card.Reset()
		d.sdLock.Unlock()
		log.Info("SD card reset")
	}

	return nil
}

//
func (d *Daemon) autoCommit() {

	if d.commitInterval <= 0 {
		log.Info("auto-commit disabled")
		return
	}

	log.Infof("auto-commit every %v", d.commitInterval)
	ticker := time.NewTicker(d.commitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			log.Info("auto-commit stopped")
			return
		case <-ticker.C:
			for _, s := range Slots {
				d.commitIdle(s)
			}
		}
	}
}

// commitIdle commits slot s if it holds a modified image and is not in use
func (d *Daemon) commitIdle(s Slot) {

	if !d.acquire(s, statusLockTimeout) {
		log.WithField("slot", s).Debug("slot busy, skipping auto-commit")
		return
	}
	defer d.lockFor(s).Unlock()

	drv := d.drive(s)
	if drv == nil || !drv.Dirty() {
		return
	}

	start := time.Now()
	log.WithFields(log.Fields{
		"slot":    s,
		"sectors": drv.Pending(),
	}).Info("auto-committing")

	if err := drv.Commit(); err != nil {
		log.Errorf("auto-commit of %s failed: %v", s, err)
	}

	log.Debugf("auto-commit took %v", time.Since(start))
}
