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


package run

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/hdfdrive/pkg/ata"
	"github.com/xelalexv/hdfdrive/pkg/control"
	"github.com/xelalexv/hdfdrive/pkg/daemon"
)

//
func NewServe() *Serve {

	s := &Serve{}
	s.Runner = *NewRunner(
		`serve -d|--device {device} [-a|--address {address}] [-b|--bus {bus}]
      [-r|--repo {repo base folder}] [-w|--workdir {folder}] [-c|--commit {interval}]`,
		"daemon & API server command",
		`Use the serve command for running the adapter daemon and API server. The data bus
setting selects how the 16 bit IDE data register is presented to the host, and has to
match the interface hardware: 8, 16, 16swap, or 16data2.`,
		"", `- Logging can be configured with these environment variables:

  LOG_FORMAT		set to 'json' for JSON logging
  LOG_FORCE_COLORS	set to non-empty for forcing colorized log entries
  LOG_METHODS		set to non-empty for including methods in log
  LOG_LEVEL		panic, fatal, error, warn, info, debug, trace

- Setting the commit interval to 0 turns off auto-commit. Modified sectors are
  then only written to the image on explicit commit, or when the daemon stops.

`+runnerHelpEpilogue, s.Run)

	s.AddBaseSettings()
	s.AddSetting(&s.Device, "device", "d", "HDFDRIVE_DEVICE", nil,
		"serial port device for adapter", true)
	s.AddSetting(&s.Address, "address", "a", "HDFDRIVE_ADDRESS", nil,
		"listen address and port of API server, default ':8888'", false)
	s.AddSetting(&s.Bus, "bus", "b", "HDFDRIVE_BUS", "16",
		"IDE data bus: 8, 16, 16swap, 16data2", false)
	s.AddSetting(&s.Repository, "repo", "r", "HDFDRIVE_REPO", nil,
		`image repo base folder; when omitted, inserting
images is prohibited`, false)
	s.AddSetting(&s.WorkDir, "workdir", "w", "HDFDRIVE_WORKDIR", nil,
		`folder for working copies & search index,
default '~/.hdfdrive'`, false)
	s.AddSetting(&s.Commit, "commit", "c", "HDFDRIVE_COMMIT",
		daemon.DefaultCommitInterval, "auto-commit interval", false)

	return s
}

//
type Serve struct {
	//
	Runner
	//
	Device     string
	Address    string
	Bus        string
	Repository string
	WorkDir    string
	Commit     time.Duration
}

//
func (s *Serve) Run() error {

	s.ParseSettings()

	bus, err := ata.ParseBus(s.Bus)
	if err != nil {
		return err
	}

	if s.WorkDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine working folder: %v", err)
		}
		s.WorkDir = filepath.Join(home, ".hdfdrive")
	}
	if err := os.MkdirAll(s.WorkDir, 0755); err != nil {
		return fmt.Errorf("cannot create working folder: %v", err)
	}

	if s.Address == "" {
		s.Address = fmt.Sprintf(":%d", s.Port)
	}

	wg := &sync.WaitGroup{}
	wg.Add(2)

	d := daemon.NewDaemon(s.Device, bus, s.Commit)
	go func() {
		defer wg.Done()
		err := d.Serve()
		if err != nil && err != daemon.ErrDaemonStopped {
			log.Errorf("daemon closed with error: %v", err)
		} else {
			log.Info("daemon stopped")
		}
	}()

	api := control.NewAPIServer(s.Address, s.Repository, s.WorkDir, d)
	go func() {
		defer wg.Done()
		if err := api.Serve(); err != nil {
			log.Errorf("API server closed with error: %v", err)
		} else {
			log.Info("API server stopped")
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sigCount := 0
	done := make(chan bool)

	for {

		select {

		case sig := <-sigs: // interrupt signal
			log.WithField("signal", sig).Info("signal received")
			sigCount++

			switch sigCount {

			case 1:
				go func() {
					log.Info("shutting down, hit Ctrl-C twice to force exit...")
					api.Stop()
					if err := d.Stop(); err != nil {
						log.Errorf("error committing images: %v", err)
					}
					wg.Wait()
					log.Info("HDFDrive stopped")
					done <- true
				}()

			case 2:
				log.Warn("shutdown in progress, hit Ctrl-C again to force exit")

			default:
				log.Warn("forcing daemon to stop immediately, " +
					"uncommitted changes are lost")
				os.Exit(1)
			}

		case <-done: // shutdown sequence complete
			return nil
		}
	}
}
