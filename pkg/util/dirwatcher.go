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

package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

/*
	NewDirWatcher creates a recursive watcher for the directory tree rooted in
	dir. Directories created later on are added to the watch. Watching begins
	with Start.
*/
func NewDirWatcher(dir string) (*DirWatcher, error) {

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ret := &DirWatcher{
		watcher: w,
		done:    make(chan bool),
	}

	if err := filepath.Walk(dir,
		func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return ret.add(path)
			}
			return nil
		}); err != nil {
		w.Close()
		return nil, fmt.Errorf("error walking directory '%s': %w", dir, err)
	}

	return ret, nil
}

//
type DirWatcher struct {
	watcher *fsnotify.Watcher
	done    chan bool
	running bool
	mux     sync.Mutex
}

/*
	Start calls handler for every change in the watched tree. When there has
	been no further change for the duration of quiet, flush is called. Handler
	and flush are always called from the same go routine, so they need not be
	thread safe with respect to each other.
*/
func (dw *DirWatcher) Start(quiet time.Duration,
	handler func(fsnotify.Event) error, flush func() error) error {

	dw.mux.Lock()
	defer dw.mux.Unlock()

	if dw.watcher == nil {
		return fmt.Errorf("directory watcher stopped")
	}
	if dw.running {
		return fmt.Errorf("directory watcher already started")
	}
	dw.running = true

	go dw.run(quiet, handler, flush)
	return nil
}

//
func (dw *DirWatcher) run(quiet time.Duration,
	handler func(fsnotify.Event) error, flush func() error) {

	defer close(dw.done)

	timer := time.NewTimer(quiet)
	timer.Stop()

	for {
		select {

		case evt, ok := <-dw.watcher.Events:
			if !ok {
				log.Debug("directory watcher routine exiting")
				return
			}
			timer.Stop()
			if evt.Op&fsnotify.Create != 0 {
				if info, err := os.Lstat(evt.Name); err == nil && info.IsDir() {
					dw.add(evt.Name)
				}
			}
			if err := handler(evt); err != nil {
				log.Errorf("error in watch event handler: %v", err)
			}
			timer.Reset(quiet)

		case err, ok := <-dw.watcher.Errors:
			if ok {
				log.Errorf("directory watcher error: %v", err)
			}

		case <-timer.C:
			if err := flush(); err != nil {
				log.Errorf("error flushing: %v", err)
			}
		}
	}
}

// Stop stops the watcher and waits for its go routine to end. A stopped
// watcher cannot be started again.
func (dw *DirWatcher) Stop() {

	dw.mux.Lock()
	defer dw.mux.Unlock()

	if dw.watcher == nil {
		return
	}

	log.Info("closing directory watcher")
	if err := dw.watcher.Close(); err != nil {
		log.Errorf("could not close file watcher: %v", err)
	}
	if dw.running {
		<-dw.done
		dw.running = false
	}
	dw.watcher = nil
}

//
func (dw *DirWatcher) add(path string) error {
	if err := dw.watcher.Add(path); err != nil {
		log.Errorf("error adding watch for directory '%s': %v", path, err)
		return err
	}
	log.WithField("path", path).Debug("starting directory watch")
	return nil
}
