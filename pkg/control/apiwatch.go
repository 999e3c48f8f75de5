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


package control

import (
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

//
const defaultWatchInterval = 2 * time.Second

/*
	watch is a long poll for changes in slots or adapter link. The reply is
	sent once a change happens, or with status 408 after the timeout given in
	seconds.
*/
func (a *api) watch(w http.ResponseWriter, req *http.Request) {

	timeout, err := strconv.Atoi(req.URL.Query().Get("timeout"))
	if err != nil || timeout < 0 || 1800 < timeout {
		timeout = 600
	}

	log.WithFields(log.Fields{
		"remote":  req.RemoteAddr,
		"timeout": timeout,
	}).Debug("starting watch")
	update := make(chan *Change)

	select {
	case a.longPollQueue <- update:
	case <-a.stop:
		sendReply([]byte{}, http.StatusServiceUnavailable, w)
		return
	case <-time.After(time.Duration(timeout) * time.Second):
		log.Debugf("closing watch for %s after timeout", req.RemoteAddr)
		sendReply([]byte{}, http.StatusRequestTimeout, w)
		return
	}

	log.Debugf("sending daemon change to %s", req.RemoteAddr)
	sendJSONReply(<-update, http.StatusOK, w)
}

//
func (a *api) watchDaemon() {

	log.Info("start watching for daemon changes")
	defer log.Info("stopped watching for daemon changes")

	var link string
	var list []*Image

	ticker := time.NewTicker(a.watchInterval)
	defer ticker.Stop()

	for {

		select {
		case <-a.stop:
			return
		case <-ticker.C:
		}

		change := &Change{}

		l := a.getImages()
		if !imageListsEqual(l, list) {
			change.Images = l
		}

		ln := linkState(a.daemon.IsConnected())
		if ln != link {
			change.Link = ln
		}

		if change.Images == nil && change.Link == "" {
			continue
		}

		// a change is kept until at least one watcher got it
		notified := false

	Loop:
		for {
			select {
			case cl := <-a.longPollQueue:
				cl <- change
				notified = true
			default:
				break Loop
			}
		}

		if notified {
			log.Debug("watchers notified of daemon changes")
			list = l
			link = ln
		}
	}
}

//
func linkState(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}

//
func imageListsEqual(a, b []*Image) bool {
	if len(a) != len(b) {
		return false
	}
	for ix := range a {
		if *a[ix] != *b[ix] {
			return false
		}
	}
	return true
}
