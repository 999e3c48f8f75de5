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
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/hdfdrive/pkg/hdf"
	"github.com/xelalexv/hdfdrive/pkg/repo"
)

//
func (a *api) insert(w http.ResponseWriter, req *http.Request) {

	slot, ok := getSlot(w, req)
	if !ok {
		return
	}

	ref, err := getArg(req, "image")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}
	if ref == "" {
		handleError(fmt.Errorf("no image reference"),
			http.StatusUnprocessableEntity, w)
		return
	}

	path, err := repo.Resolve(ref, a.repository, false)
	if err != nil {
		handleError(err, errorStatus(err), w)
		return
	}

	if path, err = repo.WorkingCopy(path, a.imageDir()); err != nil {
		handleError(fmt.Errorf("cannot prepare image: %w", err),
			http.StatusUnprocessableEntity, w)
		return
	}

	drv, err := hdf.Insert(path)
	if err != nil {
		handleError(err, http.StatusUnprocessableEntity, w)
		return
	}

	if err := a.daemon.Insert(slot, drv, isFlagSet(req, "force")); err != nil {
		if e := drv.Eject(); e != nil {
			log.Errorf("error releasing image: %v", e)
		}
		handleError(err, errorStatus(err), w)
		return
	}

	sendReply([]byte(fmt.Sprintf("inserted %s into %s", ref, slot)),
		http.StatusOK, w)
}

//
func (a *api) eject(w http.ResponseWriter, req *http.Request) {

	slot, ok := getSlot(w, req)
	if !ok {
		return
	}

	if err := a.daemon.Eject(slot, isFlagSet(req, "force")); err != nil {
		handleError(err, errorStatus(err), w)
		return
	}

	sendReply([]byte(fmt.Sprintf("ejected %s", slot)), http.StatusOK, w)
}

//
func (a *api) commit(w http.ResponseWriter, req *http.Request) {

	slot, ok := getSlot(w, req)
	if !ok {
		return
	}

	if err := a.daemon.Commit(slot); err != nil {
		handleError(err, errorStatus(err), w)
		return
	}

	sendReply([]byte(fmt.Sprintf("committed %s", slot)), http.StatusOK, w)
}

//
func (a *api) info(w http.ResponseWriter, req *http.Request) {

	slot, ok := getSlot(w, req)
	if !ok {
		return
	}

	var info *Info
	if err := a.daemon.WithDrive(slot, func(drv *hdf.Drive) error {
		info = NewInfo(drv)
		return nil
	}); err != nil {
		handleError(err, errorStatus(err), w)
		return
	}

	if wantsJSON(req) {
		sendJSONReply(info, http.StatusOK, w)
	} else {
		sendReply([]byte(info.String()), http.StatusOK, w)
	}
}

// sector sends a hex dump of a sector, as the bus would see it, i.e. including
// pending changes
func (a *api) sector(w http.ResponseWriter, req *http.Request) {

	slot, ok := getSlot(w, req)
	if !ok {
		return
	}

	n, err := strconv.ParseUint(mux.Vars(req)["sector"], 10, 32)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	var buf [hdf.SectorSize]byte
	if err := a.daemon.WithDrive(slot, func(drv *hdf.Drive) error {
		return drv.ReadSector(uint32(n), &buf)
	}); err != nil {
		handleError(err, errorStatus(err), w)
		return
	}

	sendStreamReply(strings.NewReader(hex.Dump(buf[:])), http.StatusOK, w)
}
