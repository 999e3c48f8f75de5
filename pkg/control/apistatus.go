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
	"fmt"
	"net/http"
	"strings"

	"github.com/xelalexv/hdfdrive/pkg/daemon"
	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

//
func (a *api) status(w http.ResponseWriter, req *http.Request) {

	stat := &Status{
		Connected: a.daemon.IsConnected(),
		Bus:       a.daemon.Bus().String(),
	}
	for _, s := range daemon.Slots {
		stat.Add(s, a.daemon.GetStatus(s))
	}

	if wantsJSON(req) {
		sendJSONReply(stat, http.StatusOK, w)
	} else {
		sendReply([]byte(stat.String()), http.StatusOK, w)
	}
}

//
func (a *api) list(w http.ResponseWriter, req *http.Request) {

	list := a.getImages()

	if wantsJSON(req) {
		sendJSONReply(list, http.StatusOK, w)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%-5s %-24s %5s/%2s/%3s %3s %s",
		"SLOT", "IMAGE", "C", "H", "S", "SSZ", "MOD")
	for _, i := range list {
		sb.WriteString("\n")
		sb.WriteString(i.String())
	}
	sendReply([]byte(sb.String()), http.StatusOK, w)
}

//
func (a *api) getImages() []*Image {

	ret := make([]*Image, 0, len(daemon.Slots))

	for _, s := range daemon.Slots {
		i := &Image{Slot: s.String(), Status: daemon.StatusIdle}
		if err := a.daemon.WithDrive(s, func(drv *hdf.Drive) error {
			i.fill(drv)
			return nil
		}); err != nil {
			if errorStatus(err) == http.StatusLocked {
				i.Status = daemon.StatusBusy
			} else {
				i.Status = daemon.StatusEmpty
			}
		}
		ret = append(ret, i)
	}

	return ret
}

//
func (a *api) reset(w http.ResponseWriter, req *http.Request) {

	arg, err := getArg(req, "target")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	target, err := daemon.ParseResetTarget(arg)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	if err := a.daemon.Reset(target); err != nil {
		handleError(err, errorStatus(err), w)
		return
	}

	if arg == "" {
		arg = "all"
	}
	sendReply([]byte(fmt.Sprintf("reset %s", arg)), http.StatusOK, w)
}

//
func (a *api) search(w http.ResponseWriter, req *http.Request) {

	if a.index == nil {
		handleError(fmt.Errorf("search index not available"),
			http.StatusServiceUnavailable, w)
		return
	}

	items, err := getIntArg(req, "items", 100)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	term, err := getArg(req, "term")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	res, err := a.index.Search(term, items)
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	if wantsJSON(req) {
		sendJSONReply(res, http.StatusOK, w)
		return
	}

	var sb strings.Builder
	for _, r := range res.Hits {
		sb.WriteString(fmt.Sprintf("%s\n", r))
	}
	sb.WriteString(fmt.Sprintf("\ntotal hits: %d\n", res.Total))
	sendReply([]byte(sb.String()), http.StatusOK, w)
}
