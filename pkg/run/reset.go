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
	"net/url"

	"github.com/xelalexv/hdfdrive/pkg/daemon"
)

//
func NewReset() *Reset {

	r := &Reset{}
	r.Runner = *NewRunner(
		"reset [-t|--target {ide|sd|all}] [-p|--port {port}]",
		"reset IDE channel and/or SD card",
		`
Use the reset command to put the IDE channel, the SD card, or both back into their
power-on state. Inserted images and their pending changes are kept.`,
		"", runnerHelpEpilogue, r.Run)

	r.AddBaseSettings()
	r.AddSetting(&r.Target, "target", "t", "", "all",
		"what to reset: ide, sd, all", false)

	return r
}

//
type Reset struct {
	//
	Runner
	//
	Target string
}

//
func (r *Reset) Run() error {

	r.ParseSettings()

	if _, err := daemon.ParseResetTarget(r.Target); err != nil {
		return err
	}

	return r.printCall("PUT",
		fmt.Sprintf("/reset?target=%s", url.QueryEscape(r.Target)))
}
