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
	"strconv"
)

//
func NewEject() *Eject {

	e := &Eject{}
	e.Runner = *NewRunner(
		"eject -s|--slot {slot} [-f|--force] [-y|--yes] [-p|--port {port}]",
		"eject image from daemon",
		`
Use the eject command to eject the image from a slot. Changes not yet committed
to the image prevent ejecting, unless forced.`,
		"", runnerHelpEpilogue, e.Run)

	e.AddBaseSettings()
	e.AddSetting(&e.Slot, "slot", "s", "", "ide0", "slot (ide0, ide1, sd)", false)
	e.AddSetting(&e.Force, "force", "f", "", false,
		"force ejecting modified image from daemon", false)
	e.AddSetting(&e.Yes, "yes", "y", "", false, "skip confirmation", false)

	return e
}

//
type Eject struct {
	//
	Runner
	//
	Slot  string
	Force bool
	Yes   bool
}

//
func (e *Eject) Run() error {

	e.ParseSettings()

	path, err := drivePath(e.Slot)
	if err != nil {
		return err
	}

	if e.Force && !e.Yes && !GetUserConfirmation(
		"\nforced eject discards uncommitted changes. Proceed?") {
		return nil
	}

	return e.printCall("GET", fmt.Sprintf("%s/unload?force=%s",
		path, strconv.FormatBool(e.Force)))
}
