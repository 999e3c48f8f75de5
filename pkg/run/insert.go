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
	"strconv"
)

//
func NewInsert() *Insert {

	i := &Insert{}
	i.Runner = *NewRunner(
		"insert -s|--slot {slot} -i|--image {reference} [-f|--force] [-p|--port {port}]",
		"insert image into daemon",
		"\nUse the insert command to insert an image from the daemon's repository into a slot.",
		"", `- Images are referenced as 'repo://{path}', where path is relative to the
  daemon's repository folder. Images can be plain HDF files, or be compressed
  with gzip, zip, or 7z.

- A slot holding an image with uncommitted changes is only replaced when
  forced. These changes are then lost.

`+runnerHelpEpilogue, i.Run)

	i.AddBaseSettings()
	i.AddSetting(&i.Slot, "slot", "s", "", "ide0", "slot (ide0, ide1, sd)", false)
	i.AddSetting(&i.Image, "image", "i", "", nil, "image reference", true)
	i.AddSetting(&i.Force, "force", "f", "", false,
		"force replacing modified image in daemon", false)

	return i
}

//
type Insert struct {
	//
	Runner
	//
	Slot  string
	Image string
	Force bool
}

//
func (i *Insert) Run() error {

	i.ParseSettings()

	path, err := drivePath(i.Slot)
	if err != nil {
		return err
	}

	return i.printCall("PUT", fmt.Sprintf("%s?image=%s&force=%s",
		path, url.QueryEscape(i.Image), strconv.FormatBool(i.Force)))
}
