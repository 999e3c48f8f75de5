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

	"github.com/xelalexv/hdfdrive/pkg/control"
	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

//
func NewInfo() *Info {

	i := &Info{}
	i.Runner = *NewRunner(
		"info [-s|--slot {slot}] [-i|--input {file}] [-p|--port {port}]",
		"show details of image file or inserted image",
		"\nUse the info command to show header and geometry details of an image.",
		"", runnerHelpEpilogue, i.Run)

	i.AddBaseSettings()
	i.AddSetting(&i.File, "input", "i", "", nil, "image input file", false)
	i.AddSetting(&i.Slot, "slot", "s", "", "ide0", "slot (ide0, ide1, sd)", false)

	return i
}

//
type Info struct {
	//
	Runner
	//
	File string
	Slot string
}

//
func (i *Info) Run() error {

	i.ParseSettings()

	if i.File != "" {
		drv, err := hdf.Insert(i.File)
		if err != nil {
			return err
		}
		defer drv.Eject()
		fmt.Print(control.NewInfo(drv).String())
		return nil
	}

	path, err := drivePath(i.Slot)
	if err != nil {
		return err
	}
	return i.printCall("GET", path+"/info")
}
