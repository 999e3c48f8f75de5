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
	"io/ioutil"
)

//
func NewList() *List {

	l := &List{}
	l.Runner = *NewRunner(
		"ls [-p|--port {port}]",
		"get image list from daemon",
		"\nUse the ls command to list the images inserted in the daemon's slots.",
		"", `- In the MOD column, an asterisk marks images with uncommitted changes.

`+runnerHelpEpilogue, l.Run)

	l.AddBaseSettings()

	return l
}

//
type List struct {
	Runner
}

//
func (l *List) Run() error {

	l.ParseSettings()

	resp, err := l.apiCall("GET", "/list", false, nil)
	if err != nil {
		return err
	}
	defer resp.Close()

	list, err := ioutil.ReadAll(resp)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", list)
	return nil
}
