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

//
func NewCommit() *Commit {

	c := &Commit{}
	c.Runner = *NewRunner(
		"commit -s|--slot {slot} [-p|--port {port}]",
		"commit changes to image",
		"\nUse the commit command to write all pending changes in a slot to its image file.",
		"", runnerHelpEpilogue, c.Run)

	c.AddBaseSettings()
	c.AddSetting(&c.Slot, "slot", "s", "", "ide0", "slot (ide0, ide1, sd)", false)

	return c
}

//
type Commit struct {
	//
	Runner
	//
	Slot string
}

//
func (c *Commit) Run() error {

	c.ParseSettings()

	path, err := drivePath(c.Slot)
	if err != nil {
		return err
	}

	return c.printCall("PUT", path+"/commit")
}
