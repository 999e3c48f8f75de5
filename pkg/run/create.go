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

	"github.com/xelalexv/hdfdrive/pkg/hdf"
	"github.com/xelalexv/hdfdrive/pkg/mmc"
)

//
func NewCreate() *Create {

	c := &Create{}
	c.Runner = *NewRunner(
		`create -o|--output {file} -C|--cylinders {cylinders} -H|--heads {heads}
      -S|--sectors {sectors} [--half]`,
		"create a blank image file",
		`
Use the create command to create a new, zero filled HDF image with the given
geometry. The image is not formatted for any particular file system.`,
		"", `- Images for the SD card need 512 byte sectors, and a total sector count that
  is a multiple of 1024, i.e. a size that is a multiple of 512KB.

- With --half, only the lower byte of each 16 bit data word is stored, as
  is common for 8 bit IDE interfaces.
`, c.Run)

	c.AddSetting(&c.File, "output", "o", "", nil, "image output file", true)
	c.AddSetting(&c.Cylinders, "cylinders", "C", "", nil, "number of cylinders", true)
	c.AddSetting(&c.Heads, "heads", "H", "", 16, "number of heads", false)
	c.AddSetting(&c.Sectors, "sectors", "S", "", 63, "sectors per track", false)
	c.AddSetting(&c.Half, "half", "", "", false,
		"store 256 byte sectors", false)

	return c
}

//
type Create struct {
	//
	Runner
	//
	File      string
	Cylinders uint
	Heads     uint
	Sectors   uint
	Half      bool
}

//
func (c *Create) Run() error {

	c.ParseSettings()

	g := hdf.Geometry{Cylinders: c.Cylinders, Heads: c.Heads, Sectors: c.Sectors}
	if err := hdf.Create(c.File, g, c.Half); err != nil {
		return err
	}

	fmt.Printf("\ncreated %s, geometry %s, %d sectors\n", c.File, g, g.Total())
	if c.Half || g.Total()%mmc.SectorsPerUnit != 0 {
		fmt.Println("note: image is not usable as SD card")
	}
	return nil
}
