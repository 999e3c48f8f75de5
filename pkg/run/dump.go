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
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

//
func NewDump() *Dump {

	d := &Dump{}
	d.Runner = *NewRunner(
		`dump [-s|--slot {slot}] [-i|--input {file}] [-n|--sector {sector}]
      [-c|--count {count}] [-p|--port {port}]`,
		"dump sectors from image file or daemon",
		`
Use the dump command to output a hex dump of sectors from an image file or from an
image inserted in the daemon. Sectors dumped from the daemon include changes not yet
committed to the image.`,
		"", runnerHelpEpilogue, d.Run)

	d.AddBaseSettings()
	d.AddSetting(&d.File, "input", "i", "", nil, "image input file", false)
	d.AddSetting(&d.Slot, "slot", "s", "", "ide0", "slot (ide0, ide1, sd)", false)
	d.AddSetting(&d.Sector, "sector", "n", "", 0, "first sector (LBA)", false)
	d.AddSetting(&d.Count, "count", "c", "", 1, "number of sectors", false)

	return d
}

//
type Dump struct {
	//
	Runner
	//
	File   string
	Slot   string
	Sector uint
	Count  uint
}

//
func (d *Dump) Run() error {

	d.ParseSettings()

	if d.File != "" {
		return d.dumpFile(os.Stdout)
	}
	return d.dumpSlot(os.Stdout)
}

//
func (d *Dump) dumpFile(out io.Writer) error {

	drv, err := hdf.Insert(d.File)
	if err != nil {
		return err
	}
	defer drv.Eject()

	var buf [hdf.SectorSize]byte
	for n := d.Sector; n < d.Sector+d.Count; n++ {
		if err := drv.ReadSector(uint32(n), &buf); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nsector %d:\n%s", n, hex.Dump(buf[:]))
	}

	fmt.Fprintln(out)
	return nil
}

//
func (d *Dump) dumpSlot(out io.Writer) error {

	path, err := drivePath(d.Slot)
	if err != nil {
		return err
	}

	for n := d.Sector; n < d.Sector+d.Count; n++ {
		resp, err := d.apiCall("GET", fmt.Sprintf("%s/sector/%d", path, n),
			false, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nsector %d:\n", n)
		_, err = io.Copy(out, resp)
		resp.Close()
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(out)
	return nil
}
