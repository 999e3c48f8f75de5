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

package ata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

//
var testGeometry = hdf.Geometry{Cylinders: 40, Heads: 4, Sectors: 16}

//
func newDrive(t *testing.T, g hdf.Geometry, lba bool) *hdf.Drive {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ata.hdf")
	if err := hdf.Create(path, g, false); err != nil {
		t.Fatal(err)
	}

	if !lba { // clear capabilities word in stored identity
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			t.Fatal(err)
		}
		off := int64(0x16 + 2*hdf.IdentityCapabilities)
		if _, err := f.WriteAt([]byte{0, 0}, off); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}

	d, err := hdf.Insert(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Eject() })
	return d
}

//
func newChannel(t *testing.T, bus Bus) (*Channel, *hdf.Drive) {
	t.Helper()
	c := NewChannel(bus)
	d := newDrive(t, testGeometry, true)
	c.Attach(Master, d)
	return c, d
}

//
func setLBA(c *Channel, lba uint32, count byte) {
	c.Write(RegHead, 0xe0|byte(lba>>24)&0x0f)
	c.Write(RegSectorCount, count)
	c.Write(RegSector, byte(lba))
	c.Write(RegCylinderLow, byte(lba>>8))
	c.Write(RegCylinderHigh, byte(lba>>16))
}

//
func writeWord(c *Channel, lo, hi byte) {
	switch c.Bus() {
	case Bus8:
		c.Write(RegData, lo)
	case Bus16, Bus16ByteSwap:
		c.Write(RegData, lo)
		c.Write(RegData, hi)
	case Bus16Data2:
		c.Write(RegData2, hi)
		c.Write(RegData, lo)
	}
}

//
func readWord(c *Channel) (lo, hi byte) {
	switch c.Bus() {
	case Bus8:
		return c.Read(RegData), 0xff
	case Bus16, Bus16ByteSwap:
		lo = c.Read(RegData)
		hi = c.Read(RegData)
	case Bus16Data2:
		lo = c.Read(RegData)
		hi = c.Read(RegData2)
	}
	return lo, hi
}

//
func readBlock(c *Channel) [hdf.SectorSize]byte {
	var ret [hdf.SectorSize]byte
	for ix := 0; ix < hdf.SectorSize; ix += 2 {
		ret[ix], ret[ix+1] = readWord(c)
	}
	return ret
}

func TestIdentify(t *testing.T) {

	c, d := newChannel(t, Bus16)
	c.Write(RegHead, 0xa0)
	c.Write(RegSectorCount, 5)
	c.Write(RegCommand, CmdIdentifyDrive)

	if c.Phase() != PhasePioIn || c.Read(RegStatus)&StatusDRQ == 0 {
		t.Fatalf("want PIO in with DRQ, got %v, status 0x%02x",
			c.Phase(), c.Read(RegStatus))
	}
	if c.Read(RegSectorCount) != 0 {
		t.Error("identify must clear sector count")
	}

	buf := readBlock(c)
	word := func(ix int) uint16 {
		return uint16(buf[2*ix]) | uint16(buf[2*ix+1])<<8
	}

	total := testGeometry.Total()
	if w := word(57); w != uint16(total) {
		t.Errorf("word 57: want %d, got %d", uint16(total), w)
	}
	if w := word(58); w != uint16(total>>16) {
		t.Errorf("word 58: want %d, got %d", uint16(total>>16), w)
	}
	if w := word(54); w != uint16(testGeometry.Cylinders) {
		t.Errorf("word 54: want %d, got %d", testGeometry.Cylinders, w)
	}
	if w := word(55); w != uint16(testGeometry.Heads) {
		t.Errorf("word 55: want %d, got %d", testGeometry.Heads, w)
	}
	if w := word(56); w != uint16(testGeometry.Sectors) {
		t.Errorf("word 56: want %d, got %d", testGeometry.Sectors, w)
	}
	if w := uint32(word(60)) | uint32(word(61))<<16; w != total {
		t.Errorf("words 60/61: want %d, got %d", total, w)
	}

	id := d.Identity()
	for ix := 0; ix < hdf.IdentitySize; ix++ {
		if buf[ix] != id[ix] {
			t.Fatalf("identity byte %d: want 0x%02x, got 0x%02x",
				ix, id[ix], buf[ix])
		}
	}

	if c.Phase() != PhaseReady {
		t.Errorf("want ready after identify data, got %v", c.Phase())
	}
	if st := c.Read(RegStatus); st&(StatusDRQ|StatusERR) != 0 {
		t.Errorf("unexpected status 0x%02x", st)
	}
}

func TestIdentifyWithoutLBA(t *testing.T) {

	c := NewChannel(Bus16)
	c.Attach(Master, newDrive(t, testGeometry, false))
	c.Write(RegHead, 0xa0)
	c.Write(RegCommand, CmdIdentifyDriveATAPI)

	buf := readBlock(c)
	for ix := 2 * hdf.IdentityTotalSectors; ix < 2*hdf.IdentityTotalSectors+4; ix++ {
		if buf[ix] != 0 {
			t.Fatalf("total sectors must stay empty without LBA, byte %d = 0x%02x",
				ix, buf[ix])
		}
	}
	if buf[2*hdf.IdentityCurrentCapacity] == 0 {
		t.Error("current capacity must always be set")
	}
}

func TestSeekLBACarry(t *testing.T) {

	c, _ := newChannel(t, Bus16)
	setLBA(c, 0xff, 3)

	want := []uint32{0xff, 0x100, 0x101}
	for ix, w := range want {
		n, ok := c.seek()
		if !ok {
			t.Fatalf("seek %d failed", ix)
		}
		if n != w {
			t.Errorf("seek %d: want 0x%x, got 0x%x", ix, w, n)
		}
	}

	if c.Read(RegSectorCount) != 0 {
		t.Errorf("sector count: want 0, got %d", c.Read(RegSectorCount))
	}
	// no advance after the last sector
	if c.Read(RegSector) != 0x01 || c.Read(RegCylinderLow) != 0x01 {
		t.Errorf("address: want 0x101, got sector 0x%02x, cyl low 0x%02x",
			c.Read(RegSector), c.Read(RegCylinderLow))
	}
}

func TestSeekLBACarryIntoHead(t *testing.T) {
	c := NewChannel(Bus16)
	c.Attach(Master, newDrive(t, testGeometry, true))
	c.Write(RegHead, 0xe0)
	c.Write(RegSectorCount, 2)
	c.Write(RegSector, 0xff)
	c.Write(RegCylinderLow, 0xff)
	c.Write(RegCylinderHigh, 0xff)

	c.nextAddress(testGeometry)
	if c.Read(RegHead) != 0xe1 || c.Read(RegSector) != 0 ||
		c.Read(RegCylinderLow) != 0 || c.Read(RegCylinderHigh) != 0 {
		t.Errorf("ripple carry into head failed: head 0x%02x", c.Read(RegHead))
	}
}

func TestSeekCHS(t *testing.T) {

	c, _ := newChannel(t, Bus16)
	c.Write(RegHead, 0xa3) // CHS, master, head 3
	c.Write(RegSectorCount, 2)
	c.Write(RegSector, 16)
	c.Write(RegCylinderLow, 0)
	c.Write(RegCylinderHigh, 0)

	n, ok := c.seek()
	if !ok || n != 63 {
		t.Fatalf("first seek: want 63, got %d (%v)", n, ok)
	}
	if c.Read(RegSector) != 1 || c.Read(RegHead)&0x0f != 0 ||
		c.Read(RegCylinderLow) != 1 {
		t.Errorf("address did not wrap: sector %d, head %d, cylinder %d",
			c.Read(RegSector), c.Read(RegHead)&0x0f, c.Read(RegCylinderLow))
	}

	n, ok = c.seek()
	if !ok || n != 64 {
		t.Fatalf("second seek: want 64, got %d (%v)", n, ok)
	}
}

func TestSeekCHSInvalid(t *testing.T) {

	tests := []struct {
		name     string
		head     byte
		sector   byte
		cylinder uint16
	}{
		{name: "sector zero", head: 0xa0, sector: 0, cylinder: 0},
		{name: "sector too high", head: 0xa0, sector: 17, cylinder: 0},
		{name: "head too high", head: 0xa4, sector: 1, cylinder: 0},
		{name: "cylinder too high", head: 0xa0, sector: 1, cylinder: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newChannel(t, Bus16)
			c.Write(RegHead, tt.head)
			c.Write(RegSectorCount, 1)
			c.Write(RegSector, tt.sector)
			c.Write(RegCylinderLow, byte(tt.cylinder))
			c.Write(RegCylinderHigh, byte(tt.cylinder>>8))
			c.Write(RegCommand, CmdReadSector)

			if st := c.Read(RegStatus); st&StatusERR == 0 || st&StatusDRQ != 0 {
				t.Errorf("want ERR without DRQ, got 0x%02x", st)
			}
			if e := c.Read(RegError); e != ErrorIDNF {
				t.Errorf("want IDNF, got 0x%02x", e)
			}
			if c.Phase() != PhaseReady {
				t.Errorf("want ready, got %v", c.Phase())
			}
		})
	}
}

func TestReadBeyondCapacity(t *testing.T) {
	c, d := newChannel(t, Bus16)
	setLBA(c, d.TotalSectors(), 1)
	c.Write(RegCommand, CmdReadSectorNoRetry)
	if c.Read(RegStatus)&StatusERR == 0 || c.Read(RegError) != ErrorIDNF {
		t.Errorf("want ERR/IDNF, got status 0x%02x error 0x%02x",
			c.Read(RegStatus), c.Read(RegError))
	}
}

func TestWriteReadSectors(t *testing.T) {

	for _, bus := range []Bus{Bus8, Bus16, Bus16ByteSwap, Bus16Data2} {
		t.Run(bus.String(), func(t *testing.T) {

			c, d := newChannel(t, bus)

			var data [2][hdf.SectorSize]byte
			for s := range data {
				for ix := range data[s] {
					data[s][ix] = byte(ix*3 + s*17)
				}
				if bus == Bus8 {
					for ix := 1; ix < hdf.SectorSize; ix += 2 {
						data[s][ix] = 0xff
					}
				}
			}

			setLBA(c, 5, 2)
			c.Write(RegCommand, CmdWriteSector)
			if c.Phase() != PhasePioOut || c.Read(RegStatus)&StatusDRQ == 0 {
				t.Fatalf("want PIO out with DRQ, got %v", c.Phase())
			}

			for s := range data {
				for ix := 0; ix < hdf.SectorSize; ix += 2 {
					writeWord(c, data[s][ix], data[s][ix+1])
				}
			}

			if c.Phase() != PhaseReady {
				t.Fatalf("want ready after write, got %v", c.Phase())
			}
			if st := c.Read(RegStatus); st&(StatusERR|StatusDRQ) != 0 {
				t.Fatalf("unexpected status 0x%02x", st)
			}
			if d.Pending() != 2 {
				t.Fatalf("want 2 pending sectors, got %d", d.Pending())
			}

			setLBA(c, 5, 2)
			c.Write(RegCommand, CmdReadSectorNoRetry)
			for s := range data {
				if got := readBlock(c); got != data[s] {
					t.Errorf("sector %d: read back differs", s)
				}
			}

			if c.Phase() != PhaseReady {
				t.Errorf("want ready after read, got %v", c.Phase())
			}

			var stored [hdf.SectorSize]byte
			if err := d.ReadSector(5, &stored); err != nil {
				t.Fatal(err)
			}
			switch bus {
			case Bus16ByteSwap:
				if stored[0] != data[0][1] || stored[1] != data[0][0] {
					t.Error("byte swapped bus should store swapped words")
				}
			case Bus8:
				for ix := 0; ix < hdf.SectorSize; ix += 2 {
					if stored[ix] != data[0][ix] {
						t.Fatalf("stored sector differs at %d", ix)
					}
				}
			default:
				if stored != data[0] {
					t.Error("stored sector differs")
				}
			}
		})
	}
}

func TestBus8WriteKeepsHighByte(t *testing.T) {

	c, d := newChannel(t, Bus8)

	var orig [hdf.SectorSize]byte
	for ix := range orig {
		orig[ix] = 0x11
	}
	if err := d.WriteSector(9, &orig); err != nil {
		t.Fatal(err)
	}

	setLBA(c, 9, 1)
	c.Write(RegCommand, CmdReadSectorNoRetry)
	readBlock(c)

	setLBA(c, 9, 1)
	c.Write(RegCommand, CmdWriteSector)
	for ix := 0; ix < hdf.SectorSize; ix += 2 {
		c.Write(RegData, 0x22)
	}
	if c.Phase() != PhaseReady {
		t.Fatalf("want ready after write, got %v", c.Phase())
	}

	var stored [hdf.SectorSize]byte
	if err := d.ReadSector(9, &stored); err != nil {
		t.Fatal(err)
	}
	for ix := 0; ix < hdf.SectorSize; ix += 2 {
		if stored[ix] != 0x22 || stored[ix+1] != 0x11 {
			t.Fatalf("word %d: want 22/11, got %02x/%02x",
				ix/2, stored[ix], stored[ix+1])
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	c, _ := newChannel(t, Bus16)
	c.Write(RegHead, 0xa0)
	c.Write(RegCommand, 0x50)
	if st := c.Read(RegStatus); st&StatusERR == 0 {
		t.Errorf("want ERR, got 0x%02x", st)
	}
	if e := c.Read(RegError); e != ErrorABRT {
		t.Errorf("want ABRT, got 0x%02x", e)
	}

	// next good command clears the error
	c.Write(RegCommand, CmdInitializeDeviceParameters)
	if st := c.Read(RegStatus); st != StatusDRDY|StatusDSC {
		t.Errorf("want 0x%02x, got 0x%02x", StatusDRDY|StatusDSC, st)
	}
	if e := c.Read(RegError); e != 0 {
		t.Errorf("want no error, got 0x%02x", e)
	}
}

func TestDriveSelection(t *testing.T) {

	c, _ := newChannel(t, Bus16)

	c.Write(RegHead, 0xb0)
	if c.Selected() != Slave {
		t.Fatal("slave not selected")
	}
	if st := c.Read(RegStatus); st != 0xff {
		t.Errorf("empty slave: want 0xff, got 0x%02x", st)
	}
	c.Write(RegCommand, CmdIdentifyDrive)
	if c.Phase() != PhaseReady {
		t.Error("command to empty slave must be ignored")
	}

	slave := newDrive(t, hdf.Geometry{Cylinders: 10, Heads: 2, Sectors: 8}, true)
	c.Attach(Slave, slave)
	if c.Drive(Slave) != slave {
		t.Fatal("slave not attached")
	}
	c.Write(RegCommand, CmdIdentifyDrive)
	buf := readBlock(c)
	if buf[2*57] != 160 {
		t.Errorf("slave capacity: want 160, got %d", buf[2*57])
	}

	c.Write(RegHead, 0xa0)
	if c.Selected() != Master {
		t.Fatal("master not selected")
	}
	if st := c.Read(RegStatus); st != StatusDRDY|StatusDSC {
		t.Errorf("master status: want 0x50, got 0x%02x", st)
	}
}

func TestEmptyChannel(t *testing.T) {
	c := NewChannel(Bus16)
	for reg := RegData; reg <= RegStatus; reg++ {
		if v := c.Read(reg); v != 0xff {
			t.Errorf("%v: want 0xff, got 0x%02x", reg, v)
		}
	}
}

func TestDataOutsideTransfer(t *testing.T) {
	c, d := newChannel(t, Bus16)
	if v := c.Read(RegData); v != 0xff {
		t.Errorf("want 0xff, got 0x%02x", v)
	}
	c.Write(RegData, 0x12)
	if d.Dirty() {
		t.Error("data write outside transfer must be ignored")
	}
}

func TestReset(t *testing.T) {
	c, _ := newChannel(t, Bus16)
	c.Write(RegHead, 0xf0)
	c.Write(RegCommand, 0x50)
	c.Reset()
	if c.Selected() != Master || c.Read(RegSectorCount) != 1 ||
		c.Read(RegSector) != 1 || c.Read(RegStatus) != StatusDRDY|StatusDSC {
		t.Error("channel not in power-on state")
	}
}

func TestParseBus(t *testing.T) {
	for _, b := range []Bus{Bus8, Bus16, Bus16ByteSwap, Bus16Data2} {
		got, err := ParseBus(b.String())
		if err != nil || got != b {
			t.Errorf("%v: got %v, %v", b, got, err)
		}
	}
	if _, err := ParseBus("32"); err == nil {
		t.Error("want error for unknown bus")
	}
}
