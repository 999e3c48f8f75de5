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

package daemon

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xelalexv/hdfdrive/pkg/ata"
	"github.com/xelalexv/hdfdrive/pkg/hdf"
	"github.com/xelalexv/hdfdrive/pkg/mmc"
)

//
var testGeometry = hdf.Geometry{Cylinders: 32, Heads: 4, Sectors: 16}

//
type fakePort struct {
	in     bytes.Buffer
	out    bytes.Buffer
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *fakePort) Close() error                { p.closed = true; return nil }

//
func newTestDaemon(t *testing.T, bus ata.Bus) (*Daemon, *fakePort) {
	t.Helper()
	d := NewDaemon("", bus, 0)
	port := &fakePort{}
	d.conduit = &conduit{port: port}
	t.Cleanup(func() { d.Stop() })
	return d, port
}

//
func newDrive(t *testing.T, name string, g hdf.Geometry) *hdf.Drive {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := hdf.Create(path, g, false); err != nil {
		t.Fatalf("cannot create image: %v", err)
	}
	drv, err := hdf.Insert(path)
	if err != nil {
		t.Fatalf("cannot insert image: %v", err)
	}
	t.Cleanup(func() { drv.Eject() })
	return drv
}

//
func send(t *testing.T, d *Daemon, data ...byte) {
	t.Helper()
	cmd := make([]byte, commandLength)
	copy(cmd, data)
	if err := newCommand(cmd).dispatch(d); err != nil {
		t.Fatalf("command %v failed: %v", cmd, err)
	}
}

//
func received(t *testing.T, p *fakePort, n int) []byte {
	t.Helper()
	if p.out.Len() != n {
		t.Fatalf("want %d bytes from daemon, got %d", n, p.out.Len())
	}
	ret := make([]byte, n)
	p.out.Read(ret)
	return ret
}

func TestParseSlot(t *testing.T) {

	tests := []struct {
		in      string
		want    Slot
		wantErr bool
	}{
		{in: "ide0", want: SlotIDE0},
		{in: "IDE1", want: SlotIDE1},
		{in: "sd", want: SlotSD},
		{in: "ide2", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSlot(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("want error for %q", tt.in)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("want %v, got %v (%v)", tt.want, got, err)
			}
		})
	}
}

func TestParseResetTarget(t *testing.T) {
	for in, want := range map[string]ResetTarget{
		"ide": ResetIDE, "sd": ResetSD, "all": ResetAll, "": ResetAll} {
		if got, err := ParseResetTarget(in); err != nil || got != want {
			t.Errorf("%q: want %d, got %d (%v)", in, want, got, err)
		}
	}
	if _, err := ParseResetTarget("scsi"); err == nil {
		t.Error("want error for unknown target")
	}
}

func TestPing(t *testing.T) {
	d, port := newTestDaemon(t, ata.Bus16)
	send(t, d, 'P', 'i', 'n', 'g')
	if got := received(t, port, 4); !bytes.Equal(got, pong) {
		t.Errorf("want pong, got %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	d, _ := newTestDaemon(t, ata.Bus16)
	if err := newCommand([]byte{'z', 0, 0, 0}).dispatch(d); err == nil {
		t.Error("want error for unknown command")
	}
}

func TestIllegalRegister(t *testing.T) {
	d, port := newTestDaemon(t, ata.Bus16)
	if err := newCommand([]byte{CmdIDERead, 9, 0, 0}).dispatch(d); err == nil {
		t.Error("want error for illegal register")
	}
	if port.out.Len() != 0 {
		t.Error("no reply expected for illegal register")
	}
}

func TestIDEOverLink(t *testing.T) {

	d, port := newTestDaemon(t, ata.Bus16)
	drv := newDrive(t, "ide.hdf", testGeometry)
	if err := d.Insert(SlotIDE0, drv, false); err != nil {
		t.Fatal(err)
	}

	data := make([]byte, hdf.SectorSize)
	for ix := range data {
		data[ix] = byte(ix * 5)
	}

	// write LBA 42
	send(t, d, CmdIDEWrite, byte(ata.RegHead), 0xe0)
	send(t, d, CmdIDEWrite, byte(ata.RegSectorCount), 1)
	send(t, d, CmdIDEWrite, byte(ata.RegSector), 42)
	send(t, d, CmdIDEWrite, byte(ata.RegCylinderLow), 0)
	send(t, d, CmdIDEWrite, byte(ata.RegCylinderHigh), 0)
	send(t, d, CmdIDEWrite, byte(ata.RegCommand), ata.CmdWriteSector)
	for _, b := range data {
		send(t, d, CmdIDEWrite, byte(ata.RegData), b)
	}

	send(t, d, CmdIDERead, byte(ata.RegStatus))
	if st := received(t, port, 1)[0]; st&(ata.StatusERR|ata.StatusDRQ) != 0 {
		t.Fatalf("unexpected status after write: %08b", st)
	}

	if !drv.Dirty() {
		t.Error("drive should have pending sectors")
	}

	// read it back
	send(t, d, CmdIDEWrite, byte(ata.RegSectorCount), 1)
	send(t, d, CmdIDEWrite, byte(ata.RegSector), 42)
	send(t, d, CmdIDEWrite, byte(ata.RegCommand), ata.CmdReadSector)
	for range data {
		send(t, d, CmdIDERead, byte(ata.RegData))
	}

	if got := received(t, port, hdf.SectorSize); !bytes.Equal(got, data) {
		t.Error("sector data read over link differs from data written")
	}
}

func TestSPIOverLink(t *testing.T) {

	d, port := newTestDaemon(t, ata.Bus16)
	if err := d.Insert(SlotSD, newDrive(t, "sd.hdf", testGeometry), false); err != nil {
		t.Fatal(err)
	}

	for _, b := range []byte{0x40, 0, 0, 0, 0, 0x95} {
		send(t, d, CmdSPIWrite, b)
	}
	send(t, d, CmdSPIRead)
	send(t, d, CmdSPIRead)

	if got := received(t, port, 2); !bytes.Equal(got, []byte{mmc.R1Idle, 0xff}) {
		t.Errorf("unexpected response: % x", got)
	}
}

func TestSPITransfer(t *testing.T) {

	d, port := newTestDaemon(t, ata.Bus16)
	if err := d.Insert(SlotSD, newDrive(t, "sd.hdf", testGeometry), false); err != nil {
		t.Fatal(err)
	}

	for _, b := range []byte{0x40, 0, 0, 0, 0, 0x95, 0xff, 0xff} {
		send(t, d, CmdSPIXfer, b)
	}

	want := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, mmc.R1Idle, 0xff}
	if got := received(t, port, len(want)); !bytes.Equal(got, want) {
		t.Errorf("unexpected response: % x", got)
	}
}

func TestInsertEject(t *testing.T) {

	d, _ := newTestDaemon(t, ata.Bus16)

	if err := d.Eject(SlotIDE1, false); !errors.Is(err, ErrEmpty) {
		t.Errorf("want ErrEmpty, got %v", err)
	}
	if st := d.GetStatus(SlotIDE1); st != StatusEmpty {
		t.Errorf("want status %s, got %s", StatusEmpty, st)
	}

	first := newDrive(t, "first.hdf", testGeometry)
	if err := d.Insert(SlotIDE1, first, false); err != nil {
		t.Fatal(err)
	}
	if st := d.GetStatus(SlotIDE1); st != StatusIdle {
		t.Errorf("want status %s, got %s", StatusIdle, st)
	}

	var zero [hdf.SectorSize]byte
	if err := first.WriteSector(0, &zero); err != nil {
		t.Fatal(err)
	}

	second := newDrive(t, "second.hdf", testGeometry)
	if err := d.Insert(SlotIDE1, second, false); !errors.Is(err, ErrDirty) {
		t.Fatalf("want ErrDirty, got %v", err)
	}
	if err := d.Eject(SlotIDE1, false); !errors.Is(err, ErrDirty) {
		t.Fatalf("want ErrDirty, got %v", err)
	}

	if err := d.Insert(SlotIDE1, second, true); err != nil {
		t.Fatalf("forced insert failed: %v", err)
	}
	if d.channel.Drive(ata.Slave) != second {
		t.Error("second image not attached")
	}
	if !errors.Is(first.Commit(), hdf.ErrNoImage) {
		t.Error("replaced image should have been ejected")
	}

	if err := d.Eject(SlotIDE1, false); err != nil {
		t.Fatalf("eject failed: %v", err)
	}
	if d.channel.Drive(ata.Slave) != nil {
		t.Error("slot should be empty")
	}
}

func TestInsertIncompatibleCard(t *testing.T) {

	d, _ := newTestDaemon(t, ata.Bus16)

	drv := newDrive(t, "small.hdf", hdf.Geometry{Cylinders: 10, Heads: 2, Sectors: 16})

	if err := d.Insert(SlotSD, drv, false); !errors.Is(err, mmc.ErrIncompatibleImage) {
		t.Errorf("want ErrIncompatibleImage, got %v", err)
	}
	if d.card.Drive() != nil {
		t.Error("card slot should be empty")
	}
}

func TestBusy(t *testing.T) {

	d, _ := newTestDaemon(t, ata.Bus16)

	d.ideLock.Lock(context.Background())
	err := d.Insert(SlotIDE0, newDrive(t, "busy.hdf", testGeometry), false)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("want ErrBusy, got %v", err)
	}
	if st := d.GetStatus(SlotIDE1); st != StatusBusy {
		t.Errorf("want status %s, got %s", StatusBusy, st)
	}
	if st := d.GetStatus(SlotSD); st != StatusEmpty {
		t.Errorf("SD should not be affected by IDE lock, got %s", st)
	}
	d.ideLock.Unlock()

	if d.ideLock.isLocked() || d.sdLock.isLocked() {
		t.Error("failed operations must not leave devices locked")
	}
}

func TestCommitCommand(t *testing.T) {

	d, _ := newTestDaemon(t, ata.Bus16)
	ide := newDrive(t, "ide.hdf", testGeometry)
	sd := newDrive(t, "sd.hdf", testGeometry)

	if err := d.Insert(SlotIDE0, ide, false); err != nil {
		t.Fatal(err)
	}
	if err := d.Insert(SlotSD, sd, false); err != nil {
		t.Fatal(err)
	}

	var data [hdf.SectorSize]byte
	ide.WriteSector(1, &data)
	sd.WriteSector(2, &data)

	send(t, d, CmdCommit)

	if ide.Dirty() || sd.Dirty() {
		t.Error("images should be committed")
	}
}

func TestResetCommand(t *testing.T) {

	d, port := newTestDaemon(t, ata.Bus16)
	if err := d.Insert(SlotSD, newDrive(t, "sd.hdf", testGeometry), false); err != nil {
		t.Fatal(err)
	}

	for _, b := range []byte{0x40 | mmc.CmdSendIfCond, 0, 0, 0x01, 0xaa, 0x87} {
		send(t, d, CmdSPIWrite, b)
	}
	send(t, d, CmdReset, byte(ResetSD))
	send(t, d, CmdSPIRead)

	if got := received(t, port, 1); got[0] != 0xff {
		t.Errorf("pending response should be gone after reset, got %#02x", got[0])
	}
	if d.card.Status() != mmc.R1Idle {
		t.Errorf("card should be idle after reset, got %#02x", d.card.Status())
	}
}

func TestAutoCommit(t *testing.T) {

	d := NewDaemon("", ata.Bus16, 10*time.Millisecond)
	drv := newDrive(t, "auto.hdf", testGeometry)
	if err := d.Insert(SlotIDE0, drv, false); err != nil {
		t.Fatal(err)
	}

	var data [hdf.SectorSize]byte
	data[0] = 0x42
	if err := drv.WriteSector(7, &data); err != nil {
		t.Fatal(err)
	}

	go d.autoCommit()
	defer d.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if d.GetStatus(SlotIDE0) == StatusIdle {
			clean := false
			d.WithDrive(SlotIDE0, func(drv *hdf.Drive) error {
				clean = !drv.Dirty()
				return nil
			})
			if clean {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("image was not auto-committed")
}

func TestStopCommits(t *testing.T) {

	d := NewDaemon("", ata.Bus16, 0)
	drv := newDrive(t, "stop.hdf", testGeometry)
	if err := d.Insert(SlotIDE0, drv, false); err != nil {
		t.Fatal(err)
	}

	var data [hdf.SectorSize]byte
	data[0] = 0x99
	drv.WriteSector(3, &data)
	path := drv.Path()

	if err := d.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	reopened, err := hdf.Insert(path)
	if err != nil {
		t.Fatalf("image should be released after stop: %v", err)
	}
	defer reopened.Eject()

	var buf [hdf.SectorSize]byte
	if err := reopened.ReadSector(3, &buf); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0x99 {
		t.Error("data written before stop was not committed")
	}
}
