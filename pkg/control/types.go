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

package control

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xelalexv/hdfdrive/pkg/daemon"
	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

//
type Status struct {
	Connected bool          `json:"connected"`
	Bus       string        `json:"bus"`
	Slots     []*SlotStatus `json:"slots"`
}

//
type SlotStatus struct {
	Slot   string `json:"slot"`
	Status string `json:"status"`
}

//
func (s *Status) Add(slot daemon.Slot, status string) {
	s.Slots = append(s.Slots, &SlotStatus{Slot: slot.String(), Status: status})
}

//
func (s *Status) String() string {
	adapter := "not connected"
	if s.Connected {
		adapter = "connected"
	}
	ret := fmt.Sprintf("\nadapter: %s, IDE bus: %s\n", adapter, s.Bus)
	for _, sl := range s.Slots {
		ret = fmt.Sprintf("%s%-5s %s\n", ret, sl.Slot+":", sl.Status)
	}
	return ret
}

// Image describes the image in a slot
type Image struct {
	Slot         string `json:"slot"`
	Status       string `json:"status"`
	Path         string `json:"path,omitempty"`
	Model        string `json:"model,omitempty"`
	Cylinders    uint   `json:"cylinders,omitempty"`
	Heads        uint   `json:"heads,omitempty"`
	Sectors      uint   `json:"sectors,omitempty"`
	SectorSize   int    `json:"sectorSize,omitempty"`
	TotalSectors uint32 `json:"totalSectors,omitempty"`
	Pending      int    `json:"pending"`
}

//
func (i *Image) fill(drv *hdf.Drive) {
	g := drv.Geometry()
	id := drv.Identity()
	i.Path = drv.Path()
	i.Model = id.Model()
	i.Cylinders = g.Cylinders
	i.Heads = g.Heads
	i.Sectors = g.Sectors
	i.SectorSize = drv.SectorSize()
	i.TotalSectors = drv.TotalSectors()
	i.Pending = drv.Pending()
}

//
func (i *Image) String() string {

	if i.Status != daemon.StatusIdle {
		return fmt.Sprintf("%-5s <%s>", i.Slot, i.Status)
	}

	mod := ' '
	if i.Pending > 0 {
		mod = '*'
	}

	return fmt.Sprintf("%-5s %-24s %5d/%2d/%3d %3d %c",
		i.Slot, truncate(filepath.Base(i.Path), 24),
		i.Cylinders, i.Heads, i.Sectors, i.SectorSize, mod)
}

// Change is sent to watchers. Empty fields did not change.
type Change struct {
	Images []*Image `json:"images,omitempty"`
	Link   string   `json:"link,omitempty"`
}

// Info gives the details of an image
type Info struct {
	Path         string `json:"path"`
	Revision     string `json:"revision"`
	DataOffset   uint16 `json:"dataOffset"`
	SectorSize   int    `json:"sectorSize"`
	Cylinders    uint   `json:"cylinders"`
	Heads        uint   `json:"heads"`
	Sectors      uint   `json:"sectors"`
	TotalSectors uint32 `json:"totalSectors"`
	LBA          bool   `json:"lba"`
	Model        string `json:"model"`
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`
	Pending      int    `json:"pending"`
}

// NewInfo gathers the details of drive drv.
func NewInfo(drv *hdf.Drive) *Info {
	h := drv.Header()
	g := drv.Geometry()
	id := drv.Identity()
	return &Info{
		Path:         drv.Path(),
		Revision:     fmt.Sprintf("%d.%d", h.Revision>>4, h.Revision&0x0f),
		DataOffset:   h.DataOffset,
		SectorSize:   drv.SectorSize(),
		Cylinders:    g.Cylinders,
		Heads:        g.Heads,
		Sectors:      g.Sectors,
		TotalSectors: drv.TotalSectors(),
		LBA:          id.Word(hdf.IdentityCapabilities)&hdf.CapabilityLBA != 0,
		Model:        id.Model(),
		Serial:       id.Serial(),
		Firmware:     id.Firmware(),
		Pending:      drv.Pending(),
	}
}

//
func (i *Info) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nimage:         %s\n", i.Path)
	fmt.Fprintf(&sb, "revision:      %s\n", i.Revision)
	fmt.Fprintf(&sb, "data offset:   0x%x\n", i.DataOffset)
	fmt.Fprintf(&sb, "sector size:   %d\n", i.SectorSize)
	fmt.Fprintf(&sb, "geometry:      %d/%d/%d (C/H/S)\n",
		i.Cylinders, i.Heads, i.Sectors)
	fmt.Fprintf(&sb, "total sectors: %d (%d KB)\n",
		i.TotalSectors, uint64(i.TotalSectors)*hdf.SectorSize/1024)
	fmt.Fprintf(&sb, "LBA:           %v\n", i.LBA)
	fmt.Fprintf(&sb, "model:         %s\n", i.Model)
	fmt.Fprintf(&sb, "serial:        %s\n", i.Serial)
	fmt.Fprintf(&sb, "firmware:      %s\n", i.Firmware)
	fmt.Fprintf(&sb, "pending:       %d\n", i.Pending)
	return sb.String()
}

//
func truncate(s string, l int) string {
	if len(s) > l {
		return s[:l-1] + "~"
	}
	return s
}
