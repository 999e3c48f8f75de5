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
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

func TestDrivePath(t *testing.T) {

	tests := []struct {
		slot string
		want string
		err  bool
	}{
		{slot: "ide0", want: "/drive/ide0"},
		{slot: "IDE1", want: "/drive/ide1"},
		{slot: "sd", want: "/drive/sd"},
		{slot: "ide2", err: true},
		{slot: "", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.slot, func(t *testing.T) {
			got, err := drivePath(tt.slot)
			if tt.err {
				if err == nil {
					t.Errorf("expected error for slot '%s'", tt.slot)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("want %s, got %s", tt.want, got)
			}
		})
	}
}

//
func newTestRunner(t *testing.T, h http.HandlerFunc) *Runner {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}

	return &Runner{Host: u.Hostname(), Port: port}
}

func TestAPICallError(t *testing.T) {

	r := newTestRunner(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/drive/ide0/unload" {
			t.Errorf("unexpected path: %s", req.URL.Path)
		}
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("image has uncommitted changes\n"))
	})

	_, err := r.apiCall("GET", "/drive/ide0/unload", false, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "409") ||
		!strings.Contains(err.Error(), "uncommitted changes") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAPICall(t *testing.T) {

	r := newTestRunner(t, func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Accept") != "application/json" {
			t.Errorf("JSON not requested")
		}
		w.Write([]byte(`{"hits":[]}`))
	})

	resp, err := r.apiCall("GET", "/search?term=x", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Close()
}

func TestDumpFile(t *testing.T) {

	file := filepath.Join(t.TempDir(), "disk.hdf")
	g := hdf.Geometry{Cylinders: 4, Heads: 2, Sectors: 8}
	if err := hdf.Create(file, g, false); err != nil {
		t.Fatal(err)
	}

	drv, err := hdf.Insert(file)
	if err != nil {
		t.Fatal(err)
	}
	var data [hdf.SectorSize]byte
	copy(data[:], "HDFDrive")
	if err := drv.WriteSector(3, &data); err != nil {
		t.Fatal(err)
	}
	if err := drv.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := drv.Eject(); err != nil {
		t.Fatal(err)
	}

	d := &Dump{File: file, Sector: 3, Count: 2}
	var out bytes.Buffer
	if err := d.dumpFile(&out); err != nil {
		t.Fatal(err)
	}

	dump := out.String()
	if !strings.Contains(dump, "sector 3:") || !strings.Contains(dump, "sector 4:") {
		t.Errorf("missing sectors in dump:\n%s", dump)
	}
	if !strings.Contains(dump, "|HDFDrive") {
		t.Errorf("sector data missing in dump:\n%s", dump)
	}

	d = &Dump{File: file, Sector: uint(g.Total() - 1), Count: 2}
	if err := d.dumpFile(&out); err == nil {
		t.Error("expected error when dumping beyond last sector")
	}
}
