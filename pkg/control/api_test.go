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
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xelalexv/hdfdrive/pkg/ata"
	"github.com/xelalexv/hdfdrive/pkg/daemon"
	"github.com/xelalexv/hdfdrive/pkg/hdf"
)

//
var testGeometry = hdf.Geometry{Cylinders: 32, Heads: 4, Sectors: 16}

//
func newTestAPI(t *testing.T) (*api, *httptest.Server) {
	t.Helper()

	repository := t.TempDir()
	if err := hdf.Create(
		filepath.Join(repository, "disk.hdf"), testGeometry, false); err != nil {
		t.Fatal(err)
	}
	if err := hdf.Create(
		filepath.Join(repository, "other.hdf"), testGeometry, false); err != nil {
		t.Fatal(err)
	}

	d := daemon.NewDaemon("", ata.Bus16, 0)
	a := NewAPIServer("", repository, t.TempDir(), d).(*api)
	srv := httptest.NewServer(a.router())

	t.Cleanup(func() {
		srv.Close()
		d.Stop()
	})

	return a, srv
}

//
func call(t *testing.T, srv *httptest.Server, method, path string,
	json bool) (int, string) {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if json {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

//
func expectStatus(t *testing.T, srv *httptest.Server, method, path string,
	want int) string {
	t.Helper()
	code, body := call(t, srv, method, path, false)
	if code != want {
		t.Fatalf("%s %s: want status %d, got %d: %s",
			method, path, want, code, body)
	}
	return body
}

func TestInsertEject(t *testing.T) {

	a, srv := newTestAPI(t)

	expectStatus(t, srv, "PUT", "/drive/ide0?image=repo://disk.hdf", http.StatusOK)

	code, body := call(t, srv, "GET", "/list", true)
	if code != http.StatusOK {
		t.Fatalf("list failed: %d", code)
	}
	var list []*Image
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("want 3 slots, got %d", len(list))
	}
	if list[0].Status != daemon.StatusIdle ||
		filepath.Base(list[0].Path) != "disk.hdf" ||
		list[0].TotalSectors != testGeometry.Total() {
		t.Errorf("unexpected entry for ide0: %+v", list[0])
	}
	if list[1].Status != daemon.StatusEmpty || list[2].Status != daemon.StatusEmpty {
		t.Errorf("ide1 and sd should be empty: %+v, %+v", list[1], list[2])
	}

	// modify through the daemon, then try to replace
	if err := a.daemon.WithDrive(daemon.SlotIDE0, func(drv *hdf.Drive) error {
		var data [hdf.SectorSize]byte
		data[0] = 0xab
		return drv.WriteSector(5, &data)
	}); err != nil {
		t.Fatal(err)
	}

	expectStatus(t, srv, "PUT", "/drive/ide0?image=repo://other.hdf",
		http.StatusConflict)
	expectStatus(t, srv, "GET", "/drive/ide0/unload", http.StatusConflict)

	body = expectStatus(t, srv, "GET", "/drive/ide0/sector/5", http.StatusOK)
	if !strings.HasPrefix(body, "00000000  ab 00") {
		t.Errorf("unexpected sector dump: %s", body)
	}

	expectStatus(t, srv, "PUT", "/drive/ide0/commit", http.StatusOK)
	expectStatus(t, srv, "GET", "/drive/ide0/unload", http.StatusOK)
	expectStatus(t, srv, "GET", "/drive/ide0/unload", http.StatusUnprocessableEntity)

	// committed data is in the image
	drv, err := hdf.Insert(filepath.Join(a.repository, "disk.hdf"))
	if err != nil {
		t.Fatal(err)
	}
	defer drv.Eject()
	var buf [hdf.SectorSize]byte
	if err := drv.ReadSector(5, &buf); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 0xab {
		t.Error("committed data missing in image")
	}
}

func TestForcedInsert(t *testing.T) {

	a, srv := newTestAPI(t)

	expectStatus(t, srv, "PUT", "/drive/sd?image=repo://disk.hdf", http.StatusOK)
	a.daemon.WithDrive(daemon.SlotSD, func(drv *hdf.Drive) error {
		var data [hdf.SectorSize]byte
		return drv.WriteSector(0, &data)
	})

	expectStatus(t, srv, "PUT", "/drive/sd?image=repo://other.hdf&force=true",
		http.StatusOK)

	var info Info
	code, body := call(t, srv, "GET", "/drive/sd/info", true)
	if code != http.StatusOK {
		t.Fatalf("info failed: %d: %s", code, body)
	}
	if err := json.Unmarshal([]byte(body), &info); err != nil {
		t.Fatal(err)
	}
	if filepath.Base(info.Path) != "other.hdf" || info.Pending != 0 || !info.LBA {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestInsertCompressed(t *testing.T) {

	a, srv := newTestAPI(t)

	data, err := os.ReadFile(filepath.Join(a.repository, "disk.hdf"))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	if err := os.WriteFile(filepath.Join(a.repository, "packed.hdf.gz"),
		buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	expectStatus(t, srv, "PUT", "/drive/ide1?image=repo://packed.hdf.gz",
		http.StatusOK)

	body := expectStatus(t, srv, "GET", "/drive/ide1/info", http.StatusOK)
	if !strings.Contains(body, a.imageDir()) {
		t.Errorf("working copy not used: %s", body)
	}
}

func TestInsertErrors(t *testing.T) {

	_, srv := newTestAPI(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "no image", path: "/drive/ide0", want: http.StatusUnprocessableEntity},
		{name: "missing", path: "/drive/ide0?image=repo://none.hdf", want: http.StatusNotFound},
		{name: "local file", path: "/drive/ide0?image=/etc/passwd", want: http.StatusUnprocessableEntity},
		{name: "escape", path: "/drive/ide0?image=repo://../x.hdf", want: http.StatusUnprocessableEntity},
		{name: "bad slot", path: "/drive/ide2?image=repo://disk.hdf", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, srv, "PUT", tt.path, tt.want)
		})
	}
}

func TestSectorErrors(t *testing.T) {

	_, srv := newTestAPI(t)

	expectStatus(t, srv, "GET", "/drive/ide0/sector/0", http.StatusUnprocessableEntity)
	expectStatus(t, srv, "PUT", "/drive/ide0?image=repo://disk.hdf", http.StatusOK)
	expectStatus(t, srv, "GET", "/drive/ide0/sector/2048", http.StatusUnprocessableEntity)
	expectStatus(t, srv, "GET", "/drive/ide0/sector/2047", http.StatusOK)
}

func TestStatus(t *testing.T) {

	_, srv := newTestAPI(t)
	expectStatus(t, srv, "PUT", "/drive/sd?image=repo://disk.hdf", http.StatusOK)

	code, body := call(t, srv, "GET", "/status", true)
	if code != http.StatusOK {
		t.Fatalf("status failed: %d", code)
	}

	var stat Status
	if err := json.Unmarshal([]byte(body), &stat); err != nil {
		t.Fatal(err)
	}
	if stat.Connected || stat.Bus != ata.Bus16.String() || len(stat.Slots) != 3 {
		t.Errorf("unexpected status: %+v", stat)
	}
	if stat.Slots[2].Slot != "sd" || stat.Slots[2].Status != daemon.StatusIdle {
		t.Errorf("unexpected SD status: %+v", stat.Slots[2])
	}

	body = expectStatus(t, srv, "GET", "/status", http.StatusOK)
	if !strings.Contains(body, "not connected") {
		t.Errorf("unexpected status text: %s", body)
	}
}

func TestReset(t *testing.T) {
	_, srv := newTestAPI(t)
	expectStatus(t, srv, "PUT", "/reset", http.StatusOK)
	expectStatus(t, srv, "PUT", "/reset?target=sd", http.StatusOK)
	expectStatus(t, srv, "PUT", "/reset?target=floppy", http.StatusUnprocessableEntity)
}

func TestSearchWithoutIndex(t *testing.T) {
	_, srv := newTestAPI(t)
	expectStatus(t, srv, "GET", "/search?term=disk", http.StatusServiceUnavailable)
}

//
func watchChange(t *testing.T, srv *httptest.Server) *Change {
	t.Helper()
	code, body := call(t, srv, "GET", "/watch?timeout=5", true)
	if code != http.StatusOK {
		t.Fatalf("watch failed: %d", code)
	}
	var c Change
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		t.Fatal(err)
	}
	return &c
}

func TestWatch(t *testing.T) {

	a, srv := newTestAPI(t)
	a.watchInterval = 20 * time.Millisecond
	go a.watchDaemon()
	t.Cleanup(func() { a.Stop() })

	expectStatus(t, srv, "PUT", "/drive/ide1?image=repo://disk.hdf", http.StatusOK)

	c := watchChange(t, srv)
	if c.Link != "disconnected" {
		t.Errorf("want link state in first change, got '%s'", c.Link)
	}
	if len(c.Images) != 3 || c.Images[1].Status != daemon.StatusIdle {
		t.Fatalf("insert not reported: %+v", c.Images)
	}

	expectStatus(t, srv, "GET", "/drive/ide1/unload", http.StatusOK)

	c = watchChange(t, srv)
	if c.Link != "" {
		t.Errorf("link state reported without change: '%s'", c.Link)
	}
	if len(c.Images) != 3 || c.Images[1].Status != daemon.StatusEmpty {
		t.Errorf("eject not reported: %+v", c.Images)
	}
}

func TestWatchTimeout(t *testing.T) {
	_, srv := newTestAPI(t)
	expectStatus(t, srv, "GET", "/watch?timeout=0", http.StatusRequestTimeout)
}
