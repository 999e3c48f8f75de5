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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/hdfdrive/pkg/daemon"
	"github.com/xelalexv/hdfdrive/pkg/hdf"
	"github.com/xelalexv/hdfdrive/pkg/mmc"
	"github.com/xelalexv/hdfdrive/pkg/repo"
)

//
const DefaultPort = 8888

//
type APIServer interface {
	Serve() error
	Stop() error
}

/*
	NewAPIServer creates the API server for daemon d. Images are inserted from
	repository folder repository. Working copies of compressed images and the
	search index are kept in workDir.
*/
func NewAPIServer(addr, repository, workDir string, d *daemon.Daemon) APIServer {
	return &api{
		address:       addr,
		repository:    repository,
		workDir:       workDir,
		daemon:        d,
		watchInterval: defaultWatchInterval,
		longPollQueue: make(chan chan *Change),
		stop:          make(chan bool),
	}
}

//
type api struct {
	address    string
	repository string
	workDir    string
	daemon     *daemon.Daemon
	index      *repo.Index
	server     *http.Server
	//
	watchInterval time.Duration
	longPollQueue chan chan *Change
	stop          chan bool
	stopOnce      sync.Once
}

//
func (a *api) Serve() error {

	if a.repository != "" {
		a.startIndex()
	} else {
		log.Info("no image repository, inserting images is disabled")
	}

	addr := a.address
	if len(strings.Split(addr, ":")) < 2 {
		addr = fmt.Sprintf("%s:%d", a.address, DefaultPort)
	}

	go a.watchDaemon()

	log.Infof("HDFDrive API starts listening on %s", addr)
	a.server = &http.Server{Addr: addr, Handler: a.router()}

	err := a.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

//
func (a *api) Stop() error {

	a.stopOnce.Do(func() { close(a.stop) })

	if a.index != nil {
		a.index.Stop()
	}

	if a.server != nil {
		log.Info("API server stopping...")
		err := a.server.Shutdown(context.Background())
		a.server = nil
		return err
	}
	return nil
}

//
func (a *api) router() *mux.Router {

	router := mux.NewRouter().StrictSlash(true)

	slot := "/drive/{slot:ide0|ide1|sd}"

	addRoute(router, "status", "GET", "/status", a.status)
	addRoute(router, "ls", "GET", "/list", a.list)
	addRoute(router, "insert", "PUT", slot, a.insert)
	addRoute(router, "eject", "GET", slot+"/unload", a.eject)
	addRoute(router, "commit", "PUT", slot+"/commit", a.commit)
	addRoute(router, "info", "GET", slot+"/info", a.info)
	addRoute(router, "sector", "GET", slot+"/sector/{sector:[0-9]+}", a.sector)
	addRoute(router, "search", "GET", "/search", a.search)
	addRoute(router, "reset", "PUT", "/reset", a.reset)
	addRoute(router, "watch", "GET", "/watch", a.watch)

	return router
}

//
func (a *api) startIndex() {

	idx, err := repo.NewIndex(filepath.Join(a.workDir, "index"), a.repository)
	if err != nil {
		log.Errorf("search index not available: %v", err)
		return
	}

	a.index = idx
	go func() {
		if err := idx.Start(); err != nil {
			log.Errorf("error starting search index: %v", err)
		}
	}()
}

//
func (a *api) imageDir() string {
	return filepath.Join(a.workDir, "images")
}

//
func addRoute(r *mux.Router, name, method, pattern string,
	handler http.HandlerFunc) {
	r.Methods(method).
		Path(pattern).
		Name(name).
		Handler(requestLogger(handler, name))
}

//
func requestLogger(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		log.WithFields(log.Fields{
			"remote": r.RemoteAddr,
			"method": r.Method,
			"path":   r.RequestURI,
		}).Debugf("API BEGIN | %s", name)

		start := time.Now()
		inner.ServeHTTP(w, r)

		log.WithFields(log.Fields{
			"remote":   r.RemoteAddr,
			"method":   r.Method,
			"path":     r.RequestURI,
			"duration": time.Since(start),
		}).Debugf("API END   | %s", name)
	})
}

//
func getSlot(w http.ResponseWriter, req *http.Request) (daemon.Slot, bool) {
	slot, err := daemon.ParseSlot(mux.Vars(req)["slot"])
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return slot, false
	}
	return slot, true
}

//
func isFlagSet(req *http.Request, flag string) bool {
	arg, _ := getArg(req, flag)
	return arg == "true"
}

//
func getArg(req *http.Request, arg string) (string, error) {
	ret := req.URL.Query().Get(arg)
	if ret != "" {
		return url.QueryUnescape(ret)
	}
	return ret, nil
}

//
func getIntArg(req *http.Request, arg string, def int) (int, error) {
	val, err := getArg(req, arg)
	if err != nil {
		return -1, err
	}
	if val == "" {
		return def, nil
	}
	return strconv.Atoi(val)
}

// errorStatus maps errors from daemon and drives to HTTP status codes
func errorStatus(e error) int {
	switch {
	case errors.Is(e, daemon.ErrBusy):
		return http.StatusLocked
	case errors.Is(e, daemon.ErrDirty):
		return http.StatusConflict
	case errors.Is(e, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(e, daemon.ErrEmpty),
		errors.Is(e, hdf.ErrOutOfRange),
		errors.Is(e, hdf.ErrInvalidFormat),
		errors.Is(e, repo.ErrInvalidReference),
		errors.Is(e, mmc.ErrIncompatibleImage):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

//
func setHeaders(h http.Header, json bool) {
	if json {
		h.Set("Content-Type", "application/json; charset=UTF-8")
	} else {
		h.Set("Content-Type", "text/plain; charset=UTF-8")
	}
}

//
func handleError(e error, statusCode int, w http.ResponseWriter) bool {

	if e == nil {
		return false
	}

	log.Errorf("%v", e)

	setHeaders(w.Header(), false)
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(fmt.Sprintf("%v\n", e))); err != nil {
		log.Errorf("problem writing error: %v", err)
	}

	return true
}

//
func sendReply(body []byte, statusCode int, w http.ResponseWriter) {
	setHeaders(w.Header(), false)
	w.WriteHeader(statusCode)
	if _, err := fmt.Fprintf(w, "%s\n", body); err != nil {
		log.Errorf("problem sending reply: %v", err)
	}
}

//
func sendStreamReply(r io.Reader, statusCode int, w http.ResponseWriter) {
	setHeaders(w.Header(), false)
	w.WriteHeader(statusCode)
	if _, err := io.Copy(w, r); err != nil {
		log.Errorf("problem sending reply: %v", err)
	}
}

//
func sendJSONReply(obj interface{}, statusCode int, w http.ResponseWriter) {
	setHeaders(w.Header(), true)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		log.Errorf("problem writing error: %v", err)
	}
}

//
func wantsJSON(req *http.Request) bool {
	return strings.HasPrefix(req.Header.Get("Accept"), "application/json") ||
		req.Header.Get("Content-Type") == "application/json"
}
