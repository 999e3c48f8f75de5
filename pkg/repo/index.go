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

package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/hdfdrive/pkg/util"
)

//
const replaceChars = "`~!@#$%^&*_-+=()[]{}|;:',.<>?/\\"

const batchSize = 100

var nameCleaner *strings.Replacer

//
func init() {
	rep := make([]string, 2*len(replaceChars))
	for ix, c := range replaceChars {
		rep[ix*2] = string(c)
		rep[ix*2+1] = " "
	}
	nameCleaner = strings.NewReplacer(rep...)
}

// Entry is what gets indexed for each image in the repository.
type Entry struct {
	Name string
}

//
type SearchResult struct {
	Hits     []string `json:"hits"`
	Total    uint64   `json:"total"`
	Complete bool     `json:"complete"`
}

/*
	Index is a full text index over the image file names in the repository.
	Once started, it follows changes in the repository tree.
*/
type Index struct {
	base    string
	repo    string
	stopped bool
	//
	index   bleve.Index
	empty   bool
	watcher *util.DirWatcher
	//
	batch      *bleve.Batch
	batchCount int
	batchMux   sync.Mutex
}

// NewIndex opens the index stored in folder base, or creates a new one if
// there is none. The index covers repository folder repo.
func NewIndex(base, repo string) (*Index, error) {

	var err error
	i := &Index{}

	if i.base, err = filepath.Abs(base); err != nil {
		return nil, err
	}
	if i.repo, err = filepath.Abs(repo); err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{"base": i.base, "repo": i.repo})

	if _, err := os.Stat(i.base); os.IsNotExist(err) {
		logger.Info("creating new index")
		if i.index, err = bleve.New(i.base, bleve.NewIndexMapping()); err != nil {
			return nil, fmt.Errorf("cannot create index: %w", err)
		}
		i.empty = true

	} else if err != nil {
		return nil, err

	} else {
		logger.Info("opening index")
		if i.index, err = bleve.Open(i.base); err != nil {
			return nil, fmt.Errorf("cannot open index: %w", err)
		}
	}

	i.batch = i.index.NewBatch()
	return i, nil
}

// Start brings the index up to date with the repository, and starts watching
// the repository for changes.
func (i *Index) Start() error {

	start := time.Now()
	if err := i.prune(); err != nil {
		return fmt.Errorf("error pruning index: %w", err)
	}
	log.WithField("duration", time.Since(start)).Info("index pruning finished")

	start = time.Now()
	if err := i.update(); err != nil {
		return fmt.Errorf("error updating index: %w", err)
	}
	log.WithField("duration", time.Since(start)).Info("index update finished")

	if err := i.batched(true); err != nil {
		return err
	}

	log.Info("starting index repo watcher")
	var err error
	if i.watcher, err = util.NewDirWatcher(i.repo); err != nil {
		return fmt.Errorf("error creating repo watcher: %w", err)
	}
	if err := i.watcher.Start(2*time.Second, i.watchEvent, i.flush); err != nil {
		return fmt.Errorf("error starting repo watcher: %w", err)
	}

	log.Info("index ready")
	return nil
}

//
func (i *Index) Stop() {

	if i.watcher != nil {
		i.watcher.Stop()
		i.watcher = nil
	}

	i.batchMux.Lock()
	defer i.batchMux.Unlock()

	if i.index != nil {
		if err := i.index.Close(); err != nil {
			log.Errorf("error closing index: %v", err)
		}
		i.index = nil
	}

	i.stopped = true
}

// prune removes entries of images that no longer exist
func (i *Index) prune() error {

	if i.empty {
		return nil
	}

	ix, err := i.index.Advanced()
	if err != nil {
		return err
	}

	rd, err := ix.Reader()
	if err != nil {
		return err
	}
	defer rd.Close()

	docs, err := rd.DocIDReaderAll()
	if err != nil {
		return err
	}
	defer docs.Close()

	for {
		d, err := docs.Next()
		if err != nil {
			return err
		}
		if d == nil {
			return nil
		}
		id, err := rd.ExternalID(d)
		if err != nil {
			return err
		}
		if _, err := os.Stat(filepath.Join(i.repo, id)); os.IsNotExist(err) {
			if err := i.removeEntry(id); err != nil {
				return err
			}
		}
	}
}

// update adds all images that changed since the index was last written
func (i *Index) update() error {

	var lastMod time.Time
	if !i.empty {
		if store, err := os.Stat(filepath.Join(i.base, "store")); err == nil {
			lastMod = store.ModTime()
			log.Debugf("last index mod time: %v", lastMod)
		}
	}

	i.empty = false

	return filepath.Walk(i.repo,
		func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if i.stopped {
				return fmt.Errorf("index stopped")
			}
			if !info.IsDir() && IsImage(path) && info.ModTime().After(lastMod) {
				return i.addEntry(i.makeRelative(path))
			}
			return nil
		})
}

//
func (i *Index) watchEvent(evt fsnotify.Event) error {

	rel := i.makeRelative(evt.Name)
	log.WithFields(log.Fields{"path": rel, "op": evt.Op}).Debug("index update")

	switch {

	case evt.Op&fsnotify.Create != 0:
		info, err := os.Stat(evt.Name)
		if err != nil {
			return fmt.Errorf("cannot add new entry: %w", err)
		}
		if !info.IsDir() && IsImage(evt.Name) {
			return i.addEntry(rel)
		}

	case evt.Op&(fsnotify.Rename|fsnotify.Remove) != 0:
		return i.removeEntry(rel)

	default:
		log.Trace("no index update required")
	}

	return nil
}

//
func (i *Index) flush() error {
	return i.batched(true)
}

//
func (i *Index) addEntry(path string) error {
	log.WithField("file", path).Debug("adding entry to index")
	i.batchMux.Lock()
	err := i.batch.Index(path, Entry{Name: nameCleaner.Replace(path)})
	i.batchMux.Unlock()
	if err != nil {
		return fmt.Errorf("failed to batch entry add: %w", err)
	}
	return i.batched(false)
}

//
func (i *Index) removeEntry(path string) error {
	log.WithField("file", path).Debug("removing entry from index")
	i.batchMux.Lock()
	i.batch.Delete(path)
	i.batchMux.Unlock()
	return i.batched(false)
}

//
func (i *Index) batched(flush bool) error {

	i.batchMux.Lock()
	defer i.batchMux.Unlock()

	if i.index == nil {
		return nil
	}

	if i.batchCount++; flush || i.batchCount > batchSize {
		log.Debug("flushing pending index actions")
		if err := i.index.Batch(i.batch); err != nil {
			return fmt.Errorf("failed to execute index batch: %w", err)
		}
		i.batch = i.index.NewBatch()
		i.batchCount = 0
	}

	return nil
}

// Search returns at most max references of images whose name matches term.
func (i *Index) Search(term string, max int) (*SearchResult, error) {

	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("no search term")
	}
	if max < 1 {
		max = 1
	}

	log.Debugf("searching for '%s'", term)
	query := bleve.NewQueryStringQuery(term)
	search := bleve.NewSearchRequestOptions(query, max+1, 0, false)
	res, err := i.index.Search(search)
	if err != nil {
		return nil, err
	}

	ret := &SearchResult{
		Hits:     make([]string, len(res.Hits)),
		Total:    res.Total,
		Complete: true,
	}

	for ix, h := range res.Hits {
		ret.Hits[ix] = PrefixRepoRef + filepath.ToSlash(h.ID)
	}

	if len(ret.Hits) > max {
		ret.Hits = ret.Hits[:max]
		ret.Complete = false
	}

	return ret, nil
}

//
func (i *Index) makeRelative(path string) string {
	if rel, err := filepath.Rel(i.repo, path); err == nil {
		return rel
	}
	return path
}
