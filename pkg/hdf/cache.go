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

package hdf

import (
	"sort"
)

// cache holds sectors written but not yet committed to the image, keyed by
// sector number. Entries are already packed to the drive's sector size.
type cache struct {
	entries map[uint32][]byte
}

//
func newCache() *cache {
	return &cache{entries: map[uint32][]byte{}}
}

// put stores a copy of data for sector n, replacing any pending entry.
func (c *cache) put(n uint32, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	c.entries[n] = buf
}

//
func (c *cache) get(n uint32) ([]byte, bool) {
	data, ok := c.entries[n]
	return data, ok
}

//
func (c *cache) remove(n uint32) {
	delete(c.entries, n)
}

//
func (c *cache) dirty() bool {
	return len(c.entries) > 0
}

//
func (c *cache) len() int {
	return len(c.entries)
}

// sectors returns the pending sector numbers in ascending order.
func (c *cache) sectors() []uint32 {
	ret := make([]uint32, 0, len(c.entries))
	for n := range c.entries {
		ret = append(ret, n)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// discard drops all pending entries and returns how many there were.
func (c *cache) discard() int {
	n := len(c.entries)
	c.entries = map[uint32][]byte{}
	return n
}
