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
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/xelalexv/hdfdrive/pkg/repo"
)

//
func NewSearch() *Search {

	s := &Search{}
	s.Runner = *NewRunner(
		"search -t|--term {term} [-n|--items {max}] [-p|--port {port}]",
		"search daemon's image repository",
		`
Use the search command to find images in the daemon's repository. Results are
image references that can be used with the insert command.`,
		"", `- The search term supports the query string syntax of bleve, e.g. 'elite',
  '+games -demo', or 'Name:elite*'.

`+runnerHelpEpilogue, s.Run)

	s.AddBaseSettings()
	s.AddSetting(&s.Term, "term", "t", "", nil, "search term", true)
	s.AddSetting(&s.Items, "items", "n", "", 100,
		"maximum number of results", false)

	return s
}

//
type Search struct {
	//
	Runner
	//
	Term  string
	Items int
}

//
func (s *Search) Run() error {

	s.ParseSettings()

	resp, err := s.apiCall("GET", fmt.Sprintf("/search?term=%s&items=%d",
		url.QueryEscape(s.Term), s.Items), true, nil)
	if err != nil {
		return err
	}
	defer resp.Close()

	var res repo.SearchResult
	if err := json.NewDecoder(resp).Decode(&res); err != nil {
		return err
	}

	fmt.Println()
	for _, h := range res.Hits {
		fmt.Println(h)
	}

	if !res.Complete {
		fmt.Printf("\nshowing %d of %d hits\n", len(res.Hits), res.Total)
	} else {
		fmt.Printf("\n%d hits\n", res.Total)
	}
	return nil
}
