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


package main

import (
	"fmt"
	"os"

	"github.com/xelalexv/hdfdrive/pkg/run"
)

//
var HDFDriveVersion string

//
func synopsis() {
	fmt.Print(`
synopsis: hdfctl {serve|insert|eject|commit|ls|status|dump|info|create|search|
                  reset|version} ...

run 'hdfctl {action} -h|--help' to see detailed info

`)
}

//
func version() {
	fmt.Printf("\nHDFDrive %s\n\n", HDFDriveVersion)
}

//
func main() {

	var action string
	var args []string

	if len(os.Args) > 1 {
		action = os.Args[1]
	}

	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	switch action {

	case "serve":
		version()
		run.DieOnError(run.NewServe().Execute(args))

	case "insert":
		run.DieOnError(run.NewInsert().Execute(args))

	case "eject":
		run.DieOnError(run.NewEject().Execute(args))

	case "commit":
		run.DieOnError(run.NewCommit().Execute(args))

	case "ls":
		run.DieOnError(run.NewList().Execute(args))

	case "status":
		run.DieOnError(run.NewStatus().Execute(args))

	case "dump":
		run.DieOnError(run.NewDump().Execute(args))

	case "info":
		run.DieOnError(run.NewInfo().Execute(args))

	case "create":
		run.DieOnError(run.NewCreate().Execute(args))

	case "search":
		run.DieOnError(run.NewSearch().Execute(args))

	case "reset":
		run.DieOnError(run.NewReset().Execute(args))

	case "version":
		version()

	case "":
		fallthrough
	case "-h":
		fallthrough
	case "--help":
		synopsis()

	default:
		run.Die("unknown action: %s\n", action)
	}
}
