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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

//
const PrefixRepoRef = "repo://"

//
var ErrInvalidReference = errors.New("invalid image reference")

/*
	Resolve turns image reference ref into the path of an image file. A
	reference of the form repo://{path} is relative to the repository folder
	repo, and must not point outside of it. Anything else is taken as a plain
	file path, and is only permitted when allowLocal is set.
*/
func Resolve(ref, repo string, allowLocal bool) (string, error) {

	log.WithFields(log.Fields{
		"reference":  ref,
		"repository": repo,
	}).Debug("resolving ref")

	if !IsReference(ref) {
		if !allowLocal {
			return "", fmt.Errorf("%w: not a repository reference: %s",
				ErrInvalidReference, ref)
		}
		return filepath.Abs(ref)
	}

	if repo == "" {
		return "", fmt.Errorf("%w: image repository is not enabled",
			ErrInvalidReference)
	}

	base, err := filepath.Abs(repo)
	if err != nil {
		return "", err
	}

	rel := strings.TrimPrefix(ref, PrefixRepoRef)
	path := filepath.Join(base, filepath.FromSlash(rel))

	if path == base || !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: outside of repository: %s",
			ErrInvalidReference, ref)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: is a directory: %s",
			ErrInvalidReference, ref)
	}

	return path, nil
}

//
func IsReference(r string) bool {
	return strings.HasPrefix(r, PrefixRepoRef)
}
