// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package manifest reads and writes .gitsu.json, the per-component manifest
// spec.md §6 describes. Layout and the atomic-write discipline are grounded
// on the teacher's manifest.go (the raw/typed split) and txn_writer.go (write
// to a temp file, then rename into place).
package manifest

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/udw/gits/fsutil"
)

// FileName is the manifest's well-known basename inside a deployed component.
const FileName = ".gitsu.json"

// NewSuffix names the staged-update sentinel spec.md §4.5's in-place-update
// fast path writes instead of overwriting FileName directly.
const NewSuffix = ".new"

// Manifest is the on-disk shape of .gitsu.json: the declared package fields
// plus the Deployer's own bookkeeping annotations, all leading-underscore per
// spec.md §6.
type Manifest struct {
	Name            string            `json:"name,omitempty"`
	Version         string            `json:"version,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	Ignore          []string          `json:"ignore,omitempty"`
	Keep            []string          `json:"keep,omitempty"`
	Main            interface{}       `json:"main,omitempty"`

	Source         string `json:"_source,omitempty"`
	Target         string `json:"_target,omitempty"`
	OriginalSource string `json:"_originalSource,omitempty"`
	Release        string `json:"_release,omitempty"`
	Resolution     string `json:"_resolution,omitempty"`
	Direct         bool   `json:"_direct,omitempty"`
}

// Annotate sets the Deployer's own bookkeeping fields (the leading-underscore
// keys) onto an otherwise-populated Manifest, without the manifest package
// needing to know about resolver.Endpoint — the caller (resolver/deploy.go)
// fills Name/Version/Dependencies/etc. from the fetched PkgMeta and calls
// this to attach deployment provenance before writing.
func (m Manifest) Annotate(source, target, release, resolution string, direct bool) Manifest {
	m.Source = source
	m.Target = target
	m.OriginalSource = source
	m.Release = release
	m.Resolution = resolution
	m.Direct = direct
	return m
}

// Read loads the manifest at dir/FileName. A missing file is not an error:
// it returns a zero Manifest, matching components fetched from a plain
// filesystem path or tarball that carries no .gitsu.json.
func Read(dir string) (Manifest, error) {
	b, err := ioutil.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, nil
		}
		return Manifest{}, errors.Wrapf(err, "reading %s", FileName)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, errors.Wrapf(err, "parsing %s", FileName)
	}
	return m, nil
}

func (m Manifest) marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write atomically writes m to dir/FileName: it's serialized to a sibling
// temp file first, then renamed over the target, so a crash mid-write never
// leaves a truncated manifest behind.
func Write(dir string, m Manifest) error {
	b, err := m.marshal()
	if err != nil {
		return errors.Wrap(err, "encoding manifest")
	}
	dest := filepath.Join(dir, FileName)
	tmp := dest + ".tmp"
	if err := ioutil.WriteFile(tmp, b, 0644); err != nil {
		return errors.Wrap(err, "writing manifest temp file")
	}
	if err := fsutil.RenameWithFallback(tmp, dest); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "renaming manifest into place")
	}
	return nil
}

// WriteStaged writes m to dir/FileName+NewSuffix, the sentinel spec.md §4.5's
// in-place-update path leaves for the Deployer's next deployment of dir to
// promote over the live manifest (via PromoteStaged) once the rest of the
// update is known-good.
func WriteStaged(dir string, m Manifest) error {
	b, err := m.marshal()
	if err != nil {
		return errors.Wrap(err, "encoding staged manifest")
	}
	return ioutil.WriteFile(filepath.Join(dir, FileName+NewSuffix), b, 0644)
}

// PromoteStaged moves a previously-staged manifest over the live one, if
// present. It reports whether a staged file existed.
func PromoteStaged(dir string) (bool, error) {
	staged := filepath.Join(dir, FileName+NewSuffix)
	if _, err := os.Stat(staged); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := fsutil.RenameWithFallback(staged, filepath.Join(dir, FileName)); err != nil {
		return false, errors.Wrap(err, "promoting staged manifest")
	}
	return true, nil
}
