// Package config reads and writes .gitsurc.toml, the §6 options file and the
// resolutions table it persists across runs. Grounded on the teacher's
// registry_config.go raw/typed TOML split.
package config

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/udw/gits/resolver"
)

// FileName is the options file's well-known basename, read from the current
// directory and merged over built-in defaults.
const FileName = ".gitsurc.toml"

type rawConfig struct {
	Registry    rawRegistry       `toml:"registry"`
	Production  bool              `toml:"production"`
	Interactive bool              `toml:"interactive"`
	Force       bool              `toml:"force"`
	ForceLatest bool              `toml:"forceLatest"`
	Tmp         string            `toml:"tmp"`
	Directory   string            `toml:"directory"`
	Resolutions map[string]string `toml:"resolutions"`
}

type rawRegistry struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// Registry holds registry authentication, mirroring the teacher's
// registryConfig but as a plain struct since this package has no gps.Registry
// interface to satisfy.
type Registry struct {
	URL   string
	Token string
}

// File is the parsed contents of .gitsurc.toml.
type File struct {
	Registry    Registry
	Production  bool
	Interactive bool
	Force       bool
	ForceLatest bool
	Tmp         string
	Directory   string
	Resolutions map[resolver.RID]string
}

// Default returns the options gitsu falls back to when no .gitsurc.toml is
// present.
func Default() File {
	return File{
		Interactive: true,
		Directory:   "gitsu_components",
		Resolutions: make(map[resolver.RID]string),
	}
}

// Read parses r as TOML into a File, applied over Default().
func Read(r io.Reader) (File, error) {
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(r); err != nil {
		return File{}, errors.Wrap(err, "reading config")
	}

	raw := rawConfig{}
	if err := toml.Unmarshal(buf.Bytes(), &raw); err != nil {
		return File{}, errors.Wrap(err, "parsing .gitsurc.toml")
	}

	f := Default()
	f.Registry = Registry{URL: raw.Registry.URL, Token: raw.Registry.Token}
	f.Production = raw.Production
	f.Force = raw.Force
	f.ForceLatest = raw.ForceLatest
	if raw.Tmp != "" {
		f.Tmp = raw.Tmp
	}
	if raw.Directory != "" {
		f.Directory = raw.Directory
	}
	// interactive defaults true; only an explicit key in the file can turn
	// it off, so re-parse presence rather than trusting the zero value.
	tree, err := toml.LoadBytes(buf.Bytes())
	if err == nil && tree.Has("interactive") {
		f.Interactive = raw.Interactive
	}

	for rid, target := range raw.Resolutions {
		f.Resolutions[resolver.RID(rid)] = target
	}
	return f, nil
}

// ReadFile loads FileName from dir, returning Default() unchanged if it
// doesn't exist.
func ReadFile(dir string) (File, error) {
	path := dir + string(os.PathSeparator) + FileName
	b, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return File{}, err
	}
	return Read(bytes.NewReader(b))
}

func (f File) toRaw() rawConfig {
	raw := rawConfig{
		Registry: rawRegistry{
			URL:   f.Registry.URL,
			Token: f.Registry.Token,
		},
		Production:  f.Production,
		Interactive: f.Interactive,
		Force:       f.Force,
		ForceLatest: f.ForceLatest,
		Tmp:         f.Tmp,
		Directory:   f.Directory,
		Resolutions: make(map[string]string, len(f.Resolutions)),
	}
	for rid, target := range f.Resolutions {
		raw.Resolutions[string(rid)] = target
	}
	return raw
}

// MarshalTOML serializes f via an intermediate raw form, so persisted
// resolutions round-trip through the same file future runs read.
func (f File) MarshalTOML() ([]byte, error) {
	result, err := toml.Marshal(f.toRaw())
	return result, errors.Wrap(err, "marshaling .gitsurc.toml")
}

// WriteFile persists f to dir/FileName.
func WriteFile(dir string, f File) error {
	b, err := f.MarshalTOML()
	if err != nil {
		return err
	}
	path := dir + string(os.PathSeparator) + FileName
	return ioutil.WriteFile(path, b, 0644)
}
