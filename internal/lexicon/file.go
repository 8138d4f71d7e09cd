package lexicon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a lexicon, shared by the YAML and TOML
// formats.
//
// YAML:
//
//	name: introductions
//	entries:
//	  - prompt: "What is your name?"
//	    answer: "My name is André."
//
// TOML:
//
//	name = "introductions"
//
//	[[entries]]
//	prompt = "What is your name?"
//	answer = "My name is André."
type File struct {
	Name    string  `yaml:"name" toml:"name"`
	Entries []Entry `yaml:"entries" toml:"entries"`
}

// Format identifies a lexicon file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("lexicon: unsupported file extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// LoadFile reads and validates the lexicon file at path.
func LoadFile(path string) (*Lexicon, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: open %q: %w", path, err)
	}
	defer f.Close()

	l, err := LoadFromReader(f, format)
	if err != nil {
		return nil, fmt.Errorf("lexicon: parse %q: %w", path, err)
	}
	return l, nil
}

// LoadFromReader decodes a lexicon in the given format from r. Unknown keys
// are rejected to catch typos.
func LoadFromReader(r io.Reader, format Format) (*Lexicon, error) {
	var lf File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&lf); err != nil {
			return nil, fmt.Errorf("lexicon: decode yaml: %w", err)
		}
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(&lf)
		if err != nil {
			return nil, fmt.Errorf("lexicon: decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("lexicon: decode toml: unknown keys %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("lexicon: unknown format %q", format)
	}
	return New(lf.Name, lf.Entries)
}

// FileSource loads a lexicon from a YAML or TOML file.
type FileSource struct {
	Path string
}

// Load implements [Source].
func (s FileSource) Load(context.Context) (*Lexicon, error) {
	return LoadFile(s.Path)
}
