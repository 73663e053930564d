package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a registry seed file
type File struct {
	OnKeys   []FileKey     `yaml:"on_keys"`
	SpotKeys []FileSpotKey `yaml:"spot_keys"`
}

// FileKey is a key entry; Active defaults to true when omitted
type FileKey struct {
	Key    string `yaml:"key"`
	Active *bool  `yaml:"active"`
}

// FileSpotKey is a spot key with its linked futures
type FileSpotKey struct {
	FileKey `yaml:",inline"`
	Futures []FileFutureKey `yaml:"futures"`
}

// FileFutureKey is a future key with a fixed expiry
type FileFutureKey struct {
	FileKey `yaml:",inline"`
	Expiry  int64 `yaml:"expiry"`
}

func (k FileKey) active() bool {
	return k.Active == nil || *k.Active
}

// LoadFile reads a YAML seed file, expanding environment variables, and builds a registry
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read keys file: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse builds a registry from YAML seed data. Entries are registered in file order.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse keys file: %w", err)
	}

	r := New()
	for _, k := range f.OnKeys {
		if err := r.AddOnKey(k.Key, k.active()); err != nil {
			return nil, err
		}
	}
	for _, s := range f.SpotKeys {
		if err := r.AddSpotKey(s.Key, s.active()); err != nil {
			return nil, err
		}
		for _, fk := range s.Futures {
			if err := r.AddFutureKey(s.Key, fk.Key, fk.active(), fk.Expiry); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}
