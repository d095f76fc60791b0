package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const confFileName = "fedicache.yml"

// Conf holds the cache layer's tunables. Every field has a working default,
// so a missing config file is not an error.
type Conf struct {
	StoreDir      string `yaml:"storeDir"`      // directory holding one store file per identity
	PageSize      int    `yaml:"pageSize"`      // default timeline page length
	BusyTimeoutMs int    `yaml:"busyTimeoutMs"` // sqlite busy_timeout
	EncryptBlobs  bool   `yaml:"encryptBlobs"`  // seal structured blob columns at rest
}

// DefaultConf returns the configuration used when no file is present.
func DefaultConf() Conf {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return Conf{
		StoreDir:      filepath.Join(dir, "fedicache"),
		PageSize:      40,
		BusyTimeoutMs: 5000,
		EncryptBlobs:  true,
	}
}

// ReadConf loads fedicache.yml from the working directory, falling back to
// the user config directory and finally to defaults.
func ReadConf() (*Conf, error) {
	if _, err := os.Stat(confFileName); err == nil {
		return ReadConfFrom(confFileName)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(dir, "fedicache", confFileName)
		if _, err := os.Stat(path); err == nil {
			return ReadConfFrom(path)
		}
	}
	conf := DefaultConf()
	return &conf, nil
}

// ReadConfFrom loads a config file, filling unset fields with defaults.
func ReadConfFrom(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	conf := DefaultConf()
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if conf.PageSize <= 0 {
		conf.PageSize = 40
	}
	if conf.BusyTimeoutMs <= 0 {
		conf.BusyTimeoutMs = 5000
	}
	return &conf, nil
}

var unsafePathChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_", " ", "_")

// StorePath names the store file for one identity inside dir. The identity
// (usually user@domain) is sanitized into a safe file name.
func StorePath(dir, identity string) string {
	return filepath.Join(dir, unsafePathChars.Replace(identity)+".db")
}
