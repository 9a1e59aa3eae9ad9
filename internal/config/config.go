// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config decodes the optional PMA table override file
// (`--pma-config`) and encodes the exit-stats dump written by `-D`, both as
// TOML.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/rv8sim/rv8sim/internal/pma"
)

// PMAEntry is the TOML-decodable mirror of pma.Entry: string flag names
// instead of a bitmask, since TOML has no native bitmask type.
type PMAEntry struct {
	Base   uint64   `toml:"base"`
	Length uint64   `toml:"length"`
	Flags  []string `toml:"flags"`
}

// PMAFile is the top-level shape of a --pma-config document.
type PMAFile struct {
	Entries []PMAEntry `toml:"entry"`
}

var flagBits = map[string]pma.Attr{
	"r":        pma.Readable,
	"w":        pma.Writable,
	"x":        pma.Executable,
	"cacheable": pma.Cacheable,
	"device":   pma.Device,
	"coherent": pma.Coherent,
}

// LoadPMATable decodes path and installs its entries into an
// appropriately-sized pma.Table.
func LoadPMATable(path string) (*pma.Table, error) {
	var f PMAFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, errors.Wrapf(err, "config: decoding PMA config %s", path)
	}

	capacity := len(f.Entries)
	if capacity < pma.DefaultCapacity {
		capacity = pma.DefaultCapacity
	}
	table := pma.New(capacity)
	for _, e := range f.Entries {
		var attrs pma.Attr
		for _, flag := range e.Flags {
			attrs |= flagBits[flag]
		}
		if !table.Add(pma.Entry{Base: e.Base, Length: e.Length, Attrs: attrs}) {
			return nil, errors.Errorf("config: PMA table capacity %d exceeded", capacity)
		}
	}
	return table, nil
}

// ExitStats is the TOML document `-D/--save-exit-stats DIR` writes to
// DIR/exit-stats.toml.
type ExitStats struct {
	Steps       uint64           `toml:"steps"`
	ExitCode    int              `toml:"exit_code"`
	PC          uint64           `toml:"final_pc"`
	Instruction map[string]int64 `toml:"instruction_histogram,omitempty"`
}

// WriteExitStats writes stats as DIR/exit-stats.toml, creating DIR if
// necessary.
func WriteExitStats(dir string, stats ExitStats) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "config: creating %s", dir)
	}
	path := filepath.Join(dir, "exit-stats.toml")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "config: creating %s", path)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(stats); err != nil {
		return errors.Wrapf(err, "config: encoding %s", path)
	}
	return nil
}
