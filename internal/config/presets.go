package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

// RegisterPreset is one register write applied when the daemon starts.
type RegisterPreset struct {
	Name  string `toml:"name,omitempty"`
	Num   uint32 `toml:"num"`
	Value uint32 `toml:"value"`
	Mask  uint32 `toml:"mask,omitempty"`
	Shift uint32 `toml:"shift,omitempty"`
}

// RegInfo converts the preset to a register write. A zero mask writes the
// whole register.
func (p RegisterPreset) RegInfo() ntv2.RegInfo {
	mask := p.Mask
	if mask == 0 {
		mask = 0xFFFFFFFF
	}
	return ntv2.RegInfo{Num: p.Num, Value: p.Value, Mask: mask, Shift: p.Shift}
}

type presetsFile struct {
	Registers []RegisterPreset `toml:"registers"`
}

// LoadRegisterPresets reads the [[registers]] array of a TOML file. A missing
// file yields no presets.
func LoadRegisterPresets(path string) ([]RegisterPreset, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read register presets: %w", err)
	}

	var file presetsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse register presets: %w", err)
	}
	for i, p := range file.Registers {
		if p.Shift > 31 {
			return nil, fmt.Errorf("register preset %d (%s): shift %d out of range", i, p.Name, p.Shift)
		}
	}
	return file.Registers, nil
}

// PresetRegInfos converts presets to a register write batch.
func PresetRegInfos(presets []RegisterPreset) []ntv2.RegInfo {
	infos := make([]ntv2.RegInfo, len(presets))
	for i, p := range presets {
		infos[i] = p.RegInfo()
	}
	return infos
}
