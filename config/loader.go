package config

import (
	"encoding/json"
	"os"
)

// Load decodes a JSON tunables file at path, filling any field the file
// omits with its default.
func Load(path string) (Tunables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tunables{}, err
	}
	var t Tunables
	if err := json.Unmarshal(raw, &t); err != nil {
		return Tunables{}, err
	}
	t.fillDefaults()
	return t, nil
}
