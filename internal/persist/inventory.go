package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/piwi3910/CrateFit/internal/model"
)

// DefaultInventoryPath returns ~/.cratefit/containers.json.
func DefaultInventoryPath() string {
	return filepath.Join(DefaultConfigDir(), "containers.json")
}

// SaveInventory writes the inventory to the specified JSON file.
// It creates parent directories if they do not exist.
func SaveInventory(path string, inv model.Inventory) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadInventory reads the inventory from path. A missing file yields the
// default inventory, which is written to path.
func LoadInventory(path string) (model.Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			inv := model.DefaultInventory()
			return inv, SaveInventory(path, inv)
		}
		return model.Inventory{}, err
	}
	var inv model.Inventory
	if err := json.Unmarshal(data, &inv); err != nil {
		return model.Inventory{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := inv.Validate(); err != nil {
		return model.Inventory{}, fmt.Errorf("%s: %w", path, err)
	}
	return inv, nil
}

// ImportInventory merges the presets in path into existing. Presets whose
// ID is already present are skipped.
func ImportInventory(path string, existing model.Inventory) (model.Inventory, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return existing, 0, err
	}
	var imported model.Inventory
	if err := json.Unmarshal(data, &imported); err != nil {
		return existing, 0, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := imported.Validate(); err != nil {
		return existing, 0, fmt.Errorf("%s: %w", path, err)
	}

	ids := make(map[string]bool, len(existing.Containers))
	for _, c := range existing.Containers {
		ids[c.ID] = true
	}
	added := 0
	for _, c := range imported.Containers {
		if ids[c.ID] {
			continue
		}
		existing.Containers = append(existing.Containers, c)
		ids[c.ID] = true
		added++
	}
	return existing, added, nil
}
