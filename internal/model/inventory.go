package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ContainerPreset is a named, reusable container size.
type ContainerPreset struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Size        Dimensions `json:"size"`
	Description string     `json:"description,omitempty"`
}

// NewContainerPreset creates a new ContainerPreset with a generated ID.
func NewContainerPreset(name string, width, height, depth int, description string) ContainerPreset {
	return ContainerPreset{
		ID:          uuid.New().String()[:8],
		Name:        name,
		Size:        Dimensions{Width: width, Height: height, Depth: depth},
		Description: description,
	}
}

// Inventory holds the saved container presets.
type Inventory struct {
	Containers []ContainerPreset `json:"containers"`
}

// DefaultInventory returns an inventory populated with common containers,
// sized in centimetres.
func DefaultInventory() Inventory {
	return Inventory{
		Containers: []ContainerPreset{
			NewContainerPreset("Small parcel", 30, 15, 20, "Courier box"),
			NewContainerPreset("Moving box medium", 45, 40, 45, ""),
			NewContainerPreset("Moving box large", 60, 45, 60, ""),
			NewContainerPreset("Euro pallet", 120, 150, 80, "EUR 1 pallet, 1.5m load height"),
			NewContainerPreset("Cargo van", 330, 170, 180, "Long wheelbase panel van"),
		},
	}
}

// Validate checks that every preset has a name, a usable size and a unique ID.
func (inv Inventory) Validate() error {
	seen := make(map[string]bool, len(inv.Containers))
	for i, c := range inv.Containers {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("container %d: name is required", i+1)
		}
		if err := c.Size.Validate(); err != nil {
			return fmt.Errorf("container %q: %w", c.Name, err)
		}
		if seen[c.ID] {
			return fmt.Errorf("container %q: duplicate id %q", c.Name, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}

// FindContainerByID returns a pointer to the preset with the given ID, or nil.
func (inv *Inventory) FindContainerByID(id string) *ContainerPreset {
	for i := range inv.Containers {
		if inv.Containers[i].ID == id {
			return &inv.Containers[i]
		}
	}
	return nil
}

// FindContainerByName returns the first preset whose name matches,
// ignoring case, or nil.
func (inv *Inventory) FindContainerByName(name string) *ContainerPreset {
	for i := range inv.Containers {
		if strings.EqualFold(inv.Containers[i].Name, name) {
			return &inv.Containers[i]
		}
	}
	return nil
}

// Lookup finds a preset by ID first and then by name.
func (inv *Inventory) Lookup(key string) *ContainerPreset {
	if c := inv.FindContainerByID(key); c != nil {
		return c
	}
	return inv.FindContainerByName(key)
}

// ContainerNames returns the preset names in inventory order.
func (inv *Inventory) ContainerNames() []string {
	names := make([]string, len(inv.Containers))
	for i, c := range inv.Containers {
		names[i] = c.Name
	}
	return names
}
