package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voltsight/twin-gateway/internal/models"
)

// PresetCatalog serves the battery presets offered by the guided form.
type PresetCatalog struct {
	presets []models.BatteryPreset
	logger  *slog.Logger
}

// PresetFile is the YAML root structure.
type PresetFile struct {
	Batteries []models.BatteryPreset `yaml:"batteries"`
}

// NewPresetCatalog loads presets from path. An empty path or a missing file yields a nil
// catalog, which behaves as an empty one.
func NewPresetCatalog(path string, logger *slog.Logger) (*PresetCatalog, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	presets := make([]models.BatteryPreset, 0, len(file.Batteries))
	seen := make(map[string]struct{}, len(file.Batteries))
	for _, p := range file.Batteries {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			logger.Warn("skipping preset without id", slog.String("name", p.Name))
			continue
		}
		if _, dup := seen[id]; dup {
			logger.Warn("skipping duplicate preset", slog.String("id", id))
			continue
		}
		seen[id] = struct{}{}
		p.ID = id
		presets = append(presets, p)
	}
	return &PresetCatalog{presets: presets, logger: logger}, nil
}

// List returns the presets in file order.
func (c *PresetCatalog) List() []models.BatteryPreset {
	if c == nil {
		return []models.BatteryPreset{}
	}
	return append([]models.BatteryPreset(nil), c.presets...)
}

// Lookup finds a preset by id, case-insensitively.
func (c *PresetCatalog) Lookup(id string) (models.BatteryPreset, bool) {
	if c == nil {
		return models.BatteryPreset{}, false
	}
	for _, p := range c.presets {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	return models.BatteryPreset{}, false
}
