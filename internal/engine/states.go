package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-utilization/internal/models"
)

// StateCatalog maps upstream state labels onto the closed MachineState set.
// Canonical names always resolve to themselves; aliases come from an optional YAML file.
type StateCatalog struct {
	aliases map[string]models.MachineState
	logger  *slog.Logger
}

// StateAliases lists the upstream labels that should be read as State.
type StateAliases struct {
	State   string   `yaml:"state"`
	Aliases []string `yaml:"aliases"`
}

// StateCatalogFile is the YAML root structure.
type StateCatalogFile struct {
	States []StateAliases `yaml:"states"`
}

// NewStateCatalog loads aliases from path. An empty path or a missing file yields a
// catalog that only understands canonical names.
func NewStateCatalog(path string, logger *slog.Logger) (*StateCatalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	catalog := &StateCatalog{aliases: make(map[string]models.MachineState), logger: logger}
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("state catalog not found, using canonical labels only", slog.String("path", path))
			return catalog, nil
		}
		return nil, err
	}
	var file StateCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse state catalog: %w", err)
	}
	for _, entry := range file.States {
		state, ok := models.ParseMachineState(entry.State)
		if !ok {
			return nil, fmt.Errorf("state catalog: unknown state %q", entry.State)
		}
		if state == models.StateOffline {
			return nil, fmt.Errorf("state catalog: %s is synthetic and cannot be aliased", state)
		}
		for _, alias := range entry.Aliases {
			key := normaliseLabel(alias)
			if key == "" {
				continue
			}
			if existing, dup := catalog.aliases[key]; dup && existing != state {
				return nil, fmt.Errorf("state catalog: alias %q mapped to both %s and %s", alias, existing, state)
			}
			catalog.aliases[key] = state
		}
	}
	logger.Debug("state catalog loaded", slog.String("path", path), slog.Int("aliases", len(catalog.aliases)))
	return catalog, nil
}

// Classify resolves a raw label. Unrecognised labels become StateUnknown.
func (c *StateCatalog) Classify(raw string) models.MachineState {
	if state, ok := models.ParseMachineState(raw); ok {
		return state
	}
	if c != nil {
		if state, ok := c.aliases[normaliseLabel(raw)]; ok {
			return state
		}
		c.logger.Debug("unrecognised state label", slog.String("label", raw))
	}
	return models.StateUnknown
}

func normaliseLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}
