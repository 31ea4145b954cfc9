// Package config loads and validates a run's YAML configuration,
// grounded on the teacher's internal/common/config loader: a typed
// manager around a strictly-unmarshalled struct, env-var overrides
// for secrets layered on top of the file, and hard validation errors
// surfaced before anything touches a browser.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/bombadil/exerciser/internal/common/yamlutil"
	"github.com/bombadil/exerciser/internal/configtypes"
)

// Manager owns a loaded RunConfig and the path it came from.
type Manager struct {
	configPath string
	logger     *zap.Logger
	config     *configtypes.RunConfig
}

// Load reads, parses, env-overrides, and validates the configuration
// at path.
func Load(path string, logger *zap.Logger) (*Manager, error) {
	m := &Manager{configPath: path, logger: logger}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Config returns the currently loaded configuration.
func (m *Manager) Config() *configtypes.RunConfig { return m.config }

func (m *Manager) reload() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", m.configPath, err)
	}

	var cfg configtypes.RunConfig
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", m.configPath, err)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return fmt.Errorf("config: %s: %w", m.configPath, err)
	}

	m.config = &cfg
	return nil
}

// applyEnvOverrides layers secret fields from the environment over the
// YAML-loaded config, matching the teacher's pattern of never
// requiring DSNs/passwords to live in a checked-in config file.
func applyEnvOverrides(cfg *configtypes.RunConfig) {
	if cfg.Redis != nil {
		if v := os.Getenv("BOMBADIL_REDIS_PASSWORD"); v != "" {
			cfg.Redis.Password = v
		}
	}
	if cfg.ClickHouse != nil {
		if v := os.Getenv("BOMBADIL_CLICKHOUSE_PASSWORD"); v != "" {
			cfg.ClickHouse.Password = v
		}
	}
}
