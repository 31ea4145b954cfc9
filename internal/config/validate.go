package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/bombadil/exerciser/internal/configtypes"
)

// Validate enforces the "Specification error" taxonomy from spec.md
// §7: a hard load-time error for a missing entry URL, a non-power-of-two
// or zero edge-map size, or negative browser dimensions, rather than failing
// later once a browser is already running.
func Validate(cfg *configtypes.RunConfig) error {
	var errs []error

	if cfg.EntryURL == "" {
		errs = append(errs, errors.New("entry_url is required"))
	} else if _, err := url.Parse(cfg.EntryURL); err != nil {
		errs = append(errs, fmt.Errorf("entry_url is not a valid URL: %w", err))
	}

	if cfg.SpecFile == "" {
		errs = append(errs, errors.New("spec_file is required"))
	}

	if cfg.EdgeMap.Size <= 0 {
		errs = append(errs, errors.New("edge_map.size must be a positive power of two"))
	} else if cfg.EdgeMap.Size&(cfg.EdgeMap.Size-1) != 0 {
		errs = append(errs, fmt.Errorf("edge_map.size (%d) must be a power of two", cfg.EdgeMap.Size))
	}

	if cfg.Browser.Width < 0 || cfg.Browser.Height < 0 {
		errs = append(errs, errors.New("browser.width and browser.height must be non-negative"))
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics.enabled is true"))
	}

	if cfg.Trace.Enabled && cfg.Trace.Dir == "" {
		errs = append(errs, errors.New("trace.dir is required when trace.enabled is true"))
	}

	if cfg.Redis != nil && cfg.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when the redis section is present"))
	}

	if cfg.ClickHouse != nil && (cfg.ClickHouse.Addr == "" || cfg.ClickHouse.Database == "") {
		errs = append(errs, errors.New("clickhouse.addr and clickhouse.database are required when the clickhouse section is present"))
	}

	return errors.Join(errs...)
}
