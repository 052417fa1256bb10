// Runtime provider loading through Go's plugin system. Linux only, behind
// the plugindyn build tag.
//go:build plugindyn && linux

package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
)

// LoadDynamicProviders opens every .so file in dir and calls its exported
// RegisterProviders function, which is expected to register with the default
// registry. An empty dir falls back to DUPLEX_PLUGIN_PATH, then to
// /usr/local/lib/duplex/plugins. A missing directory is not an error.
func LoadDynamicProviders(dir string) error {
	if dir == "" {
		dir = os.Getenv("DUPLEX_PLUGIN_PATH")
		if dir == "" {
			dir = "/usr/local/lib/duplex/plugins"
		}
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}

	for _, file := range files {
		if err := loadProviderFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	if len(files) > 0 {
		slog.Info("loaded dynamic providers", "count", len(files), "dir", dir)
	}
	return nil
}

func loadProviderFile(file string) error {
	p, err := plugin.Open(file)
	if err != nil {
		return err
	}
	sym, err := p.Lookup("RegisterProviders")
	if err != nil {
		return fmt.Errorf("missing RegisterProviders export: %w", err)
	}
	register, ok := sym.(func() error)
	if !ok {
		return fmt.Errorf("RegisterProviders has signature %T, want func() error", sym)
	}
	return register()
}
