//go:build !plugindyn || !linux

package plugin

import "fmt"

// LoadDynamicProviders reports that this build cannot load .so providers.
// Build with -tags=plugindyn on Linux to enable it.
func LoadDynamicProviders(dir string) error {
	return fmt.Errorf("dynamic provider loading is not available in this build")
}
