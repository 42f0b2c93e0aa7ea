package storage

import (
	"fmt"
	"os"
)

// Storage drivers.
const (
	DriverFS     = "fs"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Open creates the provider selected by driver. For DriverFS the directory
// is created if missing.
func Open(driver, dir, sqlitePath string) (Provider, error) {
	switch driver {
	case DriverFS, "":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
		return NewFS(dir)
	case DriverSQLite:
		return OpenSQLite(sqlitePath)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
