package config

import "fmt"

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string `json:"driver"`
	DSN         string `json:"dsn"`
	AutoMigrate bool   `json:"auto_migrate"`
}

// SetDefaults applies sane defaults.
func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.DSN == "" && c.Driver == "sqlite" {
		c.DSN = "ndf.db"
	}
}

// Validate checks mandatory fields.
func (c DatabaseConfig) Validate() error {
	if c.Driver != "sqlite" && c.Driver != "postgres" {
		return fmt.Errorf("unknown driver %s", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	return nil
}

// StorageConfig locates attachment files.
type StorageConfig struct {
	Root        string `json:"root"`
	MaxUploadMB int    `json:"max_upload_mb"`
}

// SetDefaults applies sane defaults.
func (c *StorageConfig) SetDefaults() {
	if c.Root == "" {
		c.Root = "data/attachments"
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 10
	}
}

// Validate checks mandatory fields.
func (c StorageConfig) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	return nil
}

// MaxUploadBytes converts MaxUploadMB to bytes.
func (c StorageConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
