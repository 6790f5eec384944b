package sharecrypt

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Config configures a Vault session.
type Config struct {
	// Paths holds the directory for the durable session store. Leave empty
	// for an ephemeral-only session ("keep me signed in" unchecked).
	Paths []string

	// MinimumFreeSpace is the free disk space in GB required on the durable
	// store's volume before it is opened.
	MinimumFreeSpace int

	// Logger receives structured logs. A default logger is created when nil.
	Logger *logrus.Logger
}

func (c *Config) checkConfig() error {
	if c == nil {
		return fmt.Errorf("config must not be nil")
	}
	if len(c.Paths) > 1 {
		return fmt.Errorf("at most one durable store path is supported, got %d", len(c.Paths))
	}
	if c.MinimumFreeSpace < 0 {
		return fmt.Errorf("minimum free space must not be negative")
	}
	return nil
}
