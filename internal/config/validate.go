package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateCLI(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.TimeoutMS < 0 {
		return errors.New("session.timeout_ms must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateCLI() error {
	switch c.CLI.Format {
	case "table", "batch", "json", "yaml":
	default:
		return fmt.Errorf("cli.format must be one of table, batch, json, yaml; got %q", c.CLI.Format)
	}
	return nil
}
