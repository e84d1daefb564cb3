package config

import (
	"fmt"
	"os"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration
// including file accessibility and shell availability for publish
// commands. The configPath argument specifies the config file location to
// validate (empty string skips the config file check). This calls
// Validate() first for basic structural validation, then adds I/O checks.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
		c.validateChannels(),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	for name, ch := range c.Channels {
		if !ch.Publishable() && name != "book-section" {
			warnings = append(warnings, ValidationWarning{
				Category: "Channels",
				Item:     name,
				Message:  "channel has no publish command; drafts can only be waived",
			})
		}
	}

	return warnings
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

// validateChannels cross-checks per-channel settings that Validate()
// cannot express as a single-field rule.
func (c *Config) validateChannels() error {
	var errs criterio.FieldErrorsBuilder
	for name, ch := range c.Channels {
		field := fmt.Sprintf("channels[%q]", name)

		if ch.Publishable() && ch.Window > 0 && ch.Timeout.Std() > ch.Window.Std() {
			errs = errs.Append(field, fmt.Errorf("timeout %s exceeds rate window %s", ch.Timeout.Std(), ch.Window.Std()))
		}
		if ch.MaxAttempts > 10 {
			errs = errs.Append(field, fmt.Errorf("max_attempts %d is unreasonably high (limit 10)", ch.MaxAttempts))
		}
	}
	return errs.ToError()
}
