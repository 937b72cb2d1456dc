// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// knownStores lists store presets that need no URL.
var knownStores = map[string]bool{
	"babel": true,
}

// maxPageBudget is the longest page the store accepts.
const maxPageBudget = 3200

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if cfg.StoreURL == "" && !knownStores[cfg.Store] {
		return ErrInvalidStore
	}
	if cfg.StoreURL != "" {
		if err := validateURL(cfg.StoreURL); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidStoreURL, err)
		}
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	switch {
	case cfg.MaxAttempts < 1:
		return fmt.Errorf("%w: maxattempts must be at least 1", ErrInvalidTransfer)
	case cfg.RetryDelay < 0, cfg.Throttle < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidTransfer)
	case cfg.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidTransfer)
	case cfg.PageBudget < 100 || cfg.PageBudget > maxPageBudget:
		return fmt.Errorf("%w: pagebudget must be between 100 and %d", ErrInvalidTransfer, maxPageBudget)
	}

	return nil
}

// validateURL checks that raw is an absolute http or https URL.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
