// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and saves the babelstore configuration file, a
// plain key = value format with # comments.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings shared by every babelstore command.
type Config struct {
	DataDir     string        // root for metadata, page mirror and catalog
	Store       string        // store preset name
	StoreURL    string        // overrides the preset URL when set
	LogLevel    string        // debug, info, warn or error
	LogFile     string        // empty logs to stderr
	MaxAttempts int           // store attempts per chunk
	RetryDelay  time.Duration // backoff after the first failed attempt
	Throttle    time.Duration // pause between stored chunks
	Timeout     time.Duration // bound on each store call
	PageBudget  int           // encoded length chunks are sized against
	Strict      bool          // abort downloads on a chunk digest mismatch
	PrivKey     string        // PEM private key for signing records
	PubKey      string        // PEM public key for verifying records
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DataDir:     DefaultDataDir(),
		Store:       "babel",
		LogLevel:    "info",
		MaxAttempts: 4,
		RetryDelay:  2 * time.Second,
		Throttle:    1500 * time.Millisecond,
		Timeout:     60 * time.Second,
		PageBudget:  3000,
	}
}

// DefaultDataDir returns ~/.babelstore, or .babelstore when the home
// directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".babelstore"
	}
	return filepath.Join(home, ".babelstore")
}

// ConfigPath returns the configuration file path inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// MetadataDir returns where uploaded file records are saved.
func (c Config) MetadataDir() string { return filepath.Join(c.DataDir, "metadata") }

// MirrorDir returns the local page mirror directory.
func (c Config) MirrorDir() string { return filepath.Join(c.DataDir, "pages") }

// CatalogPath returns the catalog database path.
func (c Config) CatalogPath() string { return filepath.Join(c.DataDir, "catalog.db") }

// LoadConfig reads the configuration at path. Keys absent from the file
// keep their defaults; unknown keys are ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := cfg.set(key, value); err != nil {
			return cfg, fmt.Errorf("%w: line %d: %w", ErrInvalidConfigLine, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read: %w", err)
	}
	return cfg, nil
}

// parseKeyValue splits a line on its first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func (c *Config) set(key, value string) error {
	var err error
	switch key {
	case "datadir":
		c.DataDir = value
	case "store":
		c.Store = value
	case "storeurl":
		c.StoreURL = value
	case "loglevel":
		c.LogLevel = value
	case "logfile":
		c.LogFile = value
	case "maxattempts":
		c.MaxAttempts, err = strconv.Atoi(value)
	case "retrydelay":
		c.RetryDelay, err = time.ParseDuration(value)
	case "throttle":
		c.Throttle, err = time.ParseDuration(value)
	case "timeout":
		c.Timeout, err = time.ParseDuration(value)
	case "pagebudget":
		c.PageBudget, err = strconv.Atoi(value)
	case "strict":
		c.Strict, err = strconv.ParseBool(value)
	case "privkey":
		c.PrivKey = value
	case "pubkey":
		c.PubKey = value
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// SaveConfig writes cfg to path, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Babelstore Configuration\n\n")
	fmt.Fprintf(&b, "datadir = %s\n", cfg.DataDir)
	fmt.Fprintf(&b, "store = %s\n", cfg.Store)
	fmt.Fprintf(&b, "storeurl = %s\n", cfg.StoreURL)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)
	b.WriteString("\n# Transfer\n")
	fmt.Fprintf(&b, "maxattempts = %d\n", cfg.MaxAttempts)
	fmt.Fprintf(&b, "retrydelay = %s\n", cfg.RetryDelay)
	fmt.Fprintf(&b, "throttle = %s\n", cfg.Throttle)
	fmt.Fprintf(&b, "timeout = %s\n", cfg.Timeout)
	fmt.Fprintf(&b, "pagebudget = %d\n", cfg.PageBudget)
	fmt.Fprintf(&b, "strict = %t\n", cfg.Strict)
	b.WriteString("\n# Signing\n")
	fmt.Fprintf(&b, "privkey = %s\n", cfg.PrivKey)
	fmt.Fprintf(&b, "pubkey = %s\n", cfg.PubKey)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

// NewLogger builds a text logger at cfg.LogLevel writing to stderr, or to
// cfg.LogFile when set. The returned closer releases the log file.
func NewLogger(cfg Config) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
	}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("config: open log file: %w", err)
		}
		w, closer = f, f
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
