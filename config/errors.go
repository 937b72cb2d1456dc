// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidStore indicates neither a known store preset nor a store URL is set.
	ErrInvalidStore = errors.New("config: unknown store (set a known preset or storeurl)")

	// ErrInvalidStoreURL indicates the store URL is malformed.
	ErrInvalidStoreURL = errors.New("config: invalid store URL")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrInvalidTransfer indicates a retry, timing or page budget setting is out of range.
	ErrInvalidTransfer = errors.New("config: invalid transfer setting")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")
)
