package network

import (
	"fmt"
	"time"
)

// DefaultURL is the public Library of Babel endpoint.
const DefaultURL = "https://libraryofbabel.info"

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "libbabel-go/1.0"

// DefaultTimeout bounds each HTTP request.
const DefaultTimeout = 60 * time.Second

// ClientConfig holds the connection parameters for a Babel store endpoint.
type ClientConfig struct {
	URL       string        `json:"url"`
	UserAgent string        `json:"user_agent"`
	Timeout   time.Duration `json:"timeout"`
	Preset    string        `json:"preset"`
}

// StorePresets contains default configurations for known endpoints.
var StorePresets = map[string]ClientConfig{
	"babel": {URL: DefaultURL, UserAgent: DefaultUserAgent, Timeout: DefaultTimeout},
}

// ResolveConfig merges client configuration from three sources with decreasing priority:
//  1. CLI flags (highest priority)
//  2. Environment variables (BABEL_URL, BABEL_USER_AGENT, BABEL_TIMEOUT)
//  3. Store presets (lowest priority)
//
// An unknown preset has no defaults, so its URL must come from flags or
// the environment.
func ResolveConfig(flags *ClientConfig, env map[string]string, preset string) (*ClientConfig, error) {
	result := ClientConfig{Preset: preset, UserAgent: DefaultUserAgent, Timeout: DefaultTimeout}

	// Layer 1: start with preset defaults if available.
	if p, ok := StorePresets[preset]; ok {
		result = p
		result.Preset = preset
	}

	// Layer 2: environment variables override preset defaults.
	if env != nil {
		if v, ok := env["BABEL_URL"]; ok && v != "" {
			result.URL = v
		}
		if v, ok := env["BABEL_USER_AGENT"]; ok && v != "" {
			result.UserAgent = v
		}
		if v, ok := env["BABEL_TIMEOUT"]; ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return nil, fmt.Errorf("network: invalid BABEL_TIMEOUT %q", v)
			}
			result.Timeout = d
		}
	}

	// Layer 3: CLI flags have highest priority.
	if flags != nil {
		if flags.URL != "" {
			result.URL = flags.URL
		}
		if flags.UserAgent != "" {
			result.UserAgent = flags.UserAgent
		}
		if flags.Timeout > 0 {
			result.Timeout = flags.Timeout
		}
	}

	if result.URL == "" {
		return nil, fmt.Errorf("network: store %q requires an explicit URL (set --store-url, BABEL_URL, or config file)", preset)
	}
	return &result, nil
}
