package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetByPath retrieves a config value by dot-notation path using the JSON
// field names (e.g. "relay.contextWindow", "relay.routes.0.marker").
func GetByPath(cfg *Config, path string) (any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var current any
	if err := json.Unmarshal(data, &current); err != nil {
		return nil, err
	}

	for _, key := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", current, key)
		}
	}
	return current, nil
}

// Sanitize returns a copy of the config with the bot token masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.Relay.Routes = append([]Route(nil), cfg.Relay.Routes...)
	if c.Telegram.Token != "" {
		c.Telegram.Token = MaskToken(c.Telegram.Token)
	}
	return &c
}

// MaskToken shows the first 4 and last 4 chars and masks the rest.
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
