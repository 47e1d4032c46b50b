package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ApplyOverride writes a single configuration value to the config file at
// path, creating the file if it does not exist. Existing keys and comments
// in unrelated sections are preserved.
//
// This is the write path for approved threshold recommendations. It is only
// ever invoked after an explicit approval decision; nothing in the optimizer
// calls it.
func ApplyOverride(path, key string, value any) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid config key %q", key)
		}
	}

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	default:
		return fmt.Errorf("read config file: %w", err)
	}

	setNested(doc, parts, value)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Temp-then-rename so a crash mid-write never truncates the config.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}

// setNested sets doc[parts[0]][parts[1]]...[parts[n-1]] = value, creating
// intermediate maps as needed. Non-map intermediates are replaced.
func setNested(doc map[string]any, parts []string, value any) {
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}
