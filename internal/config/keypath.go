package config

import (
	"slices"
	"strings"
)

// reservedSegments are refused in key paths since edited config is
// handed back to JavaScript clients over the gateway.
var reservedSegments = []string{"__proto__", "prototype", "constructor"}

// ParseConfigPath splits a dotted key such as "booking.workingHours.start".
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	segs := strings.Split(raw, ".")
	for _, s := range segs {
		if s == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
		if slices.Contains(reservedSegments, s) {
			return nil, &ConfigError{Message: "config path contains blocked key: " + s}
		}
	}
	return segs, nil
}

// parent walks root to the map holding the last segment of path. With
// create set, missing or scalar intermediates are replaced by maps.
func parent(root map[string]any, path []string, create bool) (map[string]any, bool) {
	m := root
	for _, key := range path[:len(path)-1] {
		child, ok := m[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			child = map[string]any{}
			m[key] = child
		}
		m = child
	}
	return m, true
}

// GetValueAtPath looks up path in a decoded YAML document.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	if len(path) == 0 {
		return root, true
	}
	m, ok := parent(root, path, false)
	if !ok {
		return nil, false
	}
	v, ok := m[path[len(path)-1]]
	return v, ok
}

// SetValueAtPath stores value at path, creating maps along the way.
func SetValueAtPath(root map[string]any, path []string, value any) {
	m, _ := parent(root, path, true)
	m[path[len(path)-1]] = value
}

// UnsetValueAtPath deletes the key at path and reports whether it existed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	m, ok := parent(root, path, false)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := m[last]; !ok {
		return false
	}
	delete(m, last)
	return true
}
