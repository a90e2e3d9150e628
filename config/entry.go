package config

import (
	"strconv"
	"strings"

	"github.com/ochinchina/go-ini"
)

// Entry is one section of the settings file
type Entry struct {
	ConfigDir string
	Name      string
	keyValues map[string]string
}

// NewEntry creates an empty Entry for a file in configDir
func NewEntry(configDir string) *Entry {
	return &Entry{ConfigDir: configDir, keyValues: make(map[string]string)}
}

func (c *Entry) parse(section *ini.Section) {
	c.Name = section.Name
	for _, key := range section.Keys() {
		c.keyValues[key.Name()] = strings.TrimSpace(key.ValueWithDefault(""))
	}
}

// HasParameter checks if key (parameter) has value
func (c *Entry) HasParameter(key string) bool {
	_, ok := c.keyValues[key]
	return ok
}

// GetString returns value of the key as a string. %(here)s is replaced with
// the directory of the settings file.
func (c *Entry) GetString(key string, defValue string) string {
	s, ok := c.keyValues[key]
	if !ok || s == "" {
		return defValue
	}
	return strings.ReplaceAll(s, "%(here)s", c.ConfigDir)
}

// GetBool gets value of key as bool
func (c *Entry) GetBool(key string, defValue bool) bool {
	value, ok := c.keyValues[key]
	if ok {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defValue
}

func toInt(s string, factor int, defValue int) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err == nil {
		return i * factor
	}
	return defValue
}

// GetInt gets value of the key as int
func (c *Entry) GetInt(key string, defValue int) int {
	value, ok := c.keyValues[key]
	if ok {
		return toInt(value, 1, defValue)
	}
	return defValue
}

// GetStringArray splits the value of key with sep, dropping empty items
func (c *Entry) GetStringArray(key string, sep string, defValue []string) []string {
	s, ok := c.keyValues[key]
	if !ok || s == "" {
		return defValue
	}
	result := make([]string, 0)
	for _, item := range strings.Split(s, sep) {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

// GetBytes returns value of the key as bytes setting.
//
//	audit_max_bytes=1MB
//	audit_max_bytes=1GB
//	audit_max_bytes=1KB
//	audit_max_bytes=1024
func (c *Entry) GetBytes(key string, defValue int) int {
	v, ok := c.keyValues[key]
	if ok {
		if len(v) > 2 {
			switch v[len(v)-2:] {
			case "MB":
				return toInt(v[:len(v)-2], 1024*1024, defValue)
			case "GB":
				return toInt(v[:len(v)-2], 1024*1024*1024, defValue)
			case "KB":
				return toInt(v[:len(v)-2], 1024, defValue)
			}
		}
		return toInt(v, 1, defValue)
	}
	return defValue
}
