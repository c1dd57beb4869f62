package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSources is returned when the sources file cannot be used.
var ErrInvalidSources = errors.New("invalid sources file")

// Source describes one external calendar in the sources file.
type Source struct {
	ID           string   `yaml:"id"`
	Type         string   `yaml:"type"`
	URL          string   `yaml:"url,omitempty"`
	Username     string   `yaml:"username,omitempty"`
	Password     string   `yaml:"password,omitempty"`
	Calendars    []string `yaml:"calendars,omitempty"`
	RefreshToken string   `yaml:"refresh_token,omitempty"`
	Origin       string   `yaml:"origin,omitempty"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the sources file at path. ${VAR} references are
// expanded from the environment so secrets can stay out of the file.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes a sources document. Every source needs an id and a
// type, and ids must be unique.
func ParseSources(data []byte) ([]Source, error) {
	var file sourcesFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSources, err)
	}

	seen := make(map[string]bool, len(file.Sources))
	for i, src := range file.Sources {
		if src.ID == "" {
			return nil, fmt.Errorf("%w: source %d has no id", ErrInvalidSources, i)
		}
		if src.Type == "" {
			return nil, fmt.Errorf("%w: source %s has no type", ErrInvalidSources, src.ID)
		}
		if seen[src.ID] {
			return nil, fmt.Errorf("%w: duplicate source id %s", ErrInvalidSources, src.ID)
		}
		seen[src.ID] = true
	}
	return file.Sources, nil
}
