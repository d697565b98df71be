package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
)

type seedFile struct {
	MicroApps []MicroApp `yaml:"microApps"`
}

// ParseApps decodes a YAML seed document.
func ParseApps(data []byte) ([]MicroApp, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, app := range seed.MicroApps {
		if app.ID == "" || app.Name == "" {
			return nil, fmt.Errorf("parse seed: entry %d needs id and name", i)
		}
		if app.Source.URL == "" && app.Source.HTML == "" {
			return nil, fmt.Errorf("parse seed: %s has no source", app.ID)
		}
	}
	return seed.MicroApps, nil
}

// LoadApps reads a seed file, or every *.yaml/*.yml below a directory.
// Later files override earlier ids.
func LoadApps(path string) ([]MicroApp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseApps(data)
	}

	matches, err := doublestar.Glob(os.DirFS(path), "**/*.{yaml,yml}")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	byID := make(map[string]MicroApp)
	var order []string
	for _, match := range matches {
		data, err := os.ReadFile(filepath.Join(path, filepath.FromSlash(match)))
		if err != nil {
			return nil, err
		}
		apps, err := ParseApps(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", match, err)
		}
		for _, app := range apps {
			if _, seen := byID[app.ID]; !seen {
				order = append(order, app.ID)
			}
			byID[app.ID] = app
		}
	}

	apps := make([]MicroApp, 0, len(order))
	for _, id := range order {
		apps = append(apps, byID[id])
	}
	return apps, nil
}
