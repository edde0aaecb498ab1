// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/recall-engine/pkg/types"
)

// manifestNames are the accepted file names at the repository root, in
// lookup order.
var manifestNames = []string{"recall.yaml", "recall.yml"}

const (
	defaultDailyNewLimit        = 8
	defaultMaxCardsPerBlock     = 3
	defaultMaxRetries           = 3
	defaultNeighborContextLines = 20
)

// FindManifest locates the manifest file in repo.
func FindManifest(repo string) (string, error) {
	for _, name := range manifestNames {
		path := filepath.Join(repo, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no recall.yaml found in %s", repo)
}

// LoadManifest reads and validates the manifest, filling defaults for
// omitted settings.
func LoadManifest(path string) (*types.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m types.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	if len(m.Courses) == 0 {
		return nil, fmt.Errorf("manifest %s defines no courses", path)
	}
	for name, course := range m.Courses {
		if len(course.Paths) == 0 {
			return nil, fmt.Errorf("course %q has no paths", name)
		}
		if course.Deck == "" {
			return nil, fmt.Errorf("course %q has no deck", name)
		}
		if course.Priority == 0 {
			course.Priority = 1
			m.Courses[name] = course
		}
	}

	if len(m.Kinds) == 0 {
		m.Kinds = types.DefaultKinds
	}
	if m.DailyNewLimit <= 0 {
		m.DailyNewLimit = defaultDailyNewLimit
	}
	if m.Assistant.MaxCardsPerBlock <= 0 {
		m.Assistant.MaxCardsPerBlock = defaultMaxCardsPerBlock
	}
	if m.Assistant.MaxRetries <= 0 {
		m.Assistant.MaxRetries = defaultMaxRetries
	}
	if m.Assistant.NeighborContextLines <= 0 {
		m.Assistant.NeighborContextLines = defaultNeighborContextLines
	}

	return &m, nil
}
