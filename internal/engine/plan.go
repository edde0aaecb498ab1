// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/recall-engine/internal/identity"
	"github.com/pdiddy/recall-engine/pkg/types"
)

// planEntry is one decision as shown in dry-run output.
type planEntry struct {
	Action   string `yaml:"action"`
	Identity string `yaml:"identity"`
	Kind     string `yaml:"kind,omitempty"`
	Source   string `yaml:"source,omitempty"`
	Deck     string `yaml:"deck,omitempty"`
	Front    string `yaml:"front,omitempty"`
	Assisted bool   `yaml:"assisted,omitempty"`
	Reason   string `yaml:"reason,omitempty"`
}

type plan struct {
	Decisions []planEntry `yaml:"decisions"`
	Warnings  []string    `yaml:"warnings,omitempty"`
}

// WritePlan renders the decisions as YAML without executing them.
func WritePlan(w io.Writer, decisions []types.Decision, warnings []string) error {
	p := plan{Warnings: warnings}
	for _, d := range decisions {
		entry := planEntry{
			Action:   string(d.Action),
			Identity: identity.Short(d.Identity),
			Kind:     d.Block.Kind,
			Source:   fmt.Sprintf("%s:%d", d.Block.FilePath, d.Block.StartLine),
			Deck:     d.Card.Deck,
			Assisted: d.Assisted,
			Reason:   d.Reasoning,
		}
		if d.Action != types.ActionSkip {
			entry.Front = d.Card.Front()
		}
		p.Decisions = append(p.Decisions, entry)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}
	_, err = w.Write(data)
	return err
}
