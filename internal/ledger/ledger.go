// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists the map from block identities to sync metadata
// across runs, together with the last-processed commit cursor and an audit
// trail of assistant responses.
//
// The ledger is not internally synchronized: one process, one writer per run.
// Callers that share a Ledger across goroutines must serialize access
// themselves.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const formatVersion = "1"

// Entry is the durable sync metadata for one identity. An entry exists iff
// the identity has been successfully synced at least once.
type Entry struct {
	// ExternalID is the note ID assigned by the sync backend. Nil when the
	// card was exported offline and no backend ID exists.
	ExternalID *int64 `json:"external_id"`

	// Deck is the destination deck the card was synced into.
	Deck string `json:"deck"`

	// ContentDigest is the digest of the card content as of the last sync.
	ContentDigest string `json:"content_digest"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditRecord keeps the most recent assistant response for an identity or
// batch key, for traceability.
type AuditRecord struct {
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Model     string          `json:"model"`
	Provider  string          `json:"provider"`
}

// document is the persisted shape of the ledger file.
type document struct {
	Version string                 `json:"version"`
	Cursor  string                 `json:"cursor"`
	Entries map[string]Entry       `json:"entries"`
	Audit   map[string]AuditRecord `json:"audit"`
}

// Stats summarizes ledger contents for reporting. Decks maps each deck name
// to its entry count.
type Stats struct {
	Entries int            `json:"entries" yaml:"entries"`
	Cursor  string         `json:"cursor" yaml:"cursor"`
	Decks   map[string]int `json:"decks" yaml:"decks"`
}

// Ledger is an in-memory view of the persisted document, bound to its file
// path. Mutations are in-memory only until Save.
type Ledger struct {
	path string
	doc  document
}

func emptyDocument() document {
	return document{
		Version: formatVersion,
		Entries: map[string]Entry{},
		Audit:   map[string]AuditRecord{},
	}
}

// Load reads the ledger at path. A missing or corrupt file resets to an
// empty ledger and reports what happened through the returned warnings; Load
// never fails. This keeps a damaged state file from blocking a run — at
// worst every block reconciles as a create against the backend's duplicate
// handling.
func Load(path string) (*Ledger, []string) {
	l := &Ledger{path: path, doc: emptyDocument()}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return l, []string{fmt.Sprintf("could not read ledger %s: %v (starting fresh)", path, err)}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return l, []string{fmt.Sprintf("ledger %s is corrupt: %v (starting fresh)", path, err)}
	}
	if doc.Entries == nil {
		doc.Entries = map[string]Entry{}
	}
	if doc.Audit == nil {
		doc.Audit = map[string]AuditRecord{}
	}
	if doc.Version == "" {
		doc.Version = formatVersion
	}
	l.doc = doc
	return l, nil
}

// Save writes the ledger atomically: the document goes to a temporary file in
// the same directory which is then renamed into place, so a crash mid-write
// never leaves a half-written ledger behind.
func (l *Ledger) Save() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}

	data, err := json.MarshalIndent(l.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing ledger temp file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing ledger file: %w", err)
	}
	return nil
}

// Path returns the file the ledger persists to.
func (l *Ledger) Path() string { return l.path }

// IsKnown reports whether an identity has been synced before.
func (l *Ledger) IsKnown(id string) bool {
	_, ok := l.doc.Entries[id]
	return ok
}

// ContentChanged reports whether a known identity's stored digest differs
// from digest. Unknown identities report false; they are creates, not edits.
func (l *Ledger) ContentChanged(id, digest string) bool {
	e, ok := l.doc.Entries[id]
	if !ok {
		return false
	}
	return e.ContentDigest != digest
}

// Get returns the entry for id.
func (l *Ledger) Get(id string) (Entry, bool) {
	e, ok := l.doc.Entries[id]
	return e, ok
}

// ExternalID returns the backend note ID for id, or nil when the identity is
// unknown or was synced offline.
func (l *Ledger) ExternalID(id string) *int64 {
	e, ok := l.doc.Entries[id]
	if !ok {
		return nil
	}
	return e.ExternalID
}

// Upsert records a successful sync for id. CreatedAt is preserved on update.
func (l *Ledger) Upsert(id string, externalID *int64, deck, digest string) {
	now := time.Now().UTC()
	e, ok := l.doc.Entries[id]
	if !ok {
		e = Entry{CreatedAt: now}
	}
	e.ExternalID = externalID
	e.Deck = deck
	e.ContentDigest = digest
	e.UpdatedAt = now
	l.doc.Entries[id] = e
}

// Remove deletes the given identities and returns how many were present.
func (l *Ledger) Remove(ids []string) int {
	removed := 0
	for _, id := range ids {
		if _, ok := l.doc.Entries[id]; ok {
			delete(l.doc.Entries, id)
			removed++
		}
	}
	return removed
}

// IDs returns all tracked identities in sorted order.
func (l *Ledger) IDs() []string {
	ids := make([]string, 0, len(l.doc.Entries))
	for id := range l.doc.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Cursor returns the last processed commit pointer, or "" when no run has
// completed yet.
func (l *Ledger) Cursor() string { return l.doc.Cursor }

// SetCursor records the commit pointer of the run in progress.
func (l *Ledger) SetCursor(c string) { l.doc.Cursor = c }

// RecordAudit stores the most recent assistant response under key (an
// identity or a batch key such as "batch_<sha>"), overwriting any prior
// record for the same key.
func (l *Ledger) RecordAudit(key string, payload any, model, provider string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding audit payload for %s: %w", key, err)
	}
	l.doc.Audit[key] = AuditRecord{
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		Model:     model,
		Provider:  provider,
	}
	return nil
}

// Audit returns the stored assistant response for key.
func (l *Ledger) Audit(key string) (AuditRecord, bool) {
	r, ok := l.doc.Audit[key]
	return r, ok
}

// Clear resets the ledger to its empty default in memory.
func (l *Ledger) Clear() {
	l.doc = emptyDocument()
}

// Stats summarizes the ledger for status output.
func (l *Ledger) Stats() Stats {
	decks := map[string]int{}
	for _, e := range l.doc.Entries {
		if e.Deck != "" {
			decks[e.Deck]++
		}
	}
	return Stats{Entries: len(l.doc.Entries), Cursor: l.doc.Cursor, Decks: decks}
}
