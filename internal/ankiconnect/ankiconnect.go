// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ankiconnect is a minimal client for the AnkiConnect add-on's
// HTTP API. Every call posts a JSON envelope {action, version, params} and
// receives {result, error}; the add-on answers 200 even on failures, so
// errors surface through the envelope's error field.
package ankiconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pdiddy/recall-engine/internal/httputil"
	"github.com/pdiddy/recall-engine/pkg/types"
)

const (
	// DefaultURL is where a local Anki with the add-on listens.
	DefaultURL = "http://127.0.0.1:8765"

	defaultTimeout = 30 * time.Second

	// apiVersion is the AnkiConnect protocol version this client speaks.
	apiVersion = 6
)

// Client talks to one AnkiConnect endpoint.
type Client struct {
	url    string
	client *http.Client
}

// New builds a client from the sync config, filling in defaults for an
// empty URL or zero timeout.
func New(cfg types.SyncConfig) *Client {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{url: url, client: &http.Client{Timeout: timeout}}
}

// envelope is the request body for every AnkiConnect action.
type envelope struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params,omitempty"`
}

// reply is the response body for every AnkiConnect action.
type reply struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// invoke posts one action and decodes the result into out (when non-nil).
func (c *Client) invoke(ctx context.Context, action string, params, out any) error {
	body, err := json.Marshal(envelope{Action: action, Version: apiVersion, Params: params})
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(ctx, c.client, req, 3)
	if err != nil {
		return fmt.Errorf("calling AnkiConnect %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("AnkiConnect %s returned HTTP %d", action, resp.StatusCode)
	}

	var r reply
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("decoding %s response: %w", action, err)
	}
	if r.Error != nil && *r.Error != "" {
		return fmt.Errorf("AnkiConnect %s: %s", action, *r.Error)
	}
	if out != nil {
		if err := json.Unmarshal(r.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", action, err)
		}
	}
	return nil
}

// Ping verifies the endpoint is reachable and speaks a compatible protocol
// version.
func (c *Client) Ping(ctx context.Context) error {
	var version int
	if err := c.invoke(ctx, "version", nil, &version); err != nil {
		return err
	}
	if version < apiVersion {
		return fmt.Errorf("AnkiConnect version %d is older than required %d", version, apiVersion)
	}
	return nil
}

// CreateDeck creates the deck if it does not exist. Existing decks are not
// an error.
func (c *Client) CreateDeck(ctx context.Context, name string) error {
	return c.invoke(ctx, "createDeck", map[string]string{"deck": name}, nil)
}

// Note is the AnkiConnect representation of a note to add.
type Note struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
	Options   noteOptions       `json:"options"`
}

type noteOptions struct {
	AllowDuplicate bool `json:"allowDuplicate"`
}

// NoteFromCard converts a card into the add-note wire shape. Duplicates are
// allowed because identity, not field text, decides whether two cards are
// the same.
func NoteFromCard(card types.Card) Note {
	tags := card.Tags
	if tags == nil {
		tags = []string{}
	}
	return Note{
		DeckName:  card.Deck,
		ModelName: card.Model,
		Fields:    card.ModelFields(),
		Tags:      tags,
		Options:   noteOptions{AllowDuplicate: true},
	}
}

// AddNotes adds the notes in one call. The result has one entry per note:
// the new note ID, or nil when that note was rejected.
func (c *Client) AddNotes(ctx context.Context, notes []Note) ([]*int64, error) {
	var ids []*int64
	err := c.invoke(ctx, "addNotes", map[string]any{"notes": notes}, &ids)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(notes) {
		return nil, fmt.Errorf("addNotes returned %d results for %d notes", len(ids), len(notes))
	}
	return ids, nil
}

// UpdateNoteFields replaces the fields of an existing note.
func (c *Client) UpdateNoteFields(ctx context.Context, noteID int64, fields map[string]string) error {
	params := map[string]any{
		"note": map[string]any{
			"id":     noteID,
			"fields": fields,
		},
	}
	return c.invoke(ctx, "updateNoteFields", params, nil)
}

// AddTags attaches a space-separated tag string to the given notes.
func (c *Client) AddTags(ctx context.Context, noteIDs []int64, tags string) error {
	params := map[string]any{
		"notes": noteIDs,
		"tags":  tags,
	}
	return c.invoke(ctx, "addTags", params, nil)
}

// FindNotes returns the note IDs matching an Anki search query.
func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	if err := c.invoke(ctx, "findNotes", map[string]string{"query": query}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// NoteInfo describes an existing note as reported by the add-on.
type NoteInfo struct {
	NoteID    int64                `json:"noteId"`
	ModelName string               `json:"modelName"`
	Tags      []string             `json:"tags"`
	Fields    map[string]NoteField `json:"fields"`
}

// NoteField is one field value with its display order.
type NoteField struct {
	Value string `json:"value"`
	Order int    `json:"order"`
}

// NotesInfo fetches full details for the given note IDs.
func (c *Client) NotesInfo(ctx context.Context, noteIDs []int64) ([]NoteInfo, error) {
	var infos []NoteInfo
	if err := c.invoke(ctx, "notesInfo", map[string]any{"notes": noteIDs}, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// DeleteNotes removes the given notes and their cards.
func (c *Client) DeleteNotes(ctx context.Context, noteIDs []int64) error {
	return c.invoke(ctx, "deleteNotes", map[string]any{"notes": noteIDs}, nil)
}
