// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package apkg writes Anki package files for offline runs. An .apkg is a
// zip archive holding a SQLite collection (collection.anki2, schema
// version 11) plus a media manifest. Importing one into Anki is the manual
// fallback when no AnkiConnect endpoint is reachable.
package apkg

import (
	"archive/zip"
	"crypto/sha1"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/recall-engine/internal/identity"
	"github.com/pdiddy/recall-engine/pkg/types"
)

// Model IDs fixed by the Anki ecosystem: importers dedupe note types by ID,
// so reusing the stock IDs merges our notes into existing Basic/Cloze types.
const (
	basicModelID = 1607392319
	clozeModelID = 1607392320
)

const schemaVersion = 11

// fieldSep joins note fields in the flds column.
const fieldSep = "\x1f"

var clozeOrdRe = regexp.MustCompile(`\{\{c(\d+)::`)

// Build writes an .apkg containing the given cards to outputPath. Cards
// keep their deck assignments; decks are created inside the package as
// needed. Note IDs derive from card identities, so rebuilding the package
// from the same cards yields the same notes.
func Build(cards []types.Card, outputPath string) error {
	if len(cards) == 0 {
		return fmt.Errorf("no cards to export")
	}

	tmpDir, err := os.MkdirTemp("", "recall-apkg-")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "collection.anki2")
	if err := writeCollection(dbPath, cards); err != nil {
		return err
	}

	return writeArchive(dbPath, outputPath)
}

func writeCollection(dbPath string, cards []types.Card) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("opening collection db: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	now := time.Now()
	decks := deckSet(cards)

	colModels, err := modelsJSON(now)
	if err != nil {
		return err
	}
	colDecks, err := decksJSON(decks, now)
	if err != nil {
		return err
	}

	_, err = db.Exec(
		`INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		 VALUES (1, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?, ?, '{}')`,
		now.Unix(), now.UnixMilli(), now.UnixMilli(), schemaVersion,
		confJSON, colModels, colDecks, dconfJSON,
	)
	if err != nil {
		return fmt.Errorf("writing col row: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	noteStmt, err := tx.Prepare(
		`INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		 VALUES (?, ?, ?, ?, -1, ?, ?, ?, ?, 0, '')`)
	if err != nil {
		return fmt.Errorf("preparing note insert: %w", err)
	}
	defer noteStmt.Close()

	cardStmt, err := tx.Prepare(
		`INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
		 VALUES (?, ?, ?, ?, ?, -1, 0, 0, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')`)
	if err != nil {
		return fmt.Errorf("preparing card insert: %w", err)
	}
	defer cardStmt.Close()

	cardID := now.UnixMilli()
	for i, card := range cards {
		noteID := noteIDFor(card.Identity)
		fields := orderedFields(card)
		sortField := fields[0]

		_, err = noteStmt.Exec(
			noteID,
			identity.Short(card.Identity),
			modelIDFor(card.Model),
			now.Unix(),
			" "+strings.Join(card.Tags, " ")+" ",
			strings.Join(fields, fieldSep),
			sortField,
			fieldChecksum(sortField),
		)
		if err != nil {
			return fmt.Errorf("inserting note %s: %w", card.Identity, err)
		}

		for _, ord := range cardOrds(card) {
			cardID++
			_, err = cardStmt.Exec(cardID, noteID, decks[card.Deck], ord, now.Unix(), i+1)
			if err != nil {
				return fmt.Errorf("inserting card for %s: %w", card.Identity, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing collection: %w", err)
	}
	return nil
}

// noteIDFor folds the identity into a positive 15-digit integer, stable
// across rebuilds.
func noteIDFor(identity string) int64 {
	digits := identity
	if len(digits) > 15 {
		digits = digits[:15]
	}
	n, err := strconv.ParseInt(digits, 16, 64)
	if err != nil || n <= 0 {
		n = int64(fieldChecksum(identity)) + 1
	}
	return n%1_000_000_000_000_000 + 1
}

func modelIDFor(model string) int64 {
	if model == types.ModelCloze {
		return clozeModelID
	}
	return basicModelID
}

// orderedFields returns the note fields in model order.
func orderedFields(card types.Card) []string {
	fields := card.ModelFields()
	if card.Model == types.ModelCloze {
		return []string{fields["Text"], fields["Back Extra"]}
	}
	return []string{fields["Front"], fields["Back"]}
}

// cardOrds lists the template ordinals a note generates: a Basic note has
// one card, a Cloze note one per distinct cloze index.
func cardOrds(card types.Card) []int {
	if card.Model != types.ModelCloze {
		return []int{0}
	}
	seen := map[int]bool{}
	var ords []int
	for _, m := range clozeOrdRe.FindAllStringSubmatch(card.ModelFields()["Text"], -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || seen[n] {
			continue
		}
		seen[n] = true
		ords = append(ords, n-1)
	}
	if len(ords) == 0 {
		ords = []int{0}
	}
	return ords
}

// fieldChecksum is the first 8 hex digits of SHA-1 over the sort field, as
// Anki computes it for duplicate detection.
func fieldChecksum(s string) uint64 {
	sum := sha1.Sum([]byte(s))
	n, _ := strconv.ParseUint(fmt.Sprintf("%x", sum)[:8], 16, 64)
	return n
}

// deckSet assigns a stable positive ID to every deck name in the batch.
func deckSet(cards []types.Card) map[string]int64 {
	decks := make(map[string]int64)
	for _, c := range cards {
		if _, ok := decks[c.Deck]; !ok {
			decks[c.Deck] = deckIDFor(c.Deck)
		}
	}
	return decks
}

func deckIDFor(name string) int64 {
	sum := sha1.Sum([]byte(name))
	var n int64
	for _, b := range sum[:7] {
		n = n<<8 | int64(b)
	}
	return n%9_000_000_000_000 + 1_000_000_000
}

func writeArchive(dbPath, outputPath string) error {
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputPath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	dbFile, err := os.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening collection db: %w", err)
	}
	defer dbFile.Close()

	w, err := zw.Create("collection.anki2")
	if err != nil {
		return fmt.Errorf("adding collection to archive: %w", err)
	}
	if _, err := io.Copy(w, dbFile); err != nil {
		return fmt.Errorf("writing collection to archive: %w", err)
	}

	// No media support; the manifest is still mandatory.
	mw, err := zw.Create("media")
	if err != nil {
		return fmt.Errorf("adding media manifest: %w", err)
	}
	if _, err := mw.Write([]byte("{}")); err != nil {
		return fmt.Errorf("writing media manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return out.Close()
}

func modelsJSON(now time.Time) (string, error) {
	basic := modelMap(basicModelID, "Basic", 0, now,
		[]string{"Front", "Back"},
		[]map[string]any{{
			"name": "Card 1", "ord": 0,
			"qfmt": "{{Front}}",
			"afmt": "{{FrontSide}}<hr id=\"answer\">{{Back}}",
		}})
	cloze := modelMap(clozeModelID, "Cloze", 1, now,
		[]string{"Text", "Back Extra"},
		[]map[string]any{{
			"name": "Cloze", "ord": 0,
			"qfmt": "{{cloze:Text}}",
			"afmt": "{{cloze:Text}}<br>{{Back Extra}}",
		}})

	data, err := json.Marshal(map[string]any{
		strconv.Itoa(basicModelID): basic,
		strconv.Itoa(clozeModelID): cloze,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling models: %w", err)
	}
	return string(data), nil
}

func modelMap(id int64, name string, typ int, now time.Time, fieldNames []string, tmpls []map[string]any) map[string]any {
	flds := make([]map[string]any, len(fieldNames))
	for i, fn := range fieldNames {
		flds[i] = map[string]any{
			"name": fn, "ord": i, "sticky": false, "rtl": false,
			"font": "Arial", "size": 20, "media": []any{},
		}
	}
	return map[string]any{
		"id": id, "name": name, "type": typ,
		"mod": now.Unix(), "usn": -1, "did": 1,
		"flds": flds, "tmpls": tmpls, "sortf": 0,
		"css":       ".card { font-family: arial; font-size: 20px; text-align: center; color: black; background-color: white; }",
		"latexPre":  "\\documentclass[12pt]{article}\n\\special{papersize=3in,5in}\n\\usepackage{amssymb,amsmath}\n\\pagestyle{empty}\n\\begin{document}\n",
		"latexPost": "\\end{document}",
		"req":       []any{[]any{0, "all", []any{0}}},
		"tags":      []any{},
		"vers":      []any{},
	}
}

func decksJSON(decks map[string]int64, now time.Time) (string, error) {
	all := map[string]any{
		"1": deckMap(1, "Default", now),
	}
	for name, id := range decks {
		all[strconv.FormatInt(id, 10)] = deckMap(id, name, now)
	}
	data, err := json.Marshal(all)
	if err != nil {
		return "", fmt.Errorf("marshaling decks: %w", err)
	}
	return string(data), nil
}

func deckMap(id int64, name string, now time.Time) map[string]any {
	return map[string]any{
		"id": id, "name": name, "mod": now.Unix(), "usn": -1,
		"collapsed": false, "desc": "", "dyn": 0, "conf": 1,
		"extendNew": 0, "extendRev": 0,
		"newToday": []any{0, 0}, "revToday": []any{0, 0},
		"lrnToday": []any{0, 0}, "timeToday": []any{0, 0},
	}
}

const confJSON = `{"activeDecks":[1],"curDeck":1,"newSpread":0,"collapseTime":1200,"timeLim":0,"estTimes":true,"dueCounts":true,"curModel":"1607392319","nextPos":1,"sortType":"noteFld","sortBackwards":false,"addToCur":true}`

const dconfJSON = `{"1":{"id":1,"name":"Default","replayq":true,"lapse":{"leechFails":8,"minInt":1,"delays":[10],"leechAction":0,"mult":0},"rev":{"perDay":100,"ivlFct":1,"maxIvl":36500,"ease4":1.3,"bury":true,"fuzz":0.05},"timer":0,"maxTaken":60,"usn":-1,"new":{"perDay":20,"delays":[1,10],"separate":true,"ints":[1,4,7],"initialFactor":2500,"bury":true,"order":1},"mod":0,"autoplay":true}}`

const schemaSQL = `
CREATE TABLE col (
  id integer primary key,
  crt integer not null,
  mod integer not null,
  scm integer not null,
  ver integer not null,
  dty integer not null,
  usn integer not null,
  ls integer not null,
  conf text not null,
  models text not null,
  decks text not null,
  dconf text not null,
  tags text not null
);
CREATE TABLE notes (
  id integer primary key,
  guid text not null,
  mid integer not null,
  mod integer not null,
  usn integer not null,
  tags text not null,
  flds text not null,
  sfld integer not null,
  csum integer not null,
  flags integer not null,
  data text not null
);
CREATE TABLE cards (
  id integer primary key,
  nid integer not null,
  did integer not null,
  ord integer not null,
  mod integer not null,
  usn integer not null,
  type integer not null,
  queue integer not null,
  due integer not null,
  ivl integer not null,
  factor integer not null,
  reps integer not null,
  lapses integer not null,
  left integer not null,
  odue integer not null,
  odid integer not null,
  flags integer not null,
  data text not null
);
CREATE TABLE revlog (
  id integer primary key,
  cid integer not null,
  usn integer not null,
  ease integer not null,
  ivl integer not null,
  lastIvl integer not null,
  factor integer not null,
  time integer not null,
  type integer not null
);
CREATE TABLE graves (
  usn integer not null,
  oid integer not null,
  type integer not null
);
CREATE INDEX ix_notes_usn ON notes (usn);
CREATE INDEX ix_cards_usn ON cards (usn);
CREATE INDEX ix_revlog_usn ON revlog (usn);
CREATE INDEX ix_cards_nid ON cards (nid);
CREATE INDEX ix_cards_sched ON cards (did, queue, due);
CREATE INDEX ix_revlog_cid ON revlog (cid);
CREATE INDEX ix_notes_csum ON notes (csum);
`
