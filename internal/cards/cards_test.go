package cards

import (
	"strings"
	"testing"

	"github.com/pdiddy/recall-engine/internal/identity"
	"github.com/pdiddy/recall-engine/pkg/types"
)

func sampleBlock(kind, title string) types.ExtractedBlock {
	body := "A set $M$ with a distance function."
	return types.ExtractedBlock{
		Kind:           kind,
		Title:          title,
		Body:           body,
		NormalizedBody: body,
		FilePath:       "math214/ch1.tex",
		StartLine:      10,
		EndLine:        12,
		Identity:       identity.BlockID(kind, body, "math214/ch1.tex"),
		ContentDigest:  identity.ContentDigest(body),
	}
}

func TestMapStatementKinds(t *testing.T) {
	m := &Mapper{Course: "math214", CommitSHA: "deadbeefcafe"}

	for _, kind := range []string{"definition", "theorem", "lemma", "proposition", "corollary", "remark"} {
		t.Run(kind, func(t *testing.T) {
			b := sampleBlock(kind, "Metric Space")
			card := m.Map(b, "Math::Analysis")

			if card.Model != types.ModelBasic {
				t.Errorf("model = %q", card.Model)
			}
			if card.Deck != "Math::Analysis" {
				t.Errorf("deck = %q", card.Deck)
			}
			if card.Identity != b.Identity {
				t.Error("card identity differs from block identity")
			}
			if !strings.Contains(card.Front(), "Metric Space") {
				t.Errorf("front lacks title: %q", card.Front())
			}
			if !strings.Contains(card.Back(), "$M$") {
				t.Errorf("back lost math: %q", card.Back())
			}
			if !strings.Contains(card.Back(), "math214/ch1.tex:10") {
				t.Errorf("back lacks source attribution: %q", card.Back())
			}
		})
	}
}

func TestMapExample(t *testing.T) {
	m := &Mapper{Course: "math214"}
	card := m.Map(sampleBlock("example", ""), "Deck")

	if !strings.Contains(card.Front(), "What does this example demonstrate?") {
		t.Errorf("example front = %q", card.Front())
	}
}

func TestMapUnknownKindFallsBack(t *testing.T) {
	m := &Mapper{}
	card := m.Map(sampleBlock("exercise", "Problem 3"), "Deck")
	if !strings.Contains(card.Front(), "Exercise: Problem 3") {
		t.Errorf("generic front = %q", card.Front())
	}
}

func TestMapUntitledFrontUsesFirstSentence(t *testing.T) {
	m := &Mapper{}
	card := m.Map(sampleBlock("definition", ""), "Deck")
	if !strings.Contains(card.Front(), "A set $M$ with a distance function.") {
		t.Errorf("front = %q", card.Front())
	}
}

func TestTags(t *testing.T) {
	m := &Mapper{Course: "math214", CommitSHA: "deadbeefcafebabe"}
	card := m.Map(sampleBlock("definition", "T"), "Deck")

	for _, want := range []string{
		"auto", "from-tex", "course:math214", "commit:deadbeef",
		"kind:definition", "file:math214_ch1_tex",
	} {
		if !contains(card.Tags, want) {
			t.Errorf("tags %v missing %q", card.Tags, want)
		}
	}
}

func TestDerivedStableIdentity(t *testing.T) {
	m := &Mapper{Course: "math214"}
	b := sampleBlock("definition", "")

	c1 := m.Derived(b, "Deck", types.ModelBasic, "What is a metric?", "A distance function.", nil)
	c2 := m.Derived(b, "Deck", types.ModelBasic, "What is a metric?", "A distance function.", nil)
	if c1.Identity != c2.Identity {
		t.Error("same derived content produced different identities")
	}
	if c1.Identity == b.Identity {
		t.Error("derived identity must differ from block identity")
	}

	c3 := m.Derived(b, "Deck", types.ModelBasic, "Different front?", "A distance function.", nil)
	if c3.Identity == c1.Identity {
		t.Error("different derived content shares an identity")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		card    types.Card
		wantErr bool
	}{
		{
			name:    "valid basic",
			card:    types.Card{Model: types.ModelBasic, Fields: map[string]string{"Front": "Q", "Back": "A"}},
			wantErr: false,
		},
		{
			name:    "empty front",
			card:    types.Card{Model: types.ModelBasic, Fields: map[string]string{"Front": "  ", "Back": "A"}},
			wantErr: true,
		},
		{
			name:    "basic without back",
			card:    types.Card{Model: types.ModelBasic, Fields: map[string]string{"Front": "Q", "Back": ""}},
			wantErr: true,
		},
		{
			name:    "valid cloze",
			card:    types.Card{Model: types.ModelCloze, Fields: map[string]string{"Front": "The {{c1::answer}}", "Back": ""}},
			wantErr: false,
		},
		{
			name:    "cloze without deletion",
			card:    types.Card{Model: types.ModelCloze, Fields: map[string]string{"Front": "No deletion here", "Back": ""}},
			wantErr: true,
		},
		{
			name:    "unknown model",
			card:    types.Card{Model: "Fancy", Fields: map[string]string{"Front": "Q", "Back": "A"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.card)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFirstSentence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"first sentence", "This is first. This is second.", 100, "This is first."},
		{"truncates at word boundary", strings.Repeat("word ", 40), 20, "word word word word..."},
		{"strips labels", `A group \label{def:group} is a set.`, 100, "A group is a set."},
		{"cites become placeholders", `See \cite{knuth1984} for details.`, 100, "See [citation] for details."},
		{"short text unchanged", "tiny", 100, "tiny"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FirstSentence(tt.in, tt.max); got != tt.want {
				t.Errorf("FirstSentence() = %q, want %q", got, tt.want)
			}
		})
	}
}
