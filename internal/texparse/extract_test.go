package texparse

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pdiddy/recall-engine/internal/identity"
)

var defKinds = []string{"definition"}

func TestExtractSingleDefinition(t *testing.T) {
	content := "\\begin{definition}[Metric Space]\nA set $M$ with a distance function.\n\\end{definition}\n"

	blocks := Extract(content, "math/ch1.tex", defKinds)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	b := blocks[0]
	if b.Kind != "definition" {
		t.Errorf("kind = %q", b.Kind)
	}
	if b.Title != "Metric Space" {
		t.Errorf("title = %q, want Metric Space", b.Title)
	}
	if !strings.Contains(b.Body, "$M$") {
		t.Errorf("body lost math span: %q", b.Body)
	}
	if b.StartLine != 1 || b.EndLine != 3 {
		t.Errorf("lines = %d..%d, want 1..3", b.StartLine, b.EndLine)
	}
	if b.Identity != identity.BlockID("definition", b.NormalizedBody, "math/ch1.tex") {
		t.Error("identity does not match assigner output")
	}
	if b.ContentDigest != identity.ContentDigest(b.NormalizedBody) {
		t.Error("content digest does not match assigner output")
	}
}

func TestExtractDeterministic(t *testing.T) {
	content := "intro\n\\begin{definition}\nbody\n\\end{definition}\n"
	first := Extract(content, "a.tex", defKinds)
	second := Extract(content, "a.tex", defKinds)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("got %d and %d blocks", len(first), len(second))
	}
	if first[0] != second[0] {
		t.Error("repeated extraction over identical text differs")
	}
}

func TestExtractNoTitle(t *testing.T) {
	blocks := Extract("\\begin{theorem}\nstatement\n\\end{theorem}", "a.tex", []string{"theorem"})
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks", len(blocks))
	}
	if blocks[0].Title != "" {
		t.Errorf("title = %q, want empty", blocks[0].Title)
	}
}

func TestExtractCommentedOutInvisible(t *testing.T) {
	content := strings.Join([]string{
		"% \\begin{definition}",
		"% commented out entirely",
		"% \\end{definition}",
		"",
		"\\begin{definition}",
		"real one",
		"\\end{definition}",
	}, "\n")

	blocks := Extract(content, "a.tex", defKinds)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	// The blanked lines still occupy their slots, so the surviving block's
	// line numbers are unshifted.
	if blocks[0].StartLine != 5 || blocks[0].EndLine != 7 {
		t.Errorf("lines = %d..%d, want 5..7", blocks[0].StartLine, blocks[0].EndLine)
	}
}

func TestExtractUnterminated(t *testing.T) {
	blocks := Extract("\\begin{definition}\nnever closed", "a.tex", defKinds)
	if len(blocks) != 0 {
		t.Errorf("got %d blocks from unterminated environment, want 0", len(blocks))
	}
}

func TestExtractEmptyKindSet(t *testing.T) {
	blocks := Extract("\\begin{definition}x\\end{definition}", "a.tex", nil)
	if blocks != nil {
		t.Errorf("got %v, want nil", blocks)
	}
}

func TestExtractNestedSameKindClosesAtFirstEnd(t *testing.T) {
	// Nested same-kind environments are unsupported: the first \end closes
	// the block and the dangling inner \end matches nothing.
	content := "\\begin{definition}outer \\begin{definition}inner\\end{definition} tail\\end{definition}"
	blocks := Extract(content, "a.tex", defKinds)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if strings.Contains(blocks[0].Body, "tail") {
		t.Errorf("body ran past first \\end: %q", blocks[0].Body)
	}
}

func TestExtractMultipleKindsOrdered(t *testing.T) {
	content := strings.Join([]string{
		"\\begin{theorem}first\\end{theorem}",
		"text",
		"\\begin{definition}second\\end{definition}",
	}, "\n")

	blocks := Extract(content, "a.tex", []string{"definition", "theorem"})
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].Kind != "theorem" || blocks[1].Kind != "definition" {
		t.Errorf("order = %s, %s; want source order", blocks[0].Kind, blocks[1].Kind)
	}
}

func TestExtractMarker(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "marker directly above",
			content: "% recall-id: abcdef123456\n\\begin{definition}x\\end{definition}",
			want:    "abcdef123456",
		},
		{
			name:    "bare id form",
			content: "% id: abcdef123456\n\\begin{definition}x\\end{definition}",
			want:    "abcdef123456",
		},
		{
			name:    "case insensitive and normalized to lower",
			content: "% RECALL-ID: ABCDEF123456\n\\begin{definition}x\\end{definition}",
			want:    "abcdef123456",
		},
		{
			name: "nearest marker wins",
			content: "% recall-id: aaaaaaaa1111\ntext\n% recall-id: bbbbbbbb2222\n" +
				"\\begin{definition}x\\end{definition}",
			want: "bbbbbbbb2222",
		},
		{
			name:    "too short hex ignored",
			content: "% recall-id: abc123\n\\begin{definition}x\\end{definition}",
			want:    "",
		},
		{
			name: "outside window ignored",
			content: "% recall-id: abcdef123456\n" + strings.Repeat("filler\n", 21) +
				"\\begin{definition}x\\end{definition}",
			want: "",
		},
		{
			name:    "no marker",
			content: "\\begin{definition}x\\end{definition}",
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := Extract(tt.content, "a.tex", defKinds)
			if len(blocks) != 1 {
				t.Fatalf("got %d blocks", len(blocks))
			}
			if blocks[0].MarkerID != tt.want {
				t.Errorf("marker = %q, want %q", blocks[0].MarkerID, tt.want)
			}
		})
	}
}

func TestNeighborContext(t *testing.T) {
	var lines []string
	for i := 1; i <= 50; i++ {
		lines = append(lines, fmt.Sprintf("line%d", i))
	}
	content := strings.Join(lines, "\n")

	ctx := NeighborContext(content, 20, 30, 10)
	if !strings.Contains(ctx, "line15") {
		t.Error("missing context line above block")
	}
	if !strings.Contains(ctx, "line35") {
		t.Error("missing context line below block")
	}
	if strings.Contains(ctx, "line25") {
		t.Error("context includes block interior")
	}

	if got := NeighborContext("only", 1, 1, 10); got != "" {
		t.Errorf("single-line file context = %q, want empty", got)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		excluded string
	}{
		{"shell execution", `\write18{rm -rf /}`, "write18"},
		{"file input", `before \input{secret.tex} after`, "input"},
		{"shell escape flag", "pdflatex --shell-escape doc", "shell-escape"},
		{"standalone def", `\def\x{1}`, `\def`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); strings.Contains(got, tt.excluded) {
				t.Errorf("Sanitize(%q) = %q still contains %q", tt.in, got, tt.excluded)
			}
		})
	}

	safe := `$x^2$ is \textbf{important}`
	if got := Sanitize(safe); got != safe {
		t.Errorf("Sanitize altered safe content: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("ab", 10); got != "ab" {
		t.Errorf("Truncate = %q", got)
	}
}
