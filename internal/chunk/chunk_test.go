package chunk

import (
	"strings"
	"testing"
)

func TestSplitEmpty(t *testing.T) {
	s := New(DefaultSize, DefaultMinChars)
	for _, input := range []string{"", "   ", "\n\n\t"} {
		if got := s.Split(input); got != nil {
			t.Errorf("Split(%q) = %v, want nil", input, got)
		}
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := New(DefaultSize, DefaultMinChars)
	text := "A short memo about deployment runbooks."
	got := s.Split(text)
	if len(got) != 1 || got[0] != text {
		t.Fatalf("Split() = %v, want single chunk with original text", got)
	}
}

func TestSplitRespectsSizeLimit(t *testing.T) {
	s := New(200, 40)
	var b strings.Builder
	for range 30 {
		b.WriteString("Each paragraph discusses one aspect of the incident response process in detail.\n\n")
	}
	chunks := s.Split(b.String())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 200 {
			t.Errorf("chunk %d has length %d, exceeds limit", i, len(c))
		}
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s := New(100, 20)
	para1 := strings.Repeat("alpha ", 12) // 72 chars
	para2 := strings.Repeat("beta ", 12)  // 60 chars
	chunks := s.Split(para1 + "\n\n" + para2)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if !strings.Contains(chunks[0], "alpha") || strings.Contains(chunks[0], "beta") {
		t.Errorf("first chunk crosses paragraph boundary: %q", chunks[0])
	}
}

func TestSplitPrefersHeadingBoundaries(t *testing.T) {
	s := New(100, 20)
	section1 := "## Install\n" + strings.Repeat("step ", 14) // 81 chars
	section2 := "## Upgrade\n" + strings.Repeat("bump ", 14)
	chunks := s.Split(section1 + "\n" + section2)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0], "## Install") {
		t.Errorf("first chunk lost its heading: %q", chunks[0])
	}
	if !strings.HasPrefix(chunks[1], "## Upgrade") {
		t.Errorf("heading separated from its section: %q", chunks[1])
	}
	if strings.Contains(chunks[0], "Upgrade") {
		t.Errorf("first chunk crosses the heading boundary: %q", chunks[0])
	}
}

func TestSplitPreservesOrderAndContent(t *testing.T) {
	s := New(80, 10)
	sentences := []string{
		"First the loader reads the file.",
		"Then the parser builds the tree.",
		"Finally the writer emits output.",
	}
	text := strings.Join(sentences, " ")
	chunks := s.Split(text)

	joined := strings.Join(chunks, " ")
	for _, word := range []string{"loader", "parser", "writer"} {
		if !strings.Contains(joined, word) {
			t.Errorf("chunks lost content %q", word)
		}
	}
	if strings.Index(joined, "loader") > strings.Index(joined, "writer") {
		t.Error("chunk order does not follow document order")
	}
}

func TestSplitLongUnbrokenToken(t *testing.T) {
	s := New(50, 10)
	token := strings.Repeat("x", 175)
	chunks := s.Split(token)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for i, c := range chunks[:3] {
		if len(c) != 50 {
			t.Errorf("chunk %d has length %d, want 50", i, len(c))
		}
	}
	if got := strings.Join(chunks, ""); got != token {
		t.Error("hard split lost characters")
	}
}

func TestSplitMergesSmallTrailingPiece(t *testing.T) {
	s := New(100, 30)
	text := strings.Repeat("word ", 15) + "\n\nok"
	chunks := s.Split(text)
	for i, c := range chunks {
		if len(strings.TrimSpace(c)) < 3 {
			t.Errorf("chunk %d is a fragment: %q", i, c)
		}
	}
	if !strings.Contains(strings.Join(chunks, "\n"), "ok") {
		t.Error("small trailing piece was dropped instead of merged")
	}
}

func TestNewFallsBackToDefaults(t *testing.T) {
	s := New(0, 0)
	if s.size != DefaultSize || s.minChars != DefaultMinChars {
		t.Fatalf("New(0,0) = %+v, want defaults", s)
	}
	s = New(64, 500)
	if s.minChars > s.size {
		t.Fatalf("minChars %d exceeds size %d", s.minChars, s.size)
	}
}

func TestSplitUnicode(t *testing.T) {
	s := New(40, 5)
	text := strings.Repeat("知識庫的內容。", 20)
	chunks := s.Split(text)
	if len(chunks) == 0 {
		t.Fatal("expected chunks for unicode text")
	}
	for i, c := range chunks {
		if !strings.HasPrefix(c, "知") && !strings.Contains(c, "知") {
			t.Errorf("chunk %d corrupted: %q", i, c)
		}
	}
}
