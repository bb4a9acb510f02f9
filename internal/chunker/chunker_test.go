package chunker

import (
	"strings"
	"testing"
)

func opts(maxChars, maxWords, minChars int) Options {
	return Options{MaxChars: maxChars, MaxWords: maxWords, MinChars: minChars, PreserveSentences: true}
}

func TestChunkEmptyInput(t *testing.T) {
	if got := Chunk("", DefaultOptions()); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
	if got := Chunk("   \n\t ", DefaultOptions()); got != nil {
		t.Fatalf("expected nil for whitespace input, got %v", got)
	}
}

func TestChunkSingleSentence(t *testing.T) {
	got := Chunk("Hello world.", DefaultOptions())
	if len(got) != 1 || got[0] != "Hello world." {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestChunkRespectsCharCap(t *testing.T) {
	text := "Hello world. This is a test sentence that is reasonably long."
	got := Chunk(text, opts(20, 5, 0))
	if len(got) == 0 {
		t.Fatal("expected chunks")
	}
	for _, c := range got {
		if len(c) > 20 && strings.Contains(c, " ") {
			t.Fatalf("multi-word chunk %q exceeds 20 chars", c)
		}
		if c == "" {
			t.Fatal("empty chunk emitted")
		}
	}
}

func TestChunkPreservesWordOrder(t *testing.T) {
	text := "One two three. Four five six seven! Eight nine? Ten eleven twelve thirteen fourteen."
	got := Chunk(text, opts(25, 4, 0))
	joined := strings.Fields(strings.Join(got, " "))
	orig := strings.Fields(text)
	if len(joined) != len(orig) {
		t.Fatalf("word count changed: got %d want %d", len(joined), len(orig))
	}
	for i := range orig {
		if joined[i] != orig[i] {
			t.Fatalf("word %d reordered: got %q want %q", i, joined[i], orig[i])
		}
	}
}

func TestChunkSplitsOversizedSentenceByWords(t *testing.T) {
	// 12 words in one sentence, word cap 4: expect 3 chunks of 4 words.
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu."
	got := Chunk(text, opts(1000, 4, 0))
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(got), got)
	}
	for _, c := range got {
		if n := len(strings.Fields(c)); n > 4 {
			t.Fatalf("chunk %q has %d words, cap is 4", c, n)
		}
	}
}

func TestChunkSingleWordOverCharCap(t *testing.T) {
	got := Chunk("supercalifragilisticexpialidocious tiny words here now go on and on", opts(10, 3, 0))
	if len(got) == 0 {
		t.Fatal("expected chunks")
	}
	if got[0] != "supercalifragilisticexpialidocious" {
		t.Fatalf("expected oversized word isolated in its own chunk, got %q", got[0])
	}
}

func TestChunkMergesTinyTrailingChunk(t *testing.T) {
	text := "This sentence is the first one here. Tiny end."
	got := Chunk(text, opts(40, 60, 15))
	if len(got) != 1 {
		t.Fatalf("expected trailing chunk merged, got %v", got)
	}
	if !strings.HasSuffix(got[0], "Tiny end.") {
		t.Fatalf("merged chunk missing tail: %q", got[0])
	}
}

func TestChunkWithoutSentenceBoundaries(t *testing.T) {
	text := "First part. Second part."
	got := Chunk(text, Options{MaxChars: 1000, MaxWords: 60, PreserveSentences: false})
	if len(got) != 1 || got[0] != text {
		t.Fatalf("expected single chunk equal to input, got %v", got)
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("One. Two! Three? Four")
	want := []string{"One.", "Two!", "Three?", "Four"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sentence %d: got %q want %q", i, got[i], want[i])
		}
	}
}
