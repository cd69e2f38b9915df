package browser

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://go.dev/doc", "https://go.dev/doc", false},
		{"  example.com/a?b=1 ", "https://example.com/a?b=1", false},
		{"http://localhost:8080", "http://localhost:8080", false},
		{"ftp://example.com", "", true},
		{"", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := normalizeURL(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("normalizeURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewBridgeDefaults(t *testing.T) {
	b := NewBridge(BridgeConfig{})
	if b.pageTimeout != 30*time.Second || b.searchURL == "" || b.profileDir == "" {
		t.Fatalf("unexpected defaults: %+v", b)
	}
}

// --- Text ---

func TestCleanText(t *testing.T) {
	in := "  Title  \r\n\n\n   body   text \n\t\nend  "
	want := "Title\n\nbody text\n\nend"
	if got := CleanText(in); got != want {
		t.Fatalf("CleanText = %q, want %q", got, want)
	}
}

func TestChunk(t *testing.T) {
	text := "aaaa\nbbbb\ncccc"
	got := Chunk(text, 10)
	want := []string{"aaaa\nbbbb", "cccc"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Chunk (-want +got):\n%s", diff)
	}
}

func TestChunkLongLine(t *testing.T) {
	got := Chunk(strings.Repeat("é", 25), 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(got), got)
	}
	for _, c := range got {
		if n := len([]rune(c)); n > 10 {
			t.Fatalf("chunk of %d runes exceeds size", n)
		}
	}
	if strings.Join(got, "") != strings.Repeat("é", 25) {
		t.Fatal("chunks lost text")
	}
}

func TestChunkEmpty(t *testing.T) {
	if got := Chunk("  \n\n", 10); len(got) != 0 {
		t.Fatalf("expected no chunks, got %q", got)
	}
}
