package textutil_test

import (
	"math"
	"testing"

	"curator/internal/textutil"
)

func TestFoldTitle(t *testing.T) {
	cases := map[string]string{
		"Amélie":              "amelie",
		"Law & Order: SVU":    "law and order svu",
		"  The.Dark-Knight  ": "the dark knight",
		"Pokémon+Friends":     "pokemon and friends",
		"WALL·E":              "wall e",
		"":                    "",
	}
	for in, want := range cases {
		if got := textutil.FoldTitle(in); got != want {
			t.Fatalf("FoldTitle(%q) = %q, want %q", in, got, want)
		}
	}
	if textutil.CompactTitle("Spider-Man") != textutil.CompactTitle("Spiderman") {
		t.Fatal("expected compact forms to match")
	}
}

func TestTokenJaccard(t *testing.T) {
	if got := textutil.TokenJaccard("The Dark Knight", "Dark Knight Rises"); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("unexpected jaccard: %v", got)
	}
	if got := textutil.TokenJaccard("", "anything"); got != 0 {
		t.Fatalf("expected 0 for empty side, got %v", got)
	}
}

func TestSanitizePathSegment(t *testing.T) {
	cases := map[string]string{
		`Mission: Impossible`:       "Mission Impossible",
		`What If...?`:               "What If",
		"  Spaced   Out  ":          "Spaced Out",
		`AC/DC <Live> "Wembley" |x`: "ACDC Live Wembley x",
	}
	for in, want := range cases {
		if got := textutil.SanitizePathSegment(in); got != want {
			t.Fatalf("SanitizePathSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
