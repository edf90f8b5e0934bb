package media_test

import (
	"testing"

	"curator/internal/media"
)

func TestParseKind(t *testing.T) {
	cases := map[string]media.Kind{
		"film":   media.KindFilm,
		"Movie":  media.KindFilm,
		"tv":     media.KindSeries,
		"series": media.KindSeries,
		"":       media.KindUnknown,
	}
	for in, want := range cases {
		got, err := media.ParseKind(in)
		if err != nil {
			t.Fatalf("ParseKind(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := media.ParseKind("podcast"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if media.KindUnknown.Valid() {
		t.Fatal("unknown kind must not be valid")
	}
}
