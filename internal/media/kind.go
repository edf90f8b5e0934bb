// Package media holds the vocabulary shared by every reconciliation stage.
package media

import (
	"fmt"
	"strings"
)

// Kind distinguishes films from series. The zero value means unknown.
type Kind string

const (
	KindUnknown Kind = ""
	KindFilm    Kind = "film"
	KindSeries  Kind = "series"
)

// ParseKind accepts the canonical names plus the provider's movie/tv aliases.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return KindUnknown, nil
	case "film", "movie", "movies":
		return KindFilm, nil
	case "series", "show", "shows", "tv":
		return KindSeries, nil
	default:
		return KindUnknown, fmt.Errorf("unknown media kind %q", value)
	}
}

// Valid reports whether k names a concrete kind.
func (k Kind) Valid() bool {
	return k == KindFilm || k == KindSeries
}

func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}
