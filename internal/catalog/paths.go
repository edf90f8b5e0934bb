package catalog

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"curator/internal/config"
	"curator/internal/media"
	"curator/internal/source"
	"curator/internal/textutil"
)

const defaultExtension = ".mkv"

// Layout names library targets. Paths are relative to library_dir and use
// forward slashes.
type Layout struct {
	FilmsDir string
	ShowsDir string
}

// NewLayout reads the library directories from cfg.
func NewLayout(cfg *config.Config) Layout {
	layout := Layout{FilmsDir: "films", ShowsDir: "shows"}
	if cfg == nil {
		return layout
	}
	if dir := strings.Trim(strings.TrimSpace(cfg.Library.FilmsDir), "/"); dir != "" {
		layout.FilmsDir = dir
	}
	if dir := strings.Trim(strings.TrimSpace(cfg.Library.ShowsDir), "/"); dir != "" {
		layout.ShowsDir = dir
	}
	return layout
}

// TargetPath computes the deterministic library path for a source file.
//
//	films/<Name> (<Year>) [id=<id>]/<Name> (<Year>) [id=<id>].mkv
//	shows/<Name> (<Year>) [id=<id>]/Season NN/<Name> (<Year>) SNNEMM.mkv
func (l Layout) TargetPath(identity Identity, season, episode, episodeEnd int, sourcePath string) (string, error) {
	name := displayName(identity)
	if name == "" {
		return "", invalid("target path", "identity has no usable title")
	}
	if identity.ExternalID <= 0 {
		return "", invalid("target path", "identity has no external id")
	}
	ext := extension(sourcePath)
	folder := fmt.Sprintf("%s [id=%d]", name, identity.ExternalID)

	switch identity.Kind {
	case media.KindFilm:
		return path.Join(l.FilmsDir, folder, folder+ext), nil
	case media.KindSeries:
		if season < 0 || episode <= 0 {
			return "", invalid("target path", fmt.Sprintf("series mapping needs season and episode, got S%d E%d", season, episode))
		}
		marker := fmt.Sprintf("S%02dE%02d", season, episode)
		if episodeEnd > episode {
			marker += fmt.Sprintf("E%02d", episodeEnd)
		}
		file := fmt.Sprintf("%s %s%s", name, marker, ext)
		return path.Join(l.ShowsDir, folder, fmt.Sprintf("Season %02d", season), file), nil
	default:
		return "", invalid("target path", fmt.Sprintf("identity kind %q is not film or series", identity.Kind))
	}
}

// Section reports which library directory a target lives under.
func (l Layout) Section(target string) media.Kind {
	switch {
	case strings.HasPrefix(target, l.FilmsDir+"/"):
		return media.KindFilm
	case strings.HasPrefix(target, l.ShowsDir+"/"):
		return media.KindSeries
	default:
		return media.KindUnknown
	}
}

func displayName(identity Identity) string {
	title := textutil.SanitizePathSegment(identity.Title)
	if title == "" {
		return ""
	}
	if identity.Year > 0 {
		return fmt.Sprintf("%s (%d)", title, identity.Year)
	}
	return title
}

// extension keeps the source's video extension. Item paths such as release
// directories carry dotted tags instead, so anything else falls back to .mkv.
func extension(sourcePath string) string {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	if _, ok := source.VideoExtensions[ext]; !ok {
		return defaultExtension
	}
	return ext
}
