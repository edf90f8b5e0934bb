package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/media"
	"curator/internal/nameparse"
	"curator/internal/services"
)

// Entry is one video file visible on the source mount.
type Entry struct {
	Path         string
	DisplayName  string
	FallbackName string
	ProviderID   string
	ContentHash  string
	KindHint     media.Kind
	SizeBytes    int64
	QualityScore int
}

// Lister enumerates the current source entries.
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
}

// VideoExtensions lists the file extensions treated as media.
var VideoExtensions = map[string]struct{}{
	".mkv":  {},
	".mp4":  {},
	".avi":  {},
	".mov":  {},
	".wmv":  {},
	".flv":  {},
	".webm": {},
	".m4v":  {},
	".mpg":  {},
	".mpeg": {},
	".ts":   {},
	".vob":  {},
	".m2ts": {},
}

var skippedNames = []string{"sample", "trailer", "extras", "featurette", "behind the scenes"}

// FSLister walks a directory tree.
type FSLister struct {
	root        string
	filmsSubdir string
	showsSubdir string
	minSize     int64
	logger      *slog.Logger
}

// NewFSLister builds a lister from the source section of cfg.
func NewFSLister(cfg *config.Config, logger *slog.Logger) *FSLister {
	return &FSLister{
		root:        cfg.Source.Root,
		filmsSubdir: strings.TrimSpace(cfg.Source.FilmsSubdir),
		showsSubdir: strings.TrimSpace(cfg.Source.ShowsSubdir),
		minSize:     int64(cfg.Source.MinFileSizeMB) * 1024 * 1024,
		logger:      logging.NewComponentLogger(logger, "source"),
	}
}

// Root returns the directory being listed.
func (l *FSLister) Root() string {
	return l.root
}

// List returns every video entry under the root, sorted by path.
func (l *FSLister) List(ctx context.Context) ([]Entry, error) {
	children, err := os.ReadDir(l.root)
	if err != nil {
		return nil, services.Wrap(services.ErrFilesystem, "source", "list root", l.root, err)
	}

	var entries []Entry
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := child.Name()
		if skipName(name) {
			continue
		}
		full := filepath.Join(l.root, name)
		if child.IsDir() {
			if kind, ok := l.kindSubdir(name); ok {
				found, err := l.listContainer(ctx, full, kind)
				if err != nil {
					return nil, err
				}
				entries = append(entries, found...)
				continue
			}
			entries = append(entries, l.listItem(ctx, full, media.KindUnknown)...)
			continue
		}
		if entry, ok := l.fileEntry(full, name, media.KindUnknown); ok {
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

func (l *FSLister) kindSubdir(name string) (media.Kind, bool) {
	switch {
	case l.filmsSubdir != "" && name == l.filmsSubdir:
		return media.KindFilm, true
	case l.showsSubdir != "" && name == l.showsSubdir:
		return media.KindSeries, true
	default:
		return media.KindUnknown, false
	}
}

func (l *FSLister) listContainer(ctx context.Context, dir string, kind media.Kind) ([]Entry, error) {
	children, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrFilesystem, "source", "list subdir", dir, err)
	}
	var entries []Entry
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if skipName(child.Name()) {
			continue
		}
		full := filepath.Join(dir, child.Name())
		if child.IsDir() {
			entries = append(entries, l.listItem(ctx, full, kind)...)
			continue
		}
		if entry, ok := l.fileEntry(full, child.Name(), kind); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// listItem collects every video inside one item directory. Unreadable
// subtrees are logged and skipped so one broken item does not hide the rest.
func (l *FSLister) listItem(ctx context.Context, itemDir string, kind media.Kind) []Entry {
	itemName := filepath.Base(itemDir)
	var entries []Entry
	err := filepath.WalkDir(itemDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != itemDir && skipName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		entry, ok := l.fileEntry(path, d.Name(), kind)
		if !ok {
			return nil
		}
		rel, relErr := filepath.Rel(itemDir, path)
		if relErr != nil {
			rel = d.Name()
		}
		entry.DisplayName = itemName
		entry.FallbackName = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
		entries = append(entries, entry)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		l.logger.Warn("source item skipped",
			logging.String(logging.FieldSourcePath, itemDir),
			logging.Error(err),
			logging.String(logging.FieldEventType, "source_item_skipped"),
			logging.String(logging.FieldErrorHint, "check mount health and item permissions"),
			logging.String(logging.FieldImpact, "item entries are treated as unseen this cycle"),
		)
	}
	return entries
}

func (l *FSLister) fileEntry(path, name string, kind media.Kind) (Entry, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := VideoExtensions[ext]; !ok {
		return Entry{}, false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Entry{}, false
	}
	if l.minSize > 0 && info.Size() < l.minSize {
		return Entry{}, false
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return Entry{
		Path:         path,
		DisplayName:  stem,
		ContentHash:  ContentHash(name, info.Size()),
		KindHint:     kind,
		SizeBytes:    info.Size(),
		QualityScore: nameparse.Quality(filepath.Base(filepath.Dir(path)) + " " + stem),
	}, true
}

// ContentHash identifies a file by base name and size so a re-acquired copy
// of the same release can be recognized at a new path.
func ContentHash(name string, size int64) string {
	sum := sha1.Sum([]byte(filepath.Base(name) + "|" + strconv.FormatInt(size, 10)))
	return hex.EncodeToString(sum[:])
}

func skipName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return true
	}
	lower := strings.ToLower(name)
	for _, suffix := range []string{".part", ".tmp", ".partial", ".!qb", ".crdownload"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	stem := strings.TrimSuffix(lower, filepath.Ext(lower))
	for _, skipped := range skippedNames {
		if stem == skipped || strings.HasPrefix(stem, skipped+"-") || strings.HasSuffix(stem, "-"+skipped) {
			return true
		}
	}
	return false
}

// String renders a short description for logs.
func (e Entry) String() string {
	return fmt.Sprintf("%s (%s)", e.DisplayName, e.Path)
}
