package organizer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

type linkOutcome int

const (
	linkUnchanged linkOutcome = iota
	linkCreated
	linkReplaced
	linkConflict
)

const tempLinkSuffix = ".curator-tmp"

// libraryUnavailableErrors lists errno values that mean the library
// filesystem itself is gone rather than one path being bad.
var libraryUnavailableErrors = []error{
	unix.ENODEV,
	unix.ENOTCONN,
	unix.EHOSTDOWN,
	unix.EHOSTUNREACH,
	unix.ETIMEDOUT,
	unix.EIO,
	unix.ESTALE,
}

// isLibraryUnavailable checks whether an error indicates the library filesystem is unavailable.
func isLibraryUnavailable(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range libraryUnavailableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ensureLink makes path a symlink to dest. A correct link is left alone, a
// wrong link is swapped atomically, and anything that is not a symlink is
// reported as a conflict and never touched.
func ensureLink(path, dest string) (linkOutcome, error) {
	info, err := os.Lstat(path)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		current, err := os.Readlink(path)
		if err != nil {
			return linkUnchanged, fmt.Errorf("read link %s: %w", path, err)
		}
		if current == dest {
			return linkUnchanged, nil
		}
		if err := replaceLink(path, dest); err != nil {
			return linkUnchanged, err
		}
		return linkReplaced, nil
	case err == nil:
		return linkConflict, nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return linkUnchanged, fmt.Errorf("create link directory: %w", err)
		}
		if err := os.Symlink(dest, path); err != nil {
			return linkUnchanged, fmt.Errorf("create link %s: %w", path, err)
		}
		return linkCreated, nil
	default:
		return linkUnchanged, fmt.Errorf("stat link %s: %w", path, err)
	}
}

func replaceLink(path, dest string) error {
	tmp := path + tempLinkSuffix
	_ = os.Remove(tmp)
	if err := os.Symlink(dest, tmp); err != nil {
		return fmt.Errorf("create temp link %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("swap link %s: %w", path, err)
	}
	return nil
}

// removeLink deletes path only if it is a symlink. It reports whether
// anything was removed.
func removeLink(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}

// linkPointsTo reports whether path is a symlink to dest.
func linkPointsTo(path, dest string) bool {
	got, err := os.Readlink(path)
	return err == nil && got == dest
}

// pruneEmptyParents removes empty directories from dir upward, stopping at
// stop. stop itself is kept.
func pruneEmptyParents(dir, stop string) {
	stop = filepath.Clean(stop)
	for {
		dir = filepath.Clean(dir)
		if dir == stop || !strings.HasPrefix(dir, stop+string(filepath.Separator)) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// sourceMissing reports whether a link destination is gone from the mount.
func sourceMissing(sourcePath string) bool {
	_, err := os.Stat(sourcePath)
	return errors.Is(err, os.ErrNotExist)
}
