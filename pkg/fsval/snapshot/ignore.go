package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"
)

// ignoreMatcher decides which walked paths are left out of a snapshot.
// A nil matcher keeps everything.
type ignoreMatcher struct {
	gi *ignore.GitIgnore
}

// loadIgnore compiles the configured ignore file and exclude patterns. A
// missing default ignore file is not an error; a missing explicit one is.
func loadIgnore(root string, o Options) (*ignoreMatcher, error) {
	path := o.IgnoreFile
	explicit := path != ""
	if !explicit {
		path = DefaultIgnoreFile
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	gi, err := ignore.CompileIgnoreFileAndLines(path, o.Exclude...)
	switch {
	case err == nil:
		logger.Debug("loaded ignore file", "path", path, "extra", len(o.Exclude))
		return &ignoreMatcher{gi: gi}, nil
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		if len(o.Exclude) == 0 {
			return nil, nil
		}
		return &ignoreMatcher{gi: ignore.CompileIgnoreLines(o.Exclude...)}, nil
	default:
		return nil, fmt.Errorf("reading ignore file %s: %w", path, err)
	}
}

// skip reports whether rel (slash-separated, relative to the root) is ignored.
func (m *ignoreMatcher) skip(rel string, isDir bool) bool {
	if m == nil {
		return false
	}
	if m.gi.MatchesPath(rel) {
		return true
	}
	// Directory-only patterns ("build/") need the trailing separator.
	return isDir && m.gi.MatchesPath(rel+"/")
}

