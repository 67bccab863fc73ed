package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/jamesainslie/fsval/pkg/fsval/logging"
)

// logger is the package-level logger for snapshot operations.
var logger = logging.Get("snapshot")

// DefaultIgnoreFile is read from the snapshot root when no ignore file is
// configured explicitly.
const DefaultIgnoreFile = ".fsvalignore"

// Options configures a snapshot build.
type Options struct {
	// IgnoreFile is a gitignore-style file. Relative paths resolve against
	// the snapshot root. Empty means DefaultIgnoreFile if it exists.
	IgnoreFile string

	// Exclude contains extra gitignore-style patterns.
	Exclude []string

	// Workers is the number of walker goroutines. Zero sizes the pool from the CPU count.
	Workers int
}

// Option is a functional option for configuring a build.
type Option func(*Options)

// WithIgnoreFile sets the ignore file.
func WithIgnoreFile(path string) Option {
	return func(o *Options) {
		o.IgnoreFile = path
	}
}

// WithExclude appends exclusion patterns.
func WithExclude(patterns ...string) Option {
	return func(o *Options) {
		o.Exclude = append(o.Exclude, patterns...)
	}
}

// WithWorkers sets the walker concurrency. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// Build walks root and returns its snapshot. A file root yields a single entry
// whose path is the file name. The root directory itself is not included.
//
// Entries are sorted by path. Any I/O error aborts the walk.
func Build(ctx context.Context, root string, opts ...Option) (Snapshot, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return Snapshot{newEntry(abs, filepath.Base(abs), info)}, nil
	}

	ignore, err := loadIgnore(abs, o)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		entries Snapshot
	)

	workers := TunedWorkers(runtime.NumCPU(), o.Workers)
	logger.Debug("building snapshot", "root", abs, "workers", workers)

	conf := fastwalk.Config{
		Follow:     false,
		NumWorkers: workers,
	}

	walkErr := fastwalk.Walk(&conf, abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == abs {
			return nil
		}

		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if ignore.skip(rel, d.IsDir()) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		entry := newEntry(path, rel, fi)

		mu.Lock()
		entries = append(entries, entry)
		mu.Unlock()
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, fmt.Errorf("walking %s: %w", abs, walkErr)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	logger.Debug("snapshot complete", "root", abs, "entries", len(entries))
	return entries, nil
}

// newEntry builds an entry for the file at absPath. rel is slash-separated.
func newEntry(absPath, rel string, info fs.FileInfo) Entry {
	t := statTimes(absPath, info)

	e := Entry{
		Name:     info.Name(),
		Path:     rel,
		AbsPath:  absPath,
		Size:     info.Size(),
		Kind:     KindFile,
		ModifyNS: t.modify,
		ChangeNS: t.change,
		AccessNS: t.access,
	}
	if info.IsDir() {
		e.Kind = KindDirectory
		e.Path = rel + "/"
	} else {
		e.Extension = filepath.Ext(e.Name)
	}
	return e
}

// times holds the three entry timestamps in nanoseconds since the epoch.
type times struct {
	modify int64
	change int64
	access int64
}

// fallbackTimes is used when the platform exposes only the modification time.
func fallbackTimes(info fs.FileInfo) times {
	ns := info.ModTime().UnixNano()
	return times{modify: ns, change: ns, access: ns}
}
