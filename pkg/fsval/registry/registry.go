// Package registry resolves manifest references to files. A reference is a
// path or a short name such as "demo_dlc" or "demo_dlc/v0.1", looked up in
// the working directory, the configured manifest directories, the user data
// directory and the manifests built into the binary.
package registry

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/adrg/xdg"

	"github.com/jamesainslie/fsval/pkg/fsval/logging"
	"github.com/jamesainslie/fsval/pkg/fsval/manifest"
)

var logger = logging.Get("registry")

//go:embed manifests
var builtinFS embed.FS

// ErrManifestNotFound is returned when no search location holds the
// reference.
var ErrManifestNotFound = errors.New("manifest not found")

// BuiltinSource names the embedded manifests in Location and Info.
const BuiltinSource = "builtin"

// Builtin returns the manifests shipped with fsval.
func Builtin() fs.FS {
	sub, err := fs.Sub(builtinFS, "manifests")
	if err != nil {
		panic(fmt.Sprintf("embedded manifests: %v", err))
	}
	return sub
}

// UserDir returns $XDG_DATA_HOME/fsval/manifests.
func UserDir() string {
	return filepath.Join(xdg.DataHome, "fsval", "manifests")
}

// Location is a resolved manifest file.
type Location struct {
	// Name is the reference that was resolved.
	Name string

	// Path is the file path, relative to FS for builtin manifests.
	Path string

	// Source is the search directory the file was found in, or
	// BuiltinSource.
	Source string

	// FS holds builtin manifests; it is nil for files on disk.
	FS fs.FS
}

// Load reads the manifest at the location.
func (l Location) Load(opts ...manifest.Option) (*manifest.Manifest, error) {
	var (
		m   *manifest.Manifest
		err error
	)
	if l.FS != nil {
		m, err = manifest.FromFS(l.FS, l.Path, opts...)
	} else {
		m, err = manifest.FromYAML(l.Path, opts...)
	}
	if err != nil {
		return nil, err
	}
	m.Meta.Name = l.Name
	return m, nil
}

// Registry searches manifest directories in order.
type Registry struct {
	dirs    []string
	builtin fs.FS
}

// Option configures a Registry.
type Option func(*Registry)

// WithBuiltin replaces the embedded manifests, or removes them when fsys is
// nil.
func WithBuiltin(fsys fs.FS) Option {
	return func(r *Registry) {
		r.builtin = fsys
	}
}

// New returns a registry searching ./manifests, then dirs, then UserDir(),
// then the builtin manifests.
func New(dirs []string, opts ...Option) *Registry {
	search := make([]string, 0, len(dirs)+2)
	search = append(search, "manifests")
	search = append(search, dirs...)
	search = append(search, UserDir())
	return NewWithDirs(search, opts...)
}

// NewWithDirs returns a registry searching exactly dirs, then the builtin
// manifests.
func NewWithDirs(dirs []string, opts ...Option) *Registry {
	r := &Registry{builtin: Builtin()}
	seen := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		r.dirs = append(r.dirs, d)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dirs returns the directories searched before the builtin manifests.
func (r *Registry) Dirs() []string {
	return append([]string(nil), r.dirs...)
}

// candidates are the names tried for ref within one search location.
func candidates(ref string) []string {
	out := []string{ref}
	if !strings.HasSuffix(ref, ".yaml") && !strings.HasSuffix(ref, ".yml") {
		out = append(out, ref+".yaml", ref+"/default.yaml")
	}
	return out
}

// Find resolves ref. The reference is first tried as a path, then against
// each search directory and finally the builtin manifests.
func (r *Registry) Find(ref string) (Location, error) {
	if ref == "" {
		return Location{}, fmt.Errorf("%w: empty reference", ErrManifestNotFound)
	}

	for _, c := range candidates(ref) {
		if isFile(c) {
			return Location{Name: ref, Path: c}, nil
		}
	}

	if !filepath.IsAbs(ref) {
		for _, dir := range r.dirs {
			for _, c := range candidates(filepath.FromSlash(ref)) {
				p := filepath.Join(dir, c)
				if isFile(p) {
					logger.Debug("resolved manifest", "ref", ref, "path", p)
					return Location{Name: ref, Path: p, Source: dir}, nil
				}
			}
		}

		if r.builtin != nil {
			clean := path.Clean(filepath.ToSlash(ref))
			for _, c := range candidates(clean) {
				if info, err := fs.Stat(r.builtin, c); err == nil && !info.IsDir() {
					logger.Debug("resolved builtin manifest", "ref", ref, "path", c)
					return Location{Name: ref, Path: c, Source: BuiltinSource, FS: r.builtin}, nil
				}
			}
		}
	}

	return Location{}, fmt.Errorf("%w: %s", ErrManifestNotFound, ref)
}

// Load resolves and loads ref.
func (r *Registry) Load(ref string, opts ...manifest.Option) (*manifest.Manifest, error) {
	loc, err := r.Find(ref)
	if err != nil {
		return nil, err
	}
	return loc.Load(opts...)
}

// Info describes a manifest found by List.
type Info struct {
	Name        string `json:"name" yaml:"name"`
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Path        string `json:"path" yaml:"path"`
	Source      string `json:"source" yaml:"source"`

	// Reference is set for files that only include another manifest. Their
	// content is not loaded.
	Reference bool `json:"reference" yaml:"reference"`
}

// List returns the manifests whose name matches pattern, sorted by name. An
// empty pattern matches everything. A name found in several locations is
// reported once, from the location Find would use. Files that fail to load
// are skipped.
func (r *Registry) List(pattern string) ([]Info, error) {
	var re *regexp.Regexp
	if pattern != "" {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid manifest query: %w", err)
		}
	}

	byName := make(map[string]Info)
	add := func(info Info) {
		if _, ok := byName[info.Name]; ok {
			return
		}
		if re != nil && !re.MatchString(info.Name) {
			return
		}
		byName[info.Name] = info
	}

	for _, dir := range r.dirs {
		infos, err := scan(os.DirFS(dir), dir, func(rel string) Location {
			return Location{Path: filepath.Join(dir, filepath.FromSlash(rel)), Source: dir}
		})
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			add(info)
		}
	}

	if r.builtin != nil {
		infos, err := scan(r.builtin, BuiltinSource, func(rel string) Location {
			return Location{Path: rel, Source: BuiltinSource, FS: r.builtin}
		})
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			add(info)
		}
	}

	out := make([]Info, 0, len(byName))
	for _, info := range byName {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func scan(fsys fs.FS, source string, locate func(rel string) Location) ([]Info, error) {
	var infos []Info
	err := fs.WalkDir(fsys, ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			if rel == "." && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !isManifestFile(rel) {
			return nil
		}

		loc := locate(rel)
		loc.Name = strings.TrimSuffix(strings.TrimSuffix(rel, ".yaml"), ".yml")
		info := Info{Name: loc.Name, Path: loc.Path, Source: source}

		ref, err := isReference(loc)
		if err != nil {
			logger.Warn("skipping unreadable manifest", "path", loc.Path, "error", err)
			return nil
		}
		if ref {
			info.Reference = true
			infos = append(infos, info)
			return nil
		}

		m, err := loc.Load()
		if err != nil {
			logger.Warn("skipping invalid manifest", "path", loc.Path, "error", err)
			return nil
		}
		info.ID = m.ID
		info.Version = m.Version
		info.Description = m.Description
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing manifests in %s: %w", source, err)
	}
	return infos, nil
}

func isReference(loc Location) (bool, error) {
	if loc.FS != nil {
		return manifest.IsReferenceFS(loc.FS, loc.Path)
	}
	return manifest.IsReference(loc.Path)
}

func isManifestFile(name string) bool {
	ext := path.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Find resolves ref against the default search path extended with dirs.
func Find(ref string, dirs []string) (Location, error) {
	return New(dirs).Find(ref)
}

// List lists the manifests on the default search path extended with dirs.
func List(pattern string, dirs []string) ([]Info, error) {
	return New(dirs).List(pattern)
}
