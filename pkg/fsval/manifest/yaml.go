package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/fsval/pkg/fsval/logging"
	"github.com/jamesainslie/fsval/pkg/fsval/query"
)

var logger = logging.Get("manifest")

// IncludeTag replaces a node with the document at the given path, relative
// to the including file.
const IncludeTag = "!include"

// ErrIncludeCycle is returned when a document includes itself.
var ErrIncludeCycle = errors.New("include cycle")

// loader reads documents from the OS filesystem or an fs.FS.
type loader struct {
	read func(name string) ([]byte, error)
	join func(from, ref string) string
}

func osLoader() loader {
	return loader{
		read: os.ReadFile,
		join: func(from, ref string) string {
			if filepath.IsAbs(ref) {
				return ref
			}
			return filepath.Join(filepath.Dir(from), filepath.FromSlash(ref))
		},
	}
}

func fsLoader(fsys fs.FS) loader {
	return loader{
		read: func(name string) ([]byte, error) {
			return fs.ReadFile(fsys, name)
		},
		join: func(from, ref string) string {
			return path.Join(path.Dir(from), ref)
		},
	}
}

// FromYAML loads a manifest file, resolving includes. The structural check
// runs unless disabled with WithCheck(false).
func FromYAML(name string, opts ...Option) (*Manifest, error) {
	return load(osLoader(), name, opts)
}

// FromFS loads a manifest from fsys, resolving includes within fsys.
func FromFS(fsys fs.FS, name string, opts ...Option) (*Manifest, error) {
	return load(fsLoader(fsys), name, opts)
}

func load(l loader, name string, opts []Option) (*Manifest, error) {
	raw, err := l.document(name)
	if err != nil {
		return nil, err
	}

	m, err := FromMap(raw, append([]Option{WithCheck(true)}, opts...)...)
	if err != nil {
		var ie *InvalidManifestError
		if errors.As(err, &ie) && ie.Path == "" {
			ie.Path = name
		}
		return nil, err
	}
	m.Meta.Path = name

	logger.Debug("loaded manifest", "path", name, "id", m.ID, "rules", len(m.Rules))
	return m, nil
}

// ReadYAML reads a manifest file into its raw document form with includes
// resolved. An empty document yields an empty map.
func ReadYAML(name string) (map[string]any, error) {
	return osLoader().document(name)
}

// ReadFS is ReadYAML for a file in fsys.
func ReadFS(fsys fs.FS, name string) (map[string]any, error) {
	return fsLoader(fsys).document(name)
}

func (l loader) document(name string) (map[string]any, error) {
	root, err := l.resolve(name, nil)
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	if root == nil {
		return raw, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, &InvalidManifestError{Path: name, Err: fmt.Errorf("document must be a mapping, not %s", kindName(root.Kind))}
	}
	if err := root.Decode(&raw); err != nil {
		return nil, &InvalidManifestError{Path: name, Err: err}
	}
	return raw, nil
}

// resolve parses name and replaces every include node with the root of the
// included document. It returns nil for an empty document.
func (l loader) resolve(name string, stack []string) (*yaml.Node, error) {
	for _, seen := range stack {
		if seen == name {
			return nil, &InvalidManifestError{Path: name, Err: ErrIncludeCycle}
		}
	}
	stack = append(stack, name)

	data, err := l.read(name)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	root, err := parseRoot(data)
	if err != nil {
		return nil, &InvalidManifestError{Path: name, Err: err}
	}
	if root == nil {
		return nil, nil
	}

	if err := l.expand(root, name, stack); err != nil {
		return nil, err
	}
	return root, nil
}

func (l loader) expand(n *yaml.Node, from string, stack []string) error {
	if n.Kind == yaml.ScalarNode && n.Tag == IncludeTag {
		target := l.join(from, n.Value)
		included, err := l.resolve(target, stack)
		if err != nil {
			return err
		}
		if included == nil {
			included = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		logger.Debug("resolved include", "from", from, "target", target)
		*n = *included
		return nil
	}

	for _, child := range n.Content {
		if err := l.expand(child, from, stack); err != nil {
			return err
		}
	}
	return nil
}

// parseRoot returns the top-level node of a single YAML document, or nil
// when the document is empty.
func parseRoot(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, nil
	}
	return root, nil
}

// IsReference reports whether the file is a bare include of another
// manifest, like a default.yaml pointing at the current version.
func IsReference(name string) (bool, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return false, err
	}
	return isReference(data)
}

// IsReferenceFS is IsReference for a file in fsys.
func IsReferenceFS(fsys fs.FS, name string) (bool, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return false, err
	}
	return isReference(data)
}

func isReference(data []byte) (bool, error) {
	root, err := parseRoot(data)
	if err != nil {
		return false, err
	}
	return root != nil && root.Kind == yaml.ScalarNode && root.Tag == IncludeTag, nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "a list"
	case yaml.ScalarNode:
		return "a scalar"
	case yaml.AliasNode:
		return "an alias"
	default:
		return "a document"
	}
}

// ToYAML encodes the manifest in document form with generated ids written
// out, so the result loads back to an equal manifest.
func (m *Manifest) ToYAML() ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}

	if err := addField(doc, "id", m.ID); err != nil {
		return nil, err
	}
	if err := addField(doc, "version", m.Version); err != nil {
		return nil, err
	}
	if err := addField(doc, "description", m.Description); err != nil {
		return nil, err
	}
	if m.URI != "" {
		if err := addField(doc, "uri", m.URI); err != nil {
			return nil, err
		}
	}

	rules := &yaml.Node{Kind: yaml.SequenceNode}
	for _, r := range m.Rules {
		rn := &yaml.Node{Kind: yaml.MappingNode}
		if err := addField(rn, "id", r.ID); err != nil {
			return nil, err
		}
		if r.Description != "" {
			if err := addField(rn, "description", r.Description); err != nil {
				return nil, err
			}
		}
		if err := addField(rn, "query", query.Raw(r.Query)); err != nil {
			return nil, err
		}
		for _, c := range r.Constraints {
			if err := addField(rn, c.Name(), c.Value()); err != nil {
				return nil, err
			}
		}
		rules.Content = append(rules.Content, rn)
	}
	doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "rules"}, rules)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}

func addField(n *yaml.Node, key string, value any) error {
	var v yaml.Node
	if err := v.Encode(value); err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, &v)
	return nil
}
