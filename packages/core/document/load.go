package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/hitchain/packages/core/tree"
	"gopkg.in/yaml.v3"
)

// Extensions lists the file extensions recognized as documents.
var Extensions = []string{".yaml", ".yml", ".json"}

// IsDocumentFile reports whether path has a document extension.
func IsDocumentFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadFile reads, parses and decodes the document at path. Relative
// variable files and schema paths resolve against the file's directory.
func LoadFile(path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	root, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	opts = append([]Option{WithBaseDir(filepath.Dir(abs)), withName(name)}, opts...)
	doc, err := Decode(root, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = abs
	return doc, nil
}

// Parse reads YAML or JSON into a generic tree. Mappings become *tree.Map
// so that declaration order survives.
func Parse(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ConfigError{Msg: "document is empty"}
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return nodeToTree(&node)
}

func nodeToTree(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeToTree(n.Content[0])

	case yaml.AliasNode:
		return nodeToTree(n.Alias)

	case yaml.MappingNode:
		m := tree.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Kind == yaml.ScalarNode && key.ShortTag() == "!!merge" {
				if err := mergeInto(m, val); err != nil {
					return nil, err
				}
				continue
			}
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", key.Line)
			}
			v, err := nodeToTree(val)
			if err != nil {
				return nil, err
			}
			m.Set(key.Value, v)
		}
		return m, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := nodeToTree(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("line %d: unsupported node", n.Line)
	}
}

// mergeInto applies a YAML merge key (<<: *anchor). Keys already present
// take precedence over merged ones.
func mergeInto(m *tree.Map, val *yaml.Node) error {
	sources := []*yaml.Node{val}
	if val.Kind == yaml.SequenceNode {
		sources = val.Content
	}
	for _, src := range sources {
		v, err := nodeToTree(src)
		if err != nil {
			return err
		}
		merged, ok := v.(*tree.Map)
		if !ok {
			return fmt.Errorf("line %d: merge value must be a mapping", src.Line)
		}
		merged.Range(func(k string, item any) bool {
			if _, exists := m.Get(k); !exists {
				m.Set(k, item)
			}
			return true
		})
	}
	return nil
}
