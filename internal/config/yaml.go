package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var ErrEmptyConfig = errors.New("config file is empty")

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// toJSON returns the file as JSON for the strict decoder. YAML must hold
// exactly one document whose root is a mapping; other files pass through.
func toJSON(path string, data []byte) ([]byte, error) {
	if !isYAML(path) {
		return data, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", path, ErrEmptyConfig)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("%s: invalid config: trailing data (second YAML document at line %d)", path, extra.Line)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s:%d: top level must be a mapping", path, root.Line)
	}
	v, err := nodeValue(root, "")
	if err != nil {
		return nil, fmt.Errorf("%s:%w", path, err)
	}
	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return j, nil
}

// nodeValue converts a YAML node into JSON-compatible values. key is the
// dotted path of n, used in errors.
func nodeValue(n *yaml.Node, key string) (any, error) {
	switch n.Kind {
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%d: %s: mapping key must be a scalar", k.Line, orRoot(key))
			}
			child := joinKey(key, k.Value)
			if _, dup := m[k.Value]; dup {
				return nil, fmt.Errorf("%d: duplicate key %s", k.Line, child)
			}
			val, err := nodeValue(v, child)
			if err != nil {
				return nil, err
			}
			m[k.Value] = val
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for i, c := range n.Content {
			val, err := nodeValue(c, fmt.Sprintf("%s[%d]", key, i))
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	case yaml.AliasNode:
		return nodeValue(n.Alias, key)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%d: %s: %w", n.Line, orRoot(key), err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%d: %s: unsupported YAML node", n.Line, orRoot(key))
	}
}

func joinKey(parent, k string) string {
	if parent == "" {
		return k
	}
	return parent + "." + k
}

func orRoot(key string) string {
	if key == "" {
		return "(root)"
	}
	return key
}
