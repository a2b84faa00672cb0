package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// readConfigFile reads a flat YAML mapping of options. Scalars keep their
// literal text, so "new_milestone_name: 8.0" stays "8.0" instead of
// becoming the number 8.
func readConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) // #nosec G304 - config file path from caller
	if err != nil {
		return nil, err
	}
	root, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return map[string]any{}, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of options", root.Line)
	}

	values := make(map[string]any, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]
		if LookupOption(key) == nil && key != "access_token" && key != "access_secret" {
			return nil, fmt.Errorf("line %d: unknown option %q", root.Content[i].Line, key)
		}
		switch val.Kind {
		case yaml.ScalarNode:
			if !isNull(val) {
				values[key] = val.Value
			}
		case yaml.SequenceNode:
			list, err := scalarList(val)
			if err != nil {
				return nil, fmt.Errorf("option %s: %w", key, err)
			}
			items := make([]any, len(list))
			for j, s := range list {
				items[j] = s
			}
			values[key] = items
		default:
			return nil, fmt.Errorf("line %d: option %s must be a scalar or a list", val.Line, key)
		}
	}
	return values, nil
}

// parseDocument returns the top-level node of a YAML document, or nil for an
// empty or comment-only document.
func parseDocument(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	return doc.Content[0], nil
}

// scalarList returns the literal text of every item of a sequence of
// scalars.
func scalarList(n *yaml.Node) ([]string, error) {
	out := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		if item.Kind != yaml.ScalarNode || isNull(item) {
			return nil, fmt.Errorf("line %d: list items must be scalars", item.Line)
		}
		out = append(out, item.Value)
	}
	return out, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}
