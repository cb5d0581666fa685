package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// functionSpec is the body of one preview function in a preview file.
type functionSpec struct {
	Template string         `yaml:"template"`
	Subject  string         `yaml:"subject"`
	Data     map[string]any `yaml:"data"`
}

type previewFunction struct {
	name string
	spec functionSpec
}

// parsePreviewFile decodes a preview file while keeping function order.
// A mapping node is used instead of a Go map since maps lose key order.
func parsePreviewFile(content []byte) ([]previewFunction, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: preview file must be a mapping of function names", root.Line)
	}

	functions := make([]previewFunction, 0, len(root.Content)/2)
	seen := make(map[string]bool, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode || key.Value == "" {
			return nil, fmt.Errorf("line %d: function name must be a non-empty string", key.Line)
		}
		if seen[key.Value] {
			return nil, fmt.Errorf("line %d: duplicate function %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		var spec functionSpec
		if !(value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
			if err := value.Decode(&spec); err != nil {
				return nil, fmt.Errorf("function %q: %w", key.Value, err)
			}
		}
		functions = append(functions, previewFunction{name: key.Value, spec: spec})
	}
	return functions, nil
}
