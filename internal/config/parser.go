package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse overlays YAML content on base and validates the result. Unknown keys
// are errors.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg := base
	if strings.TrimSpace(content) != "" {
		var root yaml.Node
		if err := yaml.Unmarshal([]byte(content), &root); err != nil {
			return Config{}, nil, err
		}

		decoder := yaml.NewDecoder(bytes.NewReader([]byte(content)))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, nil, err
		}

		warnings, err := Validate(cfg)
		if err != nil {
			return Config{}, nil, withLine(&root, err)
		}
		return cfg, attachLines(&root, warnings), nil
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

// fieldError is a validation failure tied to a dotted key such as "stt.timeout".
type fieldError struct {
	Key string
	Msg string
}

func (e *fieldError) Error() string {
	return e.Key + " " + e.Msg
}

func withLine(root *yaml.Node, err error) error {
	var fe *fieldError
	if !errors.As(err, &fe) {
		return err
	}
	if line := lineOf(root, fe.Key); line > 0 {
		return fmt.Errorf("line %d: %w", line, err)
	}
	return err
}

func attachLines(root *yaml.Node, warnings []Warning) []Warning {
	for i := range warnings {
		if warnings[i].Line != 0 {
			continue
		}
		key, _, ok := strings.Cut(warnings[i].Message, " ")
		if ok {
			warnings[i].Line = lineOf(root, key)
		}
	}
	return warnings
}

// lineOf finds the line of a dotted mapping key, or 0 when it is absent.
func lineOf(root *yaml.Node, dotted string) int {
	node := root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	line := 0
	for _, part := range strings.Split(dotted, ".") {
		if node == nil || node.Kind != yaml.MappingNode {
			return 0
		}
		var next *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == part {
				line = node.Content[i].Line
				next = node.Content[i+1]
				break
			}
		}
		if next == nil {
			return 0
		}
		node = next
	}
	return line
}
