package config

import (
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Command builds a CommandConfig from an argv list.
func Command(argv ...string) CommandConfig {
	return CommandConfig{Raw: joinCommand(argv), Argv: argv}
}

// UnmarshalYAML accepts a shell-style string ("wl-copy --trim-newline") or a
// list of words ([wl-copy, --trim-newline]).
func (c *CommandConfig) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		argv, err := splitCommand(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		c.Raw, c.Argv = strings.TrimSpace(value.Value), argv
		return nil
	case yaml.SequenceNode:
		var argv []string
		if err := value.Decode(&argv); err != nil {
			return fmt.Errorf("line %d: command words must be strings", value.Line)
		}
		for i, word := range argv {
			if strings.TrimSpace(word) == "" {
				return fmt.Errorf("line %d: command word %d is empty", value.Line, i+1)
			}
		}
		*c = Command(argv...)
		return nil
	default:
		return fmt.Errorf("line %d: command must be a string or a list of words", value.Line)
	}
}

// splitCommand breaks line into words. Single quotes are literal, double
// quotes honour \" and \\, and a backslash elsewhere escapes the next rune.
// A line starting with # is a disabled command.
func splitCommand(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return nil, nil
	}

	runes := []rune(line)
	var (
		words  []string
		word   []rune
		inWord bool
	)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			if inWord {
				words = append(words, string(word))
				word, inWord = word[:0], false
			}
		case r == '\\':
			if i+1 == len(runes) {
				return nil, fmt.Errorf("command %q ends with a dangling backslash", line)
			}
			i++
			word, inWord = append(word, runes[i]), true
		case r == '\'':
			end := indexRuneFrom(runes, i+1, '\'')
			if end < 0 {
				return nil, fmt.Errorf("command %q has an unclosed ' at column %d", line, i+1)
			}
			word, inWord = append(word, runes[i+1:end]...), true
			i = end
		case r == '"':
			j := i + 1
			for ; j < len(runes) && runes[j] != '"'; j++ {
				if runes[j] == '\\' && j+1 < len(runes) && (runes[j+1] == '"' || runes[j+1] == '\\') {
					j++
				}
				word = append(word, runes[j])
			}
			if j == len(runes) {
				return nil, fmt.Errorf("command %q has an unclosed \" at column %d", line, i+1)
			}
			inWord = true
			i = j
		default:
			word, inWord = append(word, r), true
		}
	}
	if inWord {
		words = append(words, string(word))
	}
	return words, nil
}

func indexRuneFrom(runes []rune, from int, target rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == target {
			return i
		}
	}
	return -1
}

// joinCommand renders argv so that splitCommand reads it back unchanged.
func joinCommand(argv []string) string {
	quoted := make([]string, len(argv))
	for i, word := range argv {
		if word != "" && !strings.ContainsAny(word, " \t\n'\"\\#") {
			quoted[i] = word
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(word, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
