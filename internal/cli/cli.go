// Package cli parses murmur's command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandDictate    Command = "dictate"
	CommandToggle     Command = "toggle"
	CommandStop       Command = "stop"
	CommandCancel     Command = "cancel"
	CommandStatus     Command = "status"
	CommandDevices    Command = "devices"
	CommandTranscribe Command = "transcribe"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

// commandInfo describes one subcommand: its usage column, help line and
// positional argument count.
type commandInfo struct {
	name    Command
	usage   string
	summary string
	args    int
	alias   Command
}

var commands = []commandInfo{
	{name: CommandDictate, summary: "Start dictation, or stop and commit when already dictating"},
	{name: CommandToggle, summary: "Alias for dictate", alias: CommandDictate},
	{name: CommandStop, summary: "Stop active dictation and commit transcript"},
	{name: CommandCancel, summary: "Cancel active dictation and discard transcript"},
	{name: CommandStatus, summary: "Print current state and live transcript"},
	{name: CommandDevices, summary: "List available input devices"},
	{name: CommandTranscribe, usage: "transcribe FILE", summary: "Upload a recording and print its transcript", args: 1},
	{name: CommandDoctor, summary: "Run configuration and environment checks"},
	{name: CommandVersion, summary: "Print version information"},
	{name: CommandHelp, summary: "Show this help"},
}

func lookup(name string) (commandInfo, bool) {
	for _, entry := range commands {
		if string(entry.name) == name {
			return entry, true
		}
	}
	return commandInfo{}, false
}

type Parsed struct {
	Command    Command
	ConfigPath string
	// Language overrides the configured default language tag for this run.
	Language string
	// File is the recording passed to transcribe.
	File     string
	ShowHelp bool
}

// Parse reads global flags followed by at most one command and its
// positional arguments. Flags accept both "--flag value" and "--flag=value".
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return parseCommand(parsed, arg, args[i+1:])
		}

		name, inline, hasInline := strings.Cut(arg, "=")
		value := func(what string) (string, error) {
			if hasInline {
				return inline, nil
			}
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s requires %s", name, what)
			}
			return args[i], nil
		}

		switch name {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			path, err := value("a path")
			if err != nil {
				return Parsed{}, err
			}
			parsed.ConfigPath = path
		case "--lang":
			tag, err := value("a language tag")
			if err != nil {
				return Parsed{}, err
			}
			if tag = strings.TrimSpace(tag); tag == "" {
				return Parsed{}, errors.New("--lang requires a language tag")
			}
			parsed.Language = tag
		default:
			return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
		}
	}

	return parsed, nil
}

func parseCommand(parsed Parsed, name string, rest []string) (Parsed, error) {
	entry, ok := lookup(name)
	if !ok {
		return Parsed{}, fmt.Errorf("unknown command: %s", name)
	}

	parsed.Command = entry.name
	if entry.alias != "" {
		parsed.Command = entry.alias
	}
	parsed.ShowHelp = parsed.Command == CommandHelp

	switch {
	case entry.args == 1:
		if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
			return Parsed{}, fmt.Errorf("%s requires exactly one FILE argument", name)
		}
		parsed.File = rest[0]
	case len(rest) != 0:
		return Parsed{}, fmt.Errorf("unexpected arguments after command %q", name)
	}
	return parsed, nil
}

func HelpText(binaryName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage:\n  %s [--config PATH] [--lang TAG] <command>\n\nCommands:\n", binaryName)
	for _, entry := range commands {
		usage := entry.usage
		if usage == "" {
			usage = string(entry.name)
		}
		fmt.Fprintf(&b, "  %-16s %s\n", usage, entry.summary)
	}
	b.WriteString(`
Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/murmur/config.yaml)
  --lang TAG      Language tag for this run (overrides language.default)
  -h, --help      Show help
  --version       Show version
`)
	return b.String()
}
