package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Parsed
		wantErr string
	}{
		{name: "no args shows help", args: nil, want: Parsed{Command: CommandHelp, ShowHelp: true}},
		{name: "short help", args: []string{"-h"}, want: Parsed{Command: CommandHelp, ShowHelp: true}},
		{name: "help command", args: []string{"help"}, want: Parsed{Command: CommandHelp, ShowHelp: true}},
		{name: "version flag", args: []string{"--version"}, want: Parsed{Command: CommandVersion}},
		{name: "toggle is dictate", args: []string{"toggle"}, want: Parsed{Command: CommandDictate}},
		{
			name: "config and language",
			args: []string{"--config", "/tmp/murmur.yaml", "--lang", " es-MX ", "dictate"},
			want: Parsed{Command: CommandDictate, ConfigPath: "/tmp/murmur.yaml", Language: "es-MX"},
		},
		{
			name: "inline flag values",
			args: []string{"--config=/tmp/cfg", "--lang=pt-BR", "stop"},
			want: Parsed{Command: CommandStop, ConfigPath: "/tmp/cfg", Language: "pt-BR"},
		},
		{
			name: "transcribe file",
			args: []string{"--lang", "en", "transcribe", "/tmp/note.wav"},
			want: Parsed{Command: CommandTranscribe, Language: "en", File: "/tmp/note.wav"},
		},
		{name: "flag after command", args: []string{"status", "--config", "/tmp/cfg"}, wantErr: `unexpected arguments after command "status"`},
		{name: "missing config path", args: []string{"--config"}, wantErr: "--config requires a path"},
		{name: "missing language tag", args: []string{"--lang"}, wantErr: "--lang requires a language tag"},
		{name: "blank inline language", args: []string{"--lang= ", "dictate"}, wantErr: "--lang requires a language tag"},
		{name: "transcribe without file", args: []string{"transcribe"}, wantErr: "exactly one FILE"},
		{name: "transcribe with two files", args: []string{"transcribe", "a.wav", "b.wav"}, wantErr: "exactly one FILE"},
		{name: "unknown flag", args: []string{"--bogus=1"}, wantErr: "unknown flag: --bogus=1"},
		{name: "unknown command", args: []string{"bogus"}, wantErr: "unknown command: bogus"},
		{name: "extra args", args: []string{"doctor", "extra"}, wantErr: "unexpected arguments"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, parsed)
		})
	}
}

func TestEveryCommandParses(t *testing.T) {
	for _, entry := range commands {
		args := []string{string(entry.name)}
		for range entry.args {
			args = append(args, "arg.wav")
		}
		_, err := Parse(args)
		require.NoError(t, err, entry.name)
	}
}

func TestHelpTextListsEveryCommand(t *testing.T) {
	text := HelpText("murmur")
	require.True(t, strings.HasPrefix(text, "Usage:\n  murmur [--config PATH] [--lang TAG] <command>"))
	for _, entry := range commands {
		require.Contains(t, text, entry.summary)
	}
	require.Contains(t, text, "  transcribe FILE  Upload a recording")
	require.Contains(t, text, "murmur/config.yaml")
}
