package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUnknownCommandError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "unknown command error",
			err:  errors.New(`unknown command "foo" for "sensord"`),
			want: true,
		},
		{
			name: "unknown flag error",
			err:  errors.New(`unknown flag: --foo`),
			want: true,
		},
		{
			name: "unknown shorthand flag",
			err:  errors.New(`unknown shorthand flag: 'x' in -x`),
			want: true,
		},
		{
			name: "other error",
			err:  errors.New("connection failed"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				// Can't call isUnknownCommandError with nil
				return
			}
			got := isUnknownCommandError(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractUnknownCommand(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "standard cobra format",
			err:  errors.New(`unknown command "foo" for "sensord"`),
			want: "foo",
		},
		{
			name: "subcommand name",
			err:  errors.New(`unknown command "raed" for "sensord"`),
			want: "raed",
		},
		{
			name: "command with hyphen",
			err:  errors.New(`unknown command "my-task" for "sensord"`),
			want: "my-task",
		},
		{
			name: "no quotes returns empty",
			err:  errors.New("unknown command foo"),
			want: "",
		},
		{
			name: "single quote returns empty",
			err:  errors.New(`unknown command "foo`),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractUnknownCommand(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "read", "monitor", "check", "init", "completion", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCommandSuggestsTypos(t *testing.T) {
	tests := []struct {
		typed string
		want  string
	}{
		{"raed", "read"},
		{"moniter", "monitor"},
		{"rea", "read"},
		{"chek", "check"},
	}
	for _, tt := range tests {
		t.Run(tt.typed, func(t *testing.T) {
			assert.Contains(t, rootCmd.SuggestionsFor(tt.typed), tt.want)
		})
	}
	assert.Empty(t, rootCmd.SuggestionsFor("xyzzy"))
}

func TestApplyColor(t *testing.T) {
	orig := cfgFile
	defer func() { cfgFile = orig }()
	cfgFile = ""

	assert.NoError(t, applyColor("never"))
	assert.NoError(t, applyColor("always"))
	assert.Error(t, applyColor("sometimes"))
	assert.NoError(t, applyColor("never"))
}
