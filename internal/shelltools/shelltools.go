// Package shelltools builds argv slices for spawning agent CLIs
// from configurable command-line templates. It is the one genuine
// call site for google/shlex in this module: launch templates are
// user-editable strings in config.json ("claude -p {prompt}"), and
// shlex is what turns a shell-quoted template into a clean argv
// without spawning an actual shell to do the splitting.
package shelltools

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// BuildArgv tokenizes template with shell-style quoting rules and
// substitutes {name} placeholders with values from vars. Unknown
// placeholders are left as-is so templates can be partially filled
// in stages (e.g. launch template first, prompt content later).
func BuildArgv(template string, vars map[string]string) ([]string, error) {
	tokens, err := shlex.Split(template)
	if err != nil {
		return nil, fmt.Errorf("parsing command template %q: %w", template, err)
	}
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = substitute(tok, vars)
	}
	return out, nil
}

func substitute(tok string, vars map[string]string) string {
	for name, val := range vars {
		tok = strings.ReplaceAll(tok, "{"+name+"}", val)
	}
	return tok
}

// LoginShellArgv builds the argv for running command inside the
// user's login shell, the way a continuation's fresh session is
// spawned: `$SHELL -lic '<command>'`. shell defaults to /bin/sh
// when the environment does not set $SHELL.
func LoginShellArgv(shell, command string) []string {
	if shell == "" {
		shell = "/bin/sh"
	}
	return []string{shell, "-lic", command}
}

// Quote renders a single argument for a POSIX shell command string,
// for building the command passed to LoginShellArgv: unchanged when
// it holds no whitespace, quote, backslash, $ or backtick, otherwise
// wrapped in single quotes; an empty argument becomes a pair of
// single quotes.
func Quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n'\"\\$`") {
		return arg
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range arg {
		if r == '\'' {
			b.WriteString(`'\''`)
		} else {
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
