package discovery

import (
	"strconv"
	"strings"
)

// ParseCandidate extracts a Candidate from a process command line. The
// marker flag must be present, and both the port and token flags must carry
// values; a command line missing any of them yields no candidate. Flag names
// match case-insensitively and values may be quoted or attached with '='.
//
// Token contents are not validated here; a bogus token simply fails the
// verification probe.
func ParseCandidate(pid int32, cmdline string, spec TargetSpec) (Candidate, bool) {
	args := splitCommandLine(cmdline)

	if !hasFlag(args, spec.MarkerFlag) {
		return Candidate{}, false
	}

	portValue, ok := flagValue(args, spec.PortFlag)
	if !ok {
		return Candidate{}, false
	}
	port, err := strconv.Atoi(portValue)
	if err != nil || port <= 0 {
		return Candidate{}, false
	}

	token, ok := flagValue(args, spec.TokenFlag)
	if !ok || token == "" {
		return Candidate{}, false
	}

	return Candidate{PID: pid, AuxiliaryPort: port, Token: token}, true
}

// splitCommandLine tokenizes a raw command line, honoring single and double
// quotes. Quote characters are stripped from the resulting tokens.
func splitCommandLine(cmdline string) []string {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inArg   bool
	)

	flush := func() {
		if inArg {
			args = append(args, current.String())
			current.Reset()
			inArg = false
		}
	}

	for _, c := range cmdline {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				current.WriteRune(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inArg = true
		case c == ' ' || c == '\t':
			flush()
		default:
			current.WriteRune(c)
			inArg = true
		}
	}
	flush()
	return args
}

// hasFlag reports whether the flag appears as a standalone argument or in
// --flag=value form, case-insensitively.
func hasFlag(args []string, name string) bool {
	lowered := strings.ToLower(name)
	for _, arg := range args {
		la := strings.ToLower(arg)
		if la == lowered || strings.HasPrefix(la, lowered+"=") {
			return true
		}
	}
	return false
}

// flagValue extracts a flag's value in either --flag=value or
// "--flag value" form, case-insensitively.
func flagValue(args []string, name string) (string, bool) {
	lowered := strings.ToLower(name)
	for i, arg := range args {
		la := strings.ToLower(arg)
		if strings.HasPrefix(la, lowered+"=") {
			return arg[len(lowered)+1:], true
		}
		if la == lowered && i+1 < len(args) {
			next := args[i+1]
			if strings.HasPrefix(next, "-") {
				return "", false
			}
			return next, true
		}
	}
	return "", false
}
