// Package safety classifies terminal commands against a blocklist so the
// automation loop never activates a control that would execute a destructive
// command. Patterns are either literal substrings (matched case-insensitively)
// or /pattern/flags regular expressions.
package safety

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/entrhq/autopilot/pkg/config"
)

// defaultPatterns is the built-in blocklist. It applies whenever the user
// has not configured any patterns of their own.
var defaultPatterns = []string{
	"rm -rf",
	"rm -fr",
	"sudo rm",
	"mkfs",
	"dd if=",
	":(){ :|:& };:",
	"> /dev/sd",
	"chmod -R 777 /",
	"git push --force",
	"git push -f",
	"git clean -fd",
	"git reset --hard",
	"drop table",
	"drop database",
	"truncate table",
	"delete from",
	"format c:",
	"del /f /s /q",
	"shutdown",
	"reboot",
}

// DefaultPatterns returns a copy of the built-in blocklist.
func DefaultPatterns() []string {
	return append([]string(nil), defaultPatterns...)
}

// Filter guards command execution using the configured blocklist.
// Mutating operations write through the automation config section; the
// optional persist callback saves the section after each mutation.
type Filter struct {
	section *config.AutomationSection
	persist func() error
	mu      sync.Mutex
}

// NewFilter creates a filter over the given automation section. persist may
// be nil when durability is handled elsewhere (e.g. in tests).
func NewFilter(section *config.AutomationSection, persist func() error) *Filter {
	return &Filter{section: section, persist: persist}
}

// Blocklist returns the active ordered pattern list: the user-configured
// patterns when any exist, otherwise the built-in defaults. The two are
// never merged.
func (f *Filter) Blocklist() []string {
	configured := f.section.Blocklist()
	if len(configured) > 0 {
		return configured
	}
	return DefaultPatterns()
}

// Snapshot compiles the active blocklist into an immutable matcher for one
// poll cycle.
func (f *Filter) Snapshot() Blocklist {
	return Compile(f.Blocklist())
}

// IsBlocked reports whether the command matches any active pattern.
func (f *Filter) IsBlocked(command string) bool {
	return f.Snapshot().Blocked(command)
}

// Add appends a pattern to the active list. Adding an already-present
// pattern is a no-op. When the user list is empty the defaults are
// materialized first so adding never discards them.
func (f *Filter) Add(pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("pattern cannot be empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	active := f.Blocklist()
	for _, p := range active {
		if p == pattern {
			return nil
		}
	}
	f.section.SetBlocklist(append(active, pattern))
	return f.save()
}

// Remove deletes a pattern from the active list. Removing an absent pattern
// is a no-op.
func (f *Filter) Remove(pattern string) error {
	pattern = strings.TrimSpace(pattern)

	f.mu.Lock()
	defer f.mu.Unlock()

	active := f.Blocklist()
	kept := make([]string, 0, len(active))
	found := false
	for _, p := range active {
		if p == pattern {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return nil
	}
	f.section.SetBlocklist(kept)
	return f.save()
}

// Reset discards the user-configured patterns, restoring the built-in
// defaults. Resetting twice yields the same list as resetting once.
func (f *Filter) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.section.SetBlocklist(nil)
	return f.save()
}

func (f *Filter) save() error {
	if f.persist == nil {
		return nil
	}
	return f.persist()
}

// Blocklist is a compiled, immutable set of blocklist rules. The automation
// loop takes one snapshot per poll cycle so configuration changes are only
// observed at tick boundaries.
type Blocklist []rule

type rule struct {
	literal string         // lower-cased literal substring, empty when re is set
	re      *regexp.Regexp // compiled /pattern/flags entry
}

// Compile turns raw patterns into matchable rules. A pattern delimited as
// /pattern/flags compiles as a regular expression (case-insensitive unless
// flags say otherwise); a pattern that fails to compile degrades to a
// literal substring match on its inner text.
func Compile(patterns []string) Blocklist {
	rules := make(Blocklist, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if inner, flags, ok := splitRegexPattern(pattern); ok {
			if re, err := regexp.Compile(regexFlagsPrefix(flags) + inner); err == nil {
				rules = append(rules, rule{re: re})
				continue
			}
			// Unparseable expression: fall back to matching the inner text.
			rules = append(rules, rule{literal: strings.ToLower(inner)})
			continue
		}
		rules = append(rules, rule{literal: strings.ToLower(pattern)})
	}
	return rules
}

// Blocked reports whether the command matches any rule. Literal rules match
// as case-insensitive substrings; regex rules test the raw command text.
func (b Blocklist) Blocked(command string) bool {
	lowered := strings.ToLower(command)
	for _, r := range b {
		if r.re != nil {
			if r.re.MatchString(command) {
				return true
			}
			continue
		}
		if strings.Contains(lowered, r.literal) {
			return true
		}
	}
	return false
}

// splitRegexPattern recognizes the /pattern/flags form. The inner pattern
// must be non-empty and the flags must all be letters.
func splitRegexPattern(pattern string) (inner, flags string, ok bool) {
	if len(pattern) < 2 || pattern[0] != '/' {
		return "", "", false
	}
	end := strings.LastIndex(pattern[1:], "/")
	if end < 0 {
		return "", "", false
	}
	end++ // index in pattern
	inner = pattern[1:end]
	flags = pattern[end+1:]
	if inner == "" {
		return "", "", false
	}
	for _, c := range flags {
		if c < 'a' || c > 'z' {
			return "", "", false
		}
	}
	return inner, flags, true
}

// regexFlagsPrefix maps delimiter flags to Go regexp inline flags. Matching
// is case-insensitive unless explicit flags are given. Flags with no Go
// equivalent (g, u, y) are ignored.
func regexFlagsPrefix(flags string) string {
	if flags == "" {
		return "(?i)"
	}
	var b strings.Builder
	for _, c := range flags {
		switch c {
		case 'i', 'm', 's':
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "(?" + b.String() + ")"
}
