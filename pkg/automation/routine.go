// Package automation drives the timed poll loop that evaluates the decision
// routine inside the remote context and activates matching UI controls.
//
// The routine runs in two remote steps around a local decision: a constant
// snapshot script captures the focused-element state and every
// clickable-looking element, the precedence chain (Decide) picks the
// elements to activate, and a click command built from a single serialized
// index list activates them. Keeping the chain in Go makes its ordering
// testable without any remote environment.
package automation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/entrhq/autopilot/pkg/safety"
)

// maxButtonTextLength bounds the normalized text considered for matching;
// anything longer is prose, not a control label.
const maxButtonTextLength = 50

// SkipReasonUserTyping reports that the typing guard fired and no elements
// were evaluated.
const SkipReasonUserTyping = "user typing"

// SkipReasonBlocked reports that every surviving element was held back by
// the safety gate.
const SkipReasonBlocked = "command blocked"

// SkipReasonNoMatch reports that no element survived the pattern gates.
const SkipReasonNoMatch = "no matching elements"

// Default accept/reject wording. Detection is fixed pattern matching; these
// are not user-configurable.
var (
	defaultAcceptPatterns = []string{
		"accept", "apply", "run", "execute", "confirm", "continue",
		"proceed", "retry", "resume", "allow", "approve", "save",
	}
	defaultRejectPatterns = []string{
		"reject", "skip", "cancel", "decline", "deny", "dismiss",
		"stop", "abort", "revert", "discard",
	}
)

// Params are the explicit typed inputs of one decision cycle, snapshotted
// at the start of the cycle and immutable for its duration.
type Params struct {
	AcceptPatterns []string
	RejectPatterns []string
	Blocklist      safety.Blocklist
}

// DefaultParams builds cycle parameters from a blocklist snapshot.
func DefaultParams(blocklist safety.Blocklist) Params {
	return Params{
		AcceptPatterns: defaultAcceptPatterns,
		RejectPatterns: defaultRejectPatterns,
		Blocklist:      blocklist,
	}
}

// ElementState is one clickable-looking element as captured remotely.
type ElementState struct {
	Index    int    `json:"index"`
	Text     string `json:"text"`
	Visible  bool   `json:"visible"`
	Disabled bool   `json:"disabled"`
	Preview  string `json:"preview"`
}

// PageSnapshot is the remote page state one cycle decides over.
type PageSnapshot struct {
	Typing   bool           `json:"typing"`
	Elements []ElementState `json:"elements"`
}

// Decision is the outcome of the precedence chain: the element indices to
// activate, or the reason nothing will be.
type Decision struct {
	ClickIndices []int
	SkipReason   string
}

// PollResult is the transient outcome of one poll cycle.
type PollResult struct {
	ClickedCount int
	SkipReason   string
}

// Decide applies the precedence chain to a page snapshot. The typing guard
// runs first because interrupting active input is the least recoverable
// mistake; the safety gate runs last, immediately before activation, so no
// earlier heuristic can bypass it.
func Decide(snapshot PageSnapshot, params Params) Decision {
	if snapshot.Typing {
		return Decision{SkipReason: SkipReasonUserTyping}
	}

	var picks []int
	blocked := false
	for _, el := range snapshot.Elements {
		text := normalizeText(el.Text)
		if text == "" || utf8.RuneCountInString(text) > maxButtonTextLength {
			continue
		}
		// Rejection always wins, even when an accept pattern also matches.
		if containsAny(text, params.RejectPatterns) {
			continue
		}
		if !containsAny(text, params.AcceptPatterns) {
			continue
		}
		if !el.Visible || el.Disabled {
			continue
		}
		if suggestsCommandExecution(text) && params.Blocklist.Blocked(el.Preview) {
			// Skip only this element; the rest of the cycle continues.
			blocked = true
			continue
		}
		picks = append(picks, el.Index)
	}

	if len(picks) == 0 {
		reason := SkipReasonNoMatch
		if blocked {
			reason = SkipReasonBlocked
		}
		return Decision{SkipReason: reason}
	}
	return Decision{ClickIndices: picks}
}

// normalizeText trims and case-folds visible element text.
func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// suggestsCommandExecution reports whether a control's wording implies it
// executes a terminal command, which routes it through the safety gate.
func suggestsCommandExecution(text string) bool {
	return strings.Contains(text, "run") || strings.Contains(text, "execute")
}

// snapshotScript captures the typing-guard state and every button or
// role="button" element with its normalized rendering facts. It is a
// constant: no pattern list is ever interpolated into it.
const snapshotScript = `(function() {
	var active = document.activeElement;
	var typing = false;
	if (active) {
		var tag = active.tagName;
		typing = tag === 'INPUT' || tag === 'TEXTAREA' || active.isContentEditable ||
			!!(active.closest && active.closest('[contenteditable="true"], .monaco-editor, .xterm, .chat-input, .input-box'));
	}
	var nodes = Array.prototype.slice.call(document.querySelectorAll('button, [role="button"]'));
	var elements = nodes.map(function(el, i) {
		var rect = el.getBoundingClientRect();
		var style = window.getComputedStyle(el);
		var preview = '';
		var container = el.closest('li, section, article, div');
		if (container) {
			var pre = container.querySelector('pre, code, .command-preview');
			if (pre) preview = (pre.innerText || pre.textContent || '').slice(0, 500);
		}
		return {
			index: i,
			text: el.innerText || el.textContent || '',
			visible: rect.width > 0 && rect.height > 0 &&
				style.visibility !== 'hidden' && style.display !== 'none',
			disabled: !!el.disabled || el.getAttribute('aria-disabled') === 'true',
			preview: preview
		};
	});
	return JSON.stringify({typing: typing, elements: elements});
})()`

// SnapshotExpression returns the remote expression for the capture step.
func SnapshotExpression() string {
	return snapshotScript
}

// ClickExpression builds the activation command for the chosen element
// indices. The index list is serialized exactly once as a structured value.
func ClickExpression(indices []int) (string, error) {
	serialized, err := json.Marshal(indices)
	if err != nil {
		return "", fmt.Errorf("failed to serialize click indices: %w", err)
	}
	return fmt.Sprintf(`(function(indices) {
	var nodes = Array.prototype.slice.call(document.querySelectorAll('button, [role="button"]'));
	var clicked = 0;
	for (var i = 0; i < indices.length; i++) {
		var el = nodes[indices[i]];
		if (el) { el.click(); clicked++; }
	}
	return clicked;
})(%s)`, string(serialized)), nil
}
