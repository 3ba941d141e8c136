package domain

import (
	"errors"
	"strings"
)

var ErrUnparsableDecision = errors.New("decision text has no command")

// Decision is one parsed agent action: a verb, its arguments, and the
// private reasoning that followed the "|" separator.
type Decision struct {
	Verb     string   `json:"verb"`
	Args     []string `json:"args,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Thinking string   `json:"-"`
}

// Signature canonicalizes a decision for exact-repetition comparison.
func (d Decision) Signature() string {
	return d.Verb + "\x00" + strings.Join(d.Args, " ") + "\x00" + d.Reason
}

func (d Decision) String() string {
	s := d.Verb
	if len(d.Args) > 0 {
		s += " " + strings.Join(d.Args, " ")
	}
	if d.Reason != "" {
		s += " | " + d.Reason
	}
	return s
}

// ActionResult is what the action executor reports back.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FallbackDecision is the minimal default action used when decision text
// cannot be parsed or no backend is available.
func FallbackDecision() Decision {
	return Decision{Verb: "look", Reason: "taking in the surroundings"}
}

// ParseDecision extracts a structured decision from raw completion text.
// Chain-of-thought inside <think> tags is stripped and preserved on the
// returned decision; the command is the first meaningful line, with an
// optional "| reason" suffix.
func ParseDecision(raw string) (Decision, error) {
	thinking, rest := splitThinking(raw)

	line := firstCommandLine(rest)
	if line == "" {
		return Decision{}, ErrUnparsableDecision
	}

	command, reason, _ := strings.Cut(line, "|")
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Decision{}, ErrUnparsableDecision
	}

	return Decision{
		Verb:     strings.ToLower(fields[0]),
		Args:     fields[1:],
		Reason:   strings.TrimSpace(reason),
		Thinking: thinking,
	}, nil
}

// splitThinking removes every <think>...</think> span and returns the joined
// span contents alongside the remaining text. An unterminated tag swallows
// the rest of the input.
func splitThinking(raw string) (thinking, rest string) {
	var thoughts []string
	var out strings.Builder

	for {
		start := strings.Index(raw, "<think>")
		if start < 0 {
			out.WriteString(raw)
			break
		}
		out.WriteString(raw[:start])
		raw = raw[start+len("<think>"):]

		end := strings.Index(raw, "</think>")
		if end < 0 {
			thoughts = append(thoughts, strings.TrimSpace(raw))
			break
		}
		thoughts = append(thoughts, strings.TrimSpace(raw[:end]))
		raw = raw[end+len("</think>"):]
	}

	return strings.Join(thoughts, "\n"), out.String()
}

func firstCommandLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.TrimPrefix(line, "> ")
		if line == "" {
			continue
		}
		return line
	}
	return ""
}
