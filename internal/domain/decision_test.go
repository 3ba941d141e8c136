package domain

import (
	"errors"
	"testing"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantVerb   string
		wantArgs   []string
		wantReason string
	}{
		{"verb only", "look", "look", nil, ""},
		{"verb with args", "go north", "go", []string{"north"}, ""},
		{"verb args reason", "go north | heading out", "go", []string{"north"}, "heading out"},
		{"multi word args", "say hello there stranger | being friendly", "say", []string{"hello", "there", "stranger"}, "being friendly"},
		{"uppercase verb lowered", "GO north", "go", []string{"north"}, ""},
		{"surrounding whitespace", "  emote stretches  |  waking up  ", "emote", []string{"stretches"}, "waking up"},
		{"picks first line", "go east | curious\nsay wait", "go", []string{"east"}, "curious"},
		{"skips blank lines", "\n\n  \nshout hello | testing", "shout", []string{"hello"}, "testing"},
		{"skips code fences", "```\ngo west | exploring\n```", "go", []string{"west"}, "exploring"},
		{"note command", "note the well: it is dry | worth remembering", "note", []string{"the", "well:", "it", "is", "dry"}, "worth remembering"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision(tt.raw)
			if err != nil {
				t.Fatalf("ParseDecision(%q) error: %v", tt.raw, err)
			}
			if d.Verb != tt.wantVerb {
				t.Errorf("verb = %q, want %q", d.Verb, tt.wantVerb)
			}
			if len(d.Args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", d.Args, tt.wantArgs)
			}
			for i := range d.Args {
				if d.Args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %q, want %q", i, d.Args[i], tt.wantArgs[i])
				}
			}
			if d.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", d.Reason, tt.wantReason)
			}
		})
	}
}

func TestParseDecision_Thinking(t *testing.T) {
	raw := "<think>the hallway was empty last time\nmaybe try the cellar</think>go cellar | following a hunch"

	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision error: %v", err)
	}
	if d.Verb != "go" {
		t.Errorf("verb = %q, want %q", d.Verb, "go")
	}
	if d.Thinking != "the hallway was empty last time\nmaybe try the cellar" {
		t.Errorf("thinking = %q", d.Thinking)
	}
}

func TestParseDecision_UnterminatedThinking(t *testing.T) {
	_, err := ParseDecision("<think>never stops thinking")
	if !errors.Is(err, ErrUnparsableDecision) {
		t.Fatalf("expected ErrUnparsableDecision, got %v", err)
	}
}

func TestParseDecision_Empty(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n\n", "```\n```"} {
		if _, err := ParseDecision(raw); !errors.Is(err, ErrUnparsableDecision) {
			t.Errorf("ParseDecision(%q) err = %v, want ErrUnparsableDecision", raw, err)
		}
	}
}

func TestDecisionSignature(t *testing.T) {
	a := Decision{Verb: "go", Args: []string{"north"}, Reason: "heading out"}
	b := Decision{Verb: "go", Args: []string{"north"}, Reason: "heading out"}
	c := Decision{Verb: "go", Args: []string{"north"}, Reason: "retreating"}

	if a.Signature() != b.Signature() {
		t.Error("identical decisions should share a signature")
	}
	if a.Signature() == c.Signature() {
		t.Error("different reasons should produce different signatures")
	}
	if a.Signature() != "go\x00north\x00heading out" {
		t.Errorf("signature = %q", a.Signature())
	}
}

func TestDecisionString(t *testing.T) {
	d := Decision{Verb: "go", Args: []string{"north"}, Reason: "heading out"}
	if d.String() != "go north | heading out" {
		t.Errorf("String() = %q", d.String())
	}

	bare := Decision{Verb: "look"}
	if bare.String() != "look" {
		t.Errorf("String() = %q", bare.String())
	}
}

func TestFallbackDecision(t *testing.T) {
	d := FallbackDecision()
	if d.Verb == "" {
		t.Fatal("fallback decision must have a verb")
	}
	if d.Signature() != FallbackDecision().Signature() {
		t.Error("fallback decision should be stable")
	}
}
