package domain

import "testing"

func TestRepetitionGuard_RepeatCycle(t *testing.T) {
	g := NewRepetitionGuard(2)
	sig := Decision{Verb: "go", Args: []string{"north"}, Reason: "heading out"}.Signature()

	if !g.Check(sig) {
		t.Fatal("first occurrence should be accepted")
	}
	if g.Check(sig) {
		t.Fatal("first repeat should be rejected")
	}
	if g.RetryCount() != 1 {
		t.Errorf("retry count = %d, want 1", g.RetryCount())
	}
	if g.Check(sig) {
		t.Fatal("second repeat should be rejected")
	}
	if g.RetryCount() != 2 {
		t.Errorf("retry count = %d, want 2", g.RetryCount())
	}
	if !g.Check(sig) {
		t.Fatal("third repeat should be accepted as intentional")
	}
	if g.RetryCount() != 0 {
		t.Errorf("retry count after intentional accept = %d, want 0", g.RetryCount())
	}
}

func TestRepetitionGuard_DifferentSignatureResets(t *testing.T) {
	g := NewRepetitionGuard(2)
	first := Decision{Verb: "go", Args: []string{"north"}}.Signature()
	second := Decision{Verb: "say", Args: []string{"hello"}}.Signature()

	if !g.Check(first) {
		t.Fatal("first decision should be accepted")
	}
	if g.Check(first) {
		t.Fatal("repeat should be rejected")
	}
	if !g.Check(second) {
		t.Fatal("different decision should be accepted")
	}
	if g.RetryCount() != 0 {
		t.Errorf("retry count = %d, want 0 after a different decision", g.RetryCount())
	}
	if g.LastSignature() != second {
		t.Error("last signature should track the newest accepted decision")
	}

	// The earlier signature is no longer the immediate predecessor, so it
	// passes again.
	if !g.Check(first) {
		t.Fatal("alternating decisions should always be accepted")
	}
}

func TestRepetitionGuard_ZeroRetries(t *testing.T) {
	g := NewRepetitionGuard(0)
	sig := Decision{Verb: "emote", Args: []string{"waits"}}.Signature()

	if !g.Check(sig) {
		t.Fatal("first occurrence should be accepted")
	}
	if !g.Check(sig) {
		t.Fatal("with zero retries every repeat is treated as intentional")
	}
}

func TestRepetitionGuard_NegativeRetriesUsesDefault(t *testing.T) {
	g := NewRepetitionGuard(-1)
	if g.maxRetries != DefaultGuardRetries {
		t.Errorf("maxRetries = %d, want default %d", g.maxRetries, DefaultGuardRetries)
	}
}
