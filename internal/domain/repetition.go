package domain

// DefaultGuardRetries is how many identical consecutive decisions are
// rejected before repetition is treated as intentional.
const DefaultGuardRetries = 2

// RepetitionGuard blocks an agent from mechanically repeating its exact
// previous action forever. It only compares against the immediately
// preceding signature; repeated behavior over longer horizons passes.
//
// Not safe for concurrent use; callers serialize access.
type RepetitionGuard struct {
	lastSignature string
	retryCount    int
	maxRetries    int
}

func NewRepetitionGuard(maxRetries int) *RepetitionGuard {
	if maxRetries < 0 {
		maxRetries = DefaultGuardRetries
	}
	return &RepetitionGuard{maxRetries: maxRetries}
}

// Check reports whether the decision carrying sig should execute. A false
// return means the caller must discard the decision and re-run the full
// decision pipeline immediately, with fresh context and fresh inference.
func (g *RepetitionGuard) Check(sig string) bool {
	if sig == g.lastSignature {
		if g.retryCount < g.maxRetries {
			g.retryCount++
			return false
		}
		g.retryCount = 0
		return true
	}
	g.lastSignature = sig
	g.retryCount = 0
	return true
}

// RetryCount exposes the current rejection streak.
func (g *RepetitionGuard) RetryCount() int {
	return g.retryCount
}

// LastSignature returns the signature of the last accepted decision.
func (g *RepetitionGuard) LastSignature() string {
	return g.lastSignature
}
