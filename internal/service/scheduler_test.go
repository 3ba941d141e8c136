package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/minimind-ai/minimind/internal/domain"
)

// fakeBackend is a scriptable inference client. Each Complete call records
// the request, signals started, optionally blocks on a gate token, then
// answers via fn.
type fakeBackend struct {
	mu      sync.Mutex
	calls   []domain.CompletionRequest
	started chan string
	gate    chan struct{}
	fn      func(call int, req domain.CompletionRequest) (string, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{started: make(chan string, 32)}
}

func (f *fakeBackend) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	call := len(f.calls)
	f.mu.Unlock()

	select {
	case f.started <- promptOf(req):
	default:
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.fn != nil {
		return f.fn(call, req)
	}
	return "ok", nil
}

func (f *fakeBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func promptOf(req domain.CompletionRequest) string {
	if req.Prompt != "" {
		return req.Prompt
	}
	if len(req.Messages) > 0 {
		return req.Messages[len(req.Messages)-1].Content
	}
	return ""
}

func newTestScheduler(t *testing.T, backend domain.InferenceClient) *Scheduler {
	t.Helper()
	s := NewScheduler(backend, 3, 5*time.Millisecond, time.Hour, zap.NewNop())
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func awaitResult(t *testing.T, ch <-chan domain.JobResult) domain.JobResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job result")
		return domain.JobResult{}
	}
}

func awaitStart(t *testing.T, f *fakeBackend) string {
	t.Helper()
	select {
	case p := <-f.started:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for backend call")
		return ""
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSchedulerDispatchesFIFO(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})
	s := newTestScheduler(t, backend)

	if p := awaitStart(t, backend); p != probePrompt {
		t.Fatalf("first backend call = %q, want the probe", p)
	}

	// submit while the backend is still busy with the probe
	results := make(chan string, 3)
	for _, name := range []string{"A", "B", "C"} {
		name := name
		s.Submit(domain.InferenceJob{
			Prompt:     "job " + name,
			OnComplete: func(domain.JobResult) { results <- name },
		})
	}

	backend.gate <- struct{}{} // release the probe

	var order []string
	for i := 0; i < 3; i++ {
		if p := awaitStart(t, backend); p != "job "+[]string{"A", "B", "C"}[i] {
			t.Errorf("dispatch %d = %q", i, p)
		}
		backend.gate <- struct{}{}
		select {
		case n := <-results:
			order = append(order, n)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for callback")
		}
	}

	if order[0] != "A" || order[1] != "B" || order[2] != "C" {
		t.Errorf("callback order = %v, want [A B C]", order)
	}
}

func TestSchedulerCancelQueuedFromCallback(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})
	s := newTestScheduler(t, backend)
	awaitStart(t, backend) // probe

	cFired := make(chan struct{}, 1)
	bDone := make(chan struct{})
	var idC string

	s.Submit(domain.InferenceJob{Prompt: "job A", OnComplete: func(domain.JobResult) {}})
	s.Submit(domain.InferenceJob{Prompt: "job B", OnComplete: func(domain.JobResult) {
		if !s.Cancel(idC) {
			t.Error("cancel of a queued job should succeed")
		}
		close(bDone)
	}})
	idC = s.Submit(domain.InferenceJob{Prompt: "job C", OnComplete: func(domain.JobResult) {
		cFired <- struct{}{}
	}})

	backend.gate <- struct{}{} // probe
	awaitStart(t, backend)     // A
	backend.gate <- struct{}{}
	awaitStart(t, backend) // B
	backend.gate <- struct{}{}

	select {
	case <-bDone:
	case <-time.After(2 * time.Second):
		t.Fatal("B's callback never fired")
	}

	// give the worker a chance to (incorrectly) dispatch C
	time.Sleep(50 * time.Millisecond)
	select {
	case <-cFired:
		t.Fatal("C's callback fired after cancellation")
	default:
	}
	if n := backend.callCount(); n != 3 {
		t.Errorf("backend saw %d calls, want 3 (probe, A, B)", n)
	}
}

func TestSchedulerDeferredProducerFreshness(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})
	s := newTestScheduler(t, backend)
	awaitStart(t, backend) // probe

	var stateMu sync.Mutex
	state := "stale"

	first := make(chan domain.JobResult, 1)
	second := make(chan domain.JobResult, 1)

	s.Submit(domain.InferenceJob{Prompt: "job A", OnComplete: func(r domain.JobResult) { first <- r }})
	s.Submit(domain.InferenceJob{
		Producer: func() (string, error) {
			stateMu.Lock()
			defer stateMu.Unlock()
			return "seen: " + state, nil
		},
		OnComplete: func(r domain.JobResult) { second <- r },
	})

	// mutate after submission, before dispatch
	stateMu.Lock()
	state = "fresh"
	stateMu.Unlock()

	backend.gate <- struct{}{} // probe
	awaitStart(t, backend)     // A
	backend.gate <- struct{}{}
	awaitResult(t, first)

	if got := awaitStart(t, backend); got != "seen: fresh" {
		t.Errorf("deferred prompt = %q, want the state at dispatch time", got)
	}
	backend.gate <- struct{}{}
	awaitResult(t, second)
}

func TestSchedulerRetriesTransientFailures(t *testing.T) {
	backend := newFakeBackend()
	backend.fn = func(call int, req domain.CompletionRequest) (string, error) {
		if req.Prompt == probePrompt {
			return "ready", nil
		}
		if call <= 3 {
			return "", errors.New("connection refused")
		}
		return "recovered", nil
	}
	s := newTestScheduler(t, backend)

	results := make(chan domain.JobResult, 1)
	s.Submit(domain.InferenceJob{Prompt: "flaky", OnComplete: func(r domain.JobResult) { results <- r }})

	r := awaitResult(t, results)
	if r.Err != nil {
		t.Fatalf("expected recovery after retries, got %v", r.Err)
	}
	if r.Text != "recovered" {
		t.Errorf("text = %q, want recovered", r.Text)
	}
	if n := backend.callCount(); n != 4 {
		t.Errorf("backend saw %d calls, want 4 (probe + 3 attempts)", n)
	}
}

func TestSchedulerTerminalFailureAfterRetries(t *testing.T) {
	backend := newFakeBackend()
	boom := errors.New("backend down")
	backend.fn = func(call int, req domain.CompletionRequest) (string, error) {
		if req.Prompt == probePrompt {
			return "ready", nil
		}
		return "", boom
	}
	s := newTestScheduler(t, backend)

	results := make(chan domain.JobResult, 1)
	s.Submit(domain.InferenceJob{Prompt: "doomed", OnComplete: func(r domain.JobResult) { results <- r }})

	r := awaitResult(t, results)
	if !errors.Is(r.Err, boom) {
		t.Fatalf("err = %v, want the wrapped backend error", r.Err)
	}
	if n := backend.callCount(); n != 4 {
		t.Errorf("backend saw %d calls, want probe + 3 attempts", n)
	}
}

func TestSchedulerProducerFailureIsTerminal(t *testing.T) {
	backend := newFakeBackend()
	s := newTestScheduler(t, backend)

	results := make(chan domain.JobResult, 1)
	s.Submit(domain.InferenceJob{
		Producer:   func() (string, error) { return "", errors.New("no context") },
		OnComplete: func(r domain.JobResult) { results <- r },
	})

	r := awaitResult(t, results)
	if !errors.Is(r.Err, domain.ErrPromptProducerFailed) {
		t.Fatalf("err = %v, want ErrPromptProducerFailed", r.Err)
	}
	if n := backend.callCount(); n != 1 {
		t.Errorf("backend saw %d calls, want the probe only", n)
	}
}

func TestSchedulerProducerPanicIsTerminal(t *testing.T) {
	backend := newFakeBackend()
	s := newTestScheduler(t, backend)

	results := make(chan domain.JobResult, 1)
	s.Submit(domain.InferenceJob{
		Producer:   func() (string, error) { panic("unexpected") },
		OnComplete: func(r domain.JobResult) { results <- r },
	})

	r := awaitResult(t, results)
	if !errors.Is(r.Err, domain.ErrPromptProducerFailed) {
		t.Fatalf("err = %v, want ErrPromptProducerFailed", r.Err)
	}
}

func TestSchedulerCancelInFlight(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})
	s := newTestScheduler(t, backend)
	awaitStart(t, backend)
	backend.gate <- struct{}{} // probe

	fired := make(chan struct{}, 1)
	id := s.Submit(domain.InferenceJob{Prompt: "long job", OnComplete: func(domain.JobResult) {
		fired <- struct{}{}
	}})
	awaitStart(t, backend) // in flight, blocked on the gate

	if !s.Cancel(id) {
		t.Fatal("cancel of the in-flight job should succeed")
	}
	// the aborted context unblocks the backend call; no gate token needed

	after := make(chan domain.JobResult, 1)
	s.Submit(domain.InferenceJob{Prompt: "after", OnComplete: func(r domain.JobResult) { after <- r }})
	awaitStart(t, backend)
	backend.gate <- struct{}{}
	awaitResult(t, after)

	select {
	case <-fired:
		t.Fatal("cancelled job's callback fired")
	default:
	}
}

func TestSchedulerCancelCompletedReturnsFalse(t *testing.T) {
	backend := newFakeBackend()
	s := newTestScheduler(t, backend)

	results := make(chan domain.JobResult, 1)
	id := s.Submit(domain.InferenceJob{Prompt: "quick", OnComplete: func(r domain.JobResult) { results <- r }})
	awaitResult(t, results)

	if s.Cancel(id) {
		t.Error("cancel after completion should return false")
	}
	if s.Cancel("no-such-job") {
		t.Error("cancel of an unknown job should return false")
	}
}

func TestSchedulerUnavailableBackendFastFails(t *testing.T) {
	backend := newFakeBackend()
	backend.fn = func(call int, req domain.CompletionRequest) (string, error) {
		return "", errors.New("connection refused")
	}
	s := newTestScheduler(t, backend)

	results := make(chan domain.JobResult, 1)
	s.Submit(domain.InferenceJob{Prompt: "hopeless", OnComplete: func(r domain.JobResult) { results <- r }})

	r := awaitResult(t, results)
	if !errors.Is(r.Err, domain.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", r.Err)
	}
	if s.Available() {
		t.Error("scheduler should report unavailable after a failed probe")
	}
	if n := backend.callCount(); n != 3 {
		t.Errorf("backend saw %d calls, want the 3 probe attempts only", n)
	}
}

func TestSchedulerReprobeRestoresAvailability(t *testing.T) {
	backend := newFakeBackend()
	var healthy atomic.Bool
	backend.fn = func(call int, req domain.CompletionRequest) (string, error) {
		if !healthy.Load() {
			return "", errors.New("connection refused")
		}
		return "ready", nil
	}
	s := NewScheduler(backend, 1, time.Millisecond, 20*time.Millisecond, zap.NewNop())
	s.Start()
	t.Cleanup(s.Stop)

	waitFor(t, func() bool { return s.Status().Probed })
	if s.Available() {
		t.Fatal("backend should start unavailable")
	}

	healthy.Store(true)
	waitFor(t, func() bool { return s.Available() })

	results := make(chan domain.JobResult, 1)
	s.Submit(domain.InferenceJob{Prompt: "hello", OnComplete: func(r domain.JobResult) { results <- r }})
	if r := awaitResult(t, results); r.Err != nil {
		t.Fatalf("job after recovery failed: %v", r.Err)
	}
}

func TestSchedulerStatus(t *testing.T) {
	backend := newFakeBackend()
	backend.gate = make(chan struct{})
	s := newTestScheduler(t, backend)
	awaitStart(t, backend)
	backend.gate <- struct{}{} // probe

	done := make(chan domain.JobResult, 2)
	idA := s.Submit(domain.InferenceJob{Prompt: "job A", OnComplete: func(r domain.JobResult) { done <- r }})
	awaitStart(t, backend) // A in flight
	s.Submit(domain.InferenceJob{Prompt: "job B", OnComplete: func(r domain.JobResult) { done <- r }})

	st := s.Status()
	if !st.Available || !st.Probed {
		t.Errorf("status = %+v, want available and probed", st)
	}
	if st.InFlightJob != idA {
		t.Errorf("in-flight job = %q, want %q", st.InFlightJob, idA)
	}
	if st.QueueLength != 1 {
		t.Errorf("queue length = %d, want 1", st.QueueLength)
	}

	backend.gate <- struct{}{}
	backend.gate <- struct{}{}
	awaitResult(t, done)
	awaitResult(t, done)
}
