package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/minimind-ai/minimind/internal/domain"
)

type fakeWorld struct {
	mu        sync.Mutex
	snap      domain.WorldSnapshot
	snapErr   error
	announces []string
}

func (w *fakeWorld) Snapshot(agentID string) (domain.WorldSnapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap, w.snapErr
}

func (w *fakeWorld) Announce(agentID, activity string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.announces = append(w.announces, activity)
}

func (w *fakeWorld) announced() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.announces...)
}

type fakeExecutor struct {
	mu       sync.Mutex
	result   domain.ActionResult
	executed []domain.Decision
}

func (e *fakeExecutor) Execute(agentID string, d domain.Decision) domain.ActionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, d)
	return e.result
}

func (e *fakeExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.executed)
}

func (e *fakeExecutor) last() domain.Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.executed) == 0 {
		return domain.Decision{}
	}
	return e.executed[len(e.executed)-1]
}

type loopHarness struct {
	backend  *fakeBackend
	sched    *Scheduler
	storage  *fakeStorage
	embedder *fakeEmbedder
	memory   *MemoryService
	notes    *NoteService
	world    *fakeWorld
	executor *fakeExecutor
	loop     *AgentLoop
}

func newLoopHarness(t *testing.T, fn func(call int, req domain.CompletionRequest) (string, error)) *loopHarness {
	t.Helper()

	backend := newFakeBackend()
	backend.fn = fn
	sched := NewScheduler(backend, 1, time.Millisecond, time.Hour, zap.NewNop())

	storage := newFakeStorage()
	embedder := newFakeEmbedder()
	memory := NewMemoryService("ember", storage, &fakeSummarizer{}, embedder,
		MemoryConfig{ImmediateWindow: 16, MidTermWindow: 16, MaxMemories: 100}, zap.NewNop())
	notes := NewNoteService("ember", storage, embedder, 0.3, zap.NewNop())
	world := &fakeWorld{snap: domain.WorldSnapshot{
		Location:    "garden",
		Description: "A small walled garden.",
		Exits:       []string{"north"},
		Actors:      []string{"willow"},
	}}
	executor := &fakeExecutor{result: domain.ActionResult{Success: true, Message: "You go north."}}

	loop := NewAgentLoop("ember", "", sched, memory, notes, world, executor,
		LoopConfig{ThinkInterval: 10 * time.Second}, zap.NewNop())

	return &loopHarness{
		backend:  backend,
		sched:    sched,
		storage:  storage,
		embedder: embedder,
		memory:   memory,
		notes:    notes,
		world:    world,
		executor: executor,
		loop:     loop,
	}
}

func (h *loopHarness) start(t *testing.T) {
	t.Helper()
	h.sched.Start()
	t.Cleanup(h.sched.Stop)
	waitFor(t, h.sched.Ready)
}

func (h *loopHarness) hasEntry(substr string) bool {
	for _, e := range h.memory.GetContext(100).Immediate {
		if strings.Contains(e.Content, substr) {
			return true
		}
	}
	return false
}

func (h *loopHarness) entryByContent(t *testing.T, substr string) domain.MemoryEntry {
	t.Helper()
	for _, e := range h.memory.GetContext(100).Immediate {
		if strings.Contains(e.Content, substr) {
			return e
		}
	}
	t.Fatalf("no memory entry containing %q", substr)
	return domain.MemoryEntry{}
}

func requestAt(f *fakeBackend, i int) domain.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func TestAgentLoop_CountdownTriggersDecisionCycle(t *testing.T) {
	h := newLoopHarness(t, func(call int, req domain.CompletionRequest) (string, error) {
		if call == 1 {
			return "ready", nil
		}
		return "go north | the garden might have changed", nil
	})
	h.start(t)

	h.loop.Tick(4)
	h.loop.Tick(4)
	if n := h.backend.callCount(); n != 1 {
		t.Fatalf("cycle fired before the countdown elapsed: %d backend calls", n)
	}

	h.loop.Tick(4)
	waitFor(t, func() bool { return h.executor.count() == 1 })

	d := h.executor.last()
	if d.Verb != "go" || len(d.Args) != 1 || d.Args[0] != "north" {
		t.Errorf("executed decision = %+v, want go north", d)
	}
	if d.Reason != "the garden might have changed" {
		t.Errorf("reason = %q", d.Reason)
	}

	announced := h.world.announced()
	if len(announced) != 1 || announced[0] != "is thinking" {
		t.Errorf("announcements = %v, want exactly one thinking marker", announced)
	}

	waitFor(t, func() bool { return h.hasEntry("You go north.") })
	entry := h.entryByContent(t, "You go north.")
	if entry.Metadata[domain.MetaKind] != string(domain.EntryKindAction) {
		t.Errorf("entry kind = %v", entry.Metadata[domain.MetaKind])
	}
	if entry.Metadata[domain.MetaWhy] != "the garden might have changed" {
		t.Errorf("entry why = %v", entry.Metadata[domain.MetaWhy])
	}
	if entry.Metadata[domain.MetaWhere] != "garden" {
		t.Errorf("entry where = %v", entry.Metadata[domain.MetaWhere])
	}

	waitFor(t, func() bool { return !h.loop.Status().Thinking })
	if secs := h.loop.Status().NextThinkSecs; secs != 10 {
		t.Errorf("countdown after completion = %v, want a full interval", secs)
	}
}

func TestAgentLoop_PromptReflectsStateAtDispatch(t *testing.T) {
	h := newLoopHarness(t, func(call int, req domain.CompletionRequest) (string, error) {
		switch call {
		case 1:
			return "ready", nil
		case 2:
			return "ok", nil
		default:
			return "wait | nothing pressing", nil
		}
	})
	h.backend.gate = make(chan struct{})
	h.sched.Start()
	t.Cleanup(h.sched.Stop)

	awaitStart(t, h.backend) // probe reached the backend
	h.backend.gate <- struct{}{}
	waitFor(t, h.sched.Ready)

	// occupy the slot so the decision job queues behind it
	h.sched.Submit(domain.InferenceJob{Prompt: "filler", OnComplete: func(domain.JobResult) {}})
	awaitStart(t, h.backend)

	h.loop.Tick(11)
	if n := len(h.world.announced()); n != 0 {
		t.Fatalf("announced %d times at submit; the marker belongs at dispatch", n)
	}

	// state changes while the job waits in the queue
	h.memory.Append("found a brass key under the mat", domain.Ambient{Location: "garden"}, nil)

	h.backend.gate <- struct{}{} // release the filler
	prompt := awaitStart(t, h.backend)

	if !strings.Contains(prompt, "found a brass key under the mat") {
		t.Error("prompt missing the entry appended after submission")
	}
	if !strings.Contains(prompt, "## Where you are") || !strings.Contains(prompt, "garden") {
		t.Error("prompt missing the world section")
	}
	if !strings.Contains(prompt, "Respond with exactly one line") {
		t.Error("prompt missing the command help")
	}
	if req := requestAt(h.backend, 2); !strings.Contains(req.System, "ember") {
		t.Errorf("system prompt = %q, want the default persona", req.System)
	}

	h.backend.gate <- struct{}{} // release the decision call
	waitFor(t, func() bool { return h.hasEntry("waited quietly") })
	if n := h.executor.count(); n != 0 {
		t.Errorf("wait is cognition-local, executor ran %d times", n)
	}
}

func TestAgentLoop_UnparsableTextFallsBackToObservation(t *testing.T) {
	h := newLoopHarness(t, func(call int, req domain.CompletionRequest) (string, error) {
		if call == 1 {
			return "ready", nil
		}
		return "```\n```", nil
	})
	h.executor.result = domain.ActionResult{Success: true, Message: "The garden is quiet."}
	h.start(t)

	h.loop.Tick(11)
	waitFor(t, func() bool { return h.executor.count() == 1 })

	d := h.executor.last()
	if d.Verb != "look" {
		t.Errorf("fallback verb = %q, want look", d.Verb)
	}
	waitFor(t, func() bool { return h.hasEntry("The garden is quiet.") })
}

func TestAgentLoop_RepeatedDecisionForcesImmediateRedecision(t *testing.T) {
	h := newLoopHarness(t, func(call int, req domain.CompletionRequest) (string, error) {
		if call == 1 {
			return "ready", nil
		}
		return "go north | heading out", nil
	})
	h.start(t)

	h.loop.Tick(11)
	waitFor(t, func() bool { return h.executor.count() == 1 })

	// same decision again: rejected twice with fresh inference each time,
	// then accepted as intentional
	h.loop.Tick(11)
	waitFor(t, func() bool { return h.executor.count() == 2 })

	if n := h.backend.callCount(); n != 5 {
		t.Errorf("backend calls = %d, want probe + 1 + 3 (two rejections re-decided)", n)
	}
	if r := h.loop.Status().GuardRetries; r != 0 {
		t.Errorf("guard retries after acceptance = %d, want reset", r)
	}
}

func TestAgentLoop_DegradedModeSkipsScheduling(t *testing.T) {
	h := newLoopHarness(t, func(call int, req domain.CompletionRequest) (string, error) {
		return "", errors.New("connection refused")
	})
	h.executor.result = domain.ActionResult{Success: true, Message: "The garden is quiet."}
	h.start(t)
	waitFor(t, func() bool { return h.sched.Ready() && !h.sched.Available() })

	h.loop.Tick(11)

	if n := h.executor.count(); n != 1 {
		t.Fatalf("executor calls = %d, want the fallback action", n)
	}
	if d := h.executor.last(); d.Verb != "look" {
		t.Errorf("fallback verb = %q", d.Verb)
	}
	if !h.hasEntry("The garden is quiet.") {
		t.Error("fallback action not recorded to memory")
	}
	if !h.loop.Status().Degraded {
		t.Error("loop should report degraded mode")
	}
	if n := h.backend.callCount(); n != 1 {
		t.Errorf("backend calls = %d, want only the probe", n)
	}
}

func TestAgentLoop_NoteVerbSavesAndRecords(t *testing.T) {
	h := newLoopHarness(t, func(call int, req domain.CompletionRequest) (string, error) {
		if call == 1 {
			return "ready", nil
		}
		return "note garden gate: squeaks at dawn | worth remembering", nil
	})
	h.start(t)

	h.loop.Tick(11)
	waitFor(t, func() bool { return h.notes.Count() == 1 })

	notes := h.notes.List()
	if notes[0].Title != "garden gate" || notes[0].Content != "squeaks at dawn" {
		t.Errorf("saved note = %+v", notes[0])
	}
	waitFor(t, func() bool { return h.hasEntry(`wrote a note titled "garden gate"`) })
	if n := h.executor.count(); n != 0 {
		t.Errorf("note is cognition-local, executor ran %d times", n)
	}
}

func TestAgentLoop_RecallVerbRecordsFindings(t *testing.T) {
	h := newLoopHarness(t, func(call int, req domain.CompletionRequest) (string, error) {
		if call == 1 {
			return "ready", nil
		}
		return "recall garden | what do i know", nil
	})
	h.embedder.vectors["garden"] = []float32{1, 0}
	h.embedder.vectors["tomatoes by the south wall"] = []float32{1, 0}
	if _, err := h.notes.Save(context.Background(), "garden", "tomatoes by the south wall"); err != nil {
		t.Fatal(err)
	}
	h.start(t)

	h.loop.Tick(11)
	waitFor(t, func() bool { return h.hasEntry(`recalled about "garden"`) })

	entry := h.entryByContent(t, `recalled about "garden"`)
	if !strings.Contains(entry.Content, `note "garden"`) {
		t.Errorf("recall content = %q, want the matching note", entry.Content)
	}
	if entry.Metadata[domain.MetaKind] != string(domain.EntryKindObservation) {
		t.Errorf("recall entry kind = %v", entry.Metadata[domain.MetaKind])
	}
}

func TestAgentLoop_DreamVerbReflectsOverMemories(t *testing.T) {
	h := newLoopHarness(t, func(call int, req domain.CompletionRequest) (string, error) {
		switch call {
		case 1:
			return "ready", nil
		case 2:
			return "dream | need to let things settle", nil
		default:
			return "The garden keeps growing in my mind.", nil
		}
	})
	h.start(t)

	h.memory.Append("planted the last seedling", domain.Ambient{Location: "garden"}, nil)

	h.loop.Tick(11)
	waitFor(t, func() bool { return h.hasEntry("dreamed: The garden keeps growing in my mind.") })

	req := requestAt(h.backend, 2)
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("dream request messages = %+v, want one user turn", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "planted the last seedling") {
		t.Error("dream prompt missing recent memories")
	}

	announced := h.world.announced()
	if len(announced) != 2 || announced[1] != "is dreaming" {
		t.Errorf("announcements = %v, want thinking then dreaming", announced)
	}

	entry := h.entryByContent(t, "dreamed:")
	if entry.Metadata[domain.MetaKind] != string(domain.EntryKindThought) {
		t.Errorf("dream entry kind = %v", entry.Metadata[domain.MetaKind])
	}
	waitFor(t, func() bool { return !h.loop.Status().Thinking })
}
