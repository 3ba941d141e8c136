package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minimind-ai/minimind/internal/domain"
)

const (
	// DefaultThinkInterval is how long an idle agent waits between decision
	// cycles.
	DefaultThinkInterval = 20 * time.Second
	// DefaultPromptNotes caps how many notes a decision prompt carries.
	DefaultPromptNotes = 3
	// DefaultRecallTopK caps how many historical summaries recall surfaces.
	DefaultRecallTopK = 2

	decisionTemperature float32 = 0.7
	dreamTemperature    float32 = 0.9

	thinkingActivity = "is thinking"
	dreamingActivity = "is dreaming"
)

// LoopConfig tunes one agent's decision cadence.
type LoopConfig struct {
	ThinkInterval time.Duration
	PromptNotes   int
	RecallTopK    int
	Temperature   float32
	Stop          []string
	GuardRetries  int
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.ThinkInterval <= 0 {
		c.ThinkInterval = DefaultThinkInterval
	}
	if c.PromptNotes <= 0 {
		c.PromptNotes = DefaultPromptNotes
	}
	if c.RecallTopK <= 0 {
		c.RecallTopK = DefaultRecallTopK
	}
	if c.Temperature <= 0 {
		c.Temperature = decisionTemperature
	}
	if c.GuardRetries <= 0 {
		c.GuardRetries = domain.DefaultGuardRetries
	}
	return c
}

// AgentStatus is the inspection snapshot of one loop.
type AgentStatus struct {
	AgentID       string          `json:"agent_id"`
	Thinking      bool            `json:"thinking"`
	NextThinkSecs float64         `json:"next_think_seconds"`
	LastDecision  domain.Decision `json:"last_decision"`
	LastActedAt   time.Time       `json:"last_acted_at,omitempty"`
	GuardRetries  int             `json:"guard_retries"`
	Degraded      bool            `json:"degraded"`
}

// AgentLoop ties one agent's pieces into a periodic decision cycle: countdown,
// prompt build, inference, parse, repetition guard, execution, memory. The
// loop owns no goroutine; a runner calls Tick on a wall-clock cadence, and
// everything downstream of Submit happens on the scheduler goroutine.
type AgentLoop struct {
	agentID   string
	profile   string
	scheduler *Scheduler
	memory    *MemoryService
	notes     *NoteService
	world     domain.WorldProvider
	executor  domain.ActionExecutor
	guard     *domain.RepetitionGuard
	cfg       LoopConfig
	logger    *zap.Logger

	mu           sync.Mutex
	countdown    float64
	inFlight     string
	lastDecision domain.Decision
	lastActedAt  time.Time
	degraded     bool
}

func NewAgentLoop(agentID, profile string, scheduler *Scheduler, memory *MemoryService, notes *NoteService, world domain.WorldProvider, executor domain.ActionExecutor, cfg LoopConfig, logger *zap.Logger) *AgentLoop {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(profile) == "" {
		profile = fmt.Sprintf(defaultProfile, agentID)
	}
	return &AgentLoop{
		agentID:   agentID,
		profile:   profile,
		scheduler: scheduler,
		memory:    memory,
		notes:     notes,
		world:     world,
		executor:  executor,
		guard:     domain.NewRepetitionGuard(cfg.GuardRetries),
		cfg:       cfg,
		logger:    logger,
		countdown: cfg.ThinkInterval.Seconds(),
	}
}

func (l *AgentLoop) AgentID() string { return l.agentID }

// Tick advances the countdown. At zero, with no job in flight for this agent,
// it triggers one decision cycle and resets the timer. With no backend
// available it skips scheduling and performs the fallback action directly,
// still recording it.
func (l *AgentLoop) Tick(deltaSeconds float64) {
	l.mu.Lock()
	l.countdown -= deltaSeconds
	if l.countdown > 0 || l.inFlight != "" {
		l.mu.Unlock()
		return
	}
	l.countdown = l.cfg.ThinkInterval.Seconds()
	l.mu.Unlock()

	if !l.scheduler.Ready() {
		// startup probe still running; decide once it has an answer
		return
	}
	if !l.scheduler.Available() {
		l.degradedCycle()
		return
	}

	l.setDegraded(false)
	l.startCycle()
}

// startCycle submits one inference job. The prompt is built by a deferred
// producer so it reflects memory and world state at dispatch time, not
// submission time.
func (l *AgentLoop) startCycle() {
	id := uuid.NewString()
	l.mu.Lock()
	l.inFlight = id
	l.mu.Unlock()

	l.scheduler.Submit(domain.InferenceJob{
		ID:          id,
		Producer:    l.buildDecisionPrompt,
		System:      l.profile,
		Mode:        domain.JobModeSingleShot,
		Temperature: l.cfg.Temperature,
		Stop:        l.cfg.Stop,
		OnComplete:  l.handleDecision,
	})
	l.logger.Debug("decision cycle submitted",
		zap.String("agent_id", l.agentID),
		zap.String("job_id", id))
}

// buildDecisionPrompt runs on the scheduler goroutine at dispatch. The
// "is thinking" announcement is the producer's one observable side effect and
// lands just before context is frozen, so bystanders see it first.
func (l *AgentLoop) buildDecisionPrompt() (string, error) {
	l.world.Announce(l.agentID, thinkingActivity)

	snap, err := l.world.Snapshot(l.agentID)
	if err != nil {
		return "", fmt.Errorf("world snapshot: %w", err)
	}
	memCtx := l.memory.GetContext(0)

	terms := append([]string{snap.Location}, snap.Actors...)
	notes := l.notes.RelevantNotes(terms, l.cfg.PromptNotes)

	summaries := l.recallForPrompt(snap, memCtx)

	return renderDecisionPrompt(PromptData{
		AgentName: l.agentID,
		World:     snap,
		Memory:    memCtx,
		Notes:     notes,
		Summaries: summaries,
	}), nil
}

// recallForPrompt surfaces historical summaries near the current situation.
// Best effort: embedding trouble just means a prompt without that section.
func (l *AgentLoop) recallForPrompt(snap domain.WorldSnapshot, memCtx domain.MemoryContext) []domain.SummarySnapshot {
	query := snap.Location
	if n := len(memCtx.Immediate); n > 0 {
		query += " " + memCtx.Immediate[n-1].Content
	}
	summaries, err := l.memory.RelevantSummaries(context.Background(), query, l.cfg.RecallTopK)
	if err != nil {
		l.logger.Debug("summary recall unavailable for prompt",
			zap.String("agent_id", l.agentID),
			zap.Error(err))
		return nil
	}
	return summaries
}

// handleDecision is the job callback: parse, guard, execute, remember.
func (l *AgentLoop) handleDecision(result domain.JobResult) {
	l.mu.Lock()
	if l.inFlight == result.JobID {
		l.inFlight = ""
	}
	l.countdown = l.cfg.ThinkInterval.Seconds()
	l.mu.Unlock()

	if result.Err != nil {
		l.logger.Warn("decision inference failed, falling back",
			zap.String("agent_id", l.agentID),
			zap.Error(result.Err))
		l.execute(domain.FallbackDecision())
		return
	}

	decision, err := domain.ParseDecision(result.Text)
	if err != nil {
		l.logger.Info("unparsable decision text, falling back",
			zap.String("agent_id", l.agentID),
			zap.String("text", result.Text))
		l.execute(domain.FallbackDecision())
		return
	}

	l.mu.Lock()
	accepted := l.guard.Check(decision.Signature())
	retries := l.guard.RetryCount()
	l.mu.Unlock()

	if !accepted {
		l.logger.Info("repeated decision rejected, re-deciding",
			zap.String("agent_id", l.agentID),
			zap.String("decision", decision.String()),
			zap.Int("retry", retries))
		l.startCycle()
		return
	}

	l.execute(decision)
}

// degradedCycle is the no-backend path: the fallback action runs directly and
// is still recorded, so the log shows the agent idling rather than a gap.
func (l *AgentLoop) degradedCycle() {
	l.setDegraded(true)
	l.logger.Debug("no backend available, executing fallback",
		zap.String("agent_id", l.agentID))
	l.execute(domain.FallbackDecision())
}

// execute routes one accepted decision: cognition-local verbs are handled
// here, everything else goes to the world's action executor. Every branch
// records what happened to memory with ambient context.
func (l *AgentLoop) execute(d domain.Decision) {
	l.mu.Lock()
	l.lastDecision = d
	l.lastActedAt = time.Now()
	l.mu.Unlock()

	switch d.Verb {
	case "note":
		l.executeNote(d)
	case "recall":
		l.executeRecall(d)
	case "dream":
		l.startDream()
	case "wait":
		l.record("waited quietly", domain.EntryKindThought, d.Reason)
	default:
		result := l.executor.Execute(l.agentID, d)
		content := result.Message
		if content == "" {
			content = d.Verb
			if len(d.Args) > 0 {
				content += " " + strings.Join(d.Args, " ")
			}
		}
		if !result.Success {
			l.logger.Debug("action rejected by world",
				zap.String("agent_id", l.agentID),
				zap.String("decision", d.String()),
				zap.String("message", result.Message))
		}
		l.record(content, domain.EntryKindAction, d.Reason)
	}
}

// executeNote handles "note <title>: <body>". Without a colon the whole
// argument string becomes the title and the reason serves as the body.
func (l *AgentLoop) executeNote(d domain.Decision) {
	joined := strings.Join(d.Args, " ")
	title, body, found := strings.Cut(joined, ":")
	if !found {
		title, body = joined, d.Reason
	}

	note, err := l.notes.Save(context.Background(), title, strings.TrimSpace(body))
	if err != nil {
		l.logger.Warn("note not saved",
			zap.String("agent_id", l.agentID),
			zap.Error(err))
		l.record("tried to write a note but it came out blank", domain.EntryKindThought, d.Reason)
		return
	}
	l.record(fmt.Sprintf("wrote a note titled %q", note.Title), domain.EntryKindAction, d.Reason)
}

// executeRecall handles "recall <phrase>": semantic search over notes and
// historical summaries, recorded as an observation so the findings enter the
// working context.
func (l *AgentLoop) executeRecall(d domain.Decision) {
	phrase := strings.Join(d.Args, " ")
	if strings.TrimSpace(phrase) == "" {
		l.record("tried to recall something but had no question", domain.EntryKindThought, d.Reason)
		return
	}

	ctx := context.Background()
	var found []string

	notes, err := l.notes.Search(ctx, phrase, l.cfg.PromptNotes)
	if err != nil {
		l.logger.Warn("note recall failed",
			zap.String("agent_id", l.agentID),
			zap.Error(err))
	}
	for _, n := range notes {
		found = append(found, fmt.Sprintf("note %q: %s", n.Title, n.Content))
	}

	summaries, err := l.memory.RelevantSummaries(ctx, phrase, l.cfg.RecallTopK)
	if err != nil {
		l.logger.Warn("summary recall failed",
			zap.String("agent_id", l.agentID),
			zap.Error(err))
	}
	for _, s := range summaries {
		found = append(found, "remembered: "+s.Content)
	}

	content := fmt.Sprintf("recalled about %q: nothing came to mind", phrase)
	if len(found) > 0 {
		content = fmt.Sprintf("recalled about %q: %s", phrase, strings.Join(found, "; "))
	}
	l.record(content, domain.EntryKindObservation, d.Reason)
}

// startDream submits a reflective chat-turn job over the current memory
// context. The result lands in memory as a thought.
func (l *AgentLoop) startDream() {
	id := uuid.NewString()
	l.mu.Lock()
	l.inFlight = id
	l.mu.Unlock()

	l.scheduler.Submit(domain.InferenceJob{
		ID: id,
		Producer: func() (string, error) {
			l.world.Announce(l.agentID, dreamingActivity)
			memCtx := l.memory.GetContext(0)
			material := renderEntryLines(memCtx.Immediate)
			if memCtx.MidTerm != "" {
				material += "- " + memCtx.MidTerm + "\n"
			}
			return fmt.Sprintf(dreamPrompt, l.agentID, material), nil
		},
		Mode:        domain.JobModeChatTurn,
		Temperature: dreamTemperature,
		OnComplete:  l.handleDream,
	})
	l.logger.Debug("dream submitted",
		zap.String("agent_id", l.agentID),
		zap.String("job_id", id))
}

func (l *AgentLoop) handleDream(result domain.JobResult) {
	l.mu.Lock()
	if l.inFlight == result.JobID {
		l.inFlight = ""
	}
	l.countdown = l.cfg.ThinkInterval.Seconds()
	l.mu.Unlock()

	if result.Err != nil {
		l.logger.Warn("dream inference failed",
			zap.String("agent_id", l.agentID),
			zap.Error(result.Err))
		l.record("drifted off but the dream slipped away", domain.EntryKindThought, "")
		return
	}
	l.record("dreamed: "+strings.TrimSpace(result.Text), domain.EntryKindThought, "")
}

// record appends one entry to memory with fresh ambient context.
func (l *AgentLoop) record(content string, kind domain.EntryKind, why string) {
	var ambient domain.Ambient
	if snap, err := l.world.Snapshot(l.agentID); err == nil {
		ambient = domain.Ambient{Location: snap.Location, Actors: snap.Actors}
	}

	metadata := map[string]any{domain.MetaKind: string(kind)}
	if why != "" {
		metadata[domain.MetaWhy] = why
	}
	l.memory.Append(content, ambient, metadata)
}

// Observe feeds an external world event into the agent's memory.
func (l *AgentLoop) Observe(content string) {
	l.record(content, domain.EntryKindObservation, "")
}

// Status snapshots the loop for the inspection API.
func (l *AgentLoop) Status() AgentStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return AgentStatus{
		AgentID:       l.agentID,
		Thinking:      l.inFlight != "",
		NextThinkSecs: l.countdown,
		LastDecision:  l.lastDecision,
		LastActedAt:   l.lastActedAt,
		GuardRetries:  l.guard.RetryCount(),
		Degraded:      l.degraded,
	}
}

func (l *AgentLoop) setDegraded(v bool) {
	l.mu.Lock()
	l.degraded = v
	l.mu.Unlock()
}

// Close cancels any in-flight job so a removed agent's callback never fires.
func (l *AgentLoop) Close() {
	l.mu.Lock()
	id := l.inFlight
	l.inFlight = ""
	l.mu.Unlock()

	if id != "" {
		l.scheduler.Cancel(id)
	}
}
