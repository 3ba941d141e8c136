package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/minimind-ai/minimind/internal/domain"
)

// summaryTemperature keeps compaction output focused.
const summaryTemperature = 0.3

// SchedulerSummarizer produces summaries by submitting jobs to the shared
// Scheduler, so compaction competes for the same single backend slot as
// agent decisions instead of bypassing the queue.
type SchedulerSummarizer struct {
	scheduler *Scheduler
}

func NewSchedulerSummarizer(scheduler *Scheduler) *SchedulerSummarizer {
	return &SchedulerSummarizer{scheduler: scheduler}
}

var _ domain.Summarizer = (*SchedulerSummarizer)(nil)

func (s *SchedulerSummarizer) SummarizeEntries(ctx context.Context, entries []domain.MemoryEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	return s.complete(ctx, fmt.Sprintf(summarizeEntriesPrompt, renderEntryLines(entries)))
}

// MergeSummaries returns the non-empty side unchanged when the other is
// blank; the first fold of a fresh agent needs no inference.
func (s *SchedulerSummarizer) MergeSummaries(ctx context.Context, longTerm, midTerm string) (string, error) {
	if strings.TrimSpace(longTerm) == "" {
		return midTerm, nil
	}
	if strings.TrimSpace(midTerm) == "" {
		return longTerm, nil
	}
	return s.complete(ctx, fmt.Sprintf(mergeSummariesPrompt, longTerm, midTerm))
}

func (s *SchedulerSummarizer) complete(ctx context.Context, prompt string) (string, error) {
	ch := make(chan domain.JobResult, 1)
	id := s.scheduler.Submit(domain.InferenceJob{
		Prompt:      prompt,
		Mode:        domain.JobModeSingleShot,
		Temperature: summaryTemperature,
		OnComplete:  func(r domain.JobResult) { ch <- r },
	})

	select {
	case r := <-ch:
		return r.Text, r.Err
	case <-ctx.Done():
		s.scheduler.Cancel(id)
		return "", ctx.Err()
	}
}
