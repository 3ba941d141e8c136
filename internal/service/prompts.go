package service

import (
	"strings"

	"github.com/minimind-ai/minimind/internal/domain"
)

// defaultProfile is the persona used when an agent has no profile file.
const defaultProfile = `You are %s, a curious inhabitant of a small text world. You speak plainly,
notice details, and act on your own goals. You experience the world only
through the events given to you.`

const summarizeEntriesPrompt = `Condense the following events into one compact paragraph.
Keep names, places, discoveries, and anything that changed. Write in first
person, past tense, as the character whose memories these are.

Events:
%s
Summary:`

const mergeSummariesPrompt = `Combine two summaries of one character's history into a single paragraph.
The older summary covers earlier events, the newer one covers what followed.
Preserve names, places, and consequences. Compress everything else.

Older:
%s

Newer:
%s

Combined:`

const dreamPrompt = `You are %s. Drift over these recent memories and write a short reflective
note to yourself about what seems to matter. Two sentences at most.

Memories:
%s
Note:`

// commandHelp closes every decision prompt. The expected reply is one line:
// command, pipe, short private reason.
const commandHelp = `Respond with exactly one line in this form:
<command> | <reason>

Commands:
  go <exit>            move through an exit
  say <text>           speak to everyone here
  shout <text>         yell, heard in adjacent places too
  emote <action>       perform a visible action
  look                 take in your surroundings
  note <title>: <text> write a note to yourself
  recall <query>       search your notes and old summaries
  dream                reflect on recent memories
  wait                 do nothing this turn

Example: go north | the garden might have changed`

// PromptData carries everything a decision prompt renders from. Rendering is
// deterministic: the same data always yields the same prompt.
type PromptData struct {
	AgentName string
	World     domain.WorldSnapshot
	Memory    domain.MemoryContext
	Notes     []domain.Note
	Summaries []domain.SummarySnapshot
}

func renderDecisionPrompt(d PromptData) string {
	var sb strings.Builder

	sb.WriteString("## Where you are\n")
	sb.WriteString(d.World.Location)
	if d.World.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(d.World.Description)
	}
	sb.WriteString("\n")
	if len(d.World.Exits) > 0 {
		sb.WriteString("Exits: ")
		sb.WriteString(strings.Join(d.World.Exits, ", "))
		sb.WriteString("\n")
	}
	if len(d.World.Actors) > 0 {
		sb.WriteString("Also here: ")
		sb.WriteString(strings.Join(d.World.Actors, ", "))
		sb.WriteString("\n")
	}

	if d.Memory.LongTerm != "" {
		sb.WriteString("\n## Long ago\n")
		sb.WriteString(d.Memory.LongTerm)
		sb.WriteString("\n")
	}
	if d.Memory.MidTerm != "" {
		sb.WriteString("\n## Earlier\n")
		sb.WriteString(d.Memory.MidTerm)
		sb.WriteString("\n")
	}
	if len(d.Summaries) > 0 {
		sb.WriteString("\n## Remembered from before\n")
		for _, s := range d.Summaries {
			sb.WriteString("- ")
			sb.WriteString(s.Content)
			sb.WriteString("\n")
		}
	}
	if len(d.Notes) > 0 {
		sb.WriteString("\n## Your notes\n")
		for _, n := range d.Notes {
			sb.WriteString("- ")
			sb.WriteString(n.Title)
			sb.WriteString(": ")
			sb.WriteString(n.Content)
			sb.WriteString("\n")
		}
	}
	if len(d.Memory.Immediate) > 0 {
		sb.WriteString("\n## Just now\n")
		sb.WriteString(renderEntryLines(d.Memory.Immediate))
	}

	sb.WriteString("\n")
	sb.WriteString(commandHelp)
	return sb.String()
}

func renderEntryLines(entries []domain.MemoryEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString("- ")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
