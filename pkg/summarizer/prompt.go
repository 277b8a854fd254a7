package summarizer

import (
	"strings"
)

const conversationPrompt = `You are maintaining the running summary of a tutoring conversation.
Fold the new messages into the existing summary. Keep what the learner
studied, what they struggled with, decisions that were made and anything
the tutor promised to follow up on. Drop greetings and filler.

Write plain prose, no headings. Return only the updated summary.`

const chunkPrompt = `Summarize this part of a tutoring conversation. Keep what the learner
studied, what they struggled with and any decisions or follow-ups.
Return only the summary.`

const synthesisPrompt = `These are summaries of consecutive parts of one tutoring conversation,
in order. Merge them, together with the existing summary if there is one,
into a single coherent summary. Return only the summary.`

func buildPrompt(instructions, prior string, sections ...string) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")
	if prior = strings.TrimSpace(prior); prior != "" {
		b.WriteString("Existing summary:\n")
		b.WriteString(prior)
		b.WriteString("\n\n")
	}
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(s)
	}
	b.WriteString("\n")
	return b.String()
}
