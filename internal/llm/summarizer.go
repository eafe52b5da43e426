package llm

import (
	"context"
	"fmt"

	"github.com/konashevich/olexi-host/internal/pkg/json"
	"github.com/konashevich/olexi-host/internal/results"
)

const summaryPrompt = `You are Olexi, a neutral legal research assistant. Summarise ONLY based on the provided results. Use British English. Return concise Markdown with sections:

## Summary (≤120 words)

## Key Cases (bulleted: [Title](URL) with court/year if available)

## Notes/Next Steps (if data is thin, say so)

## Questions you may want to explore further
- Provide at least three succinct follow-up questions that would clarify or deepen the enquiry.
- Make each question a Markdown link in the form [Question text](olexi://ask). Do NOT include any other URL.

User question: %s

Results JSON:
%s`

// Summarizer writes the Markdown answer from the preview items.
type Summarizer struct {
	gen Generator
}

func NewSummarizer(gen Generator) *Summarizer { return &Summarizer{gen: gen} }

func (s *Summarizer) Summarize(ctx context.Context, prompt string, items []results.Item) (string, error) {
	if items == nil {
		items = []results.Item{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return s.gen.Generate(ctx, fmt.Sprintf(summaryPrompt, prompt, payload), false)
}
