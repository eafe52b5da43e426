package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/konashevich/olexi-host/internal/pkg/json"
	"github.com/konashevich/olexi-host/internal/research"
)

// ErrInvalidPlan is returned when the model output cannot be read as a plan.
var ErrInvalidPlan = errors.New("invalid planner output")

const plannerPrompt = `You are a legal research planner for AustLII. Return STRICT JSON with keys exactly:
{"query": string, "databases": string[]} and nothing else.

Rules:
- Build a robust AustLII Boolean query: use quotes for exact phrases; AND/OR/NOT; and ALWAYS use parentheses to group OR-alternatives.
- Prefer gentle expansion: (stem* OR "exact phrase") where stem* is a reasonable stem of the key term. Avoid over-broad wildcards.
- Do NOT use any SINO date operators (no date(), no "date ><", no "date >=", etc). If dates are implied, include plain years as terms (e.g., 2022 OR 2023) and leave filtering to the host.
- Avoid proximity operators. Avoid punctuation besides parentheses and quotes.
- Select at most %d database codes. Prefer specific court codes over broad masks unless user intent is ambiguous.
- If the prompt implies federal/high court, bias to HCA, FCA, FCAFC; else choose the closest state/tribunal codes.
- Do not add commentary. Output MUST be valid JSON with only the two keys above.

Available databases (code, name, description):
%s

User Request: %s`

// Generator produces model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// Planner asks the model for a search plan.
type Planner struct {
	gen Generator
}

func NewPlanner(gen Generator) *Planner { return &Planner{gen: gen} }

func (p *Planner) Plan(ctx context.Context, prompt string, databases []research.Database, maxDatabases int) (research.Plan, error) {
	catalog, err := json.Marshal(databases)
	if err != nil {
		return research.Plan{}, err
	}
	text, err := p.gen.Generate(ctx, fmt.Sprintf(plannerPrompt, maxDatabases, catalog, prompt), true)
	if err != nil {
		return research.Plan{}, err
	}
	return ParsePlan(text, maxDatabases)
}

// ParsePlan reads a plan out of model text. Both keys must be present; a
// databases value that is not a list becomes empty, and the list is capped at
// maxDatabases. The query is sanitised.
func ParsePlan(text string, maxDatabases int) (research.Plan, error) {
	var data map[string]any
	if err := decodeObject(text, &data); err != nil {
		return research.Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	q, hasQuery := data["query"]
	dbs, hasDatabases := data["databases"]
	if !hasQuery || !hasDatabases {
		return research.Plan{}, fmt.Errorf("%w: missing query or databases", ErrInvalidPlan)
	}

	plan := research.Plan{Databases: []string{}}
	switch v := q.(type) {
	case string:
		plan.Query = v
	case nil:
	default:
		plan.Query = fmt.Sprint(v)
	}
	plan.Query = research.SanitizeQuery(plan.Query)

	if list, ok := dbs.([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				plan.Databases = append(plan.Databases, strings.TrimSpace(s))
			}
		}
	}
	if maxDatabases > 0 && len(plan.Databases) > maxDatabases {
		plan.Databases = plan.Databases[:maxDatabases]
	}
	return plan, nil
}

var firstObject = regexp.MustCompile(`\{[\s\S]*\}`)

// decodeObject strips a leading code fence, takes the outermost brace span
// and decodes it.
func decodeObject(text string, v any) error {
	s := stripCodeFences(strings.TrimSpace(text))
	if m := firstObject.FindString(s); m != "" {
		s = m
	}
	if s == "" {
		s = "{}"
	}
	err := json.UnmarshalString(s, v)
	if err == nil {
		return nil
	}
	first, last := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if first >= 0 && last > first {
		return json.UnmarshalString(s[first:last+1], v)
	}
	return err
}

func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")[1:]
	for i, l := range lines {
		if strings.TrimSpace(l) == "```" {
			lines = lines[:i]
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
