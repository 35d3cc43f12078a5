package narrative

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/prompts"
)

var (
	ErrEmptyNarrative = errors.New("model returned no text")
	// The narrative is prose only; amounts always come from the bill
	ErrFiguresInNarrative = errors.New("narrative contains monetary figures")
)

const maxLength = 1500

// Generator writes the background paragraph shown at the top of a bill
type Generator interface {
	Background(ctx context.Context, c CaseSummary) (string, error)
}

type CaseSummary struct {
	Reference   string
	Title       string
	Court       string
	Claimant    string
	Defendant   string
	Description string
}

const backgroundPrompt = `You are assisting a UK costs draftsman preparing a Bill of Costs under CPR Part 47.
Write one short paragraph of background to the claim for the narrative section of the bill.
Use plain, formal English. Do not state any sums of money, hourly rates, times or totals.

Case reference: {{.reference}}
Title: {{.title}}
Court: {{.court}}
Claimant: {{.claimant}}
Defendant: {{.defendant}}
Summary: {{.description}}`

var moneyPattern = regexp.MustCompile(`[£$€]\s*\d|\d+\.\d{2}\b|\b(?i:gbp)\s*\d`)

// LLMGenerator asks a language model for the narrative
type LLMGenerator struct {
	llm     llms.Model
	prompt  prompts.PromptTemplate
	timeout time.Duration
}

// NewOllamaGenerator connects to an Ollama server
func NewOllamaGenerator(serverURL, model string, timeout time.Duration) (*LLMGenerator, error) {
	llm, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return NewGenerator(llm, timeout), nil
}

func NewGenerator(llm llms.Model, timeout time.Duration) *LLMGenerator {
	return &LLMGenerator{
		llm: llm,
		prompt: prompts.NewPromptTemplate(backgroundPrompt,
			[]string{"reference", "title", "court", "claimant", "defendant", "description"}),
		timeout: timeout,
	}
}

func (g *LLMGenerator) Background(ctx context.Context, c CaseSummary) (string, error) {
	prompt, err := g.prompt.Format(map[string]any{
		"reference":   c.Reference,
		"title":       c.Title,
		"court":       c.Court,
		"claimant":    c.Claimant,
		"defendant":   c.Defendant,
		"description": c.Description,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, llms.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("narrative generation failed: %w", err)
	}
	return Clean(out)
}

// Clean collapses whitespace, trims overlong output and rejects text that
// quotes money.
func Clean(s string) (string, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", ErrEmptyNarrative
	}
	if moneyPattern.MatchString(s) {
		return "", ErrFiguresInNarrative
	}
	if r := []rune(s); len(r) > maxLength {
		s = string(r[:maxLength])
		if i := strings.LastIndex(s, ". "); i > 0 {
			s = s[:i+1]
		}
	}
	return s, nil
}
