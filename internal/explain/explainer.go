package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/ai"
	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/models"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Explanation is a plain-language reading of an estimate. When Err is set the
// Markdown is the raw summary followed by a note describing the failure.
type Explanation struct {
	Markdown string
	HTML     string
	Err      error
}

// Failed reports whether the collaborator could not produce an explanation
func (e Explanation) Failed() bool { return e.Err != nil }

// Explainer turns statistical summaries into prose via the text-generation collaborator
type Explainer struct {
	llm    ai.Completer
	logger *internal.Logger
}

// NewExplainer creates an explainer
func NewExplainer(llm ai.Completer, logger *internal.Logger) *Explainer {
	return &Explainer{llm: llm, logger: internal.OrDefault(logger)}
}

// Explain describes summary for an audience that knows the columns from md
func (e *Explainer) Explain(ctx context.Context, summary string, md causal.Metadata) Explanation {
	return e.ExplainFor(ctx, summary, md, causal.RoleAssignment{})
}

// ExplainFor is Explain with the treatment, outcome and adjustment set spelled out in the prompt
func (e *Explainer) ExplainFor(ctx context.Context, summary string, md causal.Metadata, roles causal.RoleAssignment) (result Explanation) {
	defer func() {
		if r := recover(); r != nil {
			result = fallback(summary, fmt.Errorf("explanation panicked: %v", r))
		}
	}()

	replacements := map[string]string{
		"METADATA":    md.String(),
		"TREATMENT":   orUnknown(roles.Treatment.Name),
		"OUTCOME":     orUnknown(roles.Outcome.Name),
		"CONFOUNDERS": orUnknown(strings.Join(roles.ConfounderNames(), ", ")),
		"SUMMARY":     summary,
	}

	content, err := e.llm.Complete(ctx, models.OpResultExplanation, ai.PromptExplainEstimate, replacements, false)
	if err != nil {
		e.logger.Warn("[Explainer] Collaborator failed, returning raw summary: %v", err)
		return fallback(summary, err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		e.logger.Warn("[Explainer] Empty explanation, returning raw summary")
		return fallback(summary, fmt.Errorf("collaborator returned an empty explanation"))
	}

	e.logger.Debug("[Explainer] Explanation: %d bytes", len(content))
	return Explanation{Markdown: content, HTML: RenderHTML(content)}
}

// RenderHTML converts Markdown to HTML with common extensions
func RenderHTML(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank | html.SkipHTML})
	return string(markdown.ToHTML([]byte(md), p, renderer))
}

func fallback(summary string, err error) Explanation {
	md := "```\n" + strings.TrimRight(summary, "\n") + "\n```\n\n" +
		"_The explanation could not be generated: " + err.Error() + "_\n"
	return Explanation{Markdown: md, HTML: RenderHTML(md), Err: err}
}

func orUnknown(s string) string {
	if s == "" {
		return "(not specified)"
	}
	return s
}
