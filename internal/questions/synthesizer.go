package questions

import (
	"context"
	"fmt"
	"strings"

	"github.com/AllenThomasDev/causal-webapp/ai"
	"github.com/AllenThomasDev/causal-webapp/domain/causal"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/models"
)

// Count is the number of questions a reply must carry
const Count = 3

// EmptyMetadataPlaceholder is shown when there is nothing to ask questions about
const EmptyMetadataPlaceholder = "Please enter plaintext metadata to get suggested questions"

// Result holds suggested questions. When Err is set, Questions holds a single
// displayable placeholder describing the failure.
type Result struct {
	Questions []string
	Err       error
}

// Failed reports whether the questions are a failure placeholder
func (r Result) Failed() bool { return r.Err != nil }

type reply struct {
	Questions []interface{} `json:"questions"`
}

// Synthesizer suggests causal research questions from metadata
type Synthesizer struct {
	client *ai.StructuredClient[reply]
	logger *internal.Logger
}

// NewSynthesizer creates a question synthesizer backed by the text-generation collaborator
func NewSynthesizer(llm ai.Completer, logger *internal.Logger) *Synthesizer {
	logger = internal.OrDefault(logger)
	return &Synthesizer{client: ai.NewStructuredClient[reply](llm, logger), logger: logger}
}

// Synthesize never fails outright: every error is folded into the Result
func (s *Synthesizer) Synthesize(ctx context.Context, md causal.Metadata) (result Result) {
	if md.IsEmpty() {
		return Result{Questions: []string{EmptyMetadataPlaceholder}}
	}

	defer func() {
		if r := recover(); r != nil {
			result = Failure(fmt.Errorf("question synthesis panicked: %v", r))
		}
	}()

	decoded, err := s.client.GetJSONResponse(ctx, models.OpQuestionSynthesis, ai.PromptSuggestQuestions,
		map[string]string{"METADATA": md.String()})
	if err != nil {
		s.logger.Warn("[QuestionSynthesizer] Collaborator failed: %v", err)
		return Failure(err)
	}

	questions, err := decoded.validate()
	if err != nil {
		s.logger.Warn("[QuestionSynthesizer] Rejected reply: %v", err)
		return Failure(err)
	}
	return Result{Questions: questions}
}

// Parse decodes {"questions": [s, s, s]}: exactly three non-empty strings
func Parse(content string) ([]string, error) {
	decoded, err := ai.DecodeJSON[reply](content)
	if err != nil {
		return nil, err
	}
	return decoded.validate()
}

func (decoded *reply) validate() ([]string, error) {
	const shape = `{"questions": [s, s, s]}`

	if len(decoded.Questions) != Count {
		return nil, core.NewMalformedResponseError(shape, fmt.Sprintf("got %d questions", len(decoded.Questions)))
	}

	out := make([]string, 0, Count)
	for i, q := range decoded.Questions {
		s, ok := q.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, core.NewMalformedResponseError(shape, fmt.Sprintf("question %d is not a non-empty string", i+1))
		}
		out = append(out, strings.TrimSpace(s))
	}
	return out, nil
}

// Failure wraps err into a placeholder Result that displays the failure
func Failure(err error) Result {
	return Result{
		Questions: []string{"Error parsing JSON: " + err.Error()},
		Err:       err,
	}
}
