package ai

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AllenThomasDev/causal-webapp/adapters/llm"
	"github.com/AllenThomasDev/causal-webapp/domain/core"
	"github.com/AllenThomasDev/causal-webapp/internal"
	"github.com/AllenThomasDev/causal-webapp/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	ops  []string
	errs []error
}

func (r *recordingObserver) ObserveCall(_ context.Context, op string, _ *ports.UsageData, _ time.Duration, err error) {
	r.ops = append(r.ops, op)
	r.errs = append(r.errs, err)
}

type questionsReply struct {
	Questions []string `json:"questions"`
}

func TestCleanJSONContent(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\": 1}\n```":        `{"a": 1}`,
		"```\n[1, 2]\n```":                `[1, 2]`,
		"Here is the JSON:\n{\"a\": 1}":   `{"a": 1}`,
		"  {\"a\": \"here is\"}  ":        `{"a": "here is"}`,
		"Sure thing\n{\"a\": 1}":          "Sure thing\n{\"a\": 1}",
		"## Output\n\n{\n  \"b\": [1]\n}": "{\n  \"b\": [1]\n}",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanJSONContent(in), "input %q", in)
	}
}

func TestDecodeJSONStrict(t *testing.T) {
	got, err := DecodeJSON[questionsReply]("```json\n{\"questions\": [\"a\", \"b\", \"c\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got.Questions)

	for _, bad := range []string{"", "{\"questions\": [\"a\"", "{} {}", "not json", `{"questions": []}}`, `{"questions": []}]`, `{"questions": []} x`} {
		_, err := DecodeJSON[questionsReply](bad)
		require.Error(t, err, "input %q", bad)
		assert.True(t, errors.Is(err, core.ErrMalformedResponse))
	}
}

func TestStructuredClientGetJSONResponse(t *testing.T) {
	mock := &llm.MockLLMClient{Response: `{"questions": ["q1", "q2", "q3"]}`}
	obs := &recordingObserver{}
	caller := NewCaller(mock, NewPromptManager("", internal.NewNopLogger()), "system", internal.NewNopLogger(), obs)

	client := NewStructuredClient[questionsReply](caller, internal.NewNopLogger())
	got, err := client.GetJSONResponse(context.Background(), "question_synthesis", PromptSuggestQuestions, map[string]string{"METADATA": `{"age": "years"}`})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2", "q3"}, got.Questions)

	require.Len(t, mock.Requests, 1)
	req := mock.Requests[0]
	assert.True(t, req.JSON)
	assert.Equal(t, "system", req.System)
	assert.Equal(t, "question_synthesis", req.Operation)
	assert.Contains(t, req.Prompt, `{"age": "years"}`)
	assert.NotContains(t, req.Prompt, "{METADATA}")

	assert.Equal(t, []string{"question_synthesis"}, obs.ops)
	assert.Nil(t, obs.errs[0])
}

func TestStructuredClientPropagatesCollaboratorError(t *testing.T) {
	mock := &llm.MockLLMClient{Error: errors.New("connection reset")}
	obs := &recordingObserver{}
	caller := NewCaller(mock, NewPromptManager("", nil), "", internal.NewNopLogger(), obs)

	_, err := NewStructuredClient[questionsReply](caller, internal.NewNopLogger()).GetJSONResponse(context.Background(), "op", PromptSuggestQuestions, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	require.Len(t, obs.errs, 1)
	assert.Error(t, obs.errs[0])
}

func TestPromptManagerPrefersDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PromptInferRoles+".txt"), []byte("custom {COLUMNS}"), 0o644))

	pm := NewPromptManager(dir, internal.NewNopLogger())
	out, err := pm.RenderPrompt(PromptInferRoles, map[string]string{"COLUMNS": "a, b"})
	require.NoError(t, err)
	assert.Equal(t, "custom a, b", out)

	// falls back to the embedded template
	out, err = pm.RenderPrompt(PromptExplainEstimate, map[string]string{"SUMMARY": "coef 1.5"})
	require.NoError(t, err)
	assert.Contains(t, out, "coef 1.5")

	_, err = pm.LoadPrompt("does_not_exist")
	assert.Error(t, err)
}

func TestEmbeddedPromptsExist(t *testing.T) {
	pm := NewPromptManager("", internal.NewNopLogger())
	for _, name := range []string{PromptMetadataToJSON, PromptInferRoles, PromptSuggestQuestions, PromptExplainEstimate} {
		content, err := pm.LoadPrompt(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, content)
	}
}
