package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/AllenThomasDev/causal-webapp/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsAppErrorCode(t *testing.T) {
	base := ConfigInvalid("OPENAI_API_KEY is required")
	wrapped := Wrap(base, "failed to load AI configuration")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.True(t, stderrors.Is(wrapped, base))
	assert.Contains(t, wrapped.Error(), "OPENAI_API_KEY is required")
}

func TestWrapMapsDomainSentinels(t *testing.T) {
	err := Wrap(core.NewUnknownColumnError([]string{"wage"}), "role validation failed")
	assert.Equal(t, CodeUnknownColumn, GetCode(err))
	assert.True(t, stderrors.Is(err, core.ErrUnknownColumn))

	err = fmt.Errorf("estimate: %w", core.NewDegenerateWeightsError("no control rows"))
	assert.Equal(t, CodeDegenerateWeights, GetCode(err))
	assert.Equal(t, CodeInternalError, GetCode(stderrors.New("boom")))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Nil(t, Wrapf(nil, "ignored %d", 1))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 78, ExitCode(ConfigInvalid("bad")))
	assert.Equal(t, 65, ExitCode(core.NewUnsupportedFileFormatError("a.pdf", "unknown extension")))
	assert.Equal(t, 69, ExitCode(ExternalServiceError("openai", stderrors.New("timeout"))))
	assert.Equal(t, 1, ExitCode(stderrors.New("boom")))
}
