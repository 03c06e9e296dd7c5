package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makailabs/swellfuse/internal/config"
)

type scriptedClient struct {
	calls     int
	responses []Response
	errs      []error
}

func (s *scriptedClient) GenerateText(_ context.Context, _, _ string, _ []Image) (Response, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], s.errs[idx]
}

func fastConfig() config.LLMConfig {
	cfg := config.Default().LLM
	cfg.BackoffBase = time.Millisecond
	cfg.RatePerSecond = 1000
	cfg.Burst = 10
	return cfg
}

func TestGenerateText_SucceedsFirstTry(t *testing.T) {
	inner := &scriptedClient{
		responses: []Response{{Text: "forecast", Usage: Usage{PromptTokens: 100, CompletionTokens: 50}}},
		errs:      []error{nil},
	}
	c := NewRetryingClient(inner, fastConfig(), "test")

	resp, err := c.GenerateText(context.Background(), "sys", "user", nil)
	require.NoError(t, err)
	assert.Equal(t, "forecast", resp.Text)
	assert.Equal(t, 1, inner.calls)
}

func TestGenerateText_RetriesThenSucceeds(t *testing.T) {
	boom := errors.New("transient")
	inner := &scriptedClient{
		responses: []Response{{}, {}, {Text: "late but fine"}},
		errs:      []error{boom, boom, nil},
	}
	c := NewRetryingClient(inner, fastConfig(), "test")

	resp, err := c.GenerateText(context.Background(), "sys", "user", nil)
	require.NoError(t, err)
	assert.Equal(t, "late but fine", resp.Text)
	assert.Equal(t, 3, inner.calls)
}

func TestGenerateText_ExhaustedRetriesUnavailable(t *testing.T) {
	boom := errors.New("down")
	inner := &scriptedClient{
		responses: []Response{{}},
		errs:      []error{boom},
	}
	c := NewRetryingClient(inner, fastConfig(), "test")

	_, err := c.GenerateText(context.Background(), "sys", "user", nil)
	assert.ErrorIs(t, err, ErrLLMUnavailable)
	assert.Equal(t, config.Default().LLM.MaxRetries, inner.calls)
}

func TestGenerateText_BlankCompletion(t *testing.T) {
	inner := &scriptedClient{
		responses: []Response{{Text: "   \n"}},
		errs:      []error{nil},
	}
	c := NewRetryingClient(inner, fastConfig(), "test")

	_, err := c.GenerateText(context.Background(), "sys", "user", nil)
	assert.ErrorIs(t, err, ErrEmptyLLMResponse)
	assert.Equal(t, 1, inner.calls, "an empty completion is not retried")
}

func TestGenerateText_ContextCancelled(t *testing.T) {
	boom := errors.New("slow")
	inner := &scriptedClient{responses: []Response{{}}, errs: []error{boom}}
	cfg := fastConfig()
	cfg.BackoffBase = time.Hour // force the cancel path during backoff

	ctx, cancel := context.WithCancel(context.Background())
	c := NewRetryingClient(inner, cfg, "test")
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.GenerateText(ctx, "sys", "user", nil)
	assert.ErrorIs(t, err, ErrLLMUnavailable)
}
