package pipeline

import (
	"github.com/makailabs/swellfuse/internal/llm"
	"github.com/makailabs/swellfuse/internal/specialists"
)

// The pipeline surfaces the sentinel errors of its stages under one
// roof so callers need a single import to classify failures.
var (
	ErrInputValidation         = specialists.ErrInputValidation
	ErrEmptyLLMResponse        = llm.ErrEmptyLLMResponse
	ErrInsufficientSpecialists = specialists.ErrInsufficientSpecialists
	ErrLLMUnavailable          = llm.ErrLLMUnavailable
)
