package agent

import (
	"context"
	"errors"

	"github.com/BaSui01/dryingassistant/llm"
	"github.com/BaSui01/dryingassistant/types"
)

// chatError converts provider errors into the shared taxonomy. Errors that
// already are *types.Error pass through.
func chatError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrCancelled, "chat request cancelled").WithCause(err)
	}
	var le *llm.Error
	if !errors.As(err, &le) {
		return types.NewError(types.ErrUpstreamError, "chat completion failed").WithCause(err)
	}

	code := types.ErrUpstreamError
	switch le.Code {
	case llm.ErrInvalidRequest:
		code = types.ErrInvalidRequest
	case llm.ErrUnauthorized, llm.ErrForbidden:
		code = types.ErrConfiguration
	case llm.ErrRateLimited, llm.ErrQuotaExceeded:
		code = types.ErrRateLimited
	case llm.ErrUpstreamTimeout:
		code = types.ErrUpstreamTimeout
	}
	return types.NewError(code, "chat: "+le.Message).
		WithCause(err).
		WithRetryable(le.Retryable).
		WithProvider(le.Provider)
}
