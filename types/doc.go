// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types holds the shared error taxonomy of the drying assistant.

# Overview

types sits at the bottom of the dependency graph. drying, llm/image, agent
and api/handlers all report failures as *types.Error so that the HTTP layer
can map them to status codes without inspecting package-specific errors.

# Error codes

  - CONFIGURATION   : missing credential or malformed setting, never retried
  - VALIDATION      : undecodable or empty input image, never retried
  - RATE_LIMITED / UPSTREAM_ERROR / UPSTREAM_TIMEOUT: remote failures
  - CANCELLED       : caller cancelled or the deadline expired
  - EXHAUSTED       : every remote drying attempt failed
  - NOT_FOUND / INVALID_REQUEST / INTERNAL_ERROR

Lookup helpers (AsError, GetErrorCode, IsRetryable) walk the wrap chain.
*/
package types
