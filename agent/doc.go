// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package agent implements the conversational side of the drying assistant.

# Overview

A Session pairs a chat-completion provider with the drying pipeline. Each
call to Send asks the chat model for a reply over the system prompt, the
stored history and the new user message. When the user attached an image,
the same turn runs it through drying.Dryer and returns the dried image (or
the local fallback) next to the reply.

# Core types

  - Session: one conversation. Turns are serialized by a per-session mutex,
    history is trimmed to SessionConfig.MaxHistory in user/assistant pairs,
    and chat calls go through llm/retry, retrying only errors the provider
    marked retryable.
  - Manager: the in-memory session registry. Sessions get uuid ids and are
    evicted after the configured idle TTL by Sweep or the Run loop.

# Errors

Chat failures are converted to *types.Error so the HTTP layer maps them
like every other failure. A drying failure does not fail the turn: the
reply is returned and Turn.DryErr explains why there is no image. Only
cancellation aborts the whole turn.
*/
package agent
