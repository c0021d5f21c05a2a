// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package llm defines the chat-completion contract used by drying assistant
sessions.

# Provider

[Provider] has a single synchronous Completion call. The OpenRouter
implementation lives in llm/providers/openaicompat; retry handling is in
llm/retry and is applied by the caller.

# Errors

Providers report failures as *[Error] with an [ErrorCode], the upstream HTTP
status and a Retryable flag. Only retryable errors are retried.

# Subpackages

  - providers: HTTP error mapping and OpenAI-compatible wire types
  - providers/openaicompat: the OpenAI-compatible provider
  - retry: linear and exponential backoff policies
  - image: the Stability image-to-image client
*/
package llm
