// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package providers holds the pieces shared by HTTP-backed providers.

  - MapHTTPError maps 401/402/403/408/429/5xx/529 to llm.Error with the
    right Retryable flag
  - ReadErrorMessage reads both the OpenAI-style and the flat Stability-style
    error bodies
  - OpenAICompat* types are the chat-completions wire format spoken by
    OpenRouter
*/
package providers
