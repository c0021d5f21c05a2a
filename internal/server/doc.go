// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package server manages the lifecycle of the HTTP servers started by
dryassist serve.

Manager wraps one net/http.Server with a non-blocking Start, an idempotent
graceful Shutdown and a channel of asynchronous serve errors. Group runs
the API server and the metrics server side by side and stops both when the
context is cancelled or either one fails.
*/
package server
