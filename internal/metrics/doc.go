// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package metrics collects Prometheus metrics for the drying assistant.

# Overview

Collector registers every metric on a caller-supplied registerer under one
namespace. The server passes its own registry so that tests and multiple
collectors never collide on the global default.

# Metrics

  - HTTP: request count by method/path/status class, latency, response size.
  - Drying: attempts by engine and outcome, per-attempt latency, results by
    terminal status, call duration, cumulative backoff seconds.
  - Chat: completion count, latency and prompt/completion token usage by
    provider and model.
  - Sessions: live conversation sessions gauge.

Collector satisfies drying.Observer, so a Dryer built with WithObserver
feeds the drying metrics directly.
*/
package metrics
