// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Command dryassist runs the drying assistant.

# Overview

dryassist serve starts the HTTP API and a separate Prometheus endpoint.
Configuration comes from defaults, an optional YAML file, a .env file and
DRYASSIST_* environment variables, in that order. Missing API keys are
logged as warnings; the affected calls then fail with CONFIGURATION.

# Subcommands

  - serve: HTTP API (sessions, stateless drying) plus /metrics on its own port
  - dry: batch tool, writes enhanced_dried_<stem>_<timestamp>.png per input
  - check: prints masked credentials
  - health: probes /health of a running server
  - version: build information injected through -ldflags

# Middleware

Recovery, RequestID, OTelTracing, SecurityHeaders, RequestLogger,
MetricsMiddleware, CORS and a per-IP RateLimiter, outermost first.
*/
package main
