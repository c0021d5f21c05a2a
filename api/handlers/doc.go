// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers implements the HTTP handlers of the drying assistant.

# Overview

Handlers are plain http.HandlerFunc values registered on a Go 1.22
ServeMux with method and path patterns. Every JSON answer uses the
Response envelope, and every failure is a *types.Error mapped to an HTTP
status by its code (VALIDATION 400, NOT_FOUND 404, RATE_LIMITED 429,
CONFIGURATION 503, EXHAUSTED and UPSTREAM_ERROR 502, UPSTREAM_TIMEOUT 504).

# Handlers

  - HealthHandler: /health, /healthz, /ready with pluggable probes, /version.
  - SessionHandler: conversation sessions backed by agent.Manager.
  - DryHandler: stateless drying of one uploaded image, with or without the
    local fallback, plus the fallback-only endpoint.

Uploads are multipart forms capped by server.max_upload_bytes.
*/
package handlers
