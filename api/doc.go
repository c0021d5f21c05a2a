// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package api holds the JSON wire types of the drying assistant HTTP API.
//
// # Endpoints
//
//	GET    /health, /healthz, /ready, /version
//	POST   /api/v1/sessions
//	DELETE /api/v1/sessions/{id}
//	GET    /api/v1/sessions/{id}/messages
//	POST   /api/v1/sessions/{id}/messages   multipart: message, image (optional)
//	POST   /api/v1/sessions/{id}/reset
//	POST   /api/v1/dry[?fallback=true]      multipart: image
//	POST   /api/v1/dry/fallback             multipart: image
//
// Every JSON response uses the handlers.Response envelope. Images travel
// as multipart uploads on the way in and as base64 PNG on the way out.
package api
