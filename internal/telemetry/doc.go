// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package telemetry installs the OpenTelemetry SDK with OTLP gRPC trace and
// metric exporters. The drying loop and the HTTP middleware obtain tracers
// from the global provider, so with telemetry disabled they record nothing.
package telemetry
