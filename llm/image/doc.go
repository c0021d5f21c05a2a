// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package image implements the remote image-to-image edit used by the drying
pipeline.

# Overview

[StabilityClient] sends one multipart request to
POST {base}/v1/generation/{engine}/image-to-image and classifies the reply
into an [Outcome]:

  - 200 with a decodable artifact: OutcomeSuccess
  - 200 with an unusable payload: OutcomeServerError (status 200)
  - 429: OutcomeRateLimited
  - 5xx: OutcomeServerError
  - other statuses: OutcomeClientError
  - no HTTP response: OutcomeTransportFailure

A missing credential and a cancelled context are returned as *types.Error
instead of an Outcome. The client never retries; drying.Dryer owns the retry
schedule.

# Variants

[NewVariant] derives generation parameters from the engine id. Engines
whose id contains "xl" are flagship (strength 0.35, cfg 7, 30 steps); the
rest use strength 0.40, cfg 8 and 25 steps.
*/
package image
