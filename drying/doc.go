// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package drying turns a photo of a wet item into a dry-looking version.

# Pipeline

	caller → Normalizer → Dryer loop (PromptBank + image.Editor) → image | fallback

[Normalizer] converts the input to opaque RGB and resizes it once per call.
Under [PolicyAllowList] the target is the entry of [AllowedResolutions]
whose aspect ratio is closest to the input; [PolicySizeCap] only shrinks
images whose longer side exceeds 1024.

[Dryer] then tries the remote edit up to MaxAttempts times. Attempt n uses
variant n mod len(variants) and prompt n mod len(prompts). After a failed
attempt it waits BaseDelay*(n+1), or three times that after a rate limit.
No delay follows the final attempt. Attempts never run in parallel.

[ApplyFallback] is the local substitute: brightness x1.2, contrast x1.1
around 128, then HSV saturation x0.8. It needs no network and keeps the
input dimensions.

# Entry points

  - Dryer.Dry: normalize and dry, reporting exhaustion in the result
  - Dryer.DryWithFallback: the same, applying the fallback on exhaustion
  - Dryer.Fallback: the local effect alone
*/
package drying
