package api

import (
	"testing"
	"time"

	"github.com/BaSui01/dryingassistant/drying"
	"github.com/BaSui01/dryingassistant/llm"
	llmimage "github.com/BaSui01/dryingassistant/llm/image"
	"github.com/stretchr/testify/assert"
)

func TestFromAttempts(t *testing.T) {
	got := FromAttempts([]drying.AttemptRecord{{
		Index:       1,
		Variant:     "stable-diffusion-v1-5",
		PromptIndex: 1,
		Outcome:     llmimage.OutcomeRateLimited,
		StatusCode:  429,
		Latency:     1500 * time.Millisecond,
		Delay:       12 * time.Second,
	}})

	assert.Equal(t, []Attempt{{
		Index:       1,
		Variant:     "stable-diffusion-v1-5",
		PromptIndex: 1,
		Outcome:     "rate_limited",
		StatusCode:  429,
		LatencyMS:   1500,
		DelayMS:     12000,
	}}, got)
	assert.NotNil(t, FromAttempts(nil))
}

func TestFromMessages(t *testing.T) {
	got := FromMessages([]llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	assert.Equal(t, []Message{{Role: "user", Content: "hi"}}, got)
}
