package drying

import (
	llmimage "github.com/BaSui01/dryingassistant/llm/image"
)

var builtinPrompts = []llmimage.PromptPair{
	{
		Positive:       "A completely dry version of this item, photorealistic, detailed texture, no water or moisture",
		PositiveWeight: 1,
		Negative:       "wet, moist, damp, water droplets, puddles, stains",
		NegativeWeight: -1,
	},
	{
		Positive:       "Bone dry, completely dried out, arid, desert-like dryness, crisp texture, no moisture whatsoever",
		PositiveWeight: 1,
		Negative:       "wet, damp, moist, humidity, water, liquid, droplets, condensation",
		NegativeWeight: -1,
	},
	{
		Positive:       "Dry texture, detailed fabric, no moisture, sun-dried appearance, crisp details",
		PositiveWeight: 1,
		Negative:       "wet appearance, water stains, dampness, moisture",
		NegativeWeight: -1,
	},
}

// PromptBank is the fixed, ordered set of prompt variations cycled through
// by attempt number.
type PromptBank struct {
	pairs []llmimage.PromptPair
}

// NewPromptBank creates a bank from custom pairs. Without pairs it holds the
// built-in variations, so a bank is never empty.
func NewPromptBank(pairs ...llmimage.PromptPair) *PromptBank {
	if len(pairs) == 0 {
		pairs = builtinPrompts
	}
	cp := make([]llmimage.PromptPair, len(pairs))
	copy(cp, pairs)
	return &PromptBank{pairs: cp}
}

// Variations returns a copy of the sequence. Every call returns the same values.
func (b *PromptBank) Variations() []llmimage.PromptPair {
	out := make([]llmimage.PromptPair, len(b.pairs))
	copy(out, b.pairs)
	return out
}

// Len returns the number of variations.
func (b *PromptBank) Len() int { return len(b.pairs) }

// At returns the variation for an attempt, wrapping around.
func (b *PromptBank) At(attempt int) llmimage.PromptPair {
	return b.pairs[b.Index(attempt)]
}

// Index maps an attempt number to a variation index.
func (b *PromptBank) Index(attempt int) int {
	i := attempt % len(b.pairs)
	if i < 0 {
		i += len(b.pairs)
	}
	return i
}
