// Package metrics accumulates per-run performance and cost figures.
//
// One Collector is created per run, fed incrementally as stream chunks
// arrive, and finalized exactly once. Nothing here is shared across runs.
//
// Information Hiding:
// - Timing derivation (ttft, generation time, rates)
// - Cost lookup via the pricing table
package metrics

import "time"

// Performance is the finalized report for one run.
type Performance struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	CachedTokens     int `json:"cached_tokens"`

	// Durations in seconds.
	TotalTime      float64 `json:"total_time"`
	TTFT           float64 `json:"ttft"`
	GenerationTime float64 `json:"generation_time"`

	// Token rates; zero when the corresponding duration is zero.
	PromptTokensPerSec     float64 `json:"pp_per_sec"`
	CompletionTokensPerSec float64 `json:"tg_per_sec"`

	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`

	Retries int `json:"retries"`
}

// Usage is the incremental token-count delta from one stream chunk.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
}

// Collector accumulates usage across the rounds of a single run.
type Collector struct {
	model       string
	serviceTier string

	promptTokens     int
	completionTokens int
	cachedTokens     int
	retries          int

	start        time.Time
	firstContent time.Time

	now func() time.Time
}

// NewCollector starts a collector for one run; the clock starts immediately.
func NewCollector(model, serviceTier string) *Collector {
	c := &Collector{
		model:       model,
		serviceTier: serviceTier,
		now:         time.Now,
	}
	c.start = c.now()
	return c
}

// AddUsage accumulates one chunk's usage delta.
func (c *Collector) AddUsage(u Usage) {
	c.promptTokens += u.PromptTokens
	c.completionTokens += u.CompletionTokens
	c.cachedTokens += u.CachedTokens
}

// MarkContent records the arrival of the first visible content.
// Subsequent calls are no-ops.
func (c *Collector) MarkContent() {
	if c.firstContent.IsZero() {
		c.firstContent = c.now()
	}
}

// AddRetries accumulates retry counts reported by the transport layer.
func (c *Collector) AddRetries(n int) {
	c.retries += n
}

// Finalize derives the performance report. TTFT is zero when no content
// arrived; generation time falls back to total time in that case.
func (c *Collector) Finalize() Performance {
	end := c.now()
	totalTime := end.Sub(c.start).Seconds()

	ttft := 0.0
	generationTime := totalTime
	if !c.firstContent.IsZero() {
		ttft = c.firstContent.Sub(c.start).Seconds()
		generationTime = end.Sub(c.firstContent).Seconds()
	}

	ppPerSec := 0.0
	if ttft > 0 {
		ppPerSec = float64(c.promptTokens) / ttft
	}
	tgPerSec := 0.0
	if generationTime > 0 {
		tgPerSec = float64(c.completionTokens) / generationTime
	}

	cost := CalculateCost(c.model, c.promptTokens, c.completionTokens, c.cachedTokens, c.serviceTier)

	return Performance{
		PromptTokens:           c.promptTokens,
		CompletionTokens:       c.completionTokens,
		CachedTokens:           c.cachedTokens,
		TotalTime:              totalTime,
		TTFT:                   ttft,
		GenerationTime:         generationTime,
		PromptTokensPerSec:     ppPerSec,
		CompletionTokensPerSec: tgPerSec,
		InputCost:              cost.InputCost,
		OutputCost:             cost.OutputCost,
		TotalCost:              cost.TotalCost,
		Retries:                c.retries,
	}
}
