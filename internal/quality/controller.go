// Package quality implements the quality controller: mapping
// telemetry samples to a video quality state with hysteresis
// (spec.md §4.4).
package quality

import (
	"sync"

	"github.com/deveshpat/p2p-video-calling-secure/internal/models"
)

// GoodSamplesToRecover is the number of consecutive good samples
// required before the controller signals a step up the ladder.
const GoodSamplesToRecover = 8

// Controller holds the current active quality state and the run
// length of consecutive good samples. It is safe for concurrent use.
type Controller struct {
	mu                sync.Mutex
	active            models.QualityState
	stableSampleCount int
}

// New creates a controller starting at the top of the ladder.
func New() *Controller {
	return &Controller{active: models.QualityHD1080}
}

// Current returns the controller's active state.
func (c *Controller) Current() models.QualityState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Observe feeds one telemetry sample into the controller and returns
// the new state if it changed, or ("", false) if it did not.
//
//   - Bad sample: reset the counter; step down one rung (no-op at
//     SD_480); report a change if the state moved.
//   - Neither good nor bad: reset the counter; no change.
//   - Good sample: increment the counter; after
//     GoodSamplesToRecover consecutive good samples, if not already
//     at HD_1080, transition to the RECOVERING sentinel and reset
//     the counter.
func (c *Controller) Observe(sample models.QualitySample) (models.QualityState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case sample.IsBad():
		c.stableSampleCount = 0
		next := models.StepDown(c.active)
		if next == c.active {
			return "", false
		}
		c.active = next
		return c.active, true

	case sample.IsGood():
		c.stableSampleCount++
		if c.stableSampleCount < GoodSamplesToRecover {
			return "", false
		}
		c.stableSampleCount = 0
		if c.active == models.QualityHD1080 {
			return "", false
		}
		c.active = models.QualityRecovering
		return c.active, true

	default:
		c.stableSampleCount = 0
		return "", false
	}
}

// ForceState overrides the current state and resets the counter.
func (c *Controller) ForceState(s models.QualityState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = s
	c.stableSampleCount = 0
}

// CompleteRecovery transitions from the RECOVERING sentinel to
// HD_1080. It is a no-op if the current state is not RECOVERING.
// Observe leaves RECOVERING as the current state until the caller
// calls CompleteRecovery or ForceState.
func (c *Controller) CompleteRecovery() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != models.QualityRecovering {
		return
	}
	c.active = models.QualityHD1080
	c.stableSampleCount = 0
}
