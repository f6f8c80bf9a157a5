package stageexec

import (
	"math/rand/v2"
	"time"

	"shortreel/internal/config"
)

// backoffDelay computes the wait before the next attempt of a stage.
// attempt is the count already consumed, so the first retry waits around
// the base delay and each further retry doubles it up to the configured
// ceiling. The result is jittered into [delay/2, delay] so items that
// failed together do not retry in lockstep.
func backoffDelay(tuning config.StageTuning, attempt int) time.Duration {
	base := time.Duration(tuning.BackoffBaseSeconds) * time.Second
	maxDelay := time.Duration(tuning.BackoffMaxSeconds) * time.Second
	if base <= 0 {
		return 0
	}
	if maxDelay <= 0 {
		maxDelay = base
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	half := delay / 2
	return half + rand.N(delay-half+1)
}
