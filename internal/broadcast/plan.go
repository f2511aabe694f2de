// Package broadcast plans and paces bulk-send campaigns.
package broadcast

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// ErrInvalidJob is returned for jobs that cannot be planned.
var ErrInvalidJob = errors.New("invalid broadcast job")

// Unit is the length of one interval step.
const Unit = time.Second

// MaxIntervalUnits caps interval bounds at one day.
const MaxIntervalUnits = 24 * 60 * 60

// Validate checks the parts of a job the planner relies on.
func Validate(job model.BroadcastJob) error {
	switch {
	case len(job.Recipients) == 0:
		return fmt.Errorf("%w: no recipients", ErrInvalidJob)
	case len(job.Variants) == 0:
		return fmt.Errorf("%w: no message variants", ErrInvalidJob)
	}
	switch job.Mode {
	case model.SendAll, model.SendRandomOne, model.SendRandomMessage:
	default:
		return fmt.Errorf("%w: unknown send mode %q", ErrInvalidJob, job.Mode)
	}
	if err := validInterval("message interval", job.MsgInterval); err != nil {
		return err
	}
	return validInterval("contact interval", job.ContactInterval)
}

func validInterval(name string, iv model.Interval) error {
	if iv.Min < 0 || iv.Max < iv.Min || iv.Max > MaxIntervalUnits {
		return fmt.Errorf("%w: %s [%d,%d]", ErrInvalidJob, name, iv.Min, iv.Max)
	}
	return nil
}

// Plan expands a job into its ordered sends. Recipients are visited in list
// order. The first send of every recipient after the first waits a contact
// interval; every further send to the same recipient waits a message
// interval. Delays are whole units drawn uniformly from the inclusive bounds.
func Plan(job model.BroadcastJob, rng *rand.Rand) ([]model.BroadcastStep, error) {
	if err := Validate(job); err != nil {
		return nil, err
	}

	steps := make([]model.BroadcastStep, 0, len(job.Recipients)*len(job.Variants))
	for i, recipient := range job.Recipients {
		for j, variant := range pickVariants(job.Mode, len(job.Variants), rng) {
			var delay time.Duration
			switch {
			case j > 0:
				delay = draw(job.MsgInterval, rng)
			case i > 0:
				delay = draw(job.ContactInterval, rng)
			}
			steps = append(steps, model.BroadcastStep{
				RecipientID: recipient,
				Variant:     variant,
				Delay:       delay,
			})
		}
	}
	return steps, nil
}

// pickVariants returns the variant indexes one recipient receives.
func pickVariants(mode model.SendMode, n int, rng *rand.Rand) []int {
	switch mode {
	case model.SendRandomOne:
		return []int{rng.Intn(n)}
	case model.SendRandomMessage:
		start := rng.Intn(n)
		length := 1 + rng.Intn(n-start)
		return span(start, length)
	default:
		return span(0, n)
	}
}

func span(start, length int) []int {
	out := make([]int, length)
	for i := range out {
		out[i] = start + i
	}
	return out
}

func draw(iv model.Interval, rng *rand.Rand) time.Duration {
	return time.Duration(iv.Min+rng.Intn(iv.Max-iv.Min+1)) * Unit
}
