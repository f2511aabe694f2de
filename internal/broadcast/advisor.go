package broadcast

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/capitalize-ai/conversation-engine/internal/model"
)

// ErrNoWindow is returned when no candidate window falls in the horizon.
var ErrNoWindow = errors.New("no candidate send window")

// DefaultWindows are the candidate send windows used when none are
// configured: late morning, early afternoon and early evening.
var DefaultWindows = []string{"0 9 * * *", "0 11 * * *", "0 14 * * *", "0 16 * * *", "0 19 * * *"}

const (
	defaultHorizon = 7 * 24 * time.Hour
	maxCandidates  = 512
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Signal is one recipient's preferred contact hours (0-23).
type Signal struct {
	RecipientID    string
	PreferredHours []int
}

// SignalsFor collects preference signals from customer profiles.
func SignalsFor(customers []model.Customer) []Signal {
	out := make([]Signal, 0, len(customers))
	for _, c := range customers {
		if len(c.PreferredContactTimes) == 0 {
			continue
		}
		out = append(out, Signal{
			RecipientID:    c.ID,
			PreferredHours: append([]int(nil), c.PreferredContactTimes...),
		})
	}
	return out
}

// Advisor ranks candidate send windows against preference signals.
type Advisor struct {
	windows []cron.Schedule
	horizon time.Duration
	now     func() time.Time
	loc     *time.Location
}

// AdvisorOption configures an Advisor.
type AdvisorOption func(*Advisor)

// WithHorizon sets how far ahead candidates are considered.
func WithHorizon(d time.Duration) AdvisorOption {
	return func(a *Advisor) { a.horizon = d }
}

// WithAdvisorClock overrides the time source.
func WithAdvisorClock(now func() time.Time) AdvisorOption {
	return func(a *Advisor) { a.now = now }
}

// WithLocation sets the time zone windows and preferred hours are read in.
func WithLocation(loc *time.Location) AdvisorOption {
	return func(a *Advisor) { a.loc = loc }
}

// NewAdvisor parses the candidate window expressions. An empty list uses
// DefaultWindows.
func NewAdvisor(windows []string, opts ...AdvisorOption) (*Advisor, error) {
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	a := &Advisor{
		horizon: defaultHorizon,
		now:     time.Now,
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, expr := range windows {
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("send window %q: %w", expr, err)
		}
		a.windows = append(a.windows, sched)
	}
	return a, nil
}

// SuggestSendTime returns the candidate window within the horizon that best
// matches the signals. Ties go to the earliest window; without signals the
// earliest window wins.
func (a *Advisor) SuggestSendTime(signals []Signal) (model.SendTime, error) {
	candidates := a.candidates()
	if len(candidates) == 0 {
		return model.SendTime{}, ErrNoWindow
	}

	best, bestScore := candidates[0], -1.0
	for _, t := range candidates {
		if s := score(t, signals); s > bestScore {
			best, bestScore = t, s
		}
	}
	return model.SendTime{
		Date:  best.Format("2006-01-02"),
		Time:  best.Format("15:04"),
		At:    best,
		Score: bestScore,
	}, nil
}

// candidates lists upcoming window start times in chronological order.
func (a *Advisor) candidates() []time.Time {
	now := a.now().In(a.loc)
	end := now.Add(a.horizon)

	seen := make(map[time.Time]bool)
	var out []time.Time
	for _, sched := range a.windows {
		for t := sched.Next(now); !t.IsZero() && !t.After(end) && len(out) < maxCandidates; t = sched.Next(t) {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// score is the mean per-recipient match of t: 1 for a preferred hour,
// 0.5 for an hour adjacent to one.
func score(t time.Time, signals []Signal) float64 {
	if len(signals) == 0 {
		return 0
	}
	total := 0.0
	for _, sig := range signals {
		best := 0.0
		for _, h := range sig.PreferredHours {
			switch hourDistance(t.Hour(), h) {
			case 0:
				best = 1
			case 1:
				if best < 0.5 {
					best = 0.5
				}
			}
		}
		total += best
	}
	return total / float64(len(signals))
}

func hourDistance(a, b int) int {
	d := ((a-b)%24 + 24) % 24
	if d > 12 {
		d = 24 - d
	}
	return d
}
