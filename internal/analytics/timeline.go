package analytics

import (
	"fmt"
	"math"
	"strings"
	"time"

	"op-insight/internal/store"
)

var (
	inProgressStatuses = []string{"In Progress", "In progress", "Developed"}
	doneStatuses       = []string{"Done", "Solved"}

	// Statuses after which a move back to "In Progress" counts as a loop.
	// "Developed" is listed here although it is an in-progress status.
	reworkSourceStatuses = []string{"Developed", "Solved", "Done"}
)

const reworkTargetStatus = "In Progress"

// HistorySeparator joins statuses in a rendered status history.
const HistorySeparator = " → "

func inSet(set []string, status string) bool {
	for _, s := range set {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

// IsInProgress reports whether status is an in-progress status.
func IsInProgress(status string) bool { return inSet(inProgressStatuses, status) }

// IsDone reports whether status is a done status.
func IsDone(status string) bool { return inSet(doneStatuses, status) }

func toStatus(a store.Activity) string {
	if a.ToStatus == nil {
		return ""
	}
	return *a.ToStatus
}

// Policy selects how the in-progress to done pairings of one item are
// reduced to a single duration.
type Policy int

const (
	PolicyFirst Policy = iota
	PolicyLast
	PolicyAverage
)

func (p Policy) String() string {
	switch p {
	case PolicyLast:
		return "last"
	case PolicyAverage:
		return "average"
	default:
		return "first"
	}
}

// ParsePolicy accepts "first", "last" or "average". Empty means first.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return PolicyFirst, nil
	case "last":
		return PolicyLast, nil
	case "average":
		return PolicyAverage, nil
	}
	return PolicyFirst, fmt.Errorf("unknown duration policy %q", s)
}

func days(d time.Duration) float64 { return d.Hours() / 24 }

// Duration returns the in-progress to done duration of one item in days.
// acts must be ordered by timestamp. ok is false when the duration is
// undefined: no done status, or no done status after any in-progress one.
// Without any in-progress status the duration runs from the first activity
// to the earliest done.
func Duration(acts []store.Activity, policy Policy) (d float64, ok bool) {
	var inProgress, done []time.Time
	for _, a := range acts {
		s := toStatus(a)
		if IsInProgress(s) {
			inProgress = append(inProgress, a.Timestamp)
		}
		if IsDone(s) {
			done = append(done, a.Timestamp)
		}
	}

	if len(done) == 0 {
		return 0, false
	}
	if len(inProgress) == 0 {
		return days(done[0].Sub(acts[0].Timestamp)), true
	}

	var pairs []float64
	for _, start := range inProgress {
		for _, end := range done {
			if end.After(start) {
				pairs = append(pairs, days(end.Sub(start)))
				break
			}
		}
	}
	if len(pairs) == 0 {
		return 0, false
	}

	switch policy {
	case PolicyLast:
		return pairs[len(pairs)-1], true
	case PolicyAverage:
		return mean(pairs), true
	default:
		return pairs[0], true
	}
}

// ReworkCount counts the rework loops in an ordered activity sequence. Two
// independent rules add to the count: a move to "In Progress" straight
// after a rework source status, and any "In Progress" after the first.
// Both can fire on the same activity, so [Done, In Progress, Done] counts 2.
func ReworkCount(acts []store.Activity) int {
	count := 0
	seen := false
	for i, a := range acts {
		cur := toStatus(a)
		isTarget := strings.EqualFold(cur, reworkTargetStatus)

		if i > 0 && isTarget && inSet(reworkSourceStatuses, toStatus(acts[i-1])) {
			count++
		}
		if isTarget && seen {
			count++
		} else {
			seen = true
		}
	}
	return count
}

// StatusHistory renders the new statuses in order, "-" for missing ones.
func StatusHistory(acts []store.Activity) string {
	parts := make([]string, len(acts))
	for i, a := range acts {
		if a.ToStatus == nil {
			parts[i] = "-"
			continue
		}
		parts[i] = *a.ToStatus
	}
	return strings.Join(parts, HistorySeparator)
}

// Bounds returns the start and end of work on one item. Start is the first
// in-progress timestamp, else the first activity. End is the latest done
// timestamp. Either is nil when it cannot be determined.
func Bounds(acts []store.Activity) (start, end *time.Time) {
	for _, a := range acts {
		if IsInProgress(toStatus(a)) {
			ts := a.Timestamp
			start = &ts
			break
		}
	}
	if start == nil && len(acts) > 0 {
		ts := acts[0].Timestamp
		start = &ts
	}
	for i := len(acts) - 1; i >= 0; i-- {
		if IsDone(toStatus(acts[i])) {
			ts := acts[i].Timestamp
			end = &ts
			break
		}
	}
	return start, end
}

// Score is the bounded productivity score of one member.
func Score(completed int, avgDays float64, rework int) float64 {
	const baseline = 10.0
	speed := math.Sqrt(baseline / (avgDays + 1))
	score := float64(completed)*10*speed - float64(rework)*5
	return math.Max(0, math.Min(100, score))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
