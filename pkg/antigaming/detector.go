package antigaming

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Thresholds tunes the detection rules.
type Thresholds struct {
	MassChangeWindow    time.Duration
	MassChangeLimit     int
	ReintroduceLimit    int
	HighScore           float64
	LowDocumentCount    int
	WeightChangeWindow  time.Duration
	WeightChangePercent float64
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MassChangeWindow:    60 * time.Minute,
		MassChangeLimit:     10,
		ReintroduceLimit:    3,
		HighScore:           90,
		LowDocumentCount:    5,
		WeightChangeWindow:  24 * time.Hour,
		WeightChangePercent: 20,
	}
}

// Detector evaluates every rule independently against a supplied history.
// It holds no mutable state and is safe for concurrent use.
type Detector struct {
	t Thresholds
}

// NewDetector creates a detector with the default thresholds.
func NewDetector() *Detector {
	return &Detector{t: DefaultThresholds()}
}

// NewDetectorWithThresholds creates a detector with custom thresholds.
func NewDetectorWithThresholds(t Thresholds) *Detector {
	return &Detector{t: t}
}

type finding struct {
	violation Violation
	log       string
}

// Detect runs all rules and aggregates their findings.
func (d *Detector) Detect(in Input) Result {
	var findings []finding
	findings = append(findings, d.massChanges(in)...)
	findings = append(findings, d.resolveReintroduce(in)...)
	findings = append(findings, d.suspiciousHighScore(in)...)
	findings = append(findings, d.weightManipulation(in)...)

	res := Result{
		Violations: []Violation{},
		AuditLogs:  []string{},
	}
	seen := make(map[Violation]bool)
	for _, f := range findings {
		res.AuditLogs = append(res.AuditLogs, f.log)
		if seen[f.violation] {
			continue
		}
		seen[f.violation] = true
		res.Violations = append(res.Violations, f.violation)
		res.PenaltyPoints += PenaltyPoints[f.violation]
	}

	res.IsGaming = len(res.Violations) > 0
	switch len(res.Violations) {
	case 0:
	case 1:
		res.Reason = string(res.Violations[0])
	default:
		res.Reason = ReasonMultiple
	}
	return res
}

// massChanges flags users with more than MassChangeLimit change events in
// the window ending at Now.
func (d *Detector) massChanges(in Input) []finding {
	since := in.Now.Add(-d.t.MassChangeWindow)
	counts := make(map[string]int)
	for _, e := range in.Events {
		if e.Type != EventChange || !within(e.Timestamp, since, in.Now) {
			continue
		}
		counts[e.UserID]++
	}

	var out []finding
	for _, user := range sortedKeys(counts) {
		if n := counts[user]; n > d.t.MassChangeLimit {
			out = append(out, finding{
				violation: MassChanges,
				log: fmt.Sprintf("[%s] user %s made %d changes within %s (limit %d)",
					MassChanges, user, n, d.t.MassChangeWindow, d.t.MassChangeLimit),
			})
		}
	}
	return out
}

// resolveReintroduce flags a user that keeps re-creating the same alert
// signature after resolving it. Each (signature, user) stream is replayed in
// time order; a creation counts only when it is the first one or follows a
// resolution. Events after Now are ignored.
func (d *Detector) resolveReintroduce(in Input) []finding {
	type key struct{ signature, user string }
	type cycle struct {
		creations   int
		resolutions int
		resolved    bool
	}

	events := make([]Event, 0, len(in.Events))
	for _, e := range in.Events {
		if e.Signature == "" || e.Timestamp.After(in.Now) {
			continue
		}
		if e.Type == EventCreated || e.Type == EventResolved {
			events = append(events, e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	streams := make(map[key]*cycle)
	for _, e := range events {
		k := key{e.Signature, e.UserID}
		c := streams[k]
		if c == nil {
			c = &cycle{}
			streams[k] = c
		}
		switch e.Type {
		case EventCreated:
			if c.creations == 0 || c.resolved {
				c.creations++
				c.resolved = false
			}
		case EventResolved:
			if c.creations > 0 && !c.resolved {
				c.resolutions++
				c.resolved = true
			}
		}
	}

	keys := make([]key, 0, len(streams))
	for k := range streams {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].signature != keys[j].signature {
			return keys[i].signature < keys[j].signature
		}
		return keys[i].user < keys[j].user
	})

	var out []finding
	for _, k := range keys {
		if c := streams[k]; c.creations >= d.t.ReintroduceLimit {
			out = append(out, finding{
				violation: ResolveReintroduce,
				log: fmt.Sprintf("[%s] user %s created signature %s %d times (%d resolutions in between)",
					ResolveReintroduce, k.user, k.signature, c.creations, c.resolutions),
			})
		}
	}
	return out
}

// suspiciousHighScore flags an excellent score backed by too few documents.
func (d *Detector) suspiciousHighScore(in Input) []finding {
	if in.Score == nil || in.DocumentCount == nil {
		return nil
	}
	if *in.Score > d.t.HighScore && *in.DocumentCount <= d.t.LowDocumentCount {
		return []finding{{
			violation: SuspiciousHighScore,
			log: fmt.Sprintf("[%s] score %.1f backed by only %d documents (threshold %d)",
				SuspiciousHighScore, *in.Score, *in.DocumentCount, d.t.LowDocumentCount),
		}}
	}
	return nil
}

// weightManipulation flags large weight changes within the recent window.
func (d *Detector) weightManipulation(in Input) []finding {
	since := in.Now.Add(-d.t.WeightChangeWindow)
	var out []finding
	for _, e := range in.Events {
		if e.Type != EventWeightChanged || e.WeightChangePct == nil || !within(e.Timestamp, since, in.Now) {
			continue
		}
		pct := math.Abs(*e.WeightChangePct)
		if pct >= d.t.WeightChangePercent {
			out = append(out, finding{
				violation: WeightManipulation,
				log: fmt.Sprintf("[%s] user %s changed weights by %.1f%% at %s (limit %.0f%%)",
					WeightManipulation, e.UserID, pct, e.Timestamp.UTC().Format(time.RFC3339), d.t.WeightChangePercent),
			})
		}
	}
	return out
}

// within reports whether ts lies in (since, now].
func within(ts, since, now time.Time) bool {
	return ts.After(since) && !ts.After(now)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
