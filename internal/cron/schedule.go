package cron

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// ScheduleSpec is the parsed form of a job schedule.
type ScheduleSpec struct {
	Kind    string `json:"kind"` // "at", "every" or "cron"
	At      string `json:"at,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
}

// ParseSchedule interprets a schedule input. A JSON object carrying "kind"
// wins; anything else (including invalid JSON) is treated as a five-field
// crontab expression.
func ParseSchedule(input string) ScheduleSpec {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "{") {
		var spec ScheduleSpec
		if err := json.Unmarshal([]byte(trimmed), &spec); err == nil && spec.Kind != "" {
			return spec
		}
	}
	return ScheduleSpec{Kind: "cron", Expr: trimmed}
}

// NextRun computes the next execution time in epoch seconds. Zero signals an
// unusable schedule.
//
//	every: last==0 fires now, else last + everyMs/1000; everyMs==0 is invalid
//	at:    the ISO-8601 instant, or 0 when unparseable
//	cron:  next matching minute strictly after max(last, now)
func NextRun(spec ScheduleSpec, lastEpochSeconds int64) int64 {
	switch spec.Kind {
	case "every":
		if spec.EveryMs <= 0 {
			return 0
		}
		if lastEpochSeconds == 0 {
			return time.Now().Unix()
		}
		return lastEpochSeconds + spec.EveryMs/1000

	case "at":
		if spec.At == "" {
			return 0
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, spec.At); err == nil {
				return t.Unix()
			}
		}
		return 0

	case "cron":
		expr := strings.TrimSpace(spec.Expr)
		if expr == "" || !gronx.New().IsValid(expr) {
			return 0
		}
		from := time.Now()
		if lastEpochSeconds > from.Unix() {
			from = time.Unix(lastEpochSeconds, 0)
		}
		next, err := gronx.NextTickAfter(expr, from, false)
		if err != nil {
			return 0
		}
		return next.Unix()

	default:
		return 0
	}
}
