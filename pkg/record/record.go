package record

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Hash field names of a persisted proxy record
const (
	FieldUsedCount    = "used_count"
	FieldSuccessCount = "success_count"
	FieldTotalSeconds = "total_seconds"
	FieldLastFail     = "last_fail"
	FieldTimestamp    = "timestamp"
	FieldScore        = "score"
)

var (
	ErrMalformedRecord    = errors.New("malformed proxy record")
	ErrInvalidProxyFormat = errors.New("invalid proxy format")
)

// Record is the counter set kept for one proxy key.
// Score is the value cached at the last rebuild and may lag behind the counters.
type Record struct {
	Key          string
	UsedCount    int64
	SuccessCount int64
	TotalSeconds int64
	LastFail     string
	Timestamp    int64
	Score        float64
	HasScore     bool
}

// Fresh returns the field set written for a proxy seen for the first time
func Fresh(now time.Time) map[string]string {
	return map[string]string{
		FieldUsedCount:    "0",
		FieldSuccessCount: "0",
		FieldTotalSeconds: "0",
		FieldLastFail:     "",
		FieldTimestamp:    strconv.FormatInt(now.Unix(), 10),
		FieldScore:        FormatScore(0),
	}
}

// Parse converts a raw field mapping into a Record. Every counter except score is required.
// The score is only a cache, so an unreadable one leaves HasScore false instead of failing.
func Parse(key string, fields map[string]string) (Record, error) {
	rec := Record{Key: key}

	var err error
	if rec.UsedCount, err = intField(fields, FieldUsedCount); err != nil {
		return rec, err
	}
	if rec.SuccessCount, err = intField(fields, FieldSuccessCount); err != nil {
		return rec, err
	}
	if rec.TotalSeconds, err = intField(fields, FieldTotalSeconds); err != nil {
		return rec, err
	}
	if rec.Timestamp, err = intField(fields, FieldTimestamp); err != nil {
		return rec, err
	}

	lastFail, ok := fields[FieldLastFail]
	if !ok {
		return rec, fmt.Errorf("%w: missing %s", ErrMalformedRecord, FieldLastFail)
	}
	rec.LastFail = lastFail

	if rec.UsedCount < 0 || rec.SuccessCount < 0 || rec.TotalSeconds < 0 {
		return rec, fmt.Errorf("%w: negative counter", ErrMalformedRecord)
	}
	if rec.SuccessCount > rec.UsedCount {
		return rec, fmt.Errorf("%w: success_count %d exceeds used_count %d", ErrMalformedRecord, rec.SuccessCount, rec.UsedCount)
	}

	if raw, ok := fields[FieldScore]; ok {
		if score, err := ParseScore(raw); err == nil {
			rec.Score = score
			rec.HasScore = true
		}
	}

	return rec, nil
}

// ParseScore reads the cached score field
func ParseScore(raw string) (float64, error) {
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: score %q: %v", ErrMalformedRecord, raw, err)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: score %q is not finite", ErrMalformedRecord, raw)
	}
	return score, nil
}

// FormatScore renders a score the way it is persisted
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}

func intField(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedRecord, name)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrMalformedRecord, name, raw, err)
	}
	return value, nil
}
