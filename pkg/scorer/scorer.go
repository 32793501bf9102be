// Package scorer turns the usage counters of a proxy record into a comparable quality score.
//
// A proxy that never succeeded scores -used_count. Otherwise the score is
//
//	2*success/used                          success rate
//	+ 0.5*success                           proven volume
//	+ 0.25*(FreshnessCeiling - ln(age))     freshness, age in seconds
//	+ (2 if no last failure, else -1)       recent failure
//	+ 0.20*max(0, 15 - seconds/success)     speed
//
// rounded to two decimals.
package scorer

import (
	"math"
	"time"

	"proxyrank/pkg/record"
)

// FreshnessCeiling is ln of roughly 180 days in seconds. A record touched within the
// last hour gets close to the maximum freshness term, one idle for months gets ~0.
//
//	ln(3600*24*180) = 16.56
//	ln(3600*24*30)  = 14.78
//	ln(3600*24)     = 11.37
//	ln(3600)        = 8.19
const FreshnessCeiling = 16.56

const (
	rateWeight      = 2.0
	volumeWeight    = 0.5
	freshnessWeight = 0.25
	noFailBonus     = 2.0
	failPenalty     = -1.0
	speedWeight     = 0.20
	speedCeiling    = 15.0
)

// Score computes the quality score of rec as seen at now
func Score(rec record.Record, now time.Time) float64 {
	if rec.SuccessCount == 0 {
		return float64(-rec.UsedCount)
	}

	success := float64(rec.SuccessCount)
	score := rateWeight*success/float64(rec.UsedCount) +
		volumeWeight*success +
		freshnessWeight*(FreshnessCeiling-math.Log(age(rec.Timestamp, now))) +
		failTerm(rec.LastFail) +
		speedWeight*math.Max(0, speedCeiling-float64(rec.TotalSeconds)/success)

	return Round(score)
}

// Round rounds half away from zero to two decimals
func Round(score float64) float64 {
	return math.Round(score*100) / 100
}

// age never drops below one second so clock skew cannot push the log to -Inf
func age(timestamp int64, now time.Time) float64 {
	seconds := float64(now.Unix() - timestamp)
	if seconds < 1 {
		return 1
	}
	return seconds
}

func failTerm(lastFail string) float64 {
	if lastFail == "" {
		return noFailBonus
	}
	return failPenalty
}
