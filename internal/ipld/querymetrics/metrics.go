// Package querymetrics is a passive recorder for query execution metrics.
// It has no opinion on what a "query" is beyond a caller-assigned id;
// everything it does is described in spec §4.9 (C9): record when a query
// starts and ends, then let callers read back aggregates, hourly buckets,
// and anomaly flags. It never starts goroutines and never reaches for a
// package-level global — a Recorder is constructed explicitly and passed to
// whatever layer needs it, the same way internal/logging.Logger is.
package querymetrics

import (
	"sync"
	"time"
)

// Thresholds configures what Anomalies() flags as notable. A zero value
// disables the corresponding check.
type Thresholds struct {
	SlowQueryDuration time.Duration
	LowScoreThreshold float64
}

// QueryRecord is one completed query's full record.
type QueryRecord struct {
	QueryID      string
	Params       map[string]interface{}
	Start        time.Time
	End          time.Time
	Duration     time.Duration
	ResultCount  int
	Err          error
	ExtraMetrics map[string]interface{}
}

// AnomalyFlags reports which thresholds a QueryRecord tripped.
type AnomalyFlags struct {
	SlowQuery   bool
	EmptyResult bool
	LowScore    bool
}

// TimestampedEvent is the common shape of learning-cycle,
// parameter-adaptation, and strategy-effectiveness recordings: an opaque
// key, a timestamp, and arbitrary data (spec §4.9 "same shape, timestamped,
// indexed by a stable key").
type TimestampedEvent struct {
	Key       string
	Timestamp time.Time
	Data      map[string]interface{}
}

// Recorder collects query metrics under a single reader-writer lock (spec
// §5 "Counters: atomic increments; snapshots take a brief exclusive lock").
// The zero value is not usable; construct with NewRecorder.
type Recorder struct {
	mu         sync.RWMutex
	thresholds Thresholds

	inflight  map[string]inflightQuery
	completed []QueryRecord

	learningCycles  []TimestampedEvent
	paramAdaptation []TimestampedEvent
	strategyEffect  []TimestampedEvent
}

type inflightQuery struct {
	params map[string]interface{}
	start  time.Time
}

// NewRecorder constructs an empty Recorder with the given anomaly
// thresholds.
func NewRecorder(thresholds Thresholds) *Recorder {
	return &Recorder{
		thresholds: thresholds,
		inflight:   make(map[string]inflightQuery),
	}
}

// RecordQueryStart marks queryID as in flight with the given params. A
// second start for the same queryID before it ends overwrites the first.
func (r *Recorder) RecordQueryStart(queryID string, params map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[queryID] = inflightQuery{params: params, start: time.Now()}
}

// RecordQueryEnd closes out queryID, computing its duration from the
// matching RecordQueryStart call. If queryID was never started, the record
// is still appended with a zero Start/Duration and nil Params, so a caller
// that forgets the start half still gets a result/error/extra-metrics entry
// rather than a silently dropped one.
func (r *Recorder) RecordQueryEnd(queryID string, resultCount int, err error, extraMetrics map[string]interface{}) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := QueryRecord{
		QueryID:      queryID,
		ResultCount:  resultCount,
		Err:          err,
		ExtraMetrics: extraMetrics,
		End:          now,
	}
	if in, ok := r.inflight[queryID]; ok {
		rec.Params = in.params
		rec.Start = in.start
		rec.Duration = now.Sub(in.start)
		delete(r.inflight, queryID)
	}
	r.completed = append(r.completed, rec)
}

// Aggregate summarizes every completed query seen so far.
type Aggregate struct {
	TotalQueries    int
	SuccessCount    int
	FailureCount    int
	SuccessRate     float64
	AverageDuration time.Duration
}

// Aggregate computes counts, success rate, and average duration across all
// completed queries.
func (r *Recorder) Aggregate() Aggregate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var agg Aggregate
	var totalDuration time.Duration
	for _, rec := range r.completed {
		agg.TotalQueries++
		if rec.Err != nil {
			agg.FailureCount++
		} else {
			agg.SuccessCount++
		}
		totalDuration += rec.Duration
	}
	if agg.TotalQueries > 0 {
		agg.SuccessRate = float64(agg.SuccessCount) / float64(agg.TotalQueries)
		agg.AverageDuration = totalDuration / time.Duration(agg.TotalQueries)
	}
	return agg
}

// HourlyBucket aggregates the queries whose end time falls within one
// UTC hour.
type HourlyBucket struct {
	Hour            time.Time
	Count           int
	AverageDuration time.Duration
}

// HourlyBuckets groups completed queries by the UTC hour their End time
// falls in, sorted ascending by hour.
func (r *Recorder) HourlyBuckets() []HourlyBucket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type accum struct {
		count int
		total time.Duration
	}
	byHour := make(map[int64]*accum)
	var order []int64
	for _, rec := range r.completed {
		h := rec.End.Truncate(time.Hour).Unix()
		a, ok := byHour[h]
		if !ok {
			a = &accum{}
			byHour[h] = a
			order = append(order, h)
		}
		a.count++
		a.total += rec.Duration
	}

	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if order[j] < order[i] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	out := make([]HourlyBucket, 0, len(order))
	for _, h := range order {
		a := byHour[h]
		out = append(out, HourlyBucket{
			Hour:            time.Unix(h, 0).UTC(),
			Count:           a.count,
			AverageDuration: a.total / time.Duration(a.count),
		})
	}
	return out
}

// flagsFor computes the anomaly flags a record trips under r's thresholds.
func (r *Recorder) flagsFor(rec QueryRecord) AnomalyFlags {
	var f AnomalyFlags
	if r.thresholds.SlowQueryDuration > 0 && rec.Duration > r.thresholds.SlowQueryDuration {
		f.SlowQuery = true
	}
	if rec.Err == nil && rec.ResultCount == 0 {
		f.EmptyResult = true
	}
	if r.thresholds.LowScoreThreshold > 0 {
		if score, ok := rec.ExtraMetrics["score"].(float64); ok && score < r.thresholds.LowScoreThreshold {
			f.LowScore = true
		}
	}
	return f
}

// Anomaly pairs a completed query with the flags it tripped.
type Anomaly struct {
	Record QueryRecord
	Flags  AnomalyFlags
}

// Anomalies returns every completed query that tripped at least one
// threshold, in the order they completed.
func (r *Recorder) Anomalies() []Anomaly {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Anomaly
	for _, rec := range r.completed {
		f := r.flagsFor(rec)
		if f.SlowQuery || f.EmptyResult || f.LowScore {
			out = append(out, Anomaly{Record: rec, Flags: f})
		}
	}
	return out
}

// RecordLearningCycle appends a learning-cycle event under key.
func (r *Recorder) RecordLearningCycle(key string, timestamp time.Time, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learningCycles = append(r.learningCycles, TimestampedEvent{Key: key, Timestamp: timestamp, Data: data})
}

// RecordParameterAdaptation appends a parameter-adaptation event under key.
func (r *Recorder) RecordParameterAdaptation(key string, timestamp time.Time, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paramAdaptation = append(r.paramAdaptation, TimestampedEvent{Key: key, Timestamp: timestamp, Data: data})
}

// RecordStrategyEffectiveness appends a strategy-effectiveness event under
// key.
func (r *Recorder) RecordStrategyEffectiveness(key string, timestamp time.Time, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategyEffect = append(r.strategyEffect, TimestampedEvent{Key: key, Timestamp: timestamp, Data: data})
}

// LearningCycles returns every recorded learning-cycle event, in recording
// order.
func (r *Recorder) LearningCycles() []TimestampedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TimestampedEvent, len(r.learningCycles))
	copy(out, r.learningCycles)
	return out
}

// ParameterAdaptations returns every recorded parameter-adaptation event, in
// recording order.
func (r *Recorder) ParameterAdaptations() []TimestampedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TimestampedEvent, len(r.paramAdaptation))
	copy(out, r.paramAdaptation)
	return out
}

// StrategyEffectiveness returns every recorded strategy-effectiveness
// event, in recording order.
func (r *Recorder) StrategyEffectiveness() []TimestampedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TimestampedEvent, len(r.strategyEffect))
	copy(out, r.strategyEffect)
	return out
}
