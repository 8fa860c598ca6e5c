package querymetrics

import (
	"errors"
	"testing"
	"time"
)

func TestRecordQueryStartEndComputesDuration(t *testing.T) {
	r := NewRecorder(Thresholds{})
	r.RecordQueryStart("q1", map[string]interface{}{"term": "foo"})
	time.Sleep(time.Millisecond)
	r.RecordQueryEnd("q1", 3, nil, nil)

	agg := r.Aggregate()
	if agg.TotalQueries != 1 {
		t.Fatalf("expected 1 total query, got %d", agg.TotalQueries)
	}
	if agg.SuccessCount != 1 || agg.FailureCount != 0 {
		t.Fatalf("expected 1 success 0 failure, got %+v", agg)
	}
	if agg.AverageDuration <= 0 {
		t.Fatalf("expected positive average duration, got %v", agg.AverageDuration)
	}
}

func TestRecordQueryEndWithoutStartStillRecords(t *testing.T) {
	r := NewRecorder(Thresholds{})
	r.RecordQueryEnd("orphan", 0, nil, nil)

	agg := r.Aggregate()
	if agg.TotalQueries != 1 {
		t.Fatalf("expected orphaned end to still be recorded, got %d", agg.TotalQueries)
	}
}

func TestAggregateTracksFailures(t *testing.T) {
	r := NewRecorder(Thresholds{})
	r.RecordQueryStart("ok", nil)
	r.RecordQueryEnd("ok", 1, nil, nil)
	r.RecordQueryStart("bad", nil)
	r.RecordQueryEnd("bad", 0, errors.New("boom"), nil)

	agg := r.Aggregate()
	if agg.TotalQueries != 2 || agg.SuccessCount != 1 || agg.FailureCount != 1 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	if agg.SuccessRate != 0.5 {
		t.Fatalf("expected success rate 0.5, got %v", agg.SuccessRate)
	}
}

func TestHourlyBucketsGroupByTruncatedHour(t *testing.T) {
	r := NewRecorder(Thresholds{})
	r.RecordQueryStart("a", nil)
	r.RecordQueryEnd("a", 1, nil, nil)
	r.RecordQueryStart("b", nil)
	r.RecordQueryEnd("b", 1, nil, nil)

	buckets := r.HourlyBuckets()
	if len(buckets) != 1 {
		t.Fatalf("expected both queries in the same hour bucket, got %d buckets", len(buckets))
	}
	if buckets[0].Count != 2 {
		t.Fatalf("expected bucket count 2, got %d", buckets[0].Count)
	}
}

func TestAnomaliesFlagsSlowQuery(t *testing.T) {
	r := NewRecorder(Thresholds{SlowQueryDuration: time.Millisecond})
	r.RecordQueryStart("slow", nil)
	time.Sleep(5 * time.Millisecond)
	r.RecordQueryEnd("slow", 1, nil, nil)

	anomalies := r.Anomalies()
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}
	if !anomalies[0].Flags.SlowQuery {
		t.Errorf("expected SlowQuery flag set, got %+v", anomalies[0].Flags)
	}
}

func TestAnomaliesFlagsEmptyResult(t *testing.T) {
	r := NewRecorder(Thresholds{})
	r.RecordQueryStart("q", nil)
	r.RecordQueryEnd("q", 0, nil, nil)

	anomalies := r.Anomalies()
	if len(anomalies) != 1 || !anomalies[0].Flags.EmptyResult {
		t.Fatalf("expected EmptyResult anomaly, got %+v", anomalies)
	}
}

func TestAnomaliesDoesNotFlagEmptyResultOnError(t *testing.T) {
	r := NewRecorder(Thresholds{})
	r.RecordQueryStart("q", nil)
	r.RecordQueryEnd("q", 0, errors.New("failed"), nil)

	for _, a := range r.Anomalies() {
		if a.Flags.EmptyResult {
			t.Errorf("did not expect EmptyResult flag on a failed query: %+v", a)
		}
	}
}

func TestAnomaliesFlagsLowScore(t *testing.T) {
	r := NewRecorder(Thresholds{LowScoreThreshold: 0.5})
	r.RecordQueryStart("q", nil)
	r.RecordQueryEnd("q", 1, nil, map[string]interface{}{"score": 0.1})

	anomalies := r.Anomalies()
	if len(anomalies) != 1 || !anomalies[0].Flags.LowScore {
		t.Fatalf("expected LowScore anomaly, got %+v", anomalies)
	}
}

func TestLearningCycleParameterAdaptationStrategyEffectivenessRecorders(t *testing.T) {
	r := NewRecorder(Thresholds{})
	now := time.Now()
	r.RecordLearningCycle("cycle-1", now, map[string]interface{}{"improved": true})
	r.RecordParameterAdaptation("top_k", now, map[string]interface{}{"from": 10, "to": 20})
	r.RecordStrategyEffectiveness("vector_first", now, map[string]interface{}{"hit_rate": 0.8})

	if got := r.LearningCycles(); len(got) != 1 || got[0].Key != "cycle-1" {
		t.Fatalf("unexpected learning cycles: %+v", got)
	}
	if got := r.ParameterAdaptations(); len(got) != 1 || got[0].Key != "top_k" {
		t.Fatalf("unexpected parameter adaptations: %+v", got)
	}
	if got := r.StrategyEffectiveness(); len(got) != 1 || got[0].Key != "vector_first" {
		t.Fatalf("unexpected strategy effectiveness: %+v", got)
	}
}
