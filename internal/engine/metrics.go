package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// diagnosesTotal counts diagnoses by outcome (ok, error).
	diagnosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rootcause_diagnoses_total",
		Help: "Total diagnoses by outcome",
	}, []string{"outcome"})

	// diagnosisDuration tracks wall time of one diagnosis.
	diagnosisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rootcause_diagnosis_duration_seconds",
		Help:    "Diagnosis duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	})

	// ruleExecutionsTotal counts executions by rule and outcome
	// (fired, rejected).
	ruleExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rootcause_rule_executions_total",
		Help: "Total rule executions by rule and outcome",
	}, []string{"rule", "outcome"})

	// tagsPerDiagnosis tracks the size of the tag graph of one run.
	tagsPerDiagnosis = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rootcause_tags_per_diagnosis",
		Help:    "Number of tags produced per diagnosis",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 500},
	})

	// sessionsTotal counts session lifecycle events (created, destroyed).
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rootcause_sessions_total",
		Help: "Total session lifecycle events",
	}, []string{"event"})

	// sessionsInUse reports sessions currently acquired from the pool.
	sessionsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rootcause_sessions_in_use",
		Help: "Sessions currently acquired from the pool",
	})
)
