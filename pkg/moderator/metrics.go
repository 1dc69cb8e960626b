package moderator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dotcommunity_messages_processed_total",
	Help: "Messages that went through the moderation pipeline",
})

var primaryDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotcommunity_primary_decisions_total",
	Help: "Primary judge verdicts by outcome",
}, []string{"needs_intervention"})

var providerFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotcommunity_provider_fallbacks_total",
	Help: "Times a judge answered without its provider",
}, []string{"judge"})

var qualityGateOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotcommunity_quality_gate_outcomes_total",
	Help: "Secondary judge quality gate results",
}, []string{"outcome"})

var interventionsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotcommunity_interventions_skipped_total",
	Help: "Flagged messages the limiter did not let through",
}, []string{"reason"})

var interventionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotcommunity_intervention_outcomes_total",
	Help: "Executed decisions by type and status",
}, []string{"type", "status"})

var welcomesPosted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotcommunity_welcome_messages_total",
	Help: "Welcome messages by status",
}, []string{"status"})

var schedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotcommunity_scheduler_runs_total",
	Help: "Scheduler ticks by job",
}, []string{"job"})

var schedulerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "dotcommunity_scheduler_tick_duration_seconds",
	Help:    "Time spent in one scheduler tick",
	Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
}, []string{"job"})

var pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "dotcommunity_pipeline_duration_seconds",
	Help:    "Time from message receipt to the end of the pipeline",
	Buckets: prometheus.ExponentialBuckets(0.005, 3, 10),
})
