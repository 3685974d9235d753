package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnibridge_turns_total",
		Help: "Inbound messages processed, by platform and outcome.",
	}, []string{"platform", "outcome"})

	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "omnibridge_turn_duration_seconds",
		Help:    "Time to process one inbound message.",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnibridge_deliveries_total",
		Help: "Outbound reply attempts, by platform and outcome.",
	}, []string{"platform", "outcome"})

	outboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "omnibridge_outbox_claimed",
		Help: "Rows claimed by the last outbox batch.",
	})

	ticketsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnibridge_tickets_created_total",
		Help: "Ticket creation attempts from chat drafts.",
	}, []string{"outcome"})

	verificationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omnibridge_verifications_started_total",
		Help: "Verification emails sent.",
	})

	verificationsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnibridge_verifications_finished_total",
		Help: "Verification link outcomes.",
	}, []string{"outcome"})

	directorySyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omnibridge_directory_syncs_total",
		Help: "Directory sync runs.",
	}, []string{"outcome"})
)
