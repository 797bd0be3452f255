package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visiond",
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome (success, failure, rate_limited, locked).",
	}, []string{"outcome"})

	inferencesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "visiond",
		Name:      "inferences_generated_total",
		Help:      "Inference runs completed through the external service.",
	})

	trainingJobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "visiond",
		Name:      "training_jobs_started_total",
		Help:      "Training jobs submitted to the external service.",
	})
)
