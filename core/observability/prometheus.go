package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enginesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queryengine_engines_registered",
		Help: "Number of engine instances ever created in this process",
	})

	enginesConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queryengine_engines_connected",
		Help: "Number of engine instances currently connected",
	})

	transactionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queryengine_transactions_open",
		Help: "Number of open interactive transactions",
	})

	engineOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryengine_operations_total",
			Help: "Boundary operations by name and outcome",
		},
		[]string{"operation", "success"},
	)

	engineFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryengine_faults_total",
			Help: "Recovered panics by operation",
		},
		[]string{"operation"},
	)
)

// EngineRegistered increments the registered engines gauge
func EngineRegistered() { enginesRegistered.Inc() }

// EngineConnected tracks connect (+1) and disconnect (-1) transitions
func EngineConnected(delta float64) { enginesConnected.Add(delta) }

// TransactionOpened tracks interactive transactions opening (+1) and closing (-1)
func TransactionOpened(delta float64) { transactionsOpen.Add(delta) }
