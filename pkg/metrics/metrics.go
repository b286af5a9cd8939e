package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lakeglass_build_info",
			Help: "Build information of lakeglass",
		},
		[]string{"version", "commit", "date"},
	)

	CompileAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lakeglass_compile_attempts_total",
			Help: "Backend calls made by the plan compiler",
		},
	)

	CompileFormatRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lakeglass_compile_format_retries_total",
			Help: "Compile retries caused by unparseable plan notation",
		},
	)

	CompileRefusalRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lakeglass_compile_refusal_retries_total",
			Help: "Compile retries caused by refused forecast questions",
		},
	)

	CompileSchemaRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lakeglass_compile_schema_retries_total",
			Help: "Compile retries caused by plans referencing unknown tables or columns",
		},
	)

	RepairCallsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lakeglass_sql_repair_calls_total",
			Help: "SQL repair requests sent to the text-generation backend",
		},
	)

	PanelExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeglass_panel_executions_total",
			Help: "Panel SQL executions by outcome",
		},
		[]string{"outcome"},
	)

	ForecastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeglass_forecasts_total",
			Help: "Forecast computations by strategy",
		},
		[]string{"strategy"},
	)
)
