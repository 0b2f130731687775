package observability

import (
	"net/http"
	"time"

	"github.com/berfenger/deye2mqtt/internal/core/domain"
	"github.com/berfenger/deye2mqtt/pkg/deye_modbus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deye2mqtt"

type Metrics struct {
	registry *prometheus.Registry

	modbusDuration *prometheus.HistogramVec
	modbusErrors   *prometheus.CounterVec
	dispatchCycles *prometheus.CounterVec
	emsWriteErrors prometheus.Counter
	maxAcImport    prometheus.Gauge
	maxAcExport    prometheus.Gauge
	setPoint       prometheus.Gauge
	modeWarnings   *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		modbusDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modbus_request_duration_seconds",
			Help:      "Duration of Modbus requests by operation.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
		}, []string{"operation"}),
		modbusErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modbus_errors_total",
			Help:      "Failed Modbus actor requests by request type.",
		}, []string{"request"}),
		dispatchCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_cycles_total",
			Help:      "Dispatch cycles by resulting EMS power mode.",
		}, []string{"mode"}),
		emsWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ems_write_errors_total",
			Help:      "EMS command writes that failed.",
		}),
		maxAcImport: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "envelope_max_ac_import_watts",
			Help:      "Current AC import capability.",
		}),
		maxAcExport: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "envelope_max_ac_export_watts",
			Help:      "Current AC export capability.",
		}),
		setPoint: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_power_setpoint_watts",
			Help:      "Active power set-point after clipping to the envelope.",
		}),
		modeWarnings: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode_warning",
			Help:      "Mode compatibility warnings (1 = active).",
		}, []string{"warning"}),
	}
}

// ModbusInstrument feeds the Modbus client timings into the duration histogram.
func (m *Metrics) ModbusInstrument() *deye_modbus.ModbusInstrument {
	return &deye_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			m.modbusDuration.WithLabelValues(fnName).Observe(readTime.Seconds())
		},
	}
}

func (m *Metrics) ModbusError(request string) {
	if m == nil {
		return
	}
	m.modbusErrors.WithLabelValues(request).Inc()
}

func (m *Metrics) EmsWriteError() {
	if m == nil {
		return
	}
	m.emsWriteErrors.Inc()
}

func (m *Metrics) DispatchCycle(cmd domain.EmsCommand, setPoint *int32, env *domain.AllowedEnvelope, warnings domain.ModeWarnings) {
	if m == nil {
		return
	}
	m.dispatchCycles.WithLabelValues(cmd.Mode.String()).Inc()
	if setPoint != nil {
		m.setPoint.Set(float64(*setPoint))
	}
	if env == nil {
		env = &domain.AllowedEnvelope{}
	}
	m.maxAcImport.Set(float64(env.MaxAcImport))
	m.maxAcExport.Set(float64(env.MaxAcExport))
	m.modeWarnings.WithLabelValues("smart_mode_pid_filter").Set(boolGauge(warnings.SmartModeConflictsWithPidFilter))
	m.modeWarnings.WithLabelValues("no_smart_meter_detected").Set(boolGauge(warnings.NoSmartMeterDetected))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func boolGauge(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
