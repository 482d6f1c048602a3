package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	DevicesAttached  prometheus.Gauge       // 当前接入设备数
	CommandsTotal    *prometheus.CounterVec // labels: cmd, result=ok|retry|error
	ReconcileBatch   prometheus.Histogram   // 单次调和产生的命令数
	HardwareEvents   *prometheus.CounterVec // labels: kind=button|encoder|volume
	DetachTotal      *prometheus.CounterVec // labels: reason=unplug|unresponsive
	EventSubscribers prometheus.Gauge       // 事件流在线订阅数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		DevicesAttached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "devices_attached",
			Help: "Number of currently attached mixer devices.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commands_total",
			Help: "Commands issued to devices by command class and result.",
		}, []string{"cmd", "result"}),
		ReconcileBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconcile_batch_size",
			Help:    "Number of commands produced by one reconciliation pass.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		HardwareEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hardware_events_total",
			Help: "Hardware originated events by kind.",
		}, []string{"kind"}),
		DetachTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "device_detach_total",
			Help: "Device detach transitions by reason.",
		}, []string{"reason"}),
		EventSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "event_subscribers",
			Help: "Connected event stream subscribers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.DevicesAttached, m.CommandsTotal, m.ReconcileBatch,
			m.HardwareEvents, m.DetachTotal, m.EventSubscribers,
		)
	}
	return m
}

// IncCommand 记录一次命令结果，m 可为 nil
func (m *AppMetrics) IncCommand(cmd, result string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(cmd, result).Inc()
}

// IncHardwareEvent 记录一次硬件事件，m 可为 nil
func (m *AppMetrics) IncHardwareEvent(kind string) {
	if m == nil {
		return
	}
	m.HardwareEvents.WithLabelValues(kind).Inc()
}
