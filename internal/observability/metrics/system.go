// Package metrics provides host resource gauges sampled alongside the pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SystemMetrics holds host resource gauges
type SystemMetrics struct {
	CPUPercent    prometheus.Gauge
	MemoryPercent prometheus.Gauge
	MemoryUsed    prometheus.Gauge
	SwapPercent   prometheus.Gauge
	registry      *prometheus.Registry
}

// NewSystemMetrics creates and registers the host resource gauges.
func NewSystemMetrics(registry *prometheus.Registry) (*SystemMetrics, error) {
	m := &SystemMetrics{registry: registry}
	m.CPUPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "system_cpu_percent",
		Help:      "Host CPU utilization in percent",
	})
	m.MemoryPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "system_memory_percent",
		Help:      "Host memory utilization in percent",
	})
	m.MemoryUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "system_memory_used_bytes",
		Help:      "Host memory in use in bytes",
	})
	m.SwapPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "system_swap_percent",
		Help:      "Host swap utilization in percent",
	})
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register system metrics: %w", err)
	}
	return m, nil
}

// Update sets all gauges at once
func (m *SystemMetrics) Update(cpuPercent, memPercent float64, memUsed uint64, swapPercent float64) {
	if m == nil {
		return
	}
	m.CPUPercent.Set(cpuPercent)
	m.MemoryPercent.Set(memPercent)
	m.MemoryUsed.Set(float64(memUsed))
	m.SwapPercent.Set(swapPercent)
}

// Describe implements the prometheus.Collector interface.
func (m *SystemMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.CPUPercent.Desc()
	ch <- m.MemoryPercent.Desc()
	ch <- m.MemoryUsed.Desc()
	ch <- m.SwapPercent.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *SystemMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.CPUPercent
	ch <- m.MemoryPercent
	ch <- m.MemoryUsed
	ch <- m.SwapPercent
}
