// Package metrics provides process resource metrics for observability
package metrics

import (
	"os"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemMetrics exposes process level resource usage. Values are refreshed
// at collection time so no background sampler is needed.
type SystemMetrics struct {
	registry *prometheus.Registry
	proc     *process.Process

	memoryRSSGauge  prometheus.Gauge
	memoryVMSGauge  prometheus.Gauge
	cpuPercentGauge prometheus.Gauge
	goroutineGauge  prometheus.Gauge
}

// NewSystemMetrics creates and registers new system metrics
func NewSystemMetrics(registry *prometheus.Registry) (*SystemMetrics, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	m := &SystemMetrics{registry: registry, proc: proc}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SystemMetrics) initMetrics() {
	m.memoryRSSGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "process_memory_rss_bytes",
		Help: "Resident set size of the sync process",
	})

	m.memoryVMSGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "process_memory_vms_bytes",
		Help: "Virtual memory size of the sync process",
	})

	m.cpuPercentGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "process_cpu_percent",
		Help: "CPU usage of the sync process as a percentage",
	})

	m.goroutineGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "process_goroutines",
		Help: "Number of live goroutines",
	})
}

// refresh samples current process usage into the gauges. Sampling errors
// leave the previous values in place.
func (m *SystemMetrics) refresh() {
	if mem, err := m.proc.MemoryInfo(); err == nil {
		m.memoryRSSGauge.Set(float64(mem.RSS))
		m.memoryVMSGauge.Set(float64(mem.VMS))
	}
	if cpu, err := m.proc.CPUPercent(); err == nil {
		m.cpuPercentGauge.Set(cpu)
	}
	m.goroutineGauge.Set(float64(runtime.NumGoroutine()))
}

// Describe implements the Collector interface
func (m *SystemMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.memoryRSSGauge.Describe(ch)
	m.memoryVMSGauge.Describe(ch)
	m.cpuPercentGauge.Describe(ch)
	m.goroutineGauge.Describe(ch)
}

// Collect implements the Collector interface
func (m *SystemMetrics) Collect(ch chan<- prometheus.Metric) {
	m.refresh()
	m.memoryRSSGauge.Collect(ch)
	m.memoryVMSGauge.Collect(ch)
	m.cpuPercentGauge.Collect(ch)
	m.goroutineGauge.Collect(ch)
}

// MemoryRSS returns the current resident set size in bytes, for log reporting.
func (m *SystemMetrics) MemoryRSS() (uint64, error) {
	mem, err := m.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return mem.RSS, nil
}
