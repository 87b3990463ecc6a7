package server

import (
	"expvar"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemCollector periodically samples CPU, memory and the disk holding the
// lake directory, and publishes the values via expvar.
type SystemCollector struct {
	cpuUsagePercent *expvar.Float
	memUsagePercent *expvar.Float
	diskUsage       *expvar.Float
	diskFreeBytes   *expvar.Int
	diskPath        string
	interval        time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
	logger          *slog.Logger
}

// expvarFloat returns the published Float called name, creating it on first
// use. expvar panics on duplicate names.
func expvarFloat(name string) *expvar.Float {
	if v, ok := expvar.Get(name).(*expvar.Float); ok {
		return v
	}
	return expvar.NewFloat(name)
}

func expvarInt(name string) *expvar.Int {
	if v, ok := expvar.Get(name).(*expvar.Int); ok {
		return v
	}
	return expvar.NewInt(name)
}

// NewSystemCollector creates a new collector.
// diskPath should be the path of the disk to monitor (e.g., the data directory).
func NewSystemCollector(diskPath string, interval time.Duration, logger *slog.Logger) *SystemCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &SystemCollector{
		cpuUsagePercent: expvarFloat("system_cpu_usage_percent"),
		memUsagePercent: expvarFloat("system_mem_usage_percent"),
		diskUsage:       expvarFloat("system_disk_usage_percent"),
		diskFreeBytes:   expvarInt("system_disk_free_bytes"),
		diskPath:        diskPath,
		interval:        interval,
		stopChan:        make(chan struct{}),
		logger:          logger.With("component", "SystemCollector"),
	}
}

// Start begins the background collection loop.
func (sc *SystemCollector) Start() {
	sc.logger.Info("Starting system metrics collector", "interval", sc.interval, "disk_path", sc.diskPath)
	sc.collectDisk()
	sc.wg.Add(1)
	go sc.collectLoop()
}

// Stop signals the collection loop to terminate and waits for it to finish.
func (sc *SystemCollector) Stop() {
	sc.stopOnce.Do(func() {
		sc.logger.Info("Stopping system metrics collector")
		close(sc.stopChan)
	})
	sc.wg.Wait()
}

func (sc *SystemCollector) collectDisk() {
	du, err := disk.Usage(sc.diskPath)
	if err != nil {
		sc.logger.Debug("Failed to read disk usage", "path", sc.diskPath, "error", err)
		return
	}
	sc.diskUsage.Set(du.UsedPercent)
	sc.diskFreeBytes.Set(int64(du.Free))
}

func (sc *SystemCollector) collectLoop() {
	defer sc.wg.Done()
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// A zero interval makes cpu.Percent compare against the previous call.
			cpuPercentages, err := cpu.Percent(0, false)
			if err == nil && len(cpuPercentages) > 0 {
				sc.cpuUsagePercent.Set(cpuPercentages[0])
			}
			if vm, err := mem.VirtualMemory(); err == nil {
				sc.memUsagePercent.Set(vm.UsedPercent)
			}
			sc.collectDisk()
		case <-sc.stopChan:
			return
		}
	}
}

// Collectors exposes the sampled values as Prometheus gauges.
func (sc *SystemCollector) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Host CPU usage in percent",
		}, sc.cpuUsagePercent.Value),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "system_mem_usage_percent",
			Help: "Host memory usage in percent",
		}, sc.memUsagePercent.Value),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "system_disk_usage_percent",
			Help: "Usage of the disk holding the lake directory in percent",
		}, sc.diskUsage.Value),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "system_disk_free_bytes",
			Help: "Free bytes on the disk holding the lake directory",
		}, func() float64 { return float64(sc.diskFreeBytes.Value()) }),
	}
}
