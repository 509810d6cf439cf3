package stats

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
)

// RuntimeStats holds the resource usage of one cli run.
type RuntimeStats struct {
	Label        string
	StartTime    time.Time
	EndTime      time.Time
	TotalElapsed time.Duration
	Samples      []RuntimeStatPoint
	Summary      StatsSummary
	// Counters are run specific totals such as computed and reused stops.
	Counters []Counter
}

type Counter struct {
	Name  string
	Value int64
}

type RuntimeStatPoint struct {
	Timestamp      time.Time
	ElapsedSeconds float64

	HeapAlloc       uint64
	HeapSys         uint64
	Sys             uint64
	NumGC           uint32
	ProcessRSSBytes uint64

	CPUPercent   float64
	SystemCPU    []float64
	NumGoroutine int
}

type StatsSummary struct {
	PeakHeapAlloc  uint64
	PeakSys        uint64
	PeakProcessRSS uint64
	PeakCPUPercent float64
	AvgCPUPercent  float64
	PeakGoroutines int
	TotalGCCycles  uint32
	SampleCount    int
	SampleInterval time.Duration
}

// Collector samples process and runtime stats at a fixed interval until Stop.
type Collector struct {
	mu       sync.Mutex
	stats    RuntimeStats
	stopChan chan struct{}
	doneChan chan struct{}
	interval time.Duration
	proc     *process.Process
}

func NewCollector(label string, interval time.Duration) (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process info: %w", err)
	}

	return &Collector{
		stats: RuntimeStats{
			Label:   label,
			Samples: make([]RuntimeStatPoint, 0, 1000),
		},
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		proc:     proc,
	}, nil
}

func (c *Collector) Start() {
	c.stats.StartTime = time.Now()
	go c.collect()
}

func (c *Collector) collect() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample()
	for {
		select {
		case <-c.stopChan:
			c.sample()
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *Collector) sample() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	point := RuntimeStatPoint{
		Timestamp:      time.Now(),
		ElapsedSeconds: time.Since(c.stats.StartTime).Seconds(),
		HeapAlloc:      memStats.HeapAlloc,
		HeapSys:        memStats.HeapSys,
		Sys:            memStats.Sys,
		NumGC:          memStats.NumGC,
		NumGoroutine:   runtime.NumGoroutine(),
	}
	if memInfo, err := c.proc.MemoryInfo(); err == nil && memInfo != nil {
		point.ProcessRSSBytes = memInfo.RSS
	}
	if cpuPercent, err := c.proc.CPUPercent(); err == nil {
		point.CPUPercent = cpuPercent
	}
	if systemCPU, err := cpu.Percent(0, true); err == nil {
		point.SystemCPU = systemCPU
	}

	c.mu.Lock()
	c.stats.Samples = append(c.stats.Samples, point)
	c.mu.Unlock()
}

// Count records a run specific total for the report.
func (c *Collector) Count(name string, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Counters = append(c.stats.Counters, Counter{Name: name, Value: value})
}

// Stop stops collecting and returns the final stats.
func (c *Collector) Stop() RuntimeStats {
	close(c.stopChan)
	<-c.doneChan

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.EndTime = time.Now()
	c.stats.TotalElapsed = c.stats.EndTime.Sub(c.stats.StartTime)
	c.stats.Summary = summarize(c.stats.Samples)
	c.stats.Summary.SampleInterval = c.interval
	return c.stats
}

func summarize(samples []RuntimeStatPoint) StatsSummary {
	var (
		s        StatsSummary
		totalCPU float64
	)
	for _, p := range samples {
		s.PeakHeapAlloc = max(s.PeakHeapAlloc, p.HeapAlloc)
		s.PeakSys = max(s.PeakSys, p.Sys)
		s.PeakProcessRSS = max(s.PeakProcessRSS, p.ProcessRSSBytes)
		s.PeakCPUPercent = max(s.PeakCPUPercent, p.CPUPercent)
		s.PeakGoroutines = max(s.PeakGoroutines, p.NumGoroutine)
		s.TotalGCCycles = max(s.TotalGCCycles, p.NumGC)
		totalCPU += p.CPUPercent
	}
	s.SampleCount = len(samples)
	if s.SampleCount > 0 {
		s.AvgCPUPercent = totalCPU / float64(s.SampleCount)
	}
	return s
}

// Report renders the stats as a plain text report.
func (stats *RuntimeStats) Report() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s\n", strings.ToUpper(stats.Label))
	fmt.Fprintf(&sb, "  Started:          %s\n", stats.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&sb, "  Duration:         %s\n", stats.TotalElapsed.Round(time.Millisecond))
	fmt.Fprintf(&sb, "  Samples:          %d every %s\n", stats.Summary.SampleCount, stats.Summary.SampleInterval)
	fmt.Fprintf(&sb, "  Peak heap:        %s\n", humanize.IBytes(stats.Summary.PeakHeapAlloc))
	fmt.Fprintf(&sb, "  Peak sys:         %s\n", humanize.IBytes(stats.Summary.PeakSys))
	fmt.Fprintf(&sb, "  Peak RSS:         %s\n", humanize.IBytes(stats.Summary.PeakProcessRSS))
	fmt.Fprintf(&sb, "  CPU peak/avg:     %.1f%% / %.1f%%\n", stats.Summary.PeakCPUPercent, stats.Summary.AvgCPUPercent)
	fmt.Fprintf(&sb, "  Peak goroutines:  %d\n", stats.Summary.PeakGoroutines)
	fmt.Fprintf(&sb, "  GC cycles:        %d\n", stats.Summary.TotalGCCycles)

	if len(stats.Counters) > 0 {
		sb.WriteString("\n")
		for _, c := range stats.Counters {
			fmt.Fprintf(&sb, "  %-17s %s\n", c.Name+":", humanize.Comma(c.Value))
		}
	}

	const maxSamples = 50
	samples := stats.Samples
	if len(samples) > maxSamples {
		picked := make([]RuntimeStatPoint, 0, maxSamples)
		step := float64(len(samples)-1) / float64(maxSamples-1)
		for i := 0; i < maxSamples; i++ {
			picked = append(picked, samples[int(float64(i)*step)])
		}
		samples = picked
	}

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%-12s %-12s %-12s %-8s %-10s\n", "Elapsed(s)", "Heap", "RSS", "CPU %", "Goroutines")
	for _, s := range samples {
		fmt.Fprintf(&sb, "%-12.1f %-12s %-12s %-8.1f %-10d\n",
			s.ElapsedSeconds,
			humanize.IBytes(s.HeapAlloc),
			humanize.IBytes(s.ProcessRSSBytes),
			s.CPUPercent,
			s.NumGoroutine)
	}
	return sb.String()
}

func (stats *RuntimeStats) SaveToFile(filename string) error {
	if err := os.WriteFile(filename, []byte(stats.Report()), 0644); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	return nil
}
