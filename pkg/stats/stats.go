package stats

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	BYTE = 1 << (10 * iota)
	KILOBYTE
	MEGABYTE
	GIGABYTE

	dumpFile = "stats"
)

// EnableStatistics enables go routine that periodically prints memory usage
// of the go process and the counters of the given gatherer whose name starts
// with prefix. Once the context is done, all metrics are dumped into a
// stats file in dumpDir, if not empty.
func EnableStatistics(
	ctx context.Context, interval time.Duration,
	gatherer prometheus.Gatherer, prefix, dumpDir string,
) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				PrintMemoryStatistics()
				PrintNumOfRoutines()
				if err := PrintCounters(gatherer, prefix); err != nil {
					log.WithError(err).Warn("failed to gather metrics")
				}
			case <-ctx.Done():
				if dumpDir == "" {
					return
				}
				if err := DumpMetrics(gatherer, dumpDir); err != nil {
					log.WithError(err).Warn("failed to dump metrics")
				}
				return
			}
		}
	}()
}

// toMegabytes returns given memory in bytes to megabytes.
func toMegabytes(bytes uint64) float64 {
	return float64(bytes) / MEGABYTE
}

// PrintMemoryStatistics prints memory statistics using go runtime library.
func PrintMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Infof(
		"Total allocated: %.3fMB, Heap allocated: %.3fMB, "+
			"Allocated objects count: %v, Freed objects count: %v",
		toMegabytes(memStats.TotalAlloc),
		toMegabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
	)
}

// PrintNumOfRoutines prints number of go routines currently running
func PrintNumOfRoutines() {
	log.Infof("Num of go routines: %v", runtime.NumGoroutine())
}

// PrintCounters logs the counters and gauges whose name starts with prefix,
// one line per metric family.
func PrintCounters(gatherer prometheus.Gatherer, prefix string) error {
	lines, err := Summary(gatherer, prefix)
	if err != nil {
		return err
	}
	for _, line := range lines {
		log.Info(line)
	}
	return nil
}

// Summary renders the counters and gauges whose name starts with prefix,
// ie. "otk_requests_total: command=SIGN,state=success=3".
func Summary(gatherer prometheus.Gatherer, prefix string) ([]string, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0)
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), prefix) {
			continue
		}

		values := make([]string, 0, len(family.GetMetric()))
		for _, m := range family.GetMetric() {
			value, ok := metricValue(m)
			if !ok {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			if len(labels) > 0 {
				values = append(values, strings.Join(labels, ",")+"="+value)
				continue
			}
			values = append(values, value)
		}
		if len(values) == 0 {
			continue
		}
		sort.Strings(values)
		lines = append(lines, family.GetName()+": "+strings.Join(values, " "))
	}
	return lines, nil
}

// DumpMetrics appends all gathered metrics to the stats file in dir.
func DumpMetrics(gatherer prometheus.Gatherer, dir string) error {
	file, err := os.OpenFile(
		filepath.Join(dir, dumpFile),
		os.O_APPEND|os.O_CREATE|os.O_RDWR,
		0644,
	)
	if err != nil {
		return err
	}
	defer file.Close()

	metricFamily, err := gatherer.Gather()
	if err != nil {
		return err
	}

	writer := bufio.NewWriter(file)
	for _, v := range metricFamily {
		if _, err := writer.WriteString(v.String() + "\n"); err != nil {
			return err
		}
	}
	return writer.Flush()
}

func metricValue(m *dto.Metric) (string, bool) {
	switch {
	case m.GetCounter() != nil:
		return formatFloat(m.GetCounter().GetValue()), true
	case m.GetGauge() != nil:
		return formatFloat(m.GetGauge().GetValue()), true
	default:
		return "", false
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
