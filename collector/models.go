package collector

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the layout used for the Timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the first row of every output file, in column order.
var Header = []string{"Timestamp", "CPU_Usage_Percent", "Memory_Usage_Percent", "Disk_Usage_Percent"}

// Sample holds a single reading of the host. All three percentages were
// taken during the same tick and share Timestamp.
type Sample struct {
	Timestamp          time.Time // wall-clock time at capture
	CPUUsagePercent    float64   // 0-100, measured over the CPU window
	MemoryUsagePercent float64   // 0-100, virtual memory
	DiskUsagePercent   float64   // 0-100, filesystem of the disk path
}

// Values returns the numeric columns in header order.
func (s Sample) Values() []float64 {
	return []float64{s.CPUUsagePercent, s.MemoryUsagePercent, s.DiskUsagePercent}
}

// Record renders the sample as a CSV row matching Header.
func (s Sample) Record() []string {
	return []string{
		FormatTimestamp(s.Timestamp),
		FormatPercent(s.CPUUsagePercent),
		FormatPercent(s.MemoryUsagePercent),
		FormatPercent(s.DiskUsagePercent),
	}
}

// FormatTimestamp renders t as YYYY-MM-DD HH:MM:SS.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// FormatPercent renders v with the shortest representation that round-trips,
// always keeping a decimal point ("12.5", "0.0", "100.0").
func FormatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// round1 rounds v to one decimal place, the precision the readings are
// reported with.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
