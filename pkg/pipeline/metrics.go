// pkg/pipeline/metrics.go
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PartitionMetrics tracks the outcome of one partition's reconciliation
type PartitionMetrics struct {
	Partition    string
	StartTime    time.Time
	EndTime      time.Time
	RecordsRead  int
	Inserted     int
	Updated      int
	Skipped      int
	FailedWrites int
}

// Duration returns how long the partition took
func (pm *PartitionMetrics) Duration() time.Duration {
	if pm.EndTime.IsZero() {
		return time.Since(pm.StartTime)
	}
	return pm.EndTime.Sub(pm.StartTime)
}

// RunMetrics aggregates counters across one pipeline run. Safe for
// concurrent use.
type RunMetrics struct {
	mu                sync.Mutex
	logger            *zap.Logger
	StartTime         time.Time
	EndTime           time.Time
	Partitions        map[string]*PartitionMetrics
	TotalRecordsRead  int64
	TotalInserted     int64
	TotalUpdated      int64
	TotalSkipped      int64
	TotalFailedWrites int64
	FailedPartitions  int
}

// NewRunMetrics creates a metrics tracker for one pipeline run
func NewRunMetrics(logger *zap.Logger) *RunMetrics {
	return &RunMetrics{
		logger:     logger,
		StartTime:  time.Now(),
		Partitions: make(map[string]*PartitionMetrics),
	}
}

// StartPartition begins tracking one partition
func (rm *RunMetrics) StartPartition(partition string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.Partitions[partition] = &PartitionMetrics{
		Partition: partition,
		StartTime: time.Now(),
	}
}

// EndPartition records the outcome of one partition
func (rm *RunMetrics) EndPartition(partition string, recordsRead, inserted, updated, skipped, failedWrites int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	pm, ok := rm.Partitions[partition]
	if !ok {
		pm = &PartitionMetrics{Partition: partition, StartTime: time.Now()}
		rm.Partitions[partition] = pm
	}
	pm.EndTime = time.Now()
	pm.RecordsRead = recordsRead
	pm.Inserted = inserted
	pm.Updated = updated
	pm.Skipped = skipped
	pm.FailedWrites = failedWrites

	rm.TotalRecordsRead += int64(recordsRead)
	rm.TotalInserted += int64(inserted)
	rm.TotalUpdated += int64(updated)
	rm.TotalSkipped += int64(skipped)
	rm.TotalFailedWrites += int64(failedWrites)

	if rm.logger != nil {
		rm.logger.Info("Partition reconciled",
			zap.String("partition", partition),
			zap.Duration("duration", pm.Duration()),
			zap.Int("recordsRead", recordsRead),
			zap.Int("inserted", inserted),
			zap.Int("updated", updated),
			zap.Int("skipped", skipped),
			zap.Int("failedWrites", failedWrites))
	}
}

// RecordPartitionFailure counts a partition that could not be processed
func (rm *RunMetrics) RecordPartitionFailure(partition string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.FailedPartitions++
	if pm, ok := rm.Partitions[partition]; ok {
		pm.EndTime = time.Now()
	}
}

// Complete marks the run finished and logs the totals
func (rm *RunMetrics) Complete() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.EndTime = time.Now()

	if rm.logger != nil {
		rm.logger.Info("Run metrics",
			zap.Duration("totalDuration", rm.duration()),
			zap.Int("partitions", len(rm.Partitions)),
			zap.Int("failedPartitions", rm.FailedPartitions),
			zap.Int64("recordsRead", rm.TotalRecordsRead),
			zap.Int64("inserted", rm.TotalInserted),
			zap.Int64("updated", rm.TotalUpdated),
			zap.Int64("skipped", rm.TotalSkipped),
			zap.Float64("recordsPerSecond", rm.throughput()))
	}
}

// Duration returns the total duration of the run
func (rm *RunMetrics) Duration() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.duration()
}

func (rm *RunMetrics) duration() time.Duration {
	if rm.EndTime.IsZero() {
		return time.Since(rm.StartTime)
	}
	return rm.EndTime.Sub(rm.StartTime)
}

// Throughput returns the records-per-second rate of the run
func (rm *RunMetrics) Throughput() float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.throughput()
}

func (rm *RunMetrics) throughput() float64 {
	seconds := rm.duration().Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(rm.TotalRecordsRead) / seconds
}

// Summary renders a human-readable run summary
func (rm *RunMetrics) Summary() string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return fmt.Sprintf(
		"partitions=%d failed=%d read=%d inserted=%d updated=%d skipped=%d failedWrites=%d duration=%s",
		len(rm.Partitions),
		rm.FailedPartitions,
		rm.TotalRecordsRead,
		rm.TotalInserted,
		rm.TotalUpdated,
		rm.TotalSkipped,
		rm.TotalFailedWrites,
		rm.duration().Round(time.Millisecond))
}
