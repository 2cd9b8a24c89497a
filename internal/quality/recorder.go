package quality

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// stageCounts tracks per-stage success and failure.
type stageCounts struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failure int64 `json:"failure"`
}

// Recorder tracks run outcomes across pipeline stages.
type Recorder struct {
	mu sync.Mutex

	totalOps   int64
	successOps int64
	failedOps  int64

	stages map[string]*stageCounts

	totalLatencyNs int64
	latencyCount   int64

	qualityTotal float64
	qualityCount int64

	startTime time.Time
	stateDir  string
}

// NewRecorder creates a recorder. An empty stateDir disables persistence.
func NewRecorder(stateDir string) *Recorder {
	return &Recorder{
		stages:    map[string]*stageCounts{},
		startTime: time.Now(),
		stateDir:  stateDir,
	}
}

// RecordStage records one stage outcome with its elapsed time.
func (r *Recorder) RecordStage(stage string, success bool, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalOps++
	if success {
		r.successOps++
	} else {
		r.failedOps++
	}

	sc, ok := r.stages[stage]
	if !ok {
		sc = &stageCounts{}
		r.stages[stage] = sc
	}
	sc.Total++
	if success {
		sc.Success++
	} else {
		sc.Failure++
	}

	if elapsed > 0 {
		r.totalLatencyNs += elapsed.Nanoseconds()
		r.latencyCount++
	}
}

// RecordQuality folds a content quality score into the running average.
func (r *Recorder) RecordQuality(m Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.qualityTotal += m.Score
	r.qualityCount++
}

// SuccessRate returns the overall success rate as a percentage.
func (r *Recorder) SuccessRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.totalOps == 0 {
		return 0
	}
	return float64(r.successOps) / float64(r.totalOps) * 100
}

// StageSuccessRate returns the success rate for one stage, with ok false
// when the stage was never recorded.
func (r *Recorder) StageSuccessRate(stage string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, found := r.stages[stage]
	if !found {
		return 0, false
	}
	if sc.Total == 0 {
		return 0, true
	}
	return float64(sc.Success) / float64(sc.Total) * 100, true
}

// Snapshot is a JSON-serializable metrics summary.
type Snapshot struct {
	SnapshotTimeMs int64 `json:"snapshot_time_ms"`
	UptimeSeconds  int64 `json:"uptime_seconds"`

	TotalOperations      int64   `json:"total_operations"`
	SuccessfulOperations int64   `json:"successful_operations"`
	FailedOperations     int64   `json:"failed_operations"`
	OverallSuccessRate   float64 `json:"overall_success_rate"`

	AverageContentQuality float64 `json:"average_content_quality"`
	AverageLatencyMs      float64 `json:"average_latency_ms"`

	Stages map[string]stageCounts `json:"stages"`
}

// Snapshot returns the current metrics summary.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rate float64
	if r.totalOps > 0 {
		rate = float64(r.successOps) / float64(r.totalOps) * 100
	}

	var avgQuality float64
	if r.qualityCount > 0 {
		avgQuality = r.qualityTotal / float64(r.qualityCount)
	}

	var avgLatency float64
	if r.latencyCount > 0 {
		avgLatency = float64(r.totalLatencyNs) / float64(r.latencyCount) / 1e6
	}

	stages := make(map[string]stageCounts, len(r.stages))
	for name, sc := range r.stages {
		stages[name] = *sc
	}

	return Snapshot{
		SnapshotTimeMs:        time.Now().UnixMilli(),
		UptimeSeconds:         int64(time.Since(r.startTime).Seconds()),
		TotalOperations:       r.totalOps,
		SuccessfulOperations:  r.successOps,
		FailedOperations:      r.failedOps,
		OverallSuccessRate:    rate,
		AverageContentQuality: avgQuality,
		AverageLatencyMs:      avgLatency,
		Stages:                stages,
	}
}

// StageNames returns the recorded stage names, sorted.
func (r *Recorder) StageNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save persists the snapshot to disk.
func (r *Recorder) Save() error {
	if r.stateDir == "" {
		return nil
	}

	path := filepath.Join(r.stateDir, "quality-metrics.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}
