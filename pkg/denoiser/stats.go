package denoiser

import "sync"

// vadHistoryLen bounds the rolling voice-activity history (spec.md §3,
// DenoiserStats "rolling VAD history").
const vadHistoryLen = 50

// emaAlpha smooths the processing-time and reduction-dB EMAs.
const emaAlpha = 0.1

// Stats is a point-in-time snapshot of Denoiser's counters. Safe to copy.
type Stats struct {
	FramesProcessed       uint64
	ProcessingMicrosTotal uint64
	EMAProcessingMicros   float64
	LastReductionDB       float64
	EMAReductionDB        float64
	LastVoiceProbability  float64
	VADHistory            []float64
}

type statsTracker struct {
	mu         sync.Mutex
	stats      Stats
	historyPos int
}

func newStatsTracker() *statsTracker {
	return &statsTracker{stats: Stats{VADHistory: make([]float64, 0, vadHistoryLen)}}
}

func (t *statsTracker) record(processingMicros int64, reductionDB, voiceProbability float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.FramesProcessed++
	t.stats.ProcessingMicrosTotal += uint64(processingMicros)
	if t.stats.FramesProcessed == 1 {
		t.stats.EMAProcessingMicros = float64(processingMicros)
		t.stats.EMAReductionDB = reductionDB
	} else {
		t.stats.EMAProcessingMicros = emaAlpha*float64(processingMicros) + (1-emaAlpha)*t.stats.EMAProcessingMicros
		t.stats.EMAReductionDB = emaAlpha*reductionDB + (1-emaAlpha)*t.stats.EMAReductionDB
	}
	t.stats.LastReductionDB = reductionDB
	t.stats.LastVoiceProbability = voiceProbability

	if len(t.stats.VADHistory) < vadHistoryLen {
		t.stats.VADHistory = append(t.stats.VADHistory, voiceProbability)
	} else {
		t.stats.VADHistory[t.historyPos] = voiceProbability
		t.historyPos = (t.historyPos + 1) % vadHistoryLen
	}
}

func (t *statsTracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.VADHistory = append([]float64(nil), t.stats.VADHistory...)
	return s
}

func (t *statsTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Stats{VADHistory: make([]float64, 0, vadHistoryLen)}
	t.historyPos = 0
}
