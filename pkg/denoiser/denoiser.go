// Package denoiser implements the frame-aligned noise-reduction processor
// (spec.md §4.4). It adapts any (channels, sample_rate, frame_size) input
// to the model's fixed 480-samples/48kHz/mono/int16 contract and back,
// queueing samples per channel exactly like the teacher's
// NoiseSuppressionStream queued bytes between a reader and a fixed-size
// model chunk — reused here via the same github.com/iamcalledrob/circular
// library, retargeted from a byte stream to Denoiser's own per-channel
// sample accounting (see sampleQueue in queue.go).
package denoiser

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/quietaudio/quiet/pkg/audioframe"
	"github.com/quietaudio/quiet/pkg/events"
)

const maxChannels = 2

// queueCapacityFrames bounds each per-channel circular buffer; it must
// comfortably outrun one host callback's worth of samples plus one model
// frame of residue.
const queueCapacityFrames = 8

type channelState struct {
	model    Model
	inQueue  *sampleQueue
	outQueue *sampleQueue

	scratch     [FrameSize]float64
	resampled   [FrameSize]float64
	pcm         [FrameSize]int16
	outFloat    [FrameSize]float64
	outResample [FrameSize]float64
	outSamples  [FrameSize]float32
}

// Denoiser is the frame-aligned noise-reduction processor. The zero value
// is not usable; construct with New and call Init before Process.
type Denoiser struct {
	bus *events.Bus

	mu  sync.Mutex
	cfg Config

	sampleRate    int
	ratio         float64
	needsResample bool

	channels [maxChannels]*channelState

	stats *statsTracker

	initialized bool
}

// New constructs a Denoiser that publishes its lifecycle/config events on
// bus. bus may be nil in tests that don't care about events.
func New(bus *events.Bus) *Denoiser {
	return &Denoiser{bus: bus, cfg: DefaultConfig(), stats: newStatsTracker()}
}

// Init allocates one Model instance per stereo channel (2 total; the mono
// path uses only channels[0]) plus each channel's input/output sample
// queues, and fixes the resample ratio for sampleRate. A per-channel
// model-init failure is aggregated via go-multierror and fails Init
// outright — there is no partially-initialized Denoiser.
func (d *Denoiser) Init(ctx context.Context, sampleRate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}

	var mErr *multierror.Error
	var channels [maxChannels]*channelState
	for ch := 0; ch < maxChannels; ch++ {
		model, err := NewModel()
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("channel %d: %w", ch, err))
			continue
		}
		channels[ch] = &channelState{
			model:    model,
			inQueue:  newSampleQueue(queueCapacityFrames),
			outQueue: newSampleQueue(queueCapacityFrames),
		}
	}
	if mErr != nil {
		err := fmt.Errorf("denoiser: model init failed: %w", mErr)
		if d.bus != nil {
			d.bus.Publish(events.Fatal, events.FatalPayload{Message: err.Error()})
		}
		return err
	}

	d.channels = channels
	d.sampleRate = sampleRate
	d.ratio = float64(ModelSampleRate) / float64(sampleRate)
	d.needsResample = sampleRate != ModelSampleRate
	d.initialized = true
	return nil
}

// Shutdown releases model instances. Idempotent.
func (d *Denoiser) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil
	}
	var mErr *multierror.Error
	for _, ch := range d.channels {
		if ch == nil {
			continue
		}
		if err := ch.model.Close(); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	d.channels = [maxChannels]*channelState{}
	d.initialized = false
	if mErr != nil {
		return mErr
	}
	return nil
}

// SetConfig replaces the live configuration and publishes
// events.NoiseReductionChanged.
func (d *Denoiser) SetConfig(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	if d.bus != nil {
		d.bus.Publish(events.NoiseReductionChanged, cfg)
	}
}

// GetConfig returns a snapshot of the current configuration.
func (d *Denoiser) GetConfig() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Stats returns a snapshot of the processing counters.
func (d *Denoiser) Stats() Stats { return d.stats.snapshot() }

// ResetStats zeroes the counters.
func (d *Denoiser) ResetStats() { d.stats.reset() }

// Process denoises frame in place. If the config is disabled, frame is
// left untouched. A nil or empty frame is an error without touching any
// state (spec.md §4.4 failure semantics).
func (d *Denoiser) Process(frame *audioframe.Frame) error {
	if frame == nil || frame.IsEmpty() {
		return fmt.Errorf("denoiser: empty frame")
	}

	cfg := d.GetConfig()
	if !cfg.Enabled {
		return nil
	}

	d.mu.Lock()
	initialized := d.initialized
	ratio := d.ratio
	needsResample := d.needsResample
	channels := d.channels
	d.mu.Unlock()
	if !initialized {
		return fmt.Errorf("denoiser: not initialized")
	}

	start := time.Now()

	activeChannels := frame.Channels()
	if activeChannels > maxChannels {
		activeChannels = maxChannels
	}

	var lastVAD, lastReductionDB float64
	for ch := 0; ch < activeChannels; ch++ {
		vad, reductionDB := d.processChannel(channels[ch], frame, ch, ratio, needsResample, cfg)
		lastVAD, lastReductionDB = vad, reductionDB
	}

	d.stats.record(time.Since(start).Microseconds(), lastReductionDB, lastVAD)
	return nil
}

func (d *Denoiser) processChannel(st *channelState, frame *audioframe.Frame, ch int, ratio float64, needsResample bool, cfg Config) (vad, reductionDB float64) {
	samples := frame.Channel(ch)
	st.inQueue.push(samples)

	for st.inQueue.len() >= FrameSize {
		var chunk [FrameSize]float32
		st.inQueue.popInto(chunk[:])
		for i, v := range chunk {
			st.scratch[i] = float64(v)
		}

		working := st.scratch[:]
		if needsResample {
			linearResample(st.scratch[:], 1/ratio, st.resampled[:])
			working = st.resampled[:]
		}

		preRMS := rms(working)

		for i, v := range working {
			st.pcm[i] = floatToInt16(v)
		}

		out, p, err := st.model.Process(st.pcm[:])
		if err != nil {
			// A single bad frame must not wedge the queue or crash the
			// audio thread; drop it and move on (spec.md §7 propagation
			// policy: the audio thread never propagates errors upward).
			continue
		}
		vad = p

		for i, s := range out {
			st.outFloat[i] = float64(s) / 32768
		}
		applyStrengthShaping(st.outFloat[:], p, cfg)

		finalOut := st.outFloat[:]
		if needsResample {
			linearResample(st.outFloat[:], ratio, st.outResample[:])
			finalOut = st.outResample[:]
		}

		postRMS := rms(finalOut)
		reductionDB = reductionDBFromRMS(preRMS, postRMS)

		for i, v := range finalOut {
			st.outSamples[i] = float32(v)
		}
		st.outQueue.push(st.outSamples[:])
	}

	n := len(samples)
	drained := st.outQueue.popInto(samples[:n])
	for i := drained; i < n; i++ {
		samples[i] = 0
	}
	return vad, reductionDB
}

// applyStrengthShaping implements spec.md §4.4's strength-shaping stage:
// base attenuation by strength, adaptively reduced by p*0.5 on frames whose
// VAD probability is above the threshold, and a post-model multiplier
// applied only on frames whose VAD probability is below the threshold.
func applyStrengthShaping(samples []float64, p float64, cfg Config) {
	factor := cfg.Strength.baseFactor()
	if cfg.Adaptive && p > cfg.VADThreshold {
		factor -= p * 0.5
		if factor < 0 {
			factor = 0
		}
	}
	if p < cfg.VADThreshold {
		mult := 1 - 0.3*factor
		for i := range samples {
			samples[i] *= mult
		}
	}
}

func rms(samples []float64) float64 {
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func reductionDBFromRMS(pre, post float64) float64 {
	if post <= 1e-9 || pre <= 1e-9 {
		return 0
	}
	db := 20 * math.Log10(pre/post)
	if db < 0 {
		return 0
	}
	return db
}
