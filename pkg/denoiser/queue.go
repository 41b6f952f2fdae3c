package denoiser

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/iamcalledrob/circular"
)

const bytesPerFloat = 4

// sampleQueue is a per-channel float32 sample queue backed by
// github.com/iamcalledrob/circular, the same buffer the teacher's
// NoiseSuppressionStream used to decouple a byte reader from a fixed-size
// model chunk. circular.Buffer only exposes Read/Write, not a length
// query, so pending tracks the sample count directly rather than
// recomputing it from the buffer each call. The byte scratch buffer is
// preallocated at construction and reused on every push/popInto so that
// Process, which calls both per channel, never allocates.
type sampleQueue struct {
	buf     *circular.Buffer
	pending int
	scratch []byte
}

func newSampleQueue(capacityFrames int) *sampleQueue {
	capacityBytes := capacityFrames * FrameSize * bytesPerFloat
	return &sampleQueue{
		buf:     circular.NewBuffer(capacityBytes),
		scratch: make([]byte, capacityBytes),
	}
}

// growScratch ensures the reusable byte scratch buffer can hold n bytes.
// Only a pathologically large host callback buffer (more than
// queueCapacityFrames worth of samples in one call) ever triggers the
// allocation here; steady-state callback sizes hit the preallocated path.
func (q *sampleQueue) growScratch(n int) []byte {
	if cap(q.scratch) < n {
		q.scratch = make([]byte, n)
	}
	return q.scratch[:n]
}

// push appends samples to the queue. ErrNoSpace from an overrun callback
// is dropped rather than propagated: a queue overrun means the caller is
// feeding samples faster than Process drains them, which is a caller
// misconfiguration, not a per-frame error worth failing audio over.
func (q *sampleQueue) push(samples []float32) {
	raw := q.growScratch(len(samples) * bytesPerFloat)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*bytesPerFloat:], math.Float32bits(s))
	}
	n, err := q.buf.Write(raw)
	q.pending += n / bytesPerFloat
	_ = err // circular.ErrNoSpace on overrun; samples beyond n are dropped
}

// popInto drains up to len(dst) samples, returning how many were written.
func (q *sampleQueue) popInto(dst []float32) int {
	if q.pending == 0 {
		return 0
	}
	raw := q.growScratch(len(dst) * bytesPerFloat)
	n, err := q.buf.Read(raw)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0
	}
	count := n / bytesPerFloat
	for i := 0; i < count; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*bytesPerFloat:]))
	}
	q.pending -= count
	return count
}

// len reports the number of complete samples currently queued.
func (q *sampleQueue) len() int { return q.pending }
