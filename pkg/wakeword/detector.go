package wakeword

import (
	"time"
)

// Detection parameters, matching the trained window geometry.
const (
	// windowSeconds is the length of audio scored at once.
	windowSeconds = 1.5

	// hopSeconds is how far the window advances between scores. A fine
	// hop keeps detection latency bounded and alignment-insensitive.
	hopSeconds = 0.05

	// defaultRelaxation suppresses repeat matches after a positive one.
	defaultRelaxation = 2 * time.Second

	// silenceFloor is the minimum mean absolute amplitude (PCM16) for a
	// window to be scored at all. Quiet rooms never match.
	silenceFloor = 90.0
)

// Detector scores a rolling window of audio against reference templates.
// It is not safe for concurrent use; the Listener drives it from one goroutine.
type Detector struct {
	ref        *Reference
	threshold  float64
	relaxation time.Duration

	windowSize int
	hopSize    int
	buf        []int16

	lastMatch time.Time
	now       func() time.Time
}

// NewDetector creates a detector for the given trained reference.
func NewDetector(ref *Reference, threshold float64) *Detector {
	window := int(windowSeconds * float64(ref.SampleRate))
	hop := int(hopSeconds * float64(ref.SampleRate))

	return &Detector{
		ref:        ref,
		threshold:  threshold,
		relaxation: defaultRelaxation,
		windowSize: window,
		hopSize:    hop,
		buf:        make([]int16, 0, window*2),
		now:        time.Now,
	}
}

// Hotword returns the label of the trained phrase.
func (d *Detector) Hotword() string {
	return d.ref.Hotword
}

// Feed appends captured samples and scores every complete window.
// It returns the best confidence seen and whether any window matched.
func (d *Detector) Feed(samples []int16) (confidence float64, match bool) {
	d.buf = append(d.buf, samples...)

	for len(d.buf) >= d.windowSize {
		score, ok := d.score(d.buf[:d.windowSize])
		if score > confidence {
			confidence = score
		}
		if ok {
			match = true
			d.lastMatch = d.now()
			// Discard the matched audio so it cannot re-trigger.
			d.buf = d.buf[:0]
			return confidence, true
		}
		d.buf = d.buf[d.hopSize:]
	}

	return confidence, false
}

// Reset discards buffered audio. Call when re-arming after a session.
func (d *Detector) Reset() {
	d.buf = d.buf[:0]
}

// score compares one window against all templates.
func (d *Detector) score(window []int16) (float64, bool) {
	// Relaxation window after a match.
	if !d.lastMatch.IsZero() && d.now().Sub(d.lastMatch) < d.relaxation {
		return 0, false
	}

	if meanAbs(window) < silenceFloor {
		return 0, false
	}

	feat := Features(window)

	var best float64
	for _, tpl := range d.ref.Templates {
		if s := cosine(feat, tpl); s > best {
			best = s
		}
	}

	return best, best >= d.threshold
}

func meanAbs(samples []int16) float64 {
	var sum float64
	for _, s := range samples {
		if s < 0 {
			sum -= float64(s)
		} else {
			sum += float64(s)
		}
	}
	return sum / float64(len(samples))
}
