// Package wakeword detects a trained wake phrase in microphone audio.
//
// Detection compares a rolling window of incoming audio against reference
// feature templates produced by the training pipeline. The listener owns the
// microphone only while armed and releases it fully when disarmed, so the
// device can be handed to a conversation session.
package wakeword

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Errors returned by the wakeword package.
var (
	// ErrNoReference indicates the reference file is missing or empty.
	// This is a startup-fatal configuration error: without a trained
	// reference the detector must not degrade silently.
	ErrNoReference = errors.New("wakeword: no trained reference")

	// ErrAlreadyArmed indicates Arm was called on an armed listener.
	ErrAlreadyArmed = errors.New("wakeword: listener already armed")

	// ErrNotArmed indicates the listener is not armed.
	ErrNotArmed = errors.New("wakeword: listener not armed")
)

// Reference holds the trained acoustic templates for one wake phrase.
type Reference struct {
	// Hotword is the label of the trained phrase (e.g., "hey_pi").
	Hotword string `json:"hotword"`

	// SampleRate the templates were trained at.
	SampleRate int `json:"sample_rate"`

	// Templates are unit-normalized feature vectors, one per training
	// utterance. See Features for the extraction.
	Templates [][]float64 `json:"templates"`
}

// LoadReference reads a trained reference file.
// A missing file or a reference with no templates fails fast.
func LoadReference(path string) (*Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (run the training pipeline first)", ErrNoReference, path)
		}
		return nil, fmt.Errorf("wakeword: read reference: %w", err)
	}

	var ref Reference
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("wakeword: parse reference %s: %w", path, err)
	}

	if len(ref.Templates) == 0 {
		return nil, fmt.Errorf("%w: %s has no templates", ErrNoReference, path)
	}
	for i, tpl := range ref.Templates {
		if len(tpl) != FeatureDim {
			return nil, fmt.Errorf("wakeword: template %d has %d features, want %d", i, len(tpl), FeatureDim)
		}
	}
	if ref.SampleRate == 0 {
		ref.SampleRate = 16000
	}

	return &ref, nil
}

// FeatureDim is the number of log-energy envelope bands per window.
const FeatureDim = 64

// Features extracts a unit-normalized log-energy envelope from one audio
// window. The window is split into FeatureDim equal frames; each frame
// contributes its log RMS energy. The same extraction is used for training
// and detection.
func Features(samples []int16) []float64 {
	feat := make([]float64, FeatureDim)
	if len(samples) < FeatureDim {
		return feat
	}

	frame := len(samples) / FeatureDim
	for i := 0; i < FeatureDim; i++ {
		var energy float64
		for _, s := range samples[i*frame : (i+1)*frame] {
			v := float64(s) / 32768.0
			energy += v * v
		}
		rms := math.Sqrt(energy / float64(frame))
		feat[i] = math.Log1p(rms * 100)
	}

	normalize(feat)
	return feat
}

// normalize scales a vector to unit length in place.
func normalize(v []float64) {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

// cosine returns the cosine similarity of two unit vectors.
func cosine(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
