package wakeword

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketsight/pocketsight/pkg/audioio"
)

// Activation is the discrete event raised when the wake phrase is heard.
type Activation struct {
	// Hotword is the matched phrase label.
	Hotword string

	// Confidence is the match score (threshold..1).
	Confidence float64

	// At is when the match occurred.
	At time.Time
}

// Listener runs the detector over a microphone source while armed.
//
// Arm acquires the microphone and starts scoring; on a positive match it
// emits exactly one Activation, stops consuming audio, and releases the
// device. Disarm does the same without a match. While disarmed no
// activation is ever emitted.
type Listener struct {
	det    *Detector
	src    audioio.Source
	logger *slog.Logger

	mu     sync.Mutex
	armed  bool
	cancel context.CancelFunc
	done   chan struct{}

	// activations persists across arm cycles so the orchestrator can
	// select on it once.
	activations chan Activation
}

// NewListener creates a listener over the given microphone source.
func NewListener(det *Detector, src audioio.Source, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		det:         det,
		src:         src,
		logger:      logger.With("component", "wakeword"),
		activations: make(chan Activation, 1),
	}
}

// Activations returns the channel on which activations are delivered.
func (l *Listener) Activations() <-chan Activation {
	return l.activations
}

// Armed reports whether the listener currently holds the microphone.
func (l *Listener) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.armed
}

// Arm acquires the microphone and begins listening for the wake phrase.
func (l *Listener) Arm(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.armed {
		return ErrAlreadyArmed
	}

	l.det.Reset()
	if err := l.src.Start(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.armed = true

	go l.listen(loopCtx, l.done)

	l.logger.Info("listening for wake phrase", "hotword", l.det.Hotword())
	return nil
}

// Disarm stops listening and fully releases the microphone.
// It is safe to call on a disarmed listener.
func (l *Listener) Disarm() error {
	l.mu.Lock()
	if !l.armed {
		l.mu.Unlock()
		return nil
	}
	l.armed = false
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	cancel()
	<-done

	return l.src.Stop()
}

// listen is the scoring loop. It runs until cancelled or a match occurs.
func (l *Listener) listen(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		chunk, err := l.src.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				l.logger.Error("wake-word capture failed", "error", err)
			}
			return
		}

		confidence, match := l.det.Feed(chunk.Samples)
		if !match {
			continue
		}

		l.logger.Info("wake phrase detected",
			"hotword", l.det.Hotword(),
			"confidence", confidence,
		)

		// Stop consuming before announcing, so the microphone is free
		// by the time the orchestrator reacts.
		l.mu.Lock()
		l.armed = false
		l.mu.Unlock()
		_ = l.src.Stop()

		select {
		case l.activations <- Activation{
			Hotword:    l.det.Hotword(),
			Confidence: confidence,
			At:         time.Now(),
		}:
		default:
			// An unconsumed activation is already pending.
		}
		return
	}
}
