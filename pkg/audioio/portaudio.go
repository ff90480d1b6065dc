package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudio keeps a process-wide initialization refcount: the library must be
// initialized before any stream is opened and terminated after the last one
// is closed.
var (
	paMu   sync.Mutex
	paRefs int
)

func paAcquire() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("audioio: portaudio init: %w", err)
		}
	}
	paRefs++
	return nil
}

func paRelease() {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		return
	}
	paRefs--
	if paRefs == 0 {
		_ = portaudio.Terminate()
	}
}

// PortAudioSource captures microphone audio via PortAudio.
// The device is held exclusively between Start and Stop.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	stream   *portaudio.Stream
	buf      []int16
	streamCh chan AudioChunk
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewPortAudioSource creates a new PortAudio microphone source.
func NewPortAudioSource(cfg Config, logger *slog.Logger) *PortAudioSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.portaudio"),
	}
}

// Start acquires the microphone and begins capture.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	if err := paAcquire(); err != nil {
		return err
	}

	buf := make([]int16, s.cfg.BufferSize()*s.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(s.cfg.Channels, 0, float64(s.cfg.SampleRate), len(buf), buf)
	if err != nil {
		paRelease()
		return fmt.Errorf("audioio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		paRelease()
		return fmt.Errorf("audioio: start input stream: %w", err)
	}

	s.stream = stream
	s.buf = buf
	s.running = true
	s.streamCh = make(chan AudioChunk, 10)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.captureLoop(ctx)

	s.logger.Info("microphone opened",
		"sample_rate", s.cfg.SampleRate,
		"buffer_ms", s.cfg.BufferDuration.Milliseconds(),
	)

	return nil
}

func (s *PortAudioSource) captureLoop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			// Abort during Stop surfaces here as a read error.
			select {
			case <-s.stopCh:
			default:
				s.logger.Error("microphone read failed", "error", err)
			}
			return
		}

		samples := make([]int16, len(s.buf))
		copy(samples, s.buf)

		chunk := AudioChunk{
			Samples:    samples,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
		}

		select {
		case s.streamCh <- chunk:
		default:
			s.logger.Debug("capture buffer full, dropping chunk")
		}
	}
}

// Stop halts capture and fully releases the microphone.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stream := s.stream
	s.stream = nil
	close(s.stopCh)
	s.mu.Unlock()

	// Unblock a pending Read, wait for the loop, then release the device.
	_ = stream.Abort()
	<-s.doneCh
	_ = stream.Close()
	paRelease()

	close(s.streamCh)
	s.logger.Info("microphone released")

	return nil
}

// Read reads the next audio chunk.
func (s *PortAudioSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()

	if ch == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (s *PortAudioSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *PortAudioSource) Config() Config {
	return s.cfg
}

// Name returns "portaudio".
func (s *PortAudioSource) Name() string {
	return "portaudio"
}

// Close releases resources.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// PortAudioSink plays audio via PortAudio.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	stream  *portaudio.Stream
	buf     []int16
}

// NewPortAudioSink creates a new PortAudio speaker sink.
func NewPortAudioSink(cfg Config, logger *slog.Logger) *PortAudioSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.portaudio"),
	}
}

// Start acquires the output device.
func (k *PortAudioSink) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return io.ErrClosedPipe
	}
	if k.running {
		return nil
	}

	if err := paAcquire(); err != nil {
		return err
	}

	buf := make([]int16, k.cfg.BufferSize()*k.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(0, k.cfg.Channels, float64(k.cfg.SampleRate), len(buf), buf)
	if err != nil {
		paRelease()
		return fmt.Errorf("audioio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		paRelease()
		return fmt.Errorf("audioio: start output stream: %w", err)
	}

	k.stream = stream
	k.buf = buf
	k.running = true

	k.logger.Info("speaker opened", "sample_rate", k.cfg.SampleRate)

	return nil
}

// Write plays an audio chunk, blocking until it is handed to the device.
func (k *PortAudioSink) Write(ctx context.Context, chunk AudioChunk) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.running {
		return io.ErrClosedPipe
	}

	samples := chunk.Samples
	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy(k.buf, samples)
		samples = samples[n:]
		// Zero-pad the final partial buffer.
		for i := n; i < len(k.buf); i++ {
			k.buf[i] = 0
		}

		if err := k.stream.Write(); err != nil {
			return fmt.Errorf("audioio: write output: %w", err)
		}
	}

	return nil
}

// Clear discards pending output. PortAudio buffers per-write, so aborting
// the stream and restarting it drops anything the device still holds.
func (k *PortAudioSink) Clear() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.running {
		return nil
	}
	if err := k.stream.Abort(); err != nil {
		return err
	}
	return k.stream.Start()
}

// Stop halts playback and releases the device.
func (k *PortAudioSink) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.running {
		return nil
	}
	k.running = false

	_ = k.stream.Stop()
	_ = k.stream.Close()
	k.stream = nil
	paRelease()

	k.logger.Info("speaker released")

	return nil
}

// Config returns the audio configuration.
func (k *PortAudioSink) Config() Config {
	return k.cfg
}

// Name returns "portaudio".
func (k *PortAudioSink) Name() string {
	return "portaudio"
}

// Close releases resources.
func (k *PortAudioSink) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	return k.Stop()
}

var (
	_ Source = (*PortAudioSource)(nil)
	_ Sink   = (*PortAudioSink)(nil)
)
