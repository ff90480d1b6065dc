// Pocketsight - voice-activated vision assistant for the Raspberry Pi.
// Say the wake phrase, talk to the agent, and ask it to look at things:
// cash, groceries, medication packaging.
package main

import (
	"context"
	"errors"
	"flag"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketsight/pocketsight/internal/config"
	"github.com/pocketsight/pocketsight/internal/log"
	"github.com/pocketsight/pocketsight/pkg/assistant"
	"github.com/pocketsight/pocketsight/pkg/audioio"
	"github.com/pocketsight/pocketsight/pkg/camera"
	"github.com/pocketsight/pocketsight/pkg/conversation"
	"github.com/pocketsight/pocketsight/pkg/vision"
	"github.com/pocketsight/pocketsight/pkg/wakeword"
	"github.com/pocketsight/pocketsight/pkg/web"
)

func main() {
	cfg := parseFlags()

	if err := cfg.Validate(); err != nil {
		stdlog.Fatalf("Configuration error: %v", err)
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("pocketsight failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// One microphone source: the wake listener and the session pump share
	// it, handing ownership back and forth through the orchestrator.
	audioCfg := audioio.DefaultConfig()
	if cfg.AudioBackend != "" {
		audioCfg.Backend = audioio.Backend(cfg.AudioBackend)
	}
	audioCfg.Device = cfg.AudioDevice

	mic, err := audioio.NewSource(audioCfg, logger)
	if err != nil {
		return err
	}
	defer mic.Close()

	speaker, err := audioio.NewSink(audioCfg, logger)
	if err != nil {
		return err
	}
	defer speaker.Close()

	ref, err := wakeword.LoadReference(cfg.WakeWordRef)
	if err != nil {
		return err
	}
	detector := wakeword.NewDetector(ref, cfg.WakeWordThreshold)
	listener := wakeword.NewListener(detector, mic, logger)

	camCfg := camera.DefaultConfig()
	camCfg.Type = cfg.CameraType
	camCfg.USBIndex = cfg.USBCameraIndex
	camCfg.Python = cfg.PiCameraPython
	cam, err := camera.New(camCfg, logger)
	if err != nil {
		return err
	}
	defer cam.Close()

	if !cam.Available(ctx) {
		logger.Warn("camera not available, vision tools will report failures",
			"type", cfg.CameraType)
	}

	analyzer, err := vision.NewGemini(cfg.GoogleAPIKey, logger)
	if err != nil {
		return err
	}

	// Each session gets a fresh agent connection.
	newClient := func() (conversation.Client, error) {
		return conversation.NewElevenLabs(
			conversation.WithAPIKey(cfg.ElevenLabsKey),
			conversation.WithAgentID(cfg.ElevenLabsAgentID),
			conversation.WithLogger(logger),
		)
	}

	orch, err := assistant.New(assistant.Options{
		Listener:  listener,
		Mic:       mic,
		Speaker:   speaker,
		Camera:    cam,
		Analyzer:  analyzer,
		NewClient: newClient,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if cfg.DashboardPort != "" {
		srv := web.NewServer(cfg.DashboardPort, logger)
		srv.OnEndSession = orch.EndSession
		srv.OnSnapshot = cam.Capture
		srv.UpdateStatus(func(st *web.Status) {
			st.CameraAvailable = cam.Available(ctx)
			st.MicHolder = orch.MicHolder()
		})
		orch.OnEvent(func(ev assistant.Event) {
			if ev.Type == assistant.EventState {
				srv.UpdateStatus(func(st *web.Status) { st.MicHolder = orch.MicHolder() })
			}
			srv.HandleEvent(ev)
		})
		srv.StartAsync()
		defer srv.Shutdown()
	}

	return orch.Run(ctx)
}

// parseFlags parses command line flags and loads configuration.
func parseFlags() config.Config {
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	cameraType := flag.String("camera", "", "Camera backend: usb or pi (overrides CAMERA_TYPE)")
	dashboardPort := flag.String("dashboard-port", "", "Serve the operator dashboard on this port (overrides DASHBOARD_PORT)")
	envFile := flag.String("env-file", "", "Path to a .env file (default: ./.env if present)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		stdlog.Fatalf("Configuration error: %v", err)
	}

	if *debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if *cameraType != "" {
		cfg.CameraType = *cameraType
	}
	if *dashboardPort != "" {
		cfg.DashboardPort = *dashboardPort
	}
	return cfg
}
