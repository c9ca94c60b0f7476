// Package daemon wires the camera, the verification session and the HTTP surface together
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrCodeEU/livecheck/internal/audit"
	"github.com/MrCodeEU/livecheck/internal/camera"
	"github.com/MrCodeEU/livecheck/internal/config"
	"github.com/MrCodeEU/livecheck/internal/quality"
	"github.com/MrCodeEU/livecheck/internal/server"
	"github.com/MrCodeEU/livecheck/internal/session"
	"github.com/MrCodeEU/livecheck/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Deps overrides collaborators that are otherwise built from the configuration
type Deps struct {
	// Source replaces the V4L2 camera
	Source camera.Source
	// Segmenter replaces the inference service connection used for masks
	Segmenter models.Segmenter
	// Landmarks replaces the per-session inference connection
	Landmarks models.LandmarkOpener
	// Observers receive session events in addition to the audit log and server
	Observers []session.Observer
}

// Daemon owns every long-lived component of a running instance
type Daemon struct {
	cfg     *config.Config
	logger  *logrus.Logger
	source  camera.Source
	session *session.Session
	server  *server.Server
	store   *audit.Store
	client  *models.InferenceClient
}

// New builds the pipeline. Model connections are retried per the inference
// retry policy and fail with *models.InitError once exhausted.
func New(ctx context.Context, cfg *config.Config, deps Deps, logger *logrus.Logger) (d *Daemon, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d = &Daemon{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	timeout := time.Duration(cfg.Inference.Timeout) * time.Second

	segmenter := deps.Segmenter
	if segmenter == nil {
		d.client, err = models.Connect(ctx, cfg.Inference.Address, cfg.Inference.RetryPolicy, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect segmentation model: %w", err)
		}
		d.client.SetTimeout(timeout)
		segmenter = d.client
	}

	landmarks := deps.Landmarks
	if landmarks == nil {
		landmarks = models.Dialer{
			Address: cfg.Inference.Address,
			Policy:  cfg.Inference.RetryPolicy,
			Timeout: timeout,
			Logger:  logger,
		}
	}

	observers := append([]session.Observer(nil), deps.Observers...)

	if cfg.Storage.DatabasePath != "" {
		d.store, err = audit.NewStore(cfg.Storage.DatabasePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		observers = append(observers, d.store)
		logger.Infof("Recording verification history to %s", cfg.Storage.DatabasePath)
	}

	var onTick func(session.TickResult)
	if cfg.Server.Enabled {
		var history server.History
		if d.store != nil {
			history = d.store
		}
		d.server = server.New(cfg.Server, history, logger)
		observers = append(observers, d.server)
		onTick = d.server.OnTick
	}

	d.session, err = session.New(session.Options{
		Segmenter:  segmenter,
		Landmarks:  landmarks,
		Scorer:     quality.NewScorer(cfg.Quality),
		Params:     cfg.Compositor,
		Thresholds: cfg.Liveness,
		Observers:  observers,
		OnTick:     onTick,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if d.server != nil {
		d.server.Bind(d.session)
	}

	d.source = deps.Source
	if d.source == nil {
		d.source, err = camera.NewCamera(cfg.Camera, logger)
		if err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Session returns the verification session
func (d *Daemon) Session() *session.Session {
	return d.session
}

// Apply installs runtime-adjustable settings from a reloaded configuration.
// Device, inference and server settings require a restart.
func (d *Daemon) Apply(cfg *config.Config) {
	if err := d.session.SetParams(cfg.Compositor); err != nil {
		d.logger.Errorf("Failed to apply compositor settings: %v", err)
	}
	if err := d.session.SetThresholds(cfg.Liveness); err != nil {
		d.logger.Errorf("Failed to apply liveness thresholds: %v", err)
	}
	if cfg.Camera != d.cfg.Camera || cfg.Inference != d.cfg.Inference || cfg.Server != d.cfg.Server {
		d.logger.Warn("Camera, inference and server changes take effect after restart")
	}
}

// Run streams frames through the session until ctx is cancelled or a component fails
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start frame source: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := d.session.Run(ctx, d.source.Frames()); err != nil {
			return err
		}
		if ctx.Err() == nil {
			return errors.New("frame source stopped")
		}
		return nil
	})

	if d.server != nil {
		g.Go(func() error {
			return d.server.Start(ctx)
		})
	}

	err := g.Wait()
	d.logger.Info("Daemon shutting down...")
	return err
}

// Close releases every component
func (d *Daemon) Close() error {
	var errs []error
	if d.source != nil {
		errs = append(errs, d.source.Close())
	}
	if d.session != nil {
		errs = append(errs, d.session.Close())
	}
	if d.client != nil {
		errs = append(errs, d.client.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// Run runs the daemon until a shutdown signal. When configPath is set, SIGHUP
// and edits to the file reload adjustable settings.
func Run(parent context.Context, cfg *config.Config, configPath string, deps Deps, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	d, err := New(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Errorf("Failed to close daemon: %v", err)
		}
	}()

	reload := func() {
		if configPath == "" {
			logger.Warn("No config file to reload")
			return
		}
		newCfg, err := config.Load(configPath)
		if err != nil {
			logger.Errorf("Failed to reload config: %v", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			logger.Errorf("Invalid configuration on reload: %v", err)
			return
		}
		d.Apply(newCfg)
		logger.Info("Configuration reloaded successfully")
	}
	stopSignals := setupSignalHandling(logger, cancel, reload)
	defer stopSignals()

	if configPath != "" {
		if err := config.Watch(configPath, logger, d.Apply); err != nil {
			logger.Warnf("Config hot reload disabled: %v", err)
		}
	}

	logger.Info("Starting livecheck daemon...")
	return d.Run(ctx)
}

func setupSignalHandling(logger *logrus.Logger, cancel context.CancelFunc, reload func()) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigChan:
				switch sig {
				case syscall.SIGINT, syscall.SIGTERM:
					logger.Info("Received shutdown signal")
					cancel()
				case syscall.SIGHUP:
					logger.Info("Received reload signal (SIGHUP)")
					reload()
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
