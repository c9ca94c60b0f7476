package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/MrCodeEU/livecheck/internal/daemon"
	"github.com/MrCodeEU/livecheck/internal/liveness"
	"github.com/MrCodeEU/livecheck/internal/session"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newVerifyCommand(opts *options) *cobra.Command {
	var (
		stillPath string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run one interactive verification in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfiguration()
			if err != nil {
				return err
			}
			logger, closer, err := opts.newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			// The progress bar owns the terminal
			if !opts.verbose {
				logger.SetOutput(io.Discard)
			}
			cfg.Server.Enabled = false

			progress := newProgress(os.Stderr)
			deps := daemon.Deps{Observers: []session.Observer{progress}}
			if stillPath != "" {
				if deps.Source, err = openStill(stillPath, cfg.Camera.FPS); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			d, err := daemon.New(ctx, cfg, deps, logger)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			runErr := make(chan error, 1)
			go func() { runErr <- d.Run(ctx) }()

			fmt.Fprintln(os.Stderr, "Look at the camera and follow the prompts:")
			for _, c := range liveness.Catalog() {
				fmt.Fprintf(os.Stderr, "  - %s\n", c.Label)
			}

			if _, err := d.Session().Start(ctx); err != nil {
				return err
			}

			running := true
			select {
			case <-progress.done:
			case <-ctx.Done():
			case err := <-runErr:
				running = false
				if err != nil {
					return err
				}
			}

			verified := d.Session().Snapshot().IsAllVerified
			if err := d.Session().Stop(); err != nil && !errors.Is(err, session.ErrNotVerifying) {
				return err
			}
			cancel()
			if running {
				<-runErr
			}

			if !verified {
				return fmt.Errorf("verification incomplete: %d/%d challenges", progress.count(), liveness.NumChallenges)
			}
			fmt.Fprintln(os.Stderr, "\nVerified: all challenges completed")
			return nil
		},
	}
	cmd.Flags().StringVar(&stillPath, "image", "", "Replay a still image instead of opening the camera")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up after this long")
	return cmd
}

// progress renders challenge completions as a progress bar
type progress struct {
	mu        sync.Mutex
	bar       *progressbar.ProgressBar
	completed int
	done      chan struct{}
}

func newProgress(w io.Writer) *progress {
	return &progress{
		bar: progressbar.NewOptions(liveness.NumChallenges,
			progressbar.OptionSetDescription("Liveness"),
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
		),
		done: make(chan struct{}),
	}
}

func (p *progress) SessionStarted(string, time.Time) {}

func (p *progress) ChallengeCompleted(ev session.CaptureEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completed++
	p.bar.Describe(ev.Label)
	_ = p.bar.Add(1)
	if p.completed == liveness.NumChallenges {
		_ = p.bar.Finish()
		close(p.done)
	}
}

func (p *progress) SessionStopped(string, time.Time, bool) {}

func (p *progress) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}
