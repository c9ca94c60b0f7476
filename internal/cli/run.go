package cli

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/MrCodeEU/livecheck/internal/camera"
	"github.com/MrCodeEU/livecheck/internal/daemon"
	"github.com/spf13/cobra"
)

func newRunCommand(opts *options) *cobra.Command {
	var stillPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the camera pipeline and serve the verification API",
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

			var deps daemon.Deps
			if stillPath != "" {
				if deps.Source, err = openStill(stillPath, cfg.Camera.FPS); err != nil {
					return err
				}
			}

			return daemon.Run(cmd.Context(), cfg, opts.configPath, deps, logger)
		},
	}
	cmd.Flags().StringVar(&stillPath, "image", "", "Replay a still image instead of opening the camera")
	return cmd
}

// openStill builds a frame source replaying the image at path
func openStill(path string, fps int) (camera.Source, error) {
	img, err := decodeImageFile(path)
	if err != nil {
		return nil, err
	}
	return camera.NewStill(img, fps)
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
