package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch reloads the config file at path whenever it changes on disk and passes
// each valid result to onChange. Invalid edits are logged and ignored.
func Watch(path string, logger *logrus.Logger, onChange func(*Config)) error {
	if path == "" {
		return fmt.Errorf("config watch requires an explicit file path")
	}

	_, v, err := load(path)
	if err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := DefaultConfig()
		if err := v.Unmarshal(cfg); err != nil {
			logger.Warnf("Failed to decode changed config %s: %v", e.Name, err)
			return
		}
		if err := cfg.Validate(); err != nil {
			logger.Warnf("Ignoring invalid config change in %s: %v", e.Name, err)
			return
		}
		logger.Infof("Configuration reloaded from %s", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()

	logger.Debugf("Watching %s for changes", path)
	return nil
}
