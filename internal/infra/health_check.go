package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

var checkExecInterval = 5 * time.Second

// MonitorExecutable signals once when the running binary is replaced on
// disk. The channel is closed when ctx is done or the binary cannot be
// watched.
func MonitorExecutable(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)

		logger := log.WithField("object", "MonitorExecutable")
		path, err := os.Executable()
		if err != nil {
			logger.WithField("error", err.Error()).Warn("cant resolve executable path")
			return
		}
		logger = logger.WithField("path", path)
		modTime, err := executableModTime(path)
		if err != nil {
			logger.WithField("error", err.Error()).Warn("cant stat executable")
			return
		}
		logger.Debug("watching executable")

		ticker := time.NewTicker(checkExecInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := executableModTime(path)
				if err != nil {
					logger.WithField("error", err.Error()).Debug("cant stat executable on tick")
					continue
				}
				if !current.Equal(modTime) {
					logger.Info("executable changed")
					ch <- struct{}{}
					return
				}
			}
		}
	}()
	return ch
}

func executableModTime(path string) (time.Time, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return stat.ModTime(), nil
}
