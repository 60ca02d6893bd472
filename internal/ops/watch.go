package ops

import (
	"context"
	"os"
	"time"

	"github.com/yanun0323/logs"
)

const defaultWatchInterval = 5 * time.Second

// Watch polls the config file and invokes onChange with the freshly
// resolved configuration whenever its modification time moves. A file
// that fails to load keeps the previous configuration in effect.
func Watch(ctx context.Context, path string, interval time.Duration, onChange func(Loaded)) {
	if interval <= 0 {
		interval = defaultWatchInterval
	}

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			logs.Warnf("config watch stat %s: %+v", path, err)
			continue
		}
		if !info.ModTime().After(lastMod) {
			continue
		}
		lastMod = info.ModTime()

		loaded, err := Load(path)
		if err != nil {
			logs.Errorf("config reload %s failed, keeping previous: %+v", path, err)
			continue
		}
		logs.Infof("config reloaded from %s", path)
		onChange(loaded)
	}
}
