package config

import (
	"os"
	"path/filepath"

	"EchoFM/logger"

	"github.com/fsnotify/fsnotify"
)

// WatchTuning 监听 .env 文件变化并热更新播放调优参数。
// 变更后的参数通过 onChange 回调通知编排层，返回停止函数。
func WatchTuning(envPath string, onChange func(PlaybackTuning)) (func(), error) {
	if envPath == "" {
		envPath = ".env"
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// 监听目录而不是文件本身，编辑器保存时往往是 rename+create
	dir := filepath.Dir(envPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(envPath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if _, err := os.Stat(envPath); err != nil {
					continue
				}
				tuning := ReloadTuning()
				logger.Info("播放调优参数已热更新",
					logger.Duration("clockInterval", tuning.ClockInterval),
					logger.Float64("dampingThreshold", tuning.DampingThreshold))
				if onChange != nil {
					onChange(tuning)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("配置文件监听错误", logger.ErrorField(err))
			}
		}
	}()

	stop := func() {
		close(done)
		watcher.Close()
	}
	return stop, nil
}
