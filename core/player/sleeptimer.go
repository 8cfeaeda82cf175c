package player

import (
	"context"
	"sync"
	"time"

	"EchoFM/logger"
	"EchoFM/model"
)

// PlaylistSnapshot 睡眠定时器消费的不可变播放列表快照。
// 定时器不直接改动播放状态，停止只通过控制器入口请求。
type PlaylistSnapshot struct {
	Index  int
	Length int
	Mode   model.PlayMode
}

// SleepTimer 睡眠定时器：三种模式的独立状态机。
// elapsed 到点停、song-count 播完N首停、playlist-end 播完列表停。
// 状态持久化，重启后恢复；恢复出的过期 elapsed 在下一次检查立即触发。
type SleepTimer struct {
	store Store
	// 触发停止时回调控制器，附带用户可见的原因
	requestStop func(reason string)

	mu    sync.Mutex
	state model.SleepTimerState

	tickInterval func() time.Duration
	now          func() time.Time

	running  bool
	stopChan chan struct{}
}

// NewSleepTimer 创建睡眠定时器
func NewSleepTimer(store Store, tick func() time.Duration, requestStop func(reason string)) *SleepTimer {
	return &SleepTimer{
		store:        store,
		requestStop:  requestStop,
		tickInterval: tick,
		now:          time.Now,
		state:        model.SleepTimerState{Mode: model.SleepNone},
	}
}

// Restore 从持久化存储恢复定时器状态
func (s *SleepTimer) Restore(ctx context.Context) {
	if s.store == nil {
		return
	}
	state, err := s.store.LoadSleepTimer(ctx)
	if err != nil {
		logger.Warn("恢复睡眠定时器状态失败", logger.ErrorField(err))
		return
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	if state.Armed() {
		logger.Info("睡眠定时器已恢复", logger.String("mode", string(state.Mode)))
	}
}

// Start 启动周期检查循环
func (s *SleepTimer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	go s.loop(s.stopChan)
}

// Stop 停止检查循环，幂等
func (s *SleepTimer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
}

func (s *SleepTimer) loop(stop chan struct{}) {
	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// SetElapsed 定时N分钟后停止
func (s *SleepTimer) SetElapsed(d time.Duration) {
	s.set(model.SleepTimerState{
		Mode:  model.SleepElapsed,
		EndAt: s.now().Add(d),
	})
}

// SetSongCount 播完K首后停止，以当前播放位置为锚点
func (s *SleepTimer) SetSongCount(k int) {
	if k < 1 {
		k = 1
	}
	s.set(model.SleepTimerState{
		Mode:      model.SleepSongCount,
		Remaining: k,
	})
}

// SetPlaylistEnd 播完整个列表后停止。
// 检测到当前曲目是非循环列表的最后一首时转换为 song-count(1)；
// 设置时就已在末尾则立即转换，不会多播一首
func (s *SleepTimer) SetPlaylistEnd(snap PlaylistSnapshot) {
	if atListEnd(snap) {
		s.set(model.SleepTimerState{Mode: model.SleepSongCount, Remaining: 1})
		logger.Info("设置时已在列表末尾，睡眠定时器按播完本曲停止")
		return
	}
	s.set(model.SleepTimerState{Mode: model.SleepPlaylistEnd})
}

// atListEnd 当前曲目是否为非循环列表的最后一首
func atListEnd(snap PlaylistSnapshot) bool {
	return snap.Mode != model.ModeRepeatOne && snap.Length > 0 && snap.Index == snap.Length-1
}

// Cancel 取消定时器，任何时候可用
func (s *SleepTimer) Cancel() {
	s.set(model.SleepTimerState{Mode: model.SleepNone})
	if s.store != nil {
		if err := s.store.ClearSleepTimer(context.Background()); err != nil {
			logger.Warn("清除睡眠定时器状态失败", logger.ErrorField(err))
		}
	}
}

// State 返回当前状态
func (s *SleepTimer) State() model.SleepTimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SleepTimer) set(state model.SleepTimerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.persist(state)
	logger.Info("睡眠定时器已更新", logger.String("mode", string(state.Mode)))
}

func (s *SleepTimer) persist(state model.SleepTimerState) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSleepTimer(context.Background(), state); err != nil {
		logger.Warn("保存睡眠定时器状态失败", logger.ErrorField(err))
	}
}

// Tick 周期检查：elapsed 模式到点即触发。
// 恢复出的 EndAt 已过期时同样在这里立即触发，而不是当作错误。
func (s *SleepTimer) Tick() {
	s.mu.Lock()
	if s.state.Mode != model.SleepElapsed || s.now().Before(s.state.EndAt) {
		s.mu.Unlock()
		return
	}
	s.state = model.SleepTimerState{Mode: model.SleepNone}
	s.mu.Unlock()

	s.persist(model.SleepTimerState{Mode: model.SleepNone})
	s.trigger("睡眠定时时间已到")
}

// OnTrackChange 每次切歌通知：song-count 递减，到0触发；
// playlist-end 在当前曲目是非循环列表最后一首时转换为 song-count(1)。
func (s *SleepTimer) OnTrackChange(snap PlaylistSnapshot) {
	s.mu.Lock()
	switch s.state.Mode {
	case model.SleepSongCount:
		s.state.Remaining--
		if s.state.Remaining <= 0 {
			s.state = model.SleepTimerState{Mode: model.SleepNone}
			s.mu.Unlock()
			s.persist(model.SleepTimerState{Mode: model.SleepNone})
			s.trigger("已播完设定的曲目数")
			return
		}
		state := s.state
		s.mu.Unlock()
		s.persist(state)
		return

	case model.SleepPlaylistEnd:
		if atListEnd(snap) {
			s.state = model.SleepTimerState{Mode: model.SleepSongCount, Remaining: 1}
			state := s.state
			s.mu.Unlock()
			s.persist(state)
			logger.Info("已到列表末尾，睡眠定时器转为播完本曲停止")
			return
		}
		s.mu.Unlock()
		return

	default:
		s.mu.Unlock()
	}
}

func (s *SleepTimer) trigger(reason string) {
	logger.Info("睡眠定时器触发停止", logger.String("reason", reason))
	if s.requestStop != nil {
		s.requestStop(reason)
	}
}
