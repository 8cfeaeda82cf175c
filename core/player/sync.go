package player

import (
	"sync"
	"time"

	"EchoFM/model"
)

// ExternalSync 副屏同步：把歌词与播放状态单向推送到副显示面。
// 切歌推全量快照并在约500ms后补发一次，覆盖副屏自身的启动延迟；
// 播放中按固定节奏推轻量进度消息。副屏未打开时推送被接收端丢弃。
type ExternalSync struct {
	sink     Sink
	cadence  func() time.Duration
	followUp func() time.Duration

	mu             sync.Mutex
	followTimer    *time.Timer
	cadenceRunning bool
	cadenceStop    chan struct{}
}

// 没有歌词时推给副屏的占位行
const emptyPlaceholder = "暂无歌词"

// NewExternalSync 创建副屏同步
func NewExternalSync(sink Sink, cadence, followUp func() time.Duration) *ExternalSync {
	return &ExternalSync{
		sink:     sink,
		cadence:  cadence,
		followUp: followUp,
	}
}

// OnTrackChange 切歌时推送全量快照。
// provider 在补发时再次求值，保证补发内容反映最新状态。
func (s *ExternalSync) OnTrackChange(provider func() SyncMessage) {
	if s.sink == nil || provider == nil {
		return
	}
	s.sink.Push(normalize(provider()))

	s.mu.Lock()
	if s.followTimer != nil {
		s.followTimer.Stop()
	}
	s.followTimer = time.AfterFunc(s.followUp(), func() {
		s.sink.Push(normalize(provider()))
	})
	s.mu.Unlock()
}

// StartCadence 启动播放中的进度推送。
// provider 第二个返回值为假时本轮跳过（比如引擎未就绪）。
func (s *ExternalSync) StartCadence(provider func() (SyncMessage, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cadenceRunning {
		return
	}
	s.cadenceRunning = true
	s.cadenceStop = make(chan struct{})
	go s.cadenceLoop(s.cadenceStop, provider)
}

// StopCadence 停止进度推送，幂等
func (s *ExternalSync) StopCadence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cadenceRunning {
		return
	}
	s.cadenceRunning = false
	close(s.cadenceStop)
}

// Teardown 取消全部定时推送，幂等
func (s *ExternalSync) Teardown() {
	s.StopCadence()
	s.mu.Lock()
	if s.followTimer != nil {
		s.followTimer.Stop()
		s.followTimer = nil
	}
	s.mu.Unlock()
}

func (s *ExternalSync) cadenceLoop(stop chan struct{}, provider func() (SyncMessage, bool)) {
	ticker := time.NewTicker(s.cadence())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.sink.Open() {
				continue
			}
			if msg, ok := provider(); ok {
				s.sink.Push(msg)
			}
		}
	}
}

// normalize 没有任何歌词行的全量快照改为显式的 empty 消息，
// 带一个占位行，让副屏能渲染出有意义的状态而不是空负载。
func normalize(msg SyncMessage) SyncMessage {
	if msg.Type == SyncFull && len(msg.Lines) == 0 {
		msg.Type = SyncEmpty
		msg.Lines = []model.LyricLine{{Text: emptyPlaceholder}}
		msg.Timestamps = []float64{0}
		msg.Index = 0
	}
	return msg
}
