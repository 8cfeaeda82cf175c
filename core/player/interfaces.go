package player

import (
	"context"

	"EchoFM/catalog"
	"EchoFM/model"
)

// CatalogAPI 编排层消费的曲库目录接口
type CatalogAPI interface {
	GetSongURL(trackID string) (*catalog.SongURL, error)
	ParseAlternate(trackID, source string) (*catalog.AlternateURL, error)
	GetLyric(trackID string) (*model.RawLyric, error)
}

// Store 播放状态持久化接口，由 cache.Store 实现
type Store interface {
	SaveSession(ctx context.Context, snap *model.PlaybackSnapshot) error
	LoadSession(ctx context.Context) (*model.PlaybackSnapshot, error)
	SaveProgress(ctx context.Context, trackID string, position float64) error
	LoadProgress(ctx context.Context, trackID string) (float64, error)
	SetLyricOffset(ctx context.Context, trackID string, offset float64) error
	LyricOffset(ctx context.Context, trackID string) (float64, error)
	SaveSleepTimer(ctx context.Context, state model.SleepTimerState) error
	LoadSleepTimer(ctx context.Context) (model.SleepTimerState, error)
	ClearSleepTimer(ctx context.Context) error
	IsDisliked(ctx context.Context, trackID string) (bool, error)
}

// SyncMessageType 副屏同步消息类型
type SyncMessageType string

const (
	SyncFull   SyncMessageType = "full"   // 切歌时的全量快照
	SyncUpdate SyncMessageType = "update" // 播放中的轻量进度
	SyncEmpty  SyncMessageType = "empty"  // 当前曲目没有歌词
)

// SyncMessage 推送给副屏的同步消息
type SyncMessage struct {
	Type          SyncMessageType   `json:"type"`
	Index         int               `json:"index"`
	Time          float64           `json:"time"`
	StartTime     float64           `json:"startTime,omitempty"`
	NextTime      float64           `json:"nextTime,omitempty"`
	Playing       bool              `json:"playing"`
	Lines         []model.LyricLine `json:"lines,omitempty"`
	Timestamps    []float64         `json:"timestamps,omitempty"`
	DurationTotal float64           `json:"durationTotal,omitempty"`
	Track         *model.Track      `json:"track,omitempty"`
}

// Sink 同步消息的接收端。
// Open 为假时推送会被接收端静默丢弃，编排层无需感知副屏是否在线。
type Sink interface {
	Push(msg SyncMessage)
	Open() bool
}
