package player

import (
	"EchoFM/core/lyric"
	"EchoFM/engine"
	"EchoFM/model"
)

// State 控制器状态
type State string

const (
	StateIdle      State = "idle"
	StateResolving State = "resolving"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateFailing   State = "failing"
)

// Context 播放上下文：编排层全部可变状态的唯一归属。
// 进程启动时构建一次，关停时销毁，访问由控制器的互斥锁保护。
type Context struct {
	Playlist *model.PlaylistState

	// Intent 记录"用户想不想播"，与引擎实际是否在播是两回事，
	// 失败重试窗口内两者会暂时分叉，必须显式对账。
	Intent bool

	State State
	Rate  float64

	// 独占持有的活动引擎实例，预热实例归 Preloader 所有
	Instance engine.Instance

	Lyrics *lyric.Engine
}

// NewContext 创建空的播放上下文
func NewContext() *Context {
	return &Context{
		Playlist: &model.PlaylistState{Mode: model.ModeSequential},
		State:    StateIdle,
		Rate:     1.0,
		Lyrics:   lyric.NewEngine(nil, 0),
	}
}

// CurrentTrack 返回当前曲目，可能为 nil
func (c *Context) CurrentTrack() *model.Track {
	return c.Playlist.Current()
}
