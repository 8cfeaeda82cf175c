// Package engine 定义外部音频引擎的协作接口。
// 解码与混音完全由外部引擎服务负责，编排层只通过本包的接口与之交互。
package engine

// Event 引擎实例上报的事件类型
type Event string

const (
	EventPlay  Event = "play"
	EventPause Event = "pause"
	EventEnd   Event = "end"
	EventError Event = "playerror"
	EventSeek  Event = "seek"
)

// Handler 实例事件回调，EventError 时 err 非空
type Handler func(event Event, err error)

// Engine 音频引擎：用一个可播放地址换取一个播放实例
type Engine interface {
	Load(url string) (Instance, error)
}

// Instance 一个已装载音频的播放实例。
// Playing 是引擎侧的真实状态查询，播放后验证依赖它而不是 play 事件。
type Instance interface {
	Play() error
	Pause() error
	Stop() error
	Seek(seconds float64) error
	SetRate(rate float64) error
	Duration() float64
	Position() float64
	Playing() bool
	Ready() bool
	URL() string
	OnEvent(fn Handler)
	Release()
}
