package model

import "time"

// SleepMode 睡眠定时器模式
type SleepMode string

const (
	SleepNone        SleepMode = "none"         // 未设置
	SleepElapsed     SleepMode = "elapsed"      // 定时停止
	SleepSongCount   SleepMode = "song-count"   // 播完N首停止
	SleepPlaylistEnd SleepMode = "playlist-end" // 播完列表停止
)

// SleepTimerState 睡眠定时器状态，同一时间只有一种模式生效。
// 持久化保存，进程重启后恢复。
type SleepTimerState struct {
	Mode      SleepMode `json:"mode"`
	EndAt     time.Time `json:"endAt,omitempty"`     // elapsed 模式的截止时间
	Remaining int       `json:"remaining,omitempty"` // song-count 模式的剩余曲目数
}

// Armed 判断定时器是否处于生效状态
func (s SleepTimerState) Armed() bool {
	return s.Mode != SleepNone && s.Mode != ""
}
