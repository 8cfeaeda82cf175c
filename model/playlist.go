package model

// PlayMode 播放模式
type PlayMode string

const (
	ModeSequential PlayMode = "sequential" // 顺序播放
	ModeRepeatOne  PlayMode = "repeat-one" // 单曲循环
	ModeShuffle    PlayMode = "shuffle"    // 随机播放
)

// PlaylistState 播放列表状态：有序曲目、当前下标和播放模式。
// 不变式：列表非空时下标始终在界内。
type PlaylistState struct {
	Tracks []*Track `json:"tracks"`
	Index  int      `json:"index"`
	Mode   PlayMode `json:"mode"`
}

// Len 返回列表长度
func (p *PlaylistState) Len() int {
	return len(p.Tracks)
}

// Current 返回当前曲目，列表为空或下标越界时返回 nil
func (p *PlaylistState) Current() *Track {
	if p.Index < 0 || p.Index >= len(p.Tracks) {
		return nil
	}
	return p.Tracks[p.Index]
}

// At 返回指定下标的曲目，越界返回 nil
func (p *PlaylistState) At(i int) *Track {
	if i < 0 || i >= len(p.Tracks) {
		return nil
	}
	return p.Tracks[i]
}

// RemoveAt 移除指定下标的曲目并修正当前下标
func (p *PlaylistState) RemoveAt(i int) {
	if i < 0 || i >= len(p.Tracks) {
		return
	}
	p.Tracks = append(p.Tracks[:i], p.Tracks[i+1:]...)
	if i < p.Index {
		p.Index--
	}
	if p.Index >= len(p.Tracks) {
		p.Index = len(p.Tracks) - 1
	}
	if p.Index < 0 {
		p.Index = 0
	}
}

// IsLast 判断当前曲目是否为列表最后一首
func (p *PlaylistState) IsLast() bool {
	return len(p.Tracks) > 0 && p.Index == len(p.Tracks)-1
}
