package model

// PlaybackSnapshot 对外可见的播放状态快照，
// 用于会话恢复和副屏同步，不携带任何可变引用。
type PlaybackSnapshot struct {
	Track    *Track   `json:"track,omitempty"`
	URL      string   `json:"url,omitempty"`
	Playlist []*Track `json:"playlist,omitempty"`
	Index    int      `json:"index"`
	Mode     PlayMode `json:"mode"`
	Rate     float64  `json:"rate"`
	Playing  bool     `json:"playing"`
	Position float64  `json:"position"`
}
