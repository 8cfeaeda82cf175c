package model

// LyricLine 一行歌词：原文加可选的翻译
type LyricLine struct {
	Text  string `json:"text"`
	Trans string `json:"trans,omitempty"`
}

// LyricDocument 解析后的歌词文档。
// Lines 与 Timestamps 等长，Timestamps 单调不减（单位：秒）。
type LyricDocument struct {
	TrackID    string      `json:"trackId"`
	Lines      []LyricLine `json:"lines"`
	Timestamps []float64   `json:"timestamps"`
}

// Len 返回歌词行数
func (d *LyricDocument) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Lines)
}

// Empty 判断是否没有任何歌词行
func (d *LyricDocument) Empty() bool {
	return d.Len() == 0
}

// RawLyric 目录接口返回的原始歌词文本
type RawLyric struct {
	TrackID string `json:"trackId"`
	Lyric   string `json:"lyric"`      // 原歌词（LRC格式）
	Trans   string `json:"transLyric"` // 翻译歌词（LRC格式，可为空）
}
