// Package lyric 实现LRC歌词解析与按播放时间的行同步计算。
package lyric

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"EchoFM/model"
)

// 时间标签形如 [mm:ss] 或 [mm:ss.xx]，一行可以带多个标签
var timeTagPattern = regexp.MustCompile(`\[(\d{1,3}):(\d{1,2})(?:[.:](\d{1,3}))?\]`)

// 校正偏移允许范围（秒）
const (
	minOffset = -10.0
	maxOffset = 10.0
)

// 最后一行没有后继时，行区间默认持续1秒
const lastLineSpan = 1.0

// Parse 将原始LRC文本解析为歌词文档。
// trans 为翻译歌词（可为空），按时间戳对齐合并到对应行。
func Parse(trackID, raw, trans string) *model.LyricDocument {
	entries := parseEntries(raw)

	doc := &model.LyricDocument{TrackID: trackID}
	if len(entries) == 0 {
		return doc
	}

	// 翻译按时间戳索引，十毫秒精度对齐
	transMap := make(map[int64]string)
	for _, e := range parseEntries(trans) {
		transMap[timeKey(e.time)] = e.text
	}

	for _, e := range entries {
		line := model.LyricLine{Text: e.text}
		if t, ok := transMap[timeKey(e.time)]; ok {
			line.Trans = t
		}
		doc.Lines = append(doc.Lines, line)
		doc.Timestamps = append(doc.Timestamps, e.time)
	}
	return doc
}

type entry struct {
	time float64
	text string
}

// parseEntries 逐行匹配时间标签；一行多个标签展开为多条记录，按时间排序
func parseEntries(raw string) []entry {
	if raw == "" {
		return nil
	}

	var entries []entry
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		tags := timeTagPattern.FindAllStringSubmatch(line, -1)
		if len(tags) == 0 {
			continue
		}
		text := strings.TrimSpace(timeTagPattern.ReplaceAllString(line, ""))
		if text == "" {
			continue
		}
		for _, tag := range tags {
			entries = append(entries, entry{time: tagSeconds(tag), text: text})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].time < entries[j].time
	})
	return entries
}

// tagSeconds 把 [mm:ss.frac] 的捕获组转换为秒
func tagSeconds(tag []string) float64 {
	minutes, _ := strconv.Atoi(tag[1])
	seconds, _ := strconv.Atoi(tag[2])
	total := float64(minutes)*60 + float64(seconds)
	if tag[3] != "" {
		frac, _ := strconv.ParseFloat("0."+tag[3], 64)
		total += frac
	}
	return total
}

func timeKey(t float64) int64 {
	return int64(t * 100)
}

// ClampOffset 将校正偏移夹到允许范围
func ClampOffset(offset float64) float64 {
	if offset < minOffset {
		return minOffset
	}
	if offset > maxOffset {
		return maxOffset
	}
	return offset
}

// Engine 歌词同步引擎：持有解析后的文档和当前行下标，
// 按采样时间做前向扫描而不是每次从头查找。
type Engine struct {
	doc     *model.LyricDocument
	offset  float64
	current int
}

// NewEngine 创建同步引擎
func NewEngine(doc *model.LyricDocument, offset float64) *Engine {
	if doc == nil {
		doc = &model.LyricDocument{}
	}
	return &Engine{doc: doc, offset: ClampOffset(offset)}
}

// Document 返回持有的歌词文档
func (e *Engine) Document() *model.LyricDocument {
	return e.doc
}

// Offset 返回当前校正偏移
func (e *Engine) Offset() float64 {
	return e.offset
}

// SetOffset 更新校正偏移并重置扫描起点
func (e *Engine) SetOffset(offset float64) {
	e.offset = ClampOffset(offset)
	e.current = 0
}

// Reset 重置扫描起点，回退跳转后调用
func (e *Engine) Reset() {
	e.current = 0
}

// Current 返回最近一次计算出的行下标
func (e *Engine) Current() int {
	return e.current
}

// IndexAt 计算播放时间 t（秒）对应的歌词行下标。
// 从当前下标前向扫描，找不到包含区间时保持原下标（单调回退）。
func (e *Engine) IndexAt(t float64) int {
	n := len(e.doc.Timestamps)
	if n == 0 {
		return 0
	}

	corrected := t + e.offset
	start := e.current
	if start < 0 || start >= n {
		start = 0
	}

	for i := start; i < n; i++ {
		if corrected < e.doc.Timestamps[i] {
			break
		}
		if corrected < e.lineEnd(i) {
			e.current = i
			return i
		}
	}
	return e.current
}

// ProgressAt 计算播放时间 t 在当前行内的进度百分比，范围 [0,100]
func (e *Engine) ProgressAt(t float64) float64 {
	n := len(e.doc.Timestamps)
	idx := e.IndexAt(t)
	if n == 0 || idx < 0 || idx >= n {
		return 0
	}

	corrected := t + e.offset
	start := e.doc.Timestamps[idx]
	end := e.lineEnd(idx)
	if end <= start {
		return 0
	}

	progress := (corrected - start) / (end - start) * 100
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// LineWindow 返回第 i 行的起止时间；下标越界时返回中性的零区间
func (e *Engine) LineWindow(i int) (start, end float64) {
	if i < 0 || i >= len(e.doc.Timestamps) {
		return 0, 0
	}
	return e.doc.Timestamps[i], e.lineEnd(i)
}

// lineEnd 第 i 行的区间终点：下一行起点，最后一行为起点+1秒
func (e *Engine) lineEnd(i int) float64 {
	if i+1 < len(e.doc.Timestamps) {
		return e.doc.Timestamps[i+1]
	}
	return e.doc.Timestamps[i] + lastLineSpan
}
