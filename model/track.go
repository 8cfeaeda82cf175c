package model

import "time"

// Track represents a logical song plus its resolved playback metadata.
type Track struct {
	ID         string    `json:"id" gorm:"primaryKey;size:64"`
	Source     string    `json:"source" gorm:"size:32"` // "catalog", "parse", "mirror" 等来源标记
	Title      string    `json:"title" gorm:"size:255"`
	Artist     string    `json:"artist" gorm:"size:255"`
	Album      string    `json:"album" gorm:"size:255"`
	CoverURL   string    `json:"coverUrl" gorm:"size:512"`
	Duration   float64   `json:"duration"` // Duration in seconds
	URL        string    `json:"url,omitempty" gorm:"-"`
	ResolvedAt time.Time `json:"resolvedAt,omitempty" gorm:"-"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty" gorm:"-"`
	Loading    bool      `json:"loading,omitempty" gorm:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// URLAlive 判断已解析的URL是否仍在有效期内
func (t *Track) URLAlive(now time.Time) bool {
	if t.URL == "" {
		return false
	}
	return now.Before(t.ExpiresAt)
}

// InvalidateURL 作废已解析的URL，下次播放前必须重新解析
func (t *Track) InvalidateURL() {
	t.URL = ""
	t.ResolvedAt = time.Time{}
	t.ExpiresAt = time.Time{}
}

// SourceOverride 记录某首歌固定使用的备用音源
type SourceOverride struct {
	TrackID   string    `json:"trackId" gorm:"primaryKey;size:64"`
	Source    string    `json:"source" gorm:"size:32"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
