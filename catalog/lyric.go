package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"EchoFM/logger"
	"EchoFM/model"
)

// GetLyric 获取歌词
func (c *Client) GetLyric(trackID string) (*model.RawLyric, error) {
	endpoint := fmt.Sprintf("%s/lyric?id=%s", c.BaseURL, url.QueryEscape(trackID))
	logger.Debug("获取歌词", logger.String("trackId", trackID))

	resp, err := c.HTTPClient.Get(endpoint)
	if err != nil {
		logger.Warn("歌词请求失败", logger.String("trackId", trackID), logger.ErrorField(err))
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API返回错误状态码: %d", resp.StatusCode)
	}

	var result struct {
		Lrc struct {
			Lyric string `json:"lyric"`
		} `json:"lrc"`
		Tlyric struct {
			Lyric string `json:"lyric"`
		} `json:"tlyric"`
		Code int `json:"code"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	lyric := &model.RawLyric{
		TrackID: trackID,
		Lyric:   result.Lrc.Lyric,
		Trans:   result.Tlyric.Lyric,
	}
	logger.Debug("成功获取歌词",
		logger.String("trackId", trackID),
		logger.Int("length", len(lyric.Lyric)))
	return lyric, nil
}
