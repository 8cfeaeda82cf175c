package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// SongURL 主接口返回的播放地址信息
type SongURL struct {
	URL   string `json:"url"`
	Trial bool   `json:"trialFlag"` // 试听/受限地址，不可直接用于完整播放
}

// AlternateURL 解析接口返回的备用音源地址
type AlternateURL struct {
	URL    string `json:"url"`
	Source string `json:"sourceTag"`
}

// GetSongURL 从主接口获取歌曲播放地址
func (c *Client) GetSongURL(trackID string) (*SongURL, error) {
	endpoint := fmt.Sprintf("%s/song/url?id=%s", c.BaseURL, url.QueryEscape(trackID))

	resp, err := c.HTTPClient.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API返回错误状态码: %d", resp.StatusCode)
	}

	var result struct {
		Data []struct {
			ID        string `json:"id"`
			URL       string `json:"url"`
			TrialFlag bool   `json:"trialFlag"`
		} `json:"data"`
		Code int    `json:"code"`
		Msg  string `json:"msg,omitempty"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	if result.Code != 200 {
		return nil, fmt.Errorf("API返回错误: %s (code: %d)", result.Msg, result.Code)
	}

	if len(result.Data) == 0 {
		return nil, fmt.Errorf("未找到歌曲数据")
	}

	return &SongURL{
		URL:   result.Data[0].URL,
		Trial: result.Data[0].TrialFlag,
	}, nil
}

// ParseAlternate 从解析接口获取备用音源地址。
// source 为空时由服务端自选来源，非空时只尝试指定来源。
func (c *Client) ParseAlternate(trackID, source string) (*AlternateURL, error) {
	endpoint := fmt.Sprintf("%s/song/parse?id=%s", c.BaseURL, url.QueryEscape(trackID))
	if source != "" {
		endpoint += "&source=" + url.QueryEscape(source)
	}

	resp, err := c.HTTPClient.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API返回错误状态码: %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			URL       string `json:"url"`
			SourceTag string `json:"sourceTag"`
		} `json:"data"`
		Code int    `json:"code"`
		Msg  string `json:"msg,omitempty"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	if result.Code != 200 {
		return nil, fmt.Errorf("API返回错误: %s (code: %d)", result.Msg, result.Code)
	}

	if result.Data.URL == "" {
		return nil, fmt.Errorf("备用音源未返回地址")
	}

	return &AlternateURL{
		URL:    result.Data.URL,
		Source: result.Data.SourceTag,
	}, nil
}
