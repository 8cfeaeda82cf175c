package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"EchoFM/model"

	"github.com/redis/go-redis/v9"
)

// Redis键定义
const (
	sessionKey     = "player:session"
	sleepTimerKey  = "player:sleep"
	lyricOffsetKey = "player:lyricoffset"
	favoritesKey   = "player:favorites"
	dislikesKey    = "player:dislikes"
)

// 歌词校正偏移的允许范围（秒）
const (
	MinLyricOffset = -10.0
	MaxLyricOffset = 10.0
)

// ProgressKey 根据曲目ID生成播放进度的Redis键
func ProgressKey(trackID string) string {
	return fmt.Sprintf("player:progress:%s", trackID)
}

// Store 播放状态的持久化存储，进程重启后据此恢复会话
type Store struct {
	client *redis.Client
}

// NewStore 创建状态存储
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// SaveSession 保存当前会话快照
func (s *Store) SaveSession(ctx context.Context, snap *model.PlaybackSnapshot) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	return s.client.Set(ctx, sessionKey, data, 0).Err()
}

// LoadSession 读取会话快照，不存在时返回 (nil, nil)
func (s *Store) LoadSession(ctx context.Context) (*model.PlaybackSnapshot, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	data, err := s.client.Get(ctx, sessionKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session snapshot: %w", err)
	}
	var snap model.PlaybackSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return &snap, nil
}

// SaveProgress 保存某首歌的播放进度（秒）
func (s *Store) SaveProgress(ctx context.Context, trackID string, position float64) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return s.client.Set(ctx, ProgressKey(trackID), position, 7*24*time.Hour).Err()
}

// LoadProgress 读取某首歌上次的播放进度，没有记录时返回0
func (s *Store) LoadProgress(ctx context.Context, trackID string) (float64, error) {
	if s.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}
	val, err := s.client.Get(ctx, ProgressKey(trackID)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get progress: %w", err)
	}
	pos, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid progress value: %w", err)
	}
	return pos, nil
}

// SetLyricOffset 保存某首歌的歌词校正偏移，越界值被夹到允许范围
func (s *Store) SetLyricOffset(ctx context.Context, trackID string, offset float64) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if offset < MinLyricOffset {
		offset = MinLyricOffset
	}
	if offset > MaxLyricOffset {
		offset = MaxLyricOffset
	}
	return s.client.HSet(ctx, lyricOffsetKey, trackID, offset).Err()
}

// LyricOffset 读取某首歌的歌词校正偏移，没有记录时返回0
func (s *Store) LyricOffset(ctx context.Context, trackID string) (float64, error) {
	if s.client == nil {
		return 0, fmt.Errorf("Redis client not initialized")
	}
	val, err := s.client.HGet(ctx, lyricOffsetKey, trackID).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get lyric offset: %w", err)
	}
	offset, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid lyric offset value: %w", err)
	}
	return offset, nil
}

// SaveSleepTimer 保存睡眠定时器状态
func (s *Store) SaveSleepTimer(ctx context.Context, state model.SleepTimerState) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal sleep timer state: %w", err)
	}
	return s.client.Set(ctx, sleepTimerKey, data, 0).Err()
}

// LoadSleepTimer 读取睡眠定时器状态，没有记录时返回未设置状态
func (s *Store) LoadSleepTimer(ctx context.Context) (model.SleepTimerState, error) {
	none := model.SleepTimerState{Mode: model.SleepNone}
	if s.client == nil {
		return none, fmt.Errorf("Redis client not initialized")
	}
	data, err := s.client.Get(ctx, sleepTimerKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return none, nil
		}
		return none, fmt.Errorf("failed to get sleep timer state: %w", err)
	}
	var state model.SleepTimerState
	if err := json.Unmarshal(data, &state); err != nil {
		return none, fmt.Errorf("failed to unmarshal sleep timer state: %w", err)
	}
	return state, nil
}

// ClearSleepTimer 清除睡眠定时器状态
func (s *Store) ClearSleepTimer(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return s.client.Del(ctx, sleepTimerKey).Err()
}

// AddFavorite 收藏歌曲
func (s *Store) AddFavorite(ctx context.Context, trackID string) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return s.client.SAdd(ctx, favoritesKey, trackID).Err()
}

// RemoveFavorite 取消收藏
func (s *Store) RemoveFavorite(ctx context.Context, trackID string) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return s.client.SRem(ctx, favoritesKey, trackID).Err()
}

// Favorites 返回全部收藏的曲目ID
func (s *Store) Favorites(ctx context.Context) ([]string, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	return s.client.SMembers(ctx, favoritesKey).Result()
}

// AddDislike 将歌曲标记为不喜欢，顺序播放时会被跳过
func (s *Store) AddDislike(ctx context.Context, trackID string) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return s.client.SAdd(ctx, dislikesKey, trackID).Err()
}

// RemoveDislike 取消不喜欢标记
func (s *Store) RemoveDislike(ctx context.Context, trackID string) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return s.client.SRem(ctx, dislikesKey, trackID).Err()
}

// IsDisliked 判断歌曲是否被标记为不喜欢
func (s *Store) IsDisliked(ctx context.Context, trackID string) (bool, error) {
	if s.client == nil {
		return false, fmt.Errorf("Redis client not initialized")
	}
	return s.client.SIsMember(ctx, dislikesKey, trackID).Result()
}
