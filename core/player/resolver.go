package player

import (
	"context"
	"fmt"
	"time"

	"EchoFM/logger"
	"EchoFM/model"
	"EchoFM/repository"
)

// MirrorFunc 对象存储镜像源：为已缓存的曲目签出播放地址
type MirrorFunc func(ctx context.Context, trackID string, ttl time.Duration) (string, error)

// Resolver 把逻辑曲目解析为可播放地址。
// 解析顺序：未过期的已有地址 → 固定的备用音源 → 主接口 → 解析接口 → 镜像。
// 本身不做网络重试，重试策略归控制器。
type Resolver struct {
	catalog CatalogAPI
	repo    repository.TrackRepository
	mirror  MirrorFunc
	ttl     func() time.Duration
	now     func() time.Time
}

// NewResolver 创建解析器；repo 与 mirror 均可为 nil（对应环节被跳过）
func NewResolver(api CatalogAPI, repo repository.TrackRepository, mirror MirrorFunc, ttl func() time.Duration) *Resolver {
	return &Resolver{
		catalog: api,
		repo:    repo,
		mirror:  mirror,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Resolve 解析曲目的播放地址并在曲目上盖戳有效期
func (r *Resolver) Resolve(ctx context.Context, track *model.Track) (string, error) {
	if track == nil {
		return "", fmt.Errorf("%w: nil track", ErrResolution)
	}

	now := r.now()
	if track.URLAlive(now) {
		return track.URL, nil
	}

	// 固定的备用音源优先，失败则落回默认流程
	if r.repo != nil {
		if source, err := r.repo.GetOverride(ctx, track.ID); err == nil && source != "" {
			if alt, err := r.catalog.ParseAlternate(track.ID, source); err == nil && alt.URL != "" {
				r.stamp(track, alt.URL, alt.Source)
				return track.URL, nil
			}
			logger.Debug("固定音源解析失败，回落默认流程",
				logger.String("trackId", track.ID),
				logger.String("source", source))
		}
	}

	// 主接口；试听地址或空地址视为不可用
	primaryErr := fmt.Errorf("主接口未返回地址")
	if songURL, err := r.catalog.GetSongURL(track.ID); err == nil {
		if songURL.URL != "" && !songURL.Trial {
			r.stamp(track, songURL.URL, "catalog")
			r.mirrorMetadata(ctx, track)
			return track.URL, nil
		}
		if songURL.Trial {
			primaryErr = fmt.Errorf("主接口只返回试听地址")
		}
	} else {
		primaryErr = err
	}

	// 解析接口兜备用音源
	if alt, err := r.catalog.ParseAlternate(track.ID, ""); err == nil && alt.URL != "" {
		r.stamp(track, alt.URL, alt.Source)
		return track.URL, nil
	}

	// 最后尝试对象存储镜像
	if r.mirror != nil {
		if url, err := r.mirror(ctx, track.ID, r.ttl()); err == nil && url != "" {
			r.stamp(track, url, "mirror")
			return track.URL, nil
		}
	}

	return "", fmt.Errorf("%w: track %s: %v", ErrResolution, track.ID, primaryErr)
}

// stamp 写入解析结果和有效期
func (r *Resolver) stamp(track *model.Track, url, source string) {
	now := r.now()
	track.URL = url
	if source != "" {
		track.Source = source
	}
	track.ResolvedAt = now
	track.ExpiresAt = now.Add(r.ttl())
}

// mirrorMetadata 把解析成功的曲目元数据写入数据库镜像，失败只记日志
func (r *Resolver) mirrorMetadata(ctx context.Context, track *model.Track) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Upsert(ctx, track); err != nil {
		logger.Debug("曲目元数据镜像写入失败",
			logger.String("trackId", track.ID),
			logger.ErrorField(err))
	}
}
