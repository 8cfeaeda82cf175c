package repository

import (
	"context"

	"EchoFM/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrackRepository 曲目元数据访问接口
type TrackRepository interface {
	// 曲目元数据镜像
	Upsert(ctx context.Context, track *model.Track) error
	GetByID(ctx context.Context, id string) (*model.Track, error)

	// 备用音源固定
	SetOverride(ctx context.Context, trackID, source string) error
	GetOverride(ctx context.Context, trackID string) (string, error)
	ClearOverride(ctx context.Context, trackID string) error
}

// gormTrackRepository GORM 实现
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository 创建 GORM 曲目仓库
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// Upsert 写入或更新曲目元数据
func (r *gormTrackRepository) Upsert(ctx context.Context, track *model.Track) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"source", "title", "artist", "album", "cover_url", "duration", "updated_at"}),
	}).Create(track).Error
}

// GetByID 根据ID获取曲目元数据
func (r *gormTrackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&track).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// SetOverride 固定某首歌的备用音源，解析时优先尝试
func (r *gormTrackRepository) SetOverride(ctx context.Context, trackID, source string) error {
	override := &model.SourceOverride{TrackID: trackID, Source: source}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "track_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"source", "updated_at"}),
	}).Create(override).Error
}

// GetOverride 查询某首歌固定的备用音源，没有时返回空串
func (r *gormTrackRepository) GetOverride(ctx context.Context, trackID string) (string, error) {
	var override model.SourceOverride
	err := r.db.WithContext(ctx).Where("track_id = ?", trackID).First(&override).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return override.Source, nil
}

// ClearOverride 清除音源固定
func (r *gormTrackRepository) ClearOverride(ctx context.Context, trackID string) error {
	return r.db.WithContext(ctx).Where("track_id = ?", trackID).Delete(&model.SourceOverride{}).Error
}
