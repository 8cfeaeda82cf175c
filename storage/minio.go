package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"EchoFM/config"
	"EchoFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var minioClient *minio.Client

// InitMinio 初始化 MinIO 客户端
func InitMinio(cfg *config.Config) error {
	logger.Info("正在连接 MinIO 服务器...",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	return nil
}

// MirrorObjectName 曲目在镜像桶中的对象名
func MirrorObjectName(trackID string) string {
	return fmt.Sprintf("audio/%s.mp3", trackID)
}

// MirrorURL 为镜像桶中已缓存的曲目生成预签名播放地址。
// 曲目不在桶中时返回错误，由解析器继续走失败分支。
func MirrorURL(ctx context.Context, trackID string, ttl time.Duration) (string, error) {
	if minioClient == nil {
		return "", fmt.Errorf("MinIO client not initialized")
	}
	cfg := config.Current()
	objectName := MirrorObjectName(trackID)

	// 先确认对象存在，避免签出一个必然404的地址
	_, err := minioClient.StatObject(ctx, cfg.MinioBucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("镜像中不存在该曲目: %w", err)
	}

	reqParams := make(url.Values)
	presigned, err := minioClient.PresignedGetObject(ctx, cfg.MinioBucket, objectName, ttl, reqParams)
	if err != nil {
		return "", fmt.Errorf("生成预签名地址失败: %w", err)
	}
	return presigned.String(), nil
}
