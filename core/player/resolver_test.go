package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"EchoFM/catalog"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestResolver(api CatalogAPI, repo *fakeRepo, mirror MirrorFunc) *Resolver {
	var r *Resolver
	if repo != nil {
		r = NewResolver(api, repo, mirror, func() time.Duration { return 30 * time.Minute })
	} else {
		r = NewResolver(api, nil, mirror, func() time.Duration { return 30 * time.Minute })
	}
	r.now = fixedNow
	return r
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("有效期内的地址直接复用", func(t *testing.T) {
		api := newFakeCatalog()
		r := newTestResolver(api, nil, nil)

		track := testTrack("a")
		track.URL = "http://cdn/a.mp3"
		track.ExpiresAt = fixedNow().Add(10 * time.Minute)

		url, err := r.Resolve(ctx, track)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if url != "http://cdn/a.mp3" {
			t.Errorf("url = %q", url)
		}
		if api.songCallCount("a") != 0 {
			t.Errorf("不应调用主接口, calls = %d", api.songCallCount("a"))
		}
	})

	t.Run("过期地址重新解析并更新有效期", func(t *testing.T) {
		api := newFakeCatalog()
		api.setURL("a", "http://cdn/a-new.mp3")
		r := newTestResolver(api, nil, nil)

		track := testTrack("a")
		track.URL = "http://cdn/a-old.mp3"
		track.ExpiresAt = fixedNow().Add(-time.Minute)

		url, err := r.Resolve(ctx, track)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if url != "http://cdn/a-new.mp3" {
			t.Errorf("url = %q", url)
		}
		if !track.ExpiresAt.Equal(fixedNow().Add(30 * time.Minute)) {
			t.Errorf("ExpiresAt = %v", track.ExpiresAt)
		}
	})

	t.Run("固定音源优先于主接口", func(t *testing.T) {
		api := newFakeCatalog()
		api.setURL("a", "http://cdn/primary.mp3")
		api.alternates["a|kw"] = &catalog.AlternateURL{URL: "http://alt/a.mp3", Source: "kw"}
		repo := newFakeRepo()
		repo.overrides["a"] = "kw"
		r := newTestResolver(api, repo, nil)

		track := testTrack("a")
		url, err := r.Resolve(ctx, track)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if url != "http://alt/a.mp3" {
			t.Errorf("url = %q, 固定音源应优先", url)
		}
		if track.Source != "kw" {
			t.Errorf("Source = %q", track.Source)
		}
		if api.songCallCount("a") != 0 {
			t.Errorf("固定音源命中时不应调用主接口")
		}
	})

	t.Run("固定音源失败回落主接口", func(t *testing.T) {
		api := newFakeCatalog()
		api.setURL("a", "http://cdn/primary.mp3")
		repo := newFakeRepo()
		repo.overrides["a"] = "kw" // 没有对应的备用地址
		r := newTestResolver(api, repo, nil)

		url, err := r.Resolve(ctx, testTrack("a"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if url != "http://cdn/primary.mp3" {
			t.Errorf("url = %q", url)
		}
	})

	t.Run("试听地址视为不可用转解析接口", func(t *testing.T) {
		api := newFakeCatalog()
		api.urls["a"] = &catalog.SongURL{URL: "http://cdn/trial.mp3", Trial: true}
		api.alternates["a|"] = &catalog.AlternateURL{URL: "http://alt/a.mp3", Source: "mg"}
		r := newTestResolver(api, nil, nil)

		track := testTrack("a")
		url, err := r.Resolve(ctx, track)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if url != "http://alt/a.mp3" {
			t.Errorf("url = %q, 试听地址应被跳过", url)
		}
	})

	t.Run("主接口空地址转解析接口", func(t *testing.T) {
		api := newFakeCatalog()
		api.urls["a"] = &catalog.SongURL{URL: ""}
		api.alternates["a|"] = &catalog.AlternateURL{URL: "http://alt/a.mp3"}
		r := newTestResolver(api, nil, nil)

		url, err := r.Resolve(ctx, testTrack("a"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if url != "http://alt/a.mp3" {
			t.Errorf("url = %q", url)
		}
	})

	t.Run("解析接口失败转对象存储镜像", func(t *testing.T) {
		api := newFakeCatalog()
		mirror := func(ctx context.Context, trackID string, ttl time.Duration) (string, error) {
			return "http://minio/audio/" + trackID + ".mp3", nil
		}
		r := newTestResolver(api, nil, mirror)

		track := testTrack("a")
		url, err := r.Resolve(ctx, track)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if url != "http://minio/audio/a.mp3" {
			t.Errorf("url = %q", url)
		}
		if track.Source != "mirror" {
			t.Errorf("Source = %q", track.Source)
		}
	})

	t.Run("全部音源失败返回解析错误", func(t *testing.T) {
		api := newFakeCatalog()
		mirror := func(ctx context.Context, trackID string, ttl time.Duration) (string, error) {
			return "", errors.New("对象不存在")
		}
		r := newTestResolver(api, newFakeRepo(), mirror)

		_, err := r.Resolve(ctx, testTrack("a"))
		if !errors.Is(err, ErrResolution) {
			t.Fatalf("err = %v, want ErrResolution", err)
		}
	})

	t.Run("nil曲目返回解析错误", func(t *testing.T) {
		r := newTestResolver(newFakeCatalog(), nil, nil)
		if _, err := r.Resolve(ctx, nil); !errors.Is(err, ErrResolution) {
			t.Fatalf("err = %v, want ErrResolution", err)
		}
	})

	t.Run("主接口成功后元数据写入镜像库", func(t *testing.T) {
		api := newFakeCatalog()
		api.setURL("a", "http://cdn/a.mp3")
		repo := newFakeRepo()
		r := newTestResolver(api, repo, nil)

		if _, err := r.Resolve(ctx, testTrack("a")); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		repo.mu.Lock()
		defer repo.mu.Unlock()
		if len(repo.upserts) != 1 || repo.upserts[0] != "a" {
			t.Errorf("upserts = %v", repo.upserts)
		}
	})
}
