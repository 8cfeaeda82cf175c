package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"EchoFM/model"
)

type stopRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *stopRecorder) stop(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *stopRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

func newTestSleepTimer(store Store) (*SleepTimer, *stopRecorder) {
	rec := &stopRecorder{}
	s := NewSleepTimer(store, func() time.Duration { return 10 * time.Millisecond }, rec.stop)
	return s, rec
}

func seqSnapshot(index, length int) PlaylistSnapshot {
	return PlaylistSnapshot{Index: index, Length: length, Mode: model.ModeSequential}
}

func TestSleepTimerElapsed(t *testing.T) {
	t.Run("到点触发一次并复位", func(t *testing.T) {
		s, rec := newTestSleepTimer(newFakeStore())
		s.SetElapsed(time.Hour)
		s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		s.Tick()
		if rec.count() != 1 {
			t.Fatalf("触发次数 = %d, want 1", rec.count())
		}
		if s.State().Mode != model.SleepNone {
			t.Errorf("触发后模式 = %q, want none", s.State().Mode)
		}
		s.Tick() // 已复位，不再触发
		if rec.count() != 1 {
			t.Errorf("复位后不应再触发")
		}
	})

	t.Run("未到点不触发", func(t *testing.T) {
		s, rec := newTestSleepTimer(newFakeStore())
		s.SetElapsed(time.Hour)
		s.Tick()
		if rec.count() != 0 {
			t.Errorf("未到点触发了 %d 次", rec.count())
		}
	})

	t.Run("恢复出的过期定时在下一次检查触发", func(t *testing.T) {
		store := newFakeStore()
		store.sleep = model.SleepTimerState{
			Mode:  model.SleepElapsed,
			EndAt: time.Now().Add(-time.Minute),
		}
		s, rec := newTestSleepTimer(store)
		s.Restore(context.Background())

		if s.State().Mode != model.SleepElapsed {
			t.Fatalf("恢复后模式 = %q", s.State().Mode)
		}
		s.Tick()
		if rec.count() != 1 {
			t.Errorf("过期定时应立即触发, count = %d", rec.count())
		}
	})
}

func TestSleepTimerSongCount(t *testing.T) {
	t.Run("播完K首后触发", func(t *testing.T) {
		s, rec := newTestSleepTimer(newFakeStore())
		s.SetSongCount(3)

		s.OnTrackChange(seqSnapshot(1, 5))
		s.OnTrackChange(seqSnapshot(2, 5))
		if rec.count() != 0 {
			t.Fatalf("提前触发")
		}
		if s.State().Remaining != 1 {
			t.Errorf("Remaining = %d, want 1", s.State().Remaining)
		}

		s.OnTrackChange(seqSnapshot(3, 5))
		if rec.count() != 1 {
			t.Fatalf("触发次数 = %d, want 1", rec.count())
		}
		if s.State().Mode != model.SleepNone {
			t.Errorf("触发后模式 = %q", s.State().Mode)
		}
	})

	t.Run("小于1的数量按1处理", func(t *testing.T) {
		s, rec := newTestSleepTimer(newFakeStore())
		s.SetSongCount(0)
		s.OnTrackChange(seqSnapshot(1, 5))
		if rec.count() != 1 {
			t.Errorf("触发次数 = %d, want 1", rec.count())
		}
	})

	t.Run("剩余数变化持久化", func(t *testing.T) {
		store := newFakeStore()
		s, _ := newTestSleepTimer(store)
		s.SetSongCount(2)
		s.OnTrackChange(seqSnapshot(1, 5))

		store.mu.Lock()
		defer store.mu.Unlock()
		if store.sleep.Mode != model.SleepSongCount || store.sleep.Remaining != 1 {
			t.Errorf("持久化状态 = %+v", store.sleep)
		}
	})
}

func TestSleepTimerPlaylistEnd(t *testing.T) {
	t.Run("到非循环列表末尾转为播完本曲停止", func(t *testing.T) {
		s, rec := newTestSleepTimer(newFakeStore())
		s.SetPlaylistEnd(seqSnapshot(1, 5))

		s.OnTrackChange(seqSnapshot(2, 5))
		if s.State().Mode != model.SleepPlaylistEnd {
			t.Fatalf("中途不应转换, mode = %q", s.State().Mode)
		}

		s.OnTrackChange(seqSnapshot(4, 5))
		if s.State().Mode != model.SleepSongCount || s.State().Remaining != 1 {
			t.Fatalf("末尾应转为 song-count(1), state = %+v", s.State())
		}
		if rec.count() != 0 {
			t.Errorf("转换本身不应触发停止")
		}

		// 最后一首播完，当作普通 song-count 递减触发
		s.OnTrackChange(seqSnapshot(0, 5))
		if rec.count() != 1 {
			t.Errorf("触发次数 = %d, want 1", rec.count())
		}
	})

	t.Run("设置时已在末尾立即转换", func(t *testing.T) {
		s, rec := newTestSleepTimer(newFakeStore())
		s.SetPlaylistEnd(seqSnapshot(4, 5))
		if s.State().Mode != model.SleepSongCount || s.State().Remaining != 1 {
			t.Fatalf("末尾设置应立即转为 song-count(1), state = %+v", s.State())
		}

		// 本曲播完即触发，不会再多播一首
		s.OnTrackChange(seqSnapshot(0, 5))
		if rec.count() != 1 {
			t.Errorf("触发次数 = %d, want 1", rec.count())
		}
	})

	t.Run("单曲循环下不转换", func(t *testing.T) {
		s, _ := newTestSleepTimer(newFakeStore())
		s.SetPlaylistEnd(PlaylistSnapshot{Index: 4, Length: 5, Mode: model.ModeRepeatOne})
		if s.State().Mode != model.SleepPlaylistEnd {
			t.Fatalf("单曲循环末尾设置不应转换, mode = %q", s.State().Mode)
		}
		s.OnTrackChange(PlaylistSnapshot{Index: 4, Length: 5, Mode: model.ModeRepeatOne})
		if s.State().Mode != model.SleepPlaylistEnd {
			t.Errorf("单曲循环下转换了, mode = %q", s.State().Mode)
		}
	})
}

func TestSleepTimerCancel(t *testing.T) {
	store := newFakeStore()
	s, rec := newTestSleepTimer(store)
	s.SetSongCount(1)
	s.Cancel()

	s.OnTrackChange(seqSnapshot(1, 5))
	if rec.count() != 0 {
		t.Errorf("取消后不应触发")
	}
	if s.State().Mode != model.SleepNone {
		t.Errorf("取消后模式 = %q", s.State().Mode)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.sleep.Armed() {
		t.Errorf("持久化状态未清除: %+v", store.sleep)
	}
}

func TestSleepTimerLoop(t *testing.T) {
	s, rec := newTestSleepTimer(newFakeStore())
	s.SetElapsed(time.Millisecond)
	s.Start()
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return rec.count() == 1 }, "循环触发")
	s.Stop()
	s.Stop() // 幂等
}
