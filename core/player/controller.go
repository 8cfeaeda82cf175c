package player

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"EchoFM/config"
	"EchoFM/core/lyric"
	"EchoFM/engine"
	"EchoFM/logger"
	"EchoFM/model"
	"EchoFM/repository"
)

// Controller 播放编排的顶层控制器。
// 持有播放上下文，串起解析、预热、歌词、睡眠定时器与副屏同步，
// 并实现切歌导航的失败重试策略。
//
// 操作锁保证同一时刻只有一个顶层播放变更（play/pause/next/previous）
// 在执行；锁被占时后来的调用直接丢弃并记警告，绝不排队。
type Controller struct {
	pc *Context
	mu sync.Mutex // 保护 pc 与下面的标记字段

	opLock chan struct{}

	eng       engine.Engine
	resolver  *Resolver
	preloader *Preloader
	clock     *Clock
	sleep     *SleepTimer
	syncer    *ExternalSync
	store     Store
	catalog   CatalogAPI

	tmu    sync.RWMutex
	tuning config.PlaybackTuning

	rand *rand.Rand

	// 已解析歌词按曲目复用
	lyricDocs map[string]*model.LyricDocument

	// gen 标记当前装载代次，旧代次的验证窗口和引擎事件一律作废
	gen int
	// retried 当前装载是否已经用掉那一次自动重试
	retried bool
	// lastTrackID 上一次成为当前曲目的ID，用于判定切歌事件
	lastTrackID string
	// resumeFrom 会话恢复出的起播位置，消费一次后清零
	resumeFrom float64

	teardown sync.Once
}

// NewController 创建控制器并组装各子组件
func NewController(
	eng engine.Engine,
	api CatalogAPI,
	store Store,
	repo repository.TrackRepository,
	mirror MirrorFunc,
	sink Sink,
	tuning config.PlaybackTuning,
) *Controller {
	c := &Controller{
		pc:        NewContext(),
		opLock:    make(chan struct{}, 1),
		eng:       eng,
		store:     store,
		catalog:   api,
		tuning:    tuning,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
		lyricDocs: make(map[string]*model.LyricDocument),
	}

	c.resolver = NewResolver(api, repo, mirror, func() time.Duration {
		return c.tuningNow().URLTTL
	})
	c.preloader = NewPreloader(eng, func() int {
		return c.tuningNow().PreloadCapacity
	})
	c.clock = NewClock(
		func() time.Duration { return c.tuningNow().ClockInterval },
		func() float64 { return c.tuningNow().DampingThreshold },
		c.intentNow,
		c.instanceNow,
		c.currentTrackID,
		c.publishTime,
		c.persistProgress,
	)
	c.sleep = NewSleepTimer(store, func() time.Duration {
		return c.tuningNow().SleepTick
	}, c.sleepStop)
	c.syncer = NewExternalSync(sink,
		func() time.Duration { return c.tuningNow().SyncCadence },
		func() time.Duration { return c.tuningNow().SyncFollowUp },
	)
	return c
}

// ApplyTuning 热更新调优参数
func (c *Controller) ApplyTuning(t config.PlaybackTuning) {
	c.tmu.Lock()
	c.tuning = t
	c.tmu.Unlock()
}

func (c *Controller) tuningNow() config.PlaybackTuning {
	c.tmu.RLock()
	defer c.tmu.RUnlock()
	return c.tuning
}

// Sleep 返回睡眠定时器
func (c *Controller) Sleep() *SleepTimer {
	return c.sleep
}

// SleepPlaylistEnd 设置播完列表后停止，附带当前播放位置快照
func (c *Controller) SleepPlaylistEnd() {
	c.sleep.SetPlaylistEnd(c.playlistSnapshot())
}

// Preloader 返回预热服务
func (c *Controller) Preloader() *Preloader {
	return c.preloader
}

// ---- 操作锁 ----

func (c *Controller) tryLock(op string) bool {
	select {
	case c.opLock <- struct{}{}:
		return true
	default:
		logger.Warn("操作被丢弃：已有播放操作进行中", logger.String("op", op))
		return false
	}
}

func (c *Controller) unlock() {
	<-c.opLock
}

// ---- 状态读取 ----

func (c *Controller) intentNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc.Intent
}

func (c *Controller) instanceNow() engine.Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc.Instance
}

func (c *Controller) currentTrackID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.pc.CurrentTrack(); t != nil {
		return t.ID
	}
	return ""
}

// Snapshot 返回当前播放状态快照
func (c *Controller) Snapshot() model.PlaybackSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() model.PlaybackSnapshot {
	snap := model.PlaybackSnapshot{
		Playlist: c.pc.Playlist.Tracks,
		Index:    c.pc.Playlist.Index,
		Mode:     c.pc.Playlist.Mode,
		Rate:     c.pc.Rate,
		Playing:  c.pc.Intent,
	}
	if t := c.pc.CurrentTrack(); t != nil {
		snap.Track = t
		snap.URL = t.URL
	}
	if c.pc.Instance != nil {
		snap.Position = c.pc.Instance.Position()
	}
	return snap
}

// State 返回控制器状态机当前状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc.State
}

// ---- 启动与恢复 ----

// Start 启动后台循环（睡眠定时器检查）
func (c *Controller) Start() {
	c.sleep.Start()
}

// Restore 从持久化状态恢复会话：列表、位置、模式、速率、睡眠定时器。
// 恢复后停在暂停态，不自动起播。
func (c *Controller) Restore(ctx context.Context) {
	if c.store == nil {
		return
	}
	snap, err := c.store.LoadSession(ctx)
	if err != nil {
		logger.Warn("恢复会话失败", logger.ErrorField(err))
	} else if snap != nil {
		c.mu.Lock()
		c.pc.Playlist.Tracks = snap.Playlist
		c.pc.Playlist.Index = snap.Index
		if snap.Mode != "" {
			c.pc.Playlist.Mode = snap.Mode
		}
		if snap.Rate > 0 {
			c.pc.Rate = snap.Rate
		}
		c.pc.State = StatePaused
		c.pc.Intent = false
		cur := c.pc.CurrentTrack()
		c.mu.Unlock()

		if cur != nil {
			if pos, err := c.store.LoadProgress(ctx, cur.ID); err == nil && pos > 0 {
				c.mu.Lock()
				c.resumeFrom = pos
				c.mu.Unlock()
			}
			c.lastTrackID = cur.ID
		}
		logger.Info("会话已恢复",
			logger.Int("playlistLen", len(snap.Playlist)),
			logger.Int("index", snap.Index))
	}
	c.sleep.Restore(ctx)
}

// SetPlaylist 替换播放列表
func (c *Controller) SetPlaylist(tracks []*model.Track, index int) {
	c.mu.Lock()
	c.pc.Playlist.Tracks = tracks
	if index < 0 || index >= len(tracks) {
		index = 0
	}
	c.pc.Playlist.Index = index
	c.mu.Unlock()
	c.persistSession()
}

// ---- 顶层操作 ----

// Play 播放指定曲目。
// 目标就是当前曲目且非强制重播时退化为切换暂停/继续，不重新装载。
func (c *Controller) Play(track *model.Track, force bool) error {
	if !c.tryLock("play") {
		return ErrLockContention
	}
	defer c.unlock()

	if track == nil {
		return c.startCurrent()
	}

	c.mu.Lock()
	cur := c.pc.CurrentTrack()
	if cur != nil && cur.ID == track.ID && !force && c.pc.Instance != nil {
		c.mu.Unlock()
		return c.toggleHeld()
	}

	// 不在列表中的曲目追加到末尾
	idx := -1
	for i, t := range c.pc.Playlist.Tracks {
		if t.ID == track.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.pc.Playlist.Tracks = append(c.pc.Playlist.Tracks, track)
		idx = len(c.pc.Playlist.Tracks) - 1
	}
	c.pc.Playlist.Index = idx
	c.mu.Unlock()

	err := c.startCurrent()
	if err != nil {
		c.settleFailure("播放失败", err)
	}
	return err
}

// PlayIndex 播放列表中指定下标的曲目
func (c *Controller) PlayIndex(i int) error {
	c.mu.Lock()
	track := c.pc.Playlist.At(i)
	c.mu.Unlock()
	if track == nil {
		return fmt.Errorf("%w: index %d", ErrIndex, i)
	}
	return c.Play(track, false)
}

// Toggle 播放/暂停切换
func (c *Controller) Toggle() error {
	if !c.tryLock("toggle") {
		return ErrLockContention
	}
	defer c.unlock()
	return c.toggleHeld()
}

// Pause 暂停播放
func (c *Controller) Pause() error {
	if !c.tryLock("pause") {
		return ErrLockContention
	}
	defer c.unlock()
	return c.pauseHeld()
}

// Resume 继续播放
func (c *Controller) Resume() error {
	if !c.tryLock("resume") {
		return ErrLockContention
	}
	defer c.unlock()
	return c.resumeHeld()
}

// Next 下一曲
func (c *Controller) Next() error {
	return c.navigate(1)
}

// Previous 上一曲
func (c *Controller) Previous() error {
	return c.navigate(-1)
}

// Seek 跳转到指定位置（秒）
func (c *Controller) Seek(t float64) error {
	if !c.tryLock("seek") {
		return ErrLockContention
	}
	defer c.unlock()

	c.mu.Lock()
	inst := c.pc.Instance
	track := c.pc.CurrentTrack()
	c.mu.Unlock()
	if inst == nil || track == nil {
		return fmt.Errorf("%w: nothing loaded", ErrIndex)
	}

	if t < 0 {
		t = 0
	}
	if d := inst.Duration(); d > 0 && t > d {
		t = d
	}
	if err := inst.Seek(t); err != nil {
		return fmt.Errorf("%w: seek: %v", ErrEngine, err)
	}

	// 可能向前也可能向后跳，歌词从头重扫
	c.mu.Lock()
	c.pc.Lyrics.Reset()
	c.mu.Unlock()
	c.clock.Reset()
	c.persistProgress(track.ID, t)
	return nil
}

// SetMode 设置播放模式
func (c *Controller) SetMode(mode model.PlayMode) {
	c.mu.Lock()
	c.pc.Playlist.Mode = mode
	c.mu.Unlock()
	c.persistSession()
}

// SetRate 设置播放速率
func (c *Controller) SetRate(rate float64) {
	if rate <= 0 {
		rate = 1.0
	}
	c.mu.Lock()
	c.pc.Rate = rate
	inst := c.pc.Instance
	c.mu.Unlock()
	if inst != nil {
		if err := inst.SetRate(rate); err != nil {
			logger.Warn("设置播放速率失败", logger.ErrorField(err))
		}
	}
	c.persistSession()
}

// SetLyricOffset 设置当前曲目的歌词校正偏移（秒，范围[-10,10]）
func (c *Controller) SetLyricOffset(offset float64) error {
	c.mu.Lock()
	track := c.pc.CurrentTrack()
	c.pc.Lyrics.SetOffset(offset)
	c.mu.Unlock()
	if track == nil {
		return fmt.Errorf("%w: no current track", ErrIndex)
	}
	if c.store != nil {
		return c.store.SetLyricOffset(context.Background(), track.ID, offset)
	}
	return nil
}

// LyricState 返回当前歌词文档、活动行下标与行内进度
func (c *Controller) LyricState() (*model.LyricDocument, int, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc := c.pc.Lyrics.Document()
	idx := c.pc.Lyrics.Current()
	var progress float64
	if c.pc.Instance != nil {
		progress = c.pc.Lyrics.ProgressAt(c.pc.Instance.Position())
	}
	return doc, idx, progress
}

// Teardown 幂等的统一关停入口：取消全部定时器、摘掉监听、
// 释放活动与预热的全部引擎实例。
func (c *Controller) Teardown() {
	c.teardown.Do(func() {
		c.mu.Lock()
		c.gen++ // 作废在途的验证窗口与事件
		c.pc.Intent = false
		inst := c.pc.Instance
		c.pc.Instance = nil
		c.pc.State = StateIdle
		c.mu.Unlock()

		c.clock.Halt()
		c.sleep.Stop()
		c.syncer.Teardown()
		if inst != nil {
			inst.Stop()
			inst.Release()
		}
		c.preloader.ReleaseAll()
		c.persistSession()
		logger.Info("播放控制器已关停")
	})
}

// ---- 内部流程（调用方持有操作锁） ----

func (c *Controller) toggleHeld() error {
	c.mu.Lock()
	inst := c.pc.Instance
	intent := c.pc.Intent
	c.mu.Unlock()

	if inst == nil {
		return c.startCurrent()
	}
	if intent {
		return c.pauseHeld()
	}
	return c.resumeHeld()
}

func (c *Controller) pauseHeld() error {
	c.mu.Lock()
	c.pc.Intent = false
	c.pc.State = StatePaused
	inst := c.pc.Instance
	c.mu.Unlock()

	if inst != nil {
		if err := inst.Pause(); err != nil {
			logger.Warn("暂停失败", logger.ErrorField(err))
		}
	}
	c.syncer.StopCadence()
	c.persistSession()
	return nil
}

func (c *Controller) resumeHeld() error {
	c.mu.Lock()
	inst := c.pc.Instance
	c.pc.Intent = true
	c.mu.Unlock()

	if inst == nil {
		return c.startCurrent()
	}
	if err := inst.Play(); err != nil {
		return fmt.Errorf("%w: resume: %v", ErrEngine, err)
	}
	c.mu.Lock()
	c.pc.State = StatePlaying
	c.mu.Unlock()
	c.clock.Kick()
	c.syncer.StartCadence(c.updateMessage)
	c.persistSession()
	return nil
}

// startCurrent 装载并起播当前曲目。失败时返回错误，是否收敛由调用方定。
func (c *Controller) startCurrent() error {
	c.mu.Lock()
	track := c.pc.CurrentTrack()
	if track == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: empty playlist", ErrIndex)
	}
	c.pc.Intent = true
	c.pc.State = StateResolving
	c.retried = false
	track.Loading = true

	// 旧实例先停掉再换新
	if inst := c.pc.Instance; inst != nil {
		c.pc.Instance = nil
		c.mu.Unlock()
		inst.Stop()
		inst.Release()
	} else {
		c.mu.Unlock()
	}

	c.attachLyrics(track)

	url, err := c.resolveWithRetry(track)
	c.mu.Lock()
	track.Loading = false
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		c.pc.State = StateFailing
		c.mu.Unlock()
		return err
	}

	return c.engage(track, url)
}

// resolveWithRetry 解析地址；失败且意图仍是播放时作废旧地址再试一次
func (c *Controller) resolveWithRetry(track *model.Track) (string, error) {
	ctx := context.Background()
	url, err := c.resolver.Resolve(ctx, track)
	if err == nil {
		return url, nil
	}
	if !c.intentNow() {
		return "", err
	}
	logger.Warn("解析失败，作废地址后重试一次",
		logger.String("trackId", track.ID), logger.ErrorField(err))
	track.InvalidateURL()
	return c.resolver.Resolve(ctx, track)
}

// engage 把解析好的地址交给引擎并起播
func (c *Controller) engage(track *model.Track, url string) error {
	// 预热实例优先提升为活动实例
	inst := c.preloader.Take(url)
	if inst == nil {
		var err error
		inst, err = c.eng.Load(url)
		if err != nil {
			c.mu.Lock()
			c.pc.State = StateFailing
			c.mu.Unlock()
			return fmt.Errorf("%w: load: %v", ErrEngine, err)
		}
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.pc.Instance = inst
	rate := c.pc.Rate
	changed := c.lastTrackID != track.ID
	c.lastTrackID = track.ID
	seekTo := c.resumeFrom
	c.resumeFrom = 0
	c.mu.Unlock()

	inst.OnEvent(c.eventHandler(gen))
	if rate != 1.0 {
		if err := inst.SetRate(rate); err != nil {
			logger.Warn("设置播放速率失败", logger.ErrorField(err))
		}
	}
	if seekTo > 0 {
		if err := inst.Seek(seekTo); err != nil {
			logger.Warn("恢复进度跳转失败", logger.ErrorField(err))
		}
	}

	if changed {
		c.clock.Reset()
		// 切歌事件：睡眠定时器先收到通知，可能直接触发停止
		c.sleep.OnTrackChange(c.playlistSnapshot())
		c.syncer.OnTrackChange(c.fullMessage)
		go c.preloadNext()
	}

	// 起播前复核意图：切歌通知可能已触发睡眠停止
	if !c.intentNow() {
		c.mu.Lock()
		c.pc.State = StatePaused
		c.mu.Unlock()
		c.persistSession()
		return nil
	}

	if err := inst.Play(); err != nil {
		c.mu.Lock()
		c.pc.State = StateFailing
		c.mu.Unlock()
		return fmt.Errorf("%w: play: %v", ErrEngine, err)
	}

	c.mu.Lock()
	c.pc.State = StatePlaying
	c.mu.Unlock()

	c.clock.Kick()
	c.syncer.StartCadence(c.updateMessage)
	c.armVerification(gen)
	c.persistSession()
	return nil
}

// armVerification 有界的播放后验证：窗口结束时引擎还没真正在播、
// 且意图仍是播放，就作废地址自动重试一次。
func (c *Controller) armVerification(gen int) {
	window := c.tuningNow().VerifyWindow
	time.AfterFunc(window, func() {
		c.verifyPlayback(gen)
	})
}

func (c *Controller) verifyPlayback(gen int) {
	c.mu.Lock()
	stale := gen != c.gen
	intent := c.pc.Intent
	inst := c.pc.Instance
	retried := c.retried
	track := c.pc.CurrentTrack()
	c.mu.Unlock()

	if stale || !intent || track == nil {
		return
	}
	if inst != nil && inst.Playing() {
		return
	}

	if retried {
		c.settleFailure("播放验证失败", ErrEngine)
		return
	}

	// 验证重试与用户操作竞争时让位，不排队
	if !c.tryLock("verify-retry") {
		return
	}
	defer c.unlock()

	logger.Warn("播放验证未通过，作废地址重试", logger.String("trackId", track.ID))
	c.mu.Lock()
	c.retried = true
	c.mu.Unlock()
	track.InvalidateURL()

	url, err := c.resolver.Resolve(context.Background(), track)
	if err != nil {
		c.settleFailure("重试解析失败", err)
		return
	}
	if err := c.engage(track, url); err != nil {
		c.settleFailure("重试起播失败", err)
	}
}

// eventHandler 绑定到当前代次的引擎事件处理
func (c *Controller) eventHandler(gen int) engine.Handler {
	return func(ev engine.Event, err error) {
		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale {
			return
		}

		switch ev {
		case engine.EventEnd:
			go c.onTrackEnd()
		case engine.EventError:
			go c.onEngineError(err)
		case engine.EventPlay:
			c.mu.Lock()
			if c.pc.Intent {
				c.pc.State = StatePlaying
			}
			c.mu.Unlock()
			c.clock.Kick()
		case engine.EventPause:
			c.mu.Lock()
			if !c.pc.Intent {
				c.pc.State = StatePaused
			}
			c.mu.Unlock()
		}
	}
}

// onTrackEnd 曲目自然结束：单曲循环原地重播，其余模式自动切下一曲
func (c *Controller) onTrackEnd() {
	c.mu.Lock()
	mode := c.pc.Playlist.Mode
	inst := c.pc.Instance
	intent := c.pc.Intent
	c.mu.Unlock()

	if !intent {
		return
	}

	if mode == model.ModeRepeatOne {
		// 单曲循环每播完一遍也算一首，song-count 定时器照常递减，
		// 触发停止时跳过重播
		c.sleep.OnTrackChange(c.playlistSnapshot())
		if !c.intentNow() {
			return
		}
		if inst != nil {
			if err := inst.Seek(0); err == nil {
				if err := inst.Play(); err != nil {
					logger.Warn("单曲循环重播失败", logger.ErrorField(err))
				}
			}
		}
		c.mu.Lock()
		c.pc.Lyrics.Reset()
		c.mu.Unlock()
		c.clock.Reset()
		return
	}

	if err := c.Next(); err != nil && !errors.Is(err, ErrLockContention) {
		logger.Error("自动切歌失败", logger.ErrorField(err))
	}
}

// onEngineError 引擎播放失败：意图仍是播放时作废地址重试一次。
// 期间用户把意图翻成暂停会压制重试，失败不会复活已被停掉的播放。
func (c *Controller) onEngineError(cause error) {
	c.mu.Lock()
	intent := c.pc.Intent
	retried := c.retried
	track := c.pc.CurrentTrack()
	c.mu.Unlock()

	logger.Warn("引擎播放错误", logger.ErrorField(cause))
	if !intent || track == nil {
		return
	}
	if retried {
		c.settleFailure("引擎重试后仍失败", ErrEngine)
		return
	}
	if !c.tryLock("error-retry") {
		return
	}
	defer c.unlock()

	c.mu.Lock()
	c.retried = true
	c.mu.Unlock()
	track.InvalidateURL()

	url, err := c.resolver.Resolve(context.Background(), track)
	if err != nil {
		c.settleFailure("错误恢复解析失败", err)
		return
	}
	if err := c.engage(track, url); err != nil {
		c.settleFailure("错误恢复起播失败", err)
	}
}

// ---- 导航 ----

// navigate 带有界重试的切歌：解析失败的曲目从列表移除后按原方向再算一次，
// 已尝试集合保证列表收缩时也终止；次数用尽后停止播放并上报失败，
// 停在最后尝试的位置，不回滚。
func (c *Controller) navigate(dir int) error {
	op := "next"
	maxAttempts := c.tuningNow().NextRetries
	if dir < 0 {
		op = "previous"
		maxAttempts = c.tuningNow().PrevRetries
	}

	if !c.tryLock(op) {
		return ErrLockContention
	}
	defer c.unlock()

	c.mu.Lock()
	if c.pc.Playlist.Len() == 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: empty playlist", ErrIndex)
	}
	c.pc.Intent = true
	c.mu.Unlock()

	policy := newRetryPolicy(maxAttempts)
	for {
		disliked := c.dislikedSnapshot(dir)
		c.mu.Lock()
		if c.pc.Playlist.Len() == 0 {
			c.mu.Unlock()
			return c.giveUp(op, policy, fmt.Errorf("%w: playlist exhausted", ErrResolution))
		}
		idx := c.computeIndexLocked(dir, disliked)
		c.pc.Playlist.Index = idx
		track := c.pc.Playlist.Current()
		c.mu.Unlock()

		if !policy.Allow(track.ID) {
			return c.giveUp(op, policy, fmt.Errorf("%w: retries exhausted", ErrResolution))
		}

		err := c.startCurrent()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrResolution) {
			c.settleFailure(op+"起播失败", err)
			return err
		}

		policy.Mark(track.ID)
		c.removeFailed(track.ID, dir)
		logger.Warn("曲目解析失败，从列表移除后继续",
			logger.String("op", op),
			logger.String("trackId", track.ID),
			logger.Int("attempts", policy.Attempts()))

		if policy.Exhausted() {
			return c.giveUp(op, policy, fmt.Errorf("%w: retries exhausted", ErrResolution))
		}
	}
}

// computeIndexLocked 按模式计算导航目标下标，调用方需持 c.mu。
// disliked 是持锁之外预取的不喜欢标记，只在顺序前进时参与
func (c *Controller) computeIndexLocked(dir int, disliked map[string]bool) int {
	pl := c.pc.Playlist
	n := pl.Len()
	if n == 1 {
		return 0
	}

	if pl.Mode == model.ModeShuffle {
		// 均匀随机但排除当前下标
		for {
			i := c.rand.Intn(n)
			if i != pl.Index {
				return i
			}
		}
	}

	idx := (pl.Index + dir + n) % n
	if pl.Mode == model.ModeSequential && dir > 0 {
		idx = c.skipDislikedLocked(idx, disliked)
	}
	return idx
}

// dislikedSnapshot 在持锁之外预取整张列表的不喜欢标记，
// 存储查询是网络往返，不能压在 c.mu 下执行
func (c *Controller) dislikedSnapshot(dir int) map[string]bool {
	if c.store == nil || dir <= 0 {
		return nil
	}
	c.mu.Lock()
	if c.pc.Playlist.Mode != model.ModeSequential {
		c.mu.Unlock()
		return nil
	}
	ids := make([]string, 0, c.pc.Playlist.Len())
	for _, t := range c.pc.Playlist.Tracks {
		ids = append(ids, t.ID)
	}
	c.mu.Unlock()

	ctx := context.Background()
	var disliked map[string]bool
	for _, id := range ids {
		hit, err := c.store.IsDisliked(ctx, id)
		if err != nil || !hit {
			continue
		}
		if disliked == nil {
			disliked = make(map[string]bool)
		}
		disliked[id] = true
	}
	return disliked
}

// skipDislikedLocked 顺序前进时跳过被标记不喜欢的曲目；全都不喜欢时原样返回
func (c *Controller) skipDislikedLocked(idx int, disliked map[string]bool) int {
	if len(disliked) == 0 {
		return idx
	}
	n := c.pc.Playlist.Len()
	for step := 0; step < n; step++ {
		probe := (idx + step) % n
		track := c.pc.Playlist.At(probe)
		if track == nil {
			return idx
		}
		if !disliked[track.ID] {
			return probe
		}
	}
	return idx
}

// removeFailed 移除解析失败的曲目并校正下标，
// 使同方向的下一次计算落在紧随其后的候选上
func (c *Controller) removeFailed(trackID string, dir int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pl := c.pc.Playlist
	removed := -1
	for i, t := range pl.Tracks {
		if t.ID == trackID {
			removed = i
			break
		}
	}
	if removed == -1 {
		return
	}
	pl.RemoveAt(removed)

	n := pl.Len()
	if n == 0 {
		return
	}
	if dir > 0 {
		pl.Index = ((removed - 1) + n) % n
	} else {
		pl.Index = removed % n
	}
}

// giveUp 导航重试用尽：停止播放，上报用户可见失败，保持最后尝试位置
func (c *Controller) giveUp(op string, policy *retryPolicy, cause error) error {
	logger.Error("切歌重试次数用尽，停止播放",
		logger.String("op", op),
		logger.Int("attempts", policy.Attempts()),
		logger.ErrorField(cause))
	c.settleFailure(op+"失败", cause)
	return cause
}

// settleFailure 失败收敛：意图翻成暂停，状态落到 paused/idle，不再无限循环
func (c *Controller) settleFailure(reason string, cause error) {
	c.mu.Lock()
	c.pc.Intent = false
	if c.pc.Instance != nil {
		c.pc.State = StatePaused
	} else {
		c.pc.State = StateIdle
	}
	c.mu.Unlock()

	c.syncer.StopCadence()
	logger.Error("播放失败通知",
		logger.String("reason", reason),
		logger.ErrorField(cause))
	c.persistSession()
}

// sleepStop 睡眠定时器请求的停止，独立于操作锁执行
func (c *Controller) sleepStop(reason string) {
	c.mu.Lock()
	c.pc.Intent = false
	c.pc.State = StatePaused
	inst := c.pc.Instance
	c.mu.Unlock()

	if inst != nil {
		if err := inst.Pause(); err != nil {
			logger.Warn("睡眠停止暂停失败", logger.ErrorField(err))
		}
	}
	c.syncer.StopCadence()
	logger.Info("睡眠定时器已停止播放", logger.String("reason", reason))
	c.persistSession()
}

// ---- 歌词与预热 ----

// attachLyrics 给曲目挂歌词：已解析过的直接复用，否则拉取并解析。
// 拉取失败不致命，挂空文档。
func (c *Controller) attachLyrics(track *model.Track) {
	var offset float64
	if c.store != nil {
		if v, err := c.store.LyricOffset(context.Background(), track.ID); err == nil {
			offset = v
		}
	}

	c.mu.Lock()
	doc, ok := c.lyricDocs[track.ID]
	c.mu.Unlock()

	if !ok {
		raw, err := c.catalog.GetLyric(track.ID)
		if err != nil {
			logger.Warn("歌词获取失败", logger.String("trackId", track.ID), logger.ErrorField(err))
			doc = &model.LyricDocument{TrackID: track.ID}
		} else {
			doc = lyric.Parse(track.ID, raw.Lyric, raw.Trans)
		}
		c.mu.Lock()
		c.lyricDocs[track.ID] = doc
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.pc.Lyrics = lyric.NewEngine(doc, offset)
	c.mu.Unlock()
}

// preloadNext 预热下一首：按当前模式算出将要播放的曲目并解析其地址。
// 单曲循环不预热。全程失败非致命。
func (c *Controller) preloadNext() {
	c.mu.Lock()
	pl := c.pc.Playlist
	if pl.Mode == model.ModeRepeatOne || pl.Len() < 2 {
		c.mu.Unlock()
		return
	}
	idx := c.computeIndexLocked(1, nil)
	next := pl.At(idx)
	c.mu.Unlock()

	if next == nil {
		return
	}
	url, err := c.resolver.Resolve(context.Background(), next)
	if err != nil {
		logger.Debug("下一曲地址解析失败，跳过预热",
			logger.String("trackId", next.ID), logger.ErrorField(err))
		return
	}
	c.preloader.Preload(url)
}

// ---- 时间发布与持久化 ----

// publishTime 进度采样的发布回调：驱动歌词活动行计算
func (c *Controller) publishTime(t float64) {
	c.mu.Lock()
	prev := c.pc.Lyrics.Current()
	idx := c.pc.Lyrics.IndexAt(t)
	c.mu.Unlock()

	if idx != prev {
		// 活动行变化也要保证采样循环在跑
		c.clock.Kick()
	}
}

func (c *Controller) persistProgress(trackID string, t float64) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveProgress(context.Background(), trackID, t); err != nil {
		logger.Debug("进度落盘失败", logger.ErrorField(err))
	}
}

func (c *Controller) persistSession() {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if err := c.store.SaveSession(context.Background(), &snap); err != nil {
		logger.Debug("会话落盘失败", logger.ErrorField(err))
	}
}

func (c *Controller) playlistSnapshot() PlaylistSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PlaylistSnapshot{
		Index:  c.pc.Playlist.Index,
		Length: c.pc.Playlist.Len(),
		Mode:   c.pc.Playlist.Mode,
	}
}

// ---- 副屏消息 ----

// fullMessage 组装切歌时的全量快照消息
func (c *Controller) fullMessage() SyncMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc := c.pc.Lyrics.Document()
	idx := c.pc.Lyrics.Current()
	start, next := c.pc.Lyrics.LineWindow(idx)

	msg := SyncMessage{
		Type:       SyncFull,
		Index:      idx,
		StartTime:  start,
		NextTime:   next,
		Playing:    c.pc.Intent,
		Lines:      doc.Lines,
		Timestamps: doc.Timestamps,
		Track:      c.pc.CurrentTrack(),
	}
	if c.pc.Instance != nil {
		msg.Time = c.pc.Instance.Position()
		msg.DurationTotal = c.pc.Instance.Duration()
	}
	return msg
}

// updateMessage 组装播放中的轻量进度消息
func (c *Controller) updateMessage() (SyncMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst := c.pc.Instance
	if inst == nil {
		return SyncMessage{}, false
	}
	return SyncMessage{
		Type:    SyncUpdate,
		Index:   c.pc.Lyrics.Current(),
		Time:    inst.Position(),
		Playing: c.pc.Intent && inst.Playing(),
	}, true
}
