package player

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"EchoFM/catalog"
	"EchoFM/config"
	"EchoFM/engine"
	"EchoFM/model"
)

// testTuning 测试用的调优参数：时间参数缩短，行为参数与默认一致
func testTuning() config.PlaybackTuning {
	return config.PlaybackTuning{
		ClockInterval:    10 * time.Millisecond,
		DampingThreshold: 0.3,
		URLTTL:           30 * time.Minute,
		VerifyWindow:     40 * time.Millisecond,
		PreloadCapacity:  2,
		NextRetries:      3,
		PrevRetries:      2,
		SyncCadence:      20 * time.Millisecond,
		SyncFollowUp:     10 * time.Millisecond,
		SleepTick:        10 * time.Millisecond,
	}
}

// waitFor 轮询等待条件成立，超时判失败
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("等待超时: %s", msg)
}

// ---- 引擎假件 ----

type fakeInstance struct {
	mu       sync.Mutex
	url      string
	playing  bool
	ready    bool
	position float64
	duration float64
	rate     float64
	stopped  bool
	released bool
	seeks    []float64
	playCnt  int
	handler  engine.Handler

	playErr error
	seekErr error
	// stuck 为真时 Play 成功返回但 Playing 始终为假，模拟卡死的装载
	stuck bool
}

func (i *fakeInstance) Play() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.playErr != nil {
		return i.playErr
	}
	i.playCnt++
	if !i.stuck {
		i.playing = true
	}
	return nil
}

func (i *fakeInstance) Pause() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.playing = false
	return nil
}

func (i *fakeInstance) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.playing = false
	i.stopped = true
	return nil
}

func (i *fakeInstance) Seek(seconds float64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.seekErr != nil {
		return i.seekErr
	}
	i.seeks = append(i.seeks, seconds)
	i.position = seconds
	return nil
}

func (i *fakeInstance) SetRate(rate float64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.rate = rate
	return nil
}

func (i *fakeInstance) Duration() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.duration
}

func (i *fakeInstance) Position() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.position
}

func (i *fakeInstance) Playing() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.playing
}

func (i *fakeInstance) Ready() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ready
}

func (i *fakeInstance) URL() string { return i.url }

func (i *fakeInstance) OnEvent(fn engine.Handler) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handler = fn
}

func (i *fakeInstance) Release() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.released = true
}

// fire 模拟引擎上报事件
func (i *fakeInstance) fire(ev engine.Event, err error) {
	i.mu.Lock()
	h := i.handler
	i.mu.Unlock()
	if h != nil {
		h(ev, err)
	}
}

func (i *fakeInstance) isReleased() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.released
}

type fakeEngine struct {
	mu        sync.Mutex
	instances []*fakeInstance
	loadErr   map[string]error
	// stuckLoads 剩余多少次装载产出卡死实例
	stuckLoads int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{loadErr: make(map[string]error)}
}

func (e *fakeEngine) Load(url string) (engine.Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.loadErr[url]; err != nil {
		return nil, err
	}
	inst := &fakeInstance{url: url, ready: true, duration: 180}
	if e.stuckLoads > 0 {
		e.stuckLoads--
		inst.stuck = true
	}
	e.instances = append(e.instances, inst)
	return inst, nil
}

func (e *fakeEngine) loadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}

func (e *fakeEngine) lastInstance() *fakeInstance {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.instances) == 0 {
		return nil
	}
	return e.instances[len(e.instances)-1]
}

// ---- 曲库目录假件 ----

type fakeCatalog struct {
	mu         sync.Mutex
	urls       map[string]*catalog.SongURL
	alternates map[string]*catalog.AlternateURL // key: trackID+"|"+source
	lyrics     map[string]*model.RawLyric
	songCalls  map[string]int
	parseCalls map[string]int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		urls:       make(map[string]*catalog.SongURL),
		alternates: make(map[string]*catalog.AlternateURL),
		lyrics:     make(map[string]*model.RawLyric),
		songCalls:  make(map[string]int),
		parseCalls: make(map[string]int),
	}
}

func (f *fakeCatalog) setURL(trackID, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls[trackID] = &catalog.SongURL{URL: url}
}

func (f *fakeCatalog) GetSongURL(trackID string) (*catalog.SongURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.songCalls[trackID]++
	if u, ok := f.urls[trackID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("未找到歌曲数据")
}

func (f *fakeCatalog) ParseAlternate(trackID, source string) (*catalog.AlternateURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parseCalls[trackID]++
	if alt, ok := f.alternates[trackID+"|"+source]; ok {
		return alt, nil
	}
	return nil, fmt.Errorf("备用音源未返回地址")
}

func (f *fakeCatalog) GetLyric(trackID string) (*model.RawLyric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.lyrics[trackID]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("暂无歌词")
}

func (f *fakeCatalog) songCallCount(trackID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.songCalls[trackID]
}

// ---- 持久化假件 ----

type fakeStore struct {
	mu        sync.Mutex
	session   *model.PlaybackSnapshot
	progress  map[string]float64
	offsets   map[string]float64
	sleep     model.SleepTimerState
	dislikes  map[string]bool
	sleepSave int

	// dislikeGate 非空时 IsDisliked 返回前阻塞，模拟慢的存储往返
	dislikeGate    chan struct{}
	dislikeWaiting int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		progress: make(map[string]float64),
		offsets:  make(map[string]float64),
		dislikes: make(map[string]bool),
	}
}

func (s *fakeStore) SaveSession(ctx context.Context, snap *model.PlaybackSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = snap
	return nil
}

func (s *fakeStore) LoadSession(ctx context.Context) (*model.PlaybackSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, nil
}

func (s *fakeStore) SaveProgress(ctx context.Context, trackID string, position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[trackID] = position
	return nil
}

func (s *fakeStore) LoadProgress(ctx context.Context, trackID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[trackID], nil
}

func (s *fakeStore) SetLyricOffset(ctx context.Context, trackID string, offset float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[trackID] = offset
	return nil
}

func (s *fakeStore) LyricOffset(ctx context.Context, trackID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsets[trackID], nil
}

func (s *fakeStore) SaveSleepTimer(ctx context.Context, state model.SleepTimerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleep = state
	s.sleepSave++
	return nil
}

func (s *fakeStore) LoadSleepTimer(ctx context.Context) (model.SleepTimerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sleep, nil
}

func (s *fakeStore) ClearSleepTimer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleep = model.SleepTimerState{Mode: model.SleepNone}
	return nil
}

func (s *fakeStore) IsDisliked(ctx context.Context, trackID string) (bool, error) {
	s.mu.Lock()
	gate := s.dislikeGate
	hit := s.dislikes[trackID]
	if gate != nil {
		s.dislikeWaiting++
	}
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return hit, nil
}

func (s *fakeStore) waitingDislikes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dislikeWaiting
}

// ---- 音源固定假件 ----

type fakeRepo struct {
	mu        sync.Mutex
	overrides map[string]string
	upserts   []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{overrides: make(map[string]string)}
}

func (r *fakeRepo) Upsert(ctx context.Context, track *model.Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, track.ID)
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*model.Track, error) {
	return nil, nil
}

func (r *fakeRepo) SetOverride(ctx context.Context, trackID, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[trackID] = source
	return nil
}

func (r *fakeRepo) GetOverride(ctx context.Context, trackID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overrides[trackID], nil
}

func (r *fakeRepo) ClearOverride(ctx context.Context, trackID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, trackID)
	return nil
}

// ---- 副屏假件 ----

type fakeSink struct {
	mu   sync.Mutex
	open bool
	msgs []SyncMessage
}

func (s *fakeSink) Push(msg SyncMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *fakeSink) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *fakeSink) last() SyncMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return SyncMessage{}
	}
	return s.msgs[len(s.msgs)-1]
}

func testTrack(id string) *model.Track {
	return &model.Track{ID: id, Title: "曲目" + id, Artist: "测试"}
}
