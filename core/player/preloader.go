package player

import (
	"sync"
	"time"

	"EchoFM/engine"
	"EchoFM/logger"
)

// Preloader 预热服务：在当前曲目播放时提前装载下一首的地址。
// 预热实例归本服务所有，上限之外最旧的先被停止释放；
// 预热失败不致命，只记日志，绝不影响当前播放。
type Preloader struct {
	eng      engine.Engine
	capacity func() int

	mu    sync.Mutex
	slots []*preloadSlot
	// 正在装载中的地址，避免重复预热
	warming map[string]bool
}

type preloadSlot struct {
	url      string
	inst     engine.Instance
	warmedAt time.Time
}

// NewPreloader 创建预热服务
func NewPreloader(eng engine.Engine, capacity func() int) *Preloader {
	return &Preloader{
		eng:      eng,
		capacity: capacity,
		warming:  make(map[string]bool),
	}
}

// Preload 异步预热指定地址，已有同地址的预热实例时直接复用
func (p *Preloader) Preload(url string) {
	if url == "" {
		return
	}

	p.mu.Lock()
	if p.warming[url] || p.find(url) != nil {
		p.mu.Unlock()
		return
	}
	p.warming[url] = true
	p.mu.Unlock()

	go p.warm(url)
}

func (p *Preloader) warm(url string) {
	inst, err := p.eng.Load(url)

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.warming, url)

	if err != nil {
		logger.Warn("预热失败", logger.String("url", url), logger.ErrorField(err))
		return
	}

	// 装载期间可能已被 Take 过同地址的请求，直接丢弃多余实例
	if p.find(url) != nil {
		inst.Release()
		return
	}

	p.slots = append(p.slots, &preloadSlot{url: url, inst: inst, warmedAt: time.Now()})
	p.evictLocked()
	logger.Debug("预热完成", logger.String("url", url), logger.Int("slots", len(p.slots)))
}

// evictLocked 超出容量时停止并释放最旧的预热实例
func (p *Preloader) evictLocked() {
	capacity := p.capacity()
	if capacity < 1 {
		capacity = 1
	}
	for len(p.slots) > capacity {
		oldest := p.slots[0]
		p.slots = p.slots[1:]
		oldest.inst.Stop()
		oldest.inst.Release()
		logger.Debug("预热实例被淘汰", logger.String("url", oldest.url))
	}
}

// Take 取走指定地址的预热实例并移交所有权，没有时返回 nil
func (p *Preloader) Take(url string) engine.Instance {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, s := range p.slots {
		if s.url == url {
			p.slots = append(p.slots[:i], p.slots[i+1:]...)
			return s.inst
		}
	}
	return nil
}

// Count 返回当前预热实例数
func (p *Preloader) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// URLs 返回当前预热的地址，按预热时间排序
func (p *Preloader) URLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	urls := make([]string, len(p.slots))
	for i, s := range p.slots {
		urls[i] = s.url
	}
	return urls
}

// ReleaseAll 停止并释放全部预热实例，幂等
func (p *Preloader) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		s.inst.Stop()
		s.inst.Release()
	}
	p.slots = nil
}

// find 查找指定地址的预热槽，调用方需持锁
func (p *Preloader) find(url string) *preloadSlot {
	for _, s := range p.slots {
		if s.url == url {
			return s
		}
	}
	return nil
}
