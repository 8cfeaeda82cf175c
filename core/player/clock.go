package player

import (
	"sync"
	"time"

	"EchoFM/engine"
)

// Clock 进度采样循环：固定短间隔轮询引擎位置，而不是依赖引擎推送。
// 采样经过阻尼：变化量超过阈值或跨越整秒边界才对外发布，
// 偶数秒把位置落盘用于会话恢复。意图变为暂停时循环自行停止。
type Clock struct {
	interval func() time.Duration
	damping  func() float64

	intent   func() bool
	instance func() engine.Instance
	trackID  func() string
	publish  func(t float64)
	persist  func(trackID string, t float64)

	mu            sync.Mutex
	running       bool
	stopChan      chan struct{}
	lastPublished float64
	lastPersisted int64
}

// NewClock 创建进度采样循环
func NewClock(
	interval func() time.Duration,
	damping func() float64,
	intent func() bool,
	instance func() engine.Instance,
	trackID func() string,
	publish func(t float64),
	persist func(trackID string, t float64),
) *Clock {
	return &Clock{
		interval:      interval,
		damping:       damping,
		intent:        intent,
		instance:      instance,
		trackID:       trackID,
		publish:       publish,
		persist:       persist,
		lastPersisted: -1,
	}
}

// Kick 确保采样循环在运行。
// 意图转为播放、歌词活动行变化、换了引擎实例时都会被调用，幂等。
func (c *Clock) Kick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopChan = make(chan struct{})
	go c.loop(c.stopChan)
}

// Reset 换曲目时清除阻尼基准
func (c *Clock) Reset() {
	c.mu.Lock()
	c.lastPublished = 0
	c.lastPersisted = -1
	c.mu.Unlock()
}

// Halt 停止采样循环，幂等
func (c *Clock) Halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopChan)
}

func (c *Clock) loop(stop chan struct{}) {
	ticker := time.NewTicker(c.interval())
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.intent() {
				// 意图已是暂停，循环停下，下次 Kick 再起
				c.mu.Lock()
				if c.running && c.stopChan == stop {
					c.running = false
					close(c.stopChan)
				}
				c.mu.Unlock()
				return
			}
			c.Sample()
		}
	}
}

// Sample 执行一次采样。引擎未就绪时什么也不做，留待下个tick重试。
func (c *Clock) Sample() {
	inst := c.instance()
	if inst == nil || !inst.Ready() {
		return
	}

	t := inst.Position()

	c.mu.Lock()
	shouldPublish := abs(t-c.lastPublished) >= c.damping() ||
		int64(t) != int64(c.lastPublished)
	if shouldPublish {
		c.lastPublished = t
	}

	sec := int64(t)
	shouldPersist := sec%2 == 0 && sec != c.lastPersisted
	if shouldPersist {
		c.lastPersisted = sec
	}
	c.mu.Unlock()

	if shouldPublish && c.publish != nil {
		c.publish(t)
	}
	if shouldPersist && c.persist != nil {
		if id := c.trackID(); id != "" {
			c.persist(id, t)
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
