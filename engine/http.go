package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"EchoFM/logger"
)

// HTTPEngine 通过HTTP桥接外部音频引擎服务
type HTTPEngine struct {
	baseURL    string
	httpClient *http.Client

	// 事件轮询间隔；引擎服务不提供推送通道，状态变化由轮询比对得出
	pollInterval time.Duration
}

// NewHTTPEngine 创建HTTP引擎桥
func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEngine{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: 250 * time.Millisecond,
	}
}

// instanceState 引擎服务返回的实例状态
type instanceState struct {
	ID       string  `json:"id"`
	URL      string  `json:"url"`
	Playing  bool    `json:"playing"`
	Ready    bool    `json:"ready"`
	Ended    bool    `json:"ended"`
	Error    string  `json:"error,omitempty"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

// Load 在引擎服务上装载一个地址，返回播放实例
func (e *HTTPEngine) Load(url string) (Instance, error) {
	body, _ := json.Marshal(map[string]string{"url": url})
	resp, err := e.httpClient.Post(e.baseURL+"/instances", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("装载失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("引擎服务返回错误状态码: %d", resp.StatusCode)
	}

	var state instanceState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("解析引擎响应失败: %w", err)
	}

	inst := &httpInstance{
		engine: e,
		id:     state.ID,
		url:    url,
		done:   make(chan struct{}),
	}
	inst.state.Store(&state)
	go inst.pollEvents()
	return inst, nil
}

// httpInstance HTTP桥接的播放实例
type httpInstance struct {
	engine *HTTPEngine
	id     string
	url    string

	state stateBox

	mu       sync.Mutex
	handler  Handler
	done     chan struct{}
	doneOnce sync.Once
}

// stateBox 保存最近一次轮询到的状态
type stateBox struct {
	mu  sync.RWMutex
	val *instanceState
}

func (p *stateBox) Store(s *instanceState) {
	p.mu.Lock()
	p.val = s
	p.mu.Unlock()
}

func (p *stateBox) Load() *instanceState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.val
}

func (i *httpInstance) command(action string, params map[string]interface{}) error {
	payload := map[string]interface{}{"action": action}
	for k, v := range params {
		payload[k] = v
	}
	body, _ := json.Marshal(payload)
	resp, err := i.engine.httpClient.Post(
		fmt.Sprintf("%s/instances/%s/command", i.engine.baseURL, i.id),
		"application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("引擎指令失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("引擎指令返回错误状态码: %d", resp.StatusCode)
	}
	return nil
}

func (i *httpInstance) Play() error  { return i.command("play", nil) }
func (i *httpInstance) Pause() error { return i.command("pause", nil) }
func (i *httpInstance) Stop() error  { return i.command("stop", nil) }

func (i *httpInstance) Seek(seconds float64) error {
	return i.command("seek", map[string]interface{}{"position": seconds})
}

func (i *httpInstance) SetRate(rate float64) error {
	return i.command("rate", map[string]interface{}{"rate": rate})
}

func (i *httpInstance) Duration() float64 {
	if s := i.state.Load(); s != nil {
		return s.Duration
	}
	return 0
}

func (i *httpInstance) Position() float64 {
	if s := i.state.Load(); s != nil {
		return s.Position
	}
	return 0
}

func (i *httpInstance) Playing() bool {
	if s := i.state.Load(); s != nil {
		return s.Playing
	}
	return false
}

func (i *httpInstance) Ready() bool {
	if s := i.state.Load(); s != nil {
		return s.Ready
	}
	return false
}

func (i *httpInstance) URL() string {
	return i.url
}

func (i *httpInstance) OnEvent(fn Handler) {
	i.mu.Lock()
	i.handler = fn
	i.mu.Unlock()
}

// Release 停止实例并释放引擎侧资源，可重复调用
func (i *httpInstance) Release() {
	i.doneOnce.Do(func() {
		close(i.done)
	})
	if err := i.command("release", nil); err != nil {
		logger.Debug("释放引擎实例失败", logger.String("id", i.id), logger.ErrorField(err))
	}
}

// pollEvents 轮询引擎服务状态并将变化合成为事件
func (i *httpInstance) pollEvents() {
	ticker := time.NewTicker(i.engine.pollInterval)
	defer ticker.Stop()

	var prev instanceState
	if s := i.state.Load(); s != nil {
		prev = *s
	}

	for {
		select {
		case <-i.done:
			return
		case <-ticker.C:
			cur, err := i.fetchState()
			if err != nil {
				continue
			}
			i.state.Store(cur)
			i.dispatch(prev, *cur)
			prev = *cur
		}
	}
}

func (i *httpInstance) fetchState() (*instanceState, error) {
	resp, err := i.engine.httpClient.Get(
		fmt.Sprintf("%s/instances/%s", i.engine.baseURL, i.id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("引擎状态查询返回: %d", resp.StatusCode)
	}
	var state instanceState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (i *httpInstance) dispatch(prev, cur instanceState) {
	i.mu.Lock()
	handler := i.handler
	i.mu.Unlock()
	if handler == nil {
		return
	}

	if cur.Error != "" && prev.Error == "" {
		handler(EventError, fmt.Errorf("%s", cur.Error))
		return
	}
	if cur.Ended && !prev.Ended {
		handler(EventEnd, nil)
		return
	}
	if cur.Playing && !prev.Playing {
		handler(EventPlay, nil)
	}
	if !cur.Playing && prev.Playing && !cur.Ended {
		handler(EventPause, nil)
	}
}
