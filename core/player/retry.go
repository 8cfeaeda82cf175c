package player

// retryPolicy 有界重试策略：最大尝试次数加已尝试集合。
// next/previous 导航与地址解析重试共用，保证列表收缩时仍然终止。
type retryPolicy struct {
	maxAttempts int
	attempts    int
	attempted   map[string]bool // 已尝试过的曲目ID
}

func newRetryPolicy(maxAttempts int) *retryPolicy {
	return &retryPolicy{
		maxAttempts: maxAttempts,
		attempted:   make(map[string]bool),
	}
}

// Allow 判断还能否尝试指定曲目，同一曲目不会被重复尝试
func (r *retryPolicy) Allow(trackID string) bool {
	if r.attempts >= r.maxAttempts {
		return false
	}
	return !r.attempted[trackID]
}

// Mark 记录一次失败的尝试
func (r *retryPolicy) Mark(trackID string) {
	r.attempted[trackID] = true
	r.attempts++
}

// Exhausted 判断尝试次数是否用尽
func (r *retryPolicy) Exhausted() bool {
	return r.attempts >= r.maxAttempts
}

// Attempts 返回已尝试次数
func (r *retryPolicy) Attempts() int {
	return r.attempts
}
