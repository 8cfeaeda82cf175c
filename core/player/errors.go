package player

import "errors"

// 播放编排的错误分类。
// 解析失败与引擎失败各有一次受意图约束的自动重试，
// 锁竞争只丢弃不排队，副屏不可用静默忽略。
var (
	// ErrResolution 所有音源都未能给出可用播放地址
	ErrResolution = errors.New("no source produced a playable url")

	// ErrEngine 装载后播放或跳转失败
	ErrEngine = errors.New("audio engine playback failed")

	// ErrIndex 导航目标无效（空列表或下标越界）
	ErrIndex = errors.New("navigation target invalid")

	// ErrLockContention 已有播放操作在进行中，本次调用被丢弃
	ErrLockContention = errors.New("another playback operation is in flight")
)
