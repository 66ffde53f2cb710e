package proximity

import (
	"crypto/subtle"
	"fmt"

	"okitegami/backend/internal/domain"
)

// LockState 暗号门状态
type LockState int

const (
	NoSecret LockState = iota
	Locked
	Unlocked
)

func (s LockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return "no_secret"
	}
}

// MarshalText 以字符串形式输出到 JSON
func (s LockState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析 MarshalText 的输出
func (s *LockState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "no_secret":
		*s = NoSecret
	case "locked":
		*s = Locked
	case "unlocked":
		*s = Unlocked
	default:
		return fmt.Errorf("unknown lock state %q", text)
	}
	return nil
}

// Readable 判断该状态下内容是否可读
func (s LockState) Readable() bool {
	return s != Locked
}

// InitialState 计算 (访问者, 信件) 的初始状态
func InitialState(l *domain.Letter, viewer domain.Viewer, hasReceipt bool) LockState {
	switch {
	case !l.HasSecret():
		return NoSecret
	case hasReceipt:
		return Unlocked
	case viewer.IsAdmin || viewer.IsOwner(l):
		return Unlocked
	default:
		return Locked
	}
}

// Gate 单个 (访问者, 信件) 的解锁状态机
//
// 调用方只能为 Reachable 的信件创建 Gate。
type Gate struct {
	letter *domain.Letter
	state  LockState
}

// AttemptResult 解锁尝试结果
type AttemptResult struct {
	State LockState
	// Recorded 为 true 表示本次从 Locked 转为 Unlocked，调用方需要记录已读
	Recorded bool
}

// NewGate 创建暗号门
func NewGate(l *domain.Letter, viewer domain.Viewer, hasReceipt bool) *Gate {
	return &Gate{letter: l, state: InitialState(l, viewer, hasReceipt)}
}

// State 当前状态
func (g *Gate) State() LockState {
	return g.state
}

// Attempt 尝试用 input 解锁
//
// 精确匹配，区分大小写，不做任何规范化；不限尝试次数。
// NoSecret 与 Unlocked 为终态，再次调用不产生任何变化。
func (g *Gate) Attempt(input string) (AttemptResult, error) {
	if g.state != Locked {
		return AttemptResult{State: g.state}, nil
	}
	if subtle.ConstantTimeCompare([]byte(input), []byte(*g.letter.Secret)) != 1 {
		return AttemptResult{State: Locked}, domain.ErrUnlockMismatch
	}
	g.state = Unlocked
	return AttemptResult{State: Unlocked, Recorded: true}, nil
}
