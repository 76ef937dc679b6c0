package services

import (
	"errors"
	"sync"
)

// ErrInFlight は同じユーザーの同じ操作がすでに実行中であることを示します。
var ErrInFlight = errors.New("this action is already in progress; please wait for it to finish")

// InflightGuard はユーザー×操作ごとに同時実行を1つに制限します。
type InflightGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

// NewInflightGuard 新しいInflightGuardを作成
func NewInflightGuard() *InflightGuard {
	return &InflightGuard{running: make(map[string]struct{})}
}

// Acquire は操作の実行権を取得します。戻り値の関数で解放します。
func (g *InflightGuard) Acquire(username, action string) (func(), error) {
	key := username + "\x00" + action

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.running[key]; ok {
		return nil, ErrInFlight
	}
	g.running[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, key)
			g.mu.Unlock()
		})
	}, nil
}
