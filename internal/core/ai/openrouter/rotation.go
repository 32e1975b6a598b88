package openrouter

import (
	"strings"
	"sync/atomic"
)

// KeyRotator 每次請求選擇一把 API Key
type KeyRotator interface {
	Next() string
	Len() int
}

// RoundRobin 依序輪流使用多把 Key，可在多個 goroutine 間共用
type RoundRobin struct {
	keys []string
	n    atomic.Uint64
}

// NewRoundRobin 創建輪詢器，空白的 Key 會被忽略
func NewRoundRobin(keys ...string) *RoundRobin {
	rr := &RoundRobin{}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rr.keys = append(rr.keys, k)
	}
	return rr
}

// Next 下一把 Key；沒有 Key 時返回空字串
func (r *RoundRobin) Next() string {
	if len(r.keys) == 0 {
		return ""
	}
	i := r.n.Add(1) - 1
	return r.keys[i%uint64(len(r.keys))]
}

// Len Key 數量
func (r *RoundRobin) Len() int {
	return len(r.keys)
}
