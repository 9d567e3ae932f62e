package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrWindowInvariant 提交的快照比当前累加内容还长，说明加锁逻辑被破坏
var ErrWindowInvariant = errors.New("window accumulator invariant violated")

// WindowEntry 十五分钟窗口内单个房间的累加内容
type WindowEntry struct {
	HeartRates   []int
	BreathRates  []int
	LastDistance *int
	Minutes      int // 吸收过的分钟快照数

	distanceMinute int // LastDistance 来自第几个分钟快照（从 1 开始，0 表示无）
}

// WindowAccumulator 十五分钟累加器
// 先 Snapshot 读取、写库完成后再 Commit 清除已消费部分（flush-then-clear）；
// 两次调用之间新吸收的分钟数据保留到下一周期
type WindowAccumulator struct {
	mu      sync.Mutex
	entries map[string]*WindowEntry
}

// NewWindowAccumulator 创建十五分钟累加器
func NewWindowAccumulator() *WindowAccumulator {
	return &WindowAccumulator{entries: make(map[string]*WindowEntry)}
}

// Absorb 追加一分钟快照（追加，不替换）
func (a *WindowAccumulator) Absorb(snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for room, w := range snap {
		e, ok := a.entries[room]
		if !ok {
			e = &WindowEntry{}
			a.entries[room] = e
		}
		e.HeartRates = append(e.HeartRates, w.HeartRates...)
		e.BreathRates = append(e.BreathRates, w.BreathRates...)
		e.Minutes++
		if w.LastDistance != nil {
			d := *w.LastDistance
			e.LastDistance = &d
			e.distanceMinute = e.Minutes
		}
	}
}

// Snapshot 读取当前全部房间的副本（不清除）
func (a *WindowAccumulator) Snapshot() map[string]WindowEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]WindowEntry, len(a.entries))
	for room, e := range a.entries {
		c := WindowEntry{Minutes: e.Minutes, distanceMinute: e.distanceMinute}
		c.HeartRates = append([]int(nil), e.HeartRates...)
		c.BreathRates = append([]int(nil), e.BreathRates...)
		if e.LastDistance != nil {
			d := *e.LastDistance
			c.LastDistance = &d
		}
		out[room] = c
	}
	return out
}

// Commit 清除 Snapshot 返回的已消费部分
func (a *WindowAccumulator) Commit(consumed map[string]WindowEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for room, c := range consumed {
		e, ok := a.entries[room]
		if !ok {
			return fmt.Errorf("%w: room %s vanished before commit", ErrWindowInvariant, room)
		}
		if len(c.HeartRates) > len(e.HeartRates) || len(c.BreathRates) > len(e.BreathRates) || c.Minutes > e.Minutes {
			return fmt.Errorf("%w: room %s shrank before commit", ErrWindowInvariant, room)
		}
		if e.Minutes == c.Minutes {
			delete(a.entries, room)
			continue
		}
		e.HeartRates = append([]int(nil), e.HeartRates[len(c.HeartRates):]...)
		e.BreathRates = append([]int(nil), e.BreathRates[len(c.BreathRates):]...)
		e.Minutes -= c.Minutes
		// 距离只能来自上次写库之后的分钟快照
		if e.distanceMinute <= c.Minutes {
			e.LastDistance = nil
			e.distanceMinute = 0
		} else {
			e.distanceMinute -= c.Minutes
		}
	}
	return nil
}

// Rooms 当前有累加数据的房间（排序）
func (a *WindowAccumulator) Rooms() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	rooms := make([]string, 0, len(a.entries))
	for room := range a.entries {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}
