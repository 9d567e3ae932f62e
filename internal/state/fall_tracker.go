package state

import (
	"sort"
	"sync"
	"time"

	"wisefido-vitals/internal/models"
)

// FallState 房间跌倒状态
type FallState struct {
	RoomID  string
	Falling bool
	Since   time.Time // 最近一次进入跌倒状态的时间
}

// FallTracker 房间跌倒/未跌倒两态状态机
// 与分钟/十五分钟窗口无关，窗口重置不影响跌倒状态
type FallTracker struct {
	mu     sync.RWMutex
	states map[string]*FallState
	now    func() time.Time
}

// NewFallTracker 创建跌倒状态机
func NewFallTracker(now func() time.Time) *FallTracker {
	if now == nil {
		now = time.Now
	}
	return &FallTracker{
		states: make(map[string]*FallState),
		now:    now,
	}
}

// ApplyStatus 应用状态消息，返回是否发生了状态迁移
// PEOPLE_FALL 进入跌倒；NO_PEOPLE / PEOPLE 仅对已存在的房间清除；其余状态忽略
func (t *FallTracker) ApplyStatus(roomID, status string) bool {
	room := NormalizeRoomID(roomID)
	if room == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch status {
	case models.StatusPeopleFall:
		st, ok := t.states[room]
		if !ok {
			st = &FallState{RoomID: room}
			t.states[room] = st
		}
		if st.Falling {
			return false
		}
		st.Falling = true
		st.Since = t.now()
		return true
	case models.StatusNoPeople, models.StatusPeople:
		st, ok := t.states[room]
		if !ok || !st.Falling {
			return false
		}
		st.Falling = false
		return true
	default:
		return false
	}
}

// IsFalling 房间是否处于跌倒状态（未见过的房间为 false）
func (t *FallTracker) IsFalling(roomID string) bool {
	room := NormalizeRoomID(roomID)

	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.states[room]
	return ok && st.Falling
}

// FallingRooms 当前处于跌倒状态的房间（按房间号排序）
func (t *FallTracker) FallingRooms() []FallState {
	t.mu.RLock()
	out := make([]FallState, 0, len(t.states))
	for _, st := range t.states {
		if st.Falling {
			out = append(out, *st)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
