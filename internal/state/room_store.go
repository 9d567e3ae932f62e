package state

import (
	"math"
	"sync"

	"wisefido-vitals/internal/models"
)

// RoomWindow 单个房间在当前一分钟窗口内累加的样本
type RoomWindow struct {
	HeartRates   []int
	BreathRates  []int
	LastDistance *int
	Samples      int // 计入本窗口的消息条数
}

func (w *RoomWindow) clone() RoomWindow {
	out := RoomWindow{Samples: w.Samples}
	if len(w.HeartRates) > 0 {
		out.HeartRates = append([]int(nil), w.HeartRates...)
	}
	if len(w.BreathRates) > 0 {
		out.BreathRates = append([]int(nil), w.BreathRates...)
	}
	if w.LastDistance != nil {
		d := *w.LastDistance
		out.LastDistance = &d
	}
	return out
}

// LastKnown 房间最近一次观测到的非空值，跨窗口保留
type LastKnown struct {
	HeartRate  *int
	BreathRate *int
	Distance   *int
}

// Snapshot 一分钟窗口的不可变快照（房间 → 窗口）
type Snapshot map[string]RoomWindow

// RoomStateStore 房间体征累加器 + 最近值表
// 两张表各自持锁，同时持有时先 mu 后 lastMu；SnapshotAndReset 在窗口表锁内完成交换，保证样本要么整体落在旧窗口，要么整体落在新窗口
type RoomStateStore struct {
	mu      sync.Mutex
	windows map[string]*RoomWindow

	lastMu    sync.RWMutex
	lastKnown map[string]LastKnown
}

// NewRoomStateStore 创建房间状态表
func NewRoomStateStore() *RoomStateStore {
	return &RoomStateStore{
		windows:   make(map[string]*RoomWindow),
		lastKnown: make(map[string]LastKnown),
	}
}

// Record 记录一次采样
// 心率/呼吸率仅在为正数时计入；距离为有限数时四舍五入后覆盖窗口与最近值
// 返回是否有字段被记录
func (s *RoomStateStore) Record(sample models.Sample) bool {
	room := NormalizeRoomID(sample.RoomID)
	if room == "" {
		return false
	}

	hr := positiveRate(sample.HeartRate)
	rr := positiveRate(sample.BreathRate)
	dist := roundedDistance(sample.Distance)
	if hr == nil && rr == nil && dist == nil {
		return false
	}

	s.mu.Lock()
	w, ok := s.windows[room]
	if !ok {
		w = &RoomWindow{}
		s.windows[room] = w
	}
	if hr != nil {
		w.HeartRates = append(w.HeartRates, *hr)
	}
	if rr != nil {
		w.BreathRates = append(w.BreathRates, *rr)
	}
	if dist != nil {
		d := *dist
		w.LastDistance = &d
	}
	w.Samples++

	// 持窗口锁更新最近值（锁顺序 mu → lastMu），两张表的写入顺序一致
	s.lastMu.Lock()
	lk := s.lastKnown[room]
	if hr != nil {
		lk.HeartRate = hr
	}
	if rr != nil {
		lk.BreathRate = rr
	}
	if dist != nil {
		lk.Distance = dist
	}
	s.lastKnown[room] = lk
	s.lastMu.Unlock()
	s.mu.Unlock()

	return true
}

// SnapshotAndReset 取出全部窗口并清空
// 交换整个窗口表后旧表不再被任何写入者引用，快照即为其独占副本
func (s *RoomStateStore) SnapshotAndReset() Snapshot {
	s.mu.Lock()
	old := s.windows
	s.windows = make(map[string]*RoomWindow, len(old))
	s.mu.Unlock()

	snap := make(Snapshot, len(old))
	for room, w := range old {
		snap[room] = *w
	}
	return snap
}

// Peek 读取房间当前窗口的副本（不重置）
func (s *RoomStateStore) Peek(roomID string) (RoomWindow, bool) {
	room := NormalizeRoomID(roomID)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[room]
	if !ok {
		return RoomWindow{}, false
	}
	return w.clone(), true
}

// LastKnown 读取房间最近值；从未见过的房间返回空结果
func (s *RoomStateStore) LastKnown(roomID string) (LastKnown, bool) {
	room := NormalizeRoomID(roomID)

	s.lastMu.RLock()
	defer s.lastMu.RUnlock()

	lk, ok := s.lastKnown[room]
	return lk, ok
}

func positiveRate(v *float64) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	r := int(math.Round(*v))
	if r <= 0 {
		return nil
	}
	return &r
}

func roundedDistance(v *float64) *int {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	d := int(math.Round(*v))
	return &d
}
