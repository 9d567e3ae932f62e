package state

import "sync"

// DeviceRegistry 已发布发现消息的设备集合 + 房间到最近设备的映射
// 只增不减，不持久化；重启后设备会被重新当作新设备发布
type DeviceRegistry struct {
	mu         sync.RWMutex
	announced  map[string]struct{}
	roomDevice map[string]string
}

// NewDeviceRegistry 创建设备注册表
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{
		announced:  make(map[string]struct{}),
		roomDevice: make(map[string]string),
	}
}

// Register 记录房间最近一次出现的设备
func (r *DeviceRegistry) Register(roomID, deviceID string) {
	room := NormalizeRoomID(roomID)
	if room == "" || deviceID == "" {
		return
	}

	r.mu.Lock()
	r.roomDevice[room] = deviceID
	r.mu.Unlock()
}

// MarkAnnounced 标记设备已发布；首次标记返回 true
func (r *DeviceRegistry) MarkAnnounced(deviceID string) bool {
	if deviceID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.announced[deviceID]; ok {
		return false
	}
	r.announced[deviceID] = struct{}{}
	return true
}

// Unannounce 发布失败时撤销标记，下一条消息会重试
func (r *DeviceRegistry) Unannounce(deviceID string) {
	r.mu.Lock()
	delete(r.announced, deviceID)
	r.mu.Unlock()
}

// IsAnnounced 设备是否已发布
func (r *DeviceRegistry) IsAnnounced(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.announced[deviceID]
	return ok
}

// DeviceForRoom 房间最近的设备
func (r *DeviceRegistry) DeviceForRoom(roomID string) (string, bool) {
	room := NormalizeRoomID(roomID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	deviceID, ok := r.roomDevice[room]
	return deviceID, ok
}
