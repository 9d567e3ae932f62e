package models

import "time"

// VitalsRow 写入 vitals 表的一行
type VitalsRow struct {
	PatientID  string
	RoomID     string
	HeartRate  *int
	BreathRate *int
	Distance   *int
	IsFall     bool
	RecordedAt time.Time
}

// MinuteSummary 每分钟每房间的汇总日志行
type MinuteSummary struct {
	Minute       string `json:"t"`
	AvgHR        *int   `json:"avg_hr"`
	AvgRR        *int   `json:"avg_rr"`
	LastDistance *int   `json:"last_distance"`
	Samples      int    `json:"samples"`
}

// DeviceState 每分钟发布的设备保留状态消息
type DeviceState struct {
	HeartRate  *int   `json:"heart_rate"`
	BreathRate *int   `json:"breath_rate"`
	Distance   *int   `json:"distance"`
	RoomID     string `json:"room_id"`
	DeviceID   string `json:"device_id"`
	Timestamp  string `json:"timestamp"`
}

// FallEvent 发布到 Redis Stream 的跌倒事件
type FallEvent struct {
	EventID    string `json:"event_id"`
	RoomID     string `json:"room_id"`
	PatientID  string `json:"patient_id"`
	HeartRate  *int   `json:"heart_rate"`
	BreathRate *int   `json:"breath_rate"`
	Distance   *int   `json:"distance"`
	FallSince  int64  `json:"fall_since"`
	Timestamp  int64  `json:"timestamp"`
}

// MinuteLayout 分钟粒度时间戳格式
const MinuteLayout = "2006-01-02T15:04"

// IntPtr 返回 int 指针
func IntPtr(v int) *int {
	return &v
}
