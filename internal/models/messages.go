package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// 在场状态取值
const (
	StatusPeopleFall = "PEOPLE_FALL"
	StatusNoPeople   = "NO_PEOPLE"
	StatusPeople     = "PEOPLE"
)

// VitalsMessage 体征主题消息
// 数值字段可能缺失，也可能是非数字（设备固件异常时），因此先保留原始 JSON 再逐字段解析
type VitalsMessage struct {
	RoomID     string          `json:"room_id"`
	DeviceID   string          `json:"device_id"`
	HeartRate  json.RawMessage `json:"heart_rate,omitempty"`
	BreathRate json.RawMessage `json:"breath_rate,omitempty"`
	Distance   json.RawMessage `json:"distance,omitempty"`
}

// StatusMessage 在场/跌倒状态主题消息
type StatusMessage struct {
	RoomID string `json:"room_id"`
	Status string `json:"status"`
}

// ParseVitalsMessage 解析体征消息
func ParseVitalsMessage(payload []byte) (*VitalsMessage, error) {
	var msg VitalsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vitals message: %w", err)
	}
	if msg.RoomID == "" {
		return nil, fmt.Errorf("vitals message missing room_id")
	}
	return &msg, nil
}

// ParseStatusMessage 解析状态消息
func ParseStatusMessage(payload []byte) (*StatusMessage, error) {
	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status message: %w", err)
	}
	if msg.RoomID == "" {
		return nil, fmt.Errorf("status message missing room_id")
	}
	return &msg, nil
}

// Sample 转换为一次采样；非数字或非有限值视为缺失
func (m *VitalsMessage) Sample() Sample {
	return Sample{
		RoomID:     m.RoomID,
		HeartRate:  numberField(m.HeartRate),
		BreathRate: numberField(m.BreathRate),
		Distance:   numberField(m.Distance),
	}
}

func numberField(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Sample 一次体征采样（字段为 nil 表示缺失）
type Sample struct {
	RoomID     string
	HeartRate  *float64
	BreathRate *float64
	Distance   *float64
}
