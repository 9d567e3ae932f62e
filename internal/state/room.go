package state

import "strings"

// NormalizeRoomID 统一房间标识：去空白、转大写、连字符替换为下划线
// 所有内存表（窗口累加、最近值、跌倒状态、设备映射）都必须以此结果作为键
func NormalizeRoomID(roomID string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(roomID)), "-", "_")
}

// Average 整数序列的算术平均，四舍五入（.5 进位）；空序列返回 nil
func Average(values []int) *int {
	n := len(values)
	if n == 0 {
		return nil
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	// floor(sum/n + 0.5)，对非负和成立；体征值均为正数
	avg := (2*sum + n) / (2 * n)
	return &avg
}
