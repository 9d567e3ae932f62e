package discovery

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/state"

	"go.uber.org/zap"
)

// Publisher MQTT 发布接口（owl-common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// channel 设备的一个逻辑传感器
type channel struct {
	Key   string
	Name  string
	Unit  string
	Icon  string
	Field string // 状态消息中的字段
}

var channels = []channel{
	{Key: "breath_rate", Name: "Breath rate", Unit: "bpm", Icon: "mdi:lungs", Field: "breath_rate"},
	{Key: "heart_rate", Name: "Heart rate", Unit: "bpm", Icon: "mdi:heart-pulse", Field: "heart_rate"},
	{Key: "distance", Name: "Distance", Unit: "cm", Icon: "mdi:signal-distance-variant", Field: "distance"},
}

// sensorConfig 自动化中枢（Home Assistant）MQTT 发现消息
type sensorConfig struct {
	Name              string       `json:"name"`
	UniqueID          string       `json:"unique_id"`
	ObjectID          string       `json:"object_id"`
	StateTopic        string       `json:"state_topic"`
	ValueTemplate     string       `json:"value_template"`
	UnitOfMeasurement string       `json:"unit_of_measurement"`
	StateClass        string       `json:"state_class"`
	Icon              string       `json:"icon"`
	Device            deviceConfig `json:"device"`
}

type deviceConfig struct {
	Identifiers   []string `json:"identifiers"`
	Name          string   `json:"name"`
	Manufacturer  string   `json:"manufacturer"`
	Model         string   `json:"model"`
	SuggestedArea string   `json:"suggested_area,omitempty"`
}

// Announcer 发布设备发现消息与每分钟状态
type Announcer struct {
	publisher   Publisher
	registry    *state.DeviceRegistry
	prefix      string
	statePrefix string
	qos         byte
	logger      *zap.Logger
}

// NewAnnouncer 创建发现消息发布器
func NewAnnouncer(publisher Publisher, registry *state.DeviceRegistry, prefix, statePrefix string, qos byte, logger *zap.Logger) *Announcer {
	return &Announcer{
		publisher:   publisher,
		registry:    registry,
		prefix:      strings.TrimSuffix(prefix, "/"),
		statePrefix: strings.TrimSuffix(statePrefix, "/"),
		qos:         qos,
		logger:      logger.With(zap.String("component", "discovery")),
	}
}

// StateTopic 设备状态主题
func (a *Announcer) StateTopic(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", a.statePrefix, topicSafe(deviceID))
}

// ConfigTopic 设备某个传感器的发现主题
func (a *Announcer) ConfigTopic(deviceID, key string) string {
	return fmt.Sprintf("%s/sensor/%s_%s/config", a.prefix, topicSafe(deviceID), key)
}

// AnnounceIfNew 设备首次出现时发布三个传感器的发现消息（保留消息）
// 每个设备在进程生命周期内最多成功发布一次；发布失败会撤销标记，等待下一条消息重试
func (a *Announcer) AnnounceIfNew(deviceID, roomID string) (bool, error) {
	if !a.registry.MarkAnnounced(deviceID) {
		return false, nil
	}

	for _, ch := range channels {
		payload, err := json.Marshal(a.sensorConfig(deviceID, roomID, ch))
		if err != nil {
			a.registry.Unannounce(deviceID)
			return false, fmt.Errorf("failed to marshal discovery config: %w", err)
		}
		if err := a.publisher.Publish(a.ConfigTopic(deviceID, ch.Key), a.qos, true, payload); err != nil {
			a.registry.Unannounce(deviceID)
			return false, fmt.Errorf("failed to announce device %s: %w", deviceID, err)
		}
	}

	a.logger.Info("Announced new device",
		zap.String("device_id", deviceID),
		zap.String("room_id", roomID),
		zap.String("state_topic", a.StateTopic(deviceID)),
	)
	return true, nil
}

func (a *Announcer) sensorConfig(deviceID, roomID string, ch channel) sensorConfig {
	id := topicSafe(deviceID)
	return sensorConfig{
		Name:              ch.Name,
		UniqueID:          fmt.Sprintf("%s_%s", id, ch.Key),
		ObjectID:          fmt.Sprintf("%s_%s", id, ch.Key),
		StateTopic:        a.StateTopic(deviceID),
		ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", ch.Field),
		UnitOfMeasurement: ch.Unit,
		StateClass:        "measurement",
		Icon:              ch.Icon,
		Device: deviceConfig{
			Identifiers:   []string{id},
			Name:          fmt.Sprintf("Vital radar %s", deviceID),
			Manufacturer:  "WiseFido",
			Model:         "Vital radar",
			SuggestedArea: roomID,
		},
	}
}

// PublishStates 为每个已知设备的房间发布分钟平均状态（保留消息）
// 房间尚无设备映射时跳过并告警；单个房间发布失败不影响其余房间
func (a *Announcer) PublishStates(snap state.Snapshot, at time.Time) (published, failed int) {
	minute := at.Format(models.MinuteLayout)

	for room, w := range snap {
		deviceID, ok := a.registry.DeviceForRoom(room)
		if !ok {
			a.logger.Warn("No device mapped for room, skipping state publish", zap.String("room_id", room))
			continue
		}

		msg := models.DeviceState{
			HeartRate:  state.Average(w.HeartRates),
			BreathRate: state.Average(w.BreathRates),
			Distance:   w.LastDistance,
			RoomID:     room,
			DeviceID:   deviceID,
			Timestamp:  minute,
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			a.logger.Error("Failed to marshal device state", zap.String("room_id", room), zap.Error(err))
			failed++
			continue
		}
		if err := a.publisher.Publish(a.StateTopic(deviceID), a.qos, true, payload); err != nil {
			a.logger.Error("Failed to publish device state",
				zap.String("room_id", room),
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			failed++
			continue
		}
		published++
	}

	return published, failed
}

func topicSafe(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_").Replace(s)
}
