package consumer

import (
	"fmt"
	"time"

	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/state"
	mqttcommon "wisefido-vitals/owl-common/mqtt"

	"go.uber.org/zap"
)

// MessageBus 订阅接口（owl-common/mqtt.Client 实现）
type MessageBus interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// RawJournal 原始消息追加日志
type RawJournal interface {
	AppendRaw(topic string, payload []byte, at time.Time) error
}

// DeviceAnnouncer 新设备发现消息发布
type DeviceAnnouncer interface {
	AnnounceIfNew(deviceID, roomID string) (bool, error)
}

// Topics 订阅的主题
type Topics struct {
	Vitals string
	Status string
}

// MQTTConsumer MQTT消息消费者：解析体征/状态消息并路由到内存表
type MQTTConsumer struct {
	topics    Topics
	qos       byte
	bus       MessageBus
	rooms     *state.RoomStateStore
	falls     *state.FallTracker
	devices   *state.DeviceRegistry
	announcer DeviceAnnouncer
	journal   RawJournal
	logger    *zap.Logger
	now       func() time.Time

	// 每条体征样本记录两次（历史行为，默认关闭）
	duplicateSamples bool
}

// Options 消费者可选参数
type Options struct {
	QoS              byte
	DuplicateSamples bool
	Now              func() time.Time
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	topics Topics,
	bus MessageBus,
	rooms *state.RoomStateStore,
	falls *state.FallTracker,
	devices *state.DeviceRegistry,
	announcer DeviceAnnouncer,
	journal RawJournal,
	opts Options,
	logger *zap.Logger,
) *MQTTConsumer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &MQTTConsumer{
		topics:           topics,
		qos:              opts.QoS,
		bus:              bus,
		rooms:            rooms,
		falls:            falls,
		devices:          devices,
		announcer:        announcer,
		journal:          journal,
		logger:           logger.With(zap.String("component", "ingest")),
		now:              now,
		duplicateSamples: opts.DuplicateSamples,
	}
}

// Start 订阅体征与状态主题
func (c *MQTTConsumer) Start() error {
	if err := c.bus.Subscribe(c.topics.Vitals, c.qos, c.HandleVitals); err != nil {
		return fmt.Errorf("failed to subscribe to vitals topic: %w", err)
	}
	if err := c.bus.Subscribe(c.topics.Status, c.qos, c.HandleStatus); err != nil {
		return fmt.Errorf("failed to subscribe to status topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("vitals_topic", c.topics.Vitals),
		zap.String("status_topic", c.topics.Status),
		zap.Bool("duplicate_samples", c.duplicateSamples),
	)
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop() error {
	if err := c.bus.Unsubscribe(c.topics.Vitals, c.topics.Status); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
		return err
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// HandleVitals 处理体征消息
// 解析失败只记录日志并丢弃，不影响后续消息
func (c *MQTTConsumer) HandleVitals(topic string, payload []byte) error {
	msg, err := models.ParseVitalsMessage(payload)
	if err != nil {
		c.logger.Warn("Discarding malformed vitals message",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		return nil
	}

	sample := msg.Sample()
	c.rooms.Record(sample)
	if c.duplicateSamples {
		c.rooms.Record(sample)
	}

	if err := c.journal.AppendRaw(c.topics.Vitals, payload, c.now()); err != nil {
		c.logger.Error("Failed to append raw vitals message", zap.Error(err))
	}

	if msg.DeviceID == "" {
		c.logger.Debug("Vitals message without device_id", zap.String("room_id", msg.RoomID))
		return nil
	}

	room := state.NormalizeRoomID(msg.RoomID)
	c.devices.Register(room, msg.DeviceID)

	if _, err := c.announcer.AnnounceIfNew(msg.DeviceID, room); err != nil {
		c.logger.Error("Failed to announce device",
			zap.String("device_id", msg.DeviceID),
			zap.String("room_id", room),
			zap.Error(err),
		)
	}

	return nil
}

// HandleStatus 处理在场/跌倒状态消息
func (c *MQTTConsumer) HandleStatus(topic string, payload []byte) error {
	msg, err := models.ParseStatusMessage(payload)
	if err != nil {
		c.logger.Warn("Discarding malformed status message",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		return nil
	}

	if c.falls.ApplyStatus(msg.RoomID, msg.Status) {
		c.logger.Info("Fall state changed",
			zap.String("room_id", state.NormalizeRoomID(msg.RoomID)),
			zap.String("status", msg.Status),
		)
	}

	if err := c.journal.AppendRaw(c.topics.Status, payload, c.now()); err != nil {
		c.logger.Error("Failed to append raw status message", zap.Error(err))
	}

	return nil
}
