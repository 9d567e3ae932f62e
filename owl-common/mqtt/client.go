package mqtt

import (
	"fmt"
	"sync"
	"time"

	"wisefido-vitals/owl-common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const publishTimeout = 10 * time.Second

// MessageHandler 消息处理函数类型
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// session paho 客户端中本封装用到的部分（单元测试中替换）
type session interface {
	IsConnected() bool
	IsConnectionOpen() bool
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Client MQTT客户端封装
// 断线后由 paho 自动重连（退避上限 MaxReconnectInterval），重连成功后重新订阅全部主题
type Client struct {
	client session
	config *config.MQTTConfig
	logger *zap.Logger

	mu            sync.Mutex
	subscriptions map[string]subscription
}

// NewClient 创建MQTT客户端
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{
		config:        cfg,
		logger:        logger.With(zap.String("component", "mqtt")),
		subscriptions: make(map[string]subscription),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Second)
	if cfg.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)
	}
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	opts.SetCleanSession(true)
	// 处理函数在独立 goroutine 中执行，处理函数内的 Publish 不会阻塞 paho 的路由
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(func(mqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.logger.Info("Reconnecting to MQTT broker", zap.String("broker", cfg.Broker))
	})

	pc := mqtt.NewClient(opts)
	c.client = pc

	token := pc.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		// ConnectRetry 模式下连接会在后台持续重试，订阅在连接建立后补上
		c.logger.Warn("MQTT broker not reachable yet, retrying in background",
			zap.String("broker", cfg.Broker),
		)
		return c, nil
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return c, nil
}

// Subscribe 订阅主题（记录订阅，重连后自动恢复）
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		c.logger.Info("Subscription deferred until connected", zap.String("topic", topic))
		return nil
	}

	if token := c.client.Subscribe(topic, qos, c.wrap(handler)); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	return nil
}

// onConnect 首次连接与每次重连成功后调用
func (c *Client) onConnect() {
	c.logger.Info("Connected to MQTT broker", zap.String("broker", c.config.Broker))
	c.resubscribe()
}

// resubscribe 重新订阅全部已记录的主题
func (c *Client) resubscribe() {
	c.mu.Lock()
	filters := make(map[string]byte, len(c.subscriptions))
	handlers := make(map[string]MessageHandler, len(c.subscriptions))
	for topic, sub := range c.subscriptions {
		filters[topic] = sub.qos
		handlers[topic] = sub.handler
	}
	c.mu.Unlock()

	for topic, qos := range filters {
		token := c.client.Subscribe(topic, qos, c.wrap(handlers[topic]))
		go func(topic string, token mqtt.Token) {
			if token.Wait() && token.Error() != nil {
				c.logger.Error("Failed to resubscribe", zap.String("topic", topic), zap.Error(token.Error()))
				return
			}
			c.logger.Info("Subscribed", zap.String("topic", topic))
		}(topic, token)
	}
}

func (c *Client) wrap(handler MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Panic while handling MQTT message",
					zap.String("topic", msg.Topic()),
					zap.Any("panic", r),
				)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			// 记录错误，但不中断处理
			c.logger.Warn("Error handling MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}
}

// Publish 发布消息
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	return nil
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, topic := range topics {
		delete(c.subscriptions, topic)
	}
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}

	token := c.client.Unsubscribe(topics...)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}

	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.client.Disconnect(250) // 250ms等待时间
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
