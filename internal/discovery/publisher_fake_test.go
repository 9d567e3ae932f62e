package discovery

import (
	"errors"
	"sync"
)

type publishedMessage struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// fakePublisher 记录全部发布消息
type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	failOn   map[string]bool // 对指定主题返回错误
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failOn: make(map[string]bool)}
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failOn[topic] {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, publishedMessage{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	return nil
}

func (p *fakePublisher) byTopic(topic string) []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []publishedMessage
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}
