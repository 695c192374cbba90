package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBufferSize is how many frames are held while disconnected.
const DefaultBufferSize = 256

// MaxReplayAge bounds how old a buffered frame may be when it is replayed.
const MaxReplayAge = 10 * time.Minute

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	node   byte
	frames string
	system string

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher creates a publisher connected to the given broker.
// Frames sent while the connection is down are buffered and replayed on
// reconnect.
func NewRealPublisher(broker string, node byte, bufferSize int) (*RealPublisher, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	p := &RealPublisher{
		node:   node,
		frames: FramesTopic(node),
		system: SystemTopic(node),
		buffer: newRingBuffer(bufferSize),
	}

	will, err := FormatSystemPayload(node, SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("occupancy-node-%d", node)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.system, will, 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		}).
		SetOnConnectHandler(func(paho.Client) {
			go p.flush()
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// Send publishes an encoded frame, or buffers it while disconnected.
func (p *RealPublisher) Send(frame []byte) error {
	payload := append([]byte(nil), frame...)
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(bufferedMsg{topic: p.frames, payload: payload, queued: time.Now()})
		p.mu.Unlock()
		return nil
	}

	// QoS 0 (at-most-once), not retained: the radio path has no ack either
	return p.publish(p.frames, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(p.node, event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(p.system, 1, event.Retained, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of frames waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *RealPublisher) flush() {
	p.mu.Lock()
	expired := p.buffer.expire(time.Now().Add(-MaxReplayAge))
	msgs := p.buffer.drainAll()
	p.mu.Unlock()
	if expired > 0 {
		log.Printf("mqtt: discarded %d frames older than %v", expired, MaxReplayAge)
	}
	if len(msgs) == 0 {
		return
	}

	log.Printf("mqtt: reconnected, replaying %d buffered frames (oldest %v ago)", len(msgs), time.Since(msgs[0].queued).Truncate(time.Second))
	rest, err := replay(msgs, func(m bufferedMsg) error {
		return p.publish(m.topic, m.qos, m.retained, m.payload)
	})
	if err == nil {
		return
	}
	log.Printf("mqtt: replay error, %d frames kept for next connect: %v", len(rest), err)
	p.mu.Lock()
	p.buffer.requeue(rest)
	p.mu.Unlock()
}

// replay publishes msgs in order and stops at the first failure, returning
// the frames that were not sent.
func replay(msgs []bufferedMsg, publish func(bufferedMsg) error) ([]bufferedMsg, error) {
	for i, m := range msgs {
		if err := publish(m); err != nil {
			return msgs[i:], err
		}
	}
	return nil, nil
}
