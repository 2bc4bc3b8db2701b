package match

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ResultMessage is the JSON document published for a matcher run.
type ResultMessage struct {
	Source     string        `json:"source,omitempty"`
	Variant    string        `json:"variant"`
	Found      bool          `json:"found"`
	Transform  *AffineMatrix `json:"transform,omitempty"`
	Args       string        `json:"args,omitempty"`
	NBest      int           `json:"nbest"`
	Candidates int           `json:"candidates"`
	Swapped    bool          `json:"swapped"`
	Timestamp  int64         `json:"timestamp"`
}

// Publisher sends matcher results to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          map[string]*ResultMessage
	mu            sync.RWMutex
}

// NewPublisher creates a result publisher. An empty prefix falls back to
// MQTT_PUBLISH_PREFIX, then "kdmatch". If client is nil, publishing is
// disabled.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = os.Getenv("MQTT_PUBLISH_PREFIX")
	}
	if prefix == "" {
		prefix = "kdmatch"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
		retain:        true,
		last:          make(map[string]*ResultMessage),
	}
}

// PublishResult publishes res as JSON to <prefix>/<variant>/result and, when
// a transform was found, its "-t" line to <prefix>/<variant>/transform.
func (p *Publisher) PublishResult(source string, res *Result) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	msg := &ResultMessage{
		Source:     source,
		Variant:    res.Variant,
		Found:      res.Found(),
		NBest:      res.NBest,
		Candidates: res.Candidates,
		Swapped:    res.Swapped,
		Timestamp:  time.Now().Unix(),
	}
	if msg.Found {
		t := res.Best
		msg.Transform = &t
		msg.Args = t.String()
	}

	p.mu.Lock()
	p.last[res.Variant] = msg
	p.mu.Unlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := p.publish(fmt.Sprintf("%s/%s/result", p.publishPrefix, res.Variant), payload); err != nil {
		return err
	}

	if msg.Found {
		if err := p.publish(fmt.Sprintf("%s/%s/transform", p.publishPrefix, res.Variant), []byte(msg.Args)); err != nil {
			return err
		}
	}

	log.Printf("Published %s result (nbest=%d)", res.Variant, res.NBest)
	return nil
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// Last returns the most recent message published for a variant
func (p *Publisher) Last(variant string) (*ResultMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	msg, ok := p.last[variant]
	return msg, ok
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// Disconnect closes the underlying client, if any.
func (p *Publisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
