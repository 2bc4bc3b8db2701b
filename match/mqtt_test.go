package match

import (
	"errors"
	"testing"
	"time"
)

func TestResolveMQTT(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	t.Setenv("MQTT_CLIENT_ID", "")
	t.Setenv("MQTT_USERNAME", "")
	t.Setenv("MQTT_PASSWORD", "")
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	cfg := resolveMQTT(MQTTConfig{Broker: "tcp://file:1883"})
	if cfg.ClientID != "kdmatch" {
		t.Errorf("ClientID = %q, want kdmatch", cfg.ClientID)
	}

	t.Setenv("MQTT_BROKER", "tcp://env:1883")
	t.Setenv("MQTT_USERNAME", "observer")
	cfg = resolveMQTT(MQTTConfig{Broker: "tcp://file:1883", Username: "file"})
	if cfg.Broker != "tcp://env:1883" || cfg.Username != "observer" {
		t.Errorf("environment should win: %+v", cfg)
	}
}

func TestConnectMQTT_NoBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	client, cfg, err := ConnectMQTT(MQTTConfig{}, time.Second)
	if err != nil || client != nil {
		t.Fatalf("ConnectMQTT = %v, %v; want nil, nil", client, err)
	}
	if cfg.ClientID != "kdmatch" {
		t.Errorf("ClientID = %q", cfg.ClientID)
	}
}

func TestConnect(t *testing.T) {
	client := NewMockClient()
	if err := connect(client, time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !client.IsConnected() {
		t.Error("client should be connected")
	}

	refused := errors.New("connection refused")
	client = NewMockClient()
	client.SetConnectError(refused)
	if err := connect(client, time.Second); !errors.Is(err, refused) {
		t.Errorf("err = %v, want %v", err, refused)
	}
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "kd", Username: "u", Password: "p"})
	if opts.ClientID != "kd" || opts.Username != "u" || opts.Password != "p" {
		t.Errorf("options = %+v", opts)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "localhost:1883" {
		t.Errorf("servers = %v", opts.Servers)
	}
	if opts.AutoReconnect {
		t.Error("one-shot clients should not reconnect")
	}
}
