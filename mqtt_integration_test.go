package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kwv/kdmatch/match"
)

// TestMQTTPublishIntegration runs a matcher against a real broker and
// checks the retained result message.
func TestMQTTPublishIntegration(t *testing.T) {
	// Skip if not running integration tests
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}
	broker := os.Getenv("MQTT_TEST_BROKER")
	if broker == "" {
		broker = "tcp://localhost:1883"
	}
	t.Setenv("MQTT_BROKER", "")
	t.Setenv("KDMATCH_CONFIG", "")

	tmpDir := t.TempDir()
	configYAML := `mqtt:
  broker: "` + broker + `"
  publishPrefix: "kdmatch-test"
  clientId: "kdmatch-test-publisher"
`
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	f1 := writeCatalogue(t, tmpDir, "a.cat", fieldA)
	f2 := writeCatalogue(t, tmpDir, "b.cat", fieldB)

	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("kdmatch-test-subscriber")
	sub := mqtt.NewClient(opts)
	if token := sub.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("Failed to connect subscriber: %v", token.Error())
	}
	defer sub.Disconnect(250)

	received := make(chan []byte, 1)
	token := sub.Subscribe("kdmatch-test/quad/result", 1, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case received <- msg.Payload():
		default:
		}
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("Failed to subscribe: %v", token.Error())
	}

	var out bytes.Buffer
	if err := run([]string{"kdmatch", "quad", "-config", configPath, f1, f2}, &out, NewApp(nil, &out)); err != nil {
		t.Fatalf("run failed: %v\n%s", err, out.String())
	}

	select {
	case payload := <-received:
		var msg match.ResultMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decoding result: %v", err)
		}
		if !msg.Found || msg.Transform == nil {
			t.Fatalf("expected a transform, got %+v", msg)
		}
		assertTransform(t, *msg.Transform, fieldM)
	case <-time.After(5 * time.Second):
		t.Fatal("no result published within timeout")
	}
}

// TestMQTTPublishUnreachableBroker checks that a dead broker only costs a
// warning.
func TestMQTTPublishUnreachableBroker(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}
	t.Setenv("MQTT_BROKER", "tcp://127.0.0.1:1")
	t.Setenv("KDMATCH_CONFIG", "")

	tmpDir := t.TempDir()
	f1 := writeCatalogue(t, tmpDir, "a.cat", fieldA)
	f2 := writeCatalogue(t, tmpDir, "b.cat", fieldB)

	var out bytes.Buffer
	if err := run([]string{"kdmatch", "quad", f1, f2}, &out, NewApp(nil, &out)); err != nil {
		t.Fatalf("publishing failures must not fail the run: %v", err)
	}
	assertTransform(t, lastTransform(t, out.String()), fieldM)
}
