package match

import (
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// resolveMQTT merges environment overrides into cfg. Environment variables
// win over the file, as in service deployments.
func resolveMQTT(cfg MQTTConfig) MQTTConfig {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "kdmatch"
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		cfg.PublishPrefix = v
	}
	return cfg
}

// clientOptions builds paho options for a one-shot publishing client.
func clientOptions(cfg MQTTConfig) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})
	return opts
}

// ConnectMQTT connects to the configured broker. With no broker configured
// (in cfg or MQTT_BROKER) it returns a nil client and no error.
func ConnectMQTT(cfg MQTTConfig, timeout time.Duration) (mqtt.Client, MQTTConfig, error) {
	cfg = resolveMQTT(cfg)
	if cfg.Broker == "" {
		return nil, cfg, nil
	}
	client := mqtt.NewClient(clientOptions(cfg))
	if err := connect(client, timeout); err != nil {
		return nil, cfg, fmt.Errorf("connecting to %s: %w", cfg.Broker, err)
	}
	log.Printf("Connected to MQTT broker %s", cfg.Broker)
	return client, cfg, nil
}

func connect(client mqtt.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %v", timeout)
	}
	return token.Error()
}
