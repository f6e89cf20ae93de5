// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends a payload to a topic
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// DefaultPublishTimeout bounds the wait for a broker acknowledgment
const DefaultPublishTimeout = 5 * time.Second

// MQTTClient is a Publisher backed by a paho client
type MQTTClient struct {
	client  mqtt.Client
	timeout time.Duration
}

// NewMQTTClient connects to broker with automatic reconnect
func NewMQTTClient(broker, clientID, username, password string) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
	}
	if password != "" {
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &MQTTClient{client: client, timeout: DefaultPublishTimeout}, nil
}

// Publish sends payload and waits up to the publish timeout for the broker
func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish to topic %s timed out after %s", topic, c.timeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Disconnect closes the broker connection
func (c *MQTTClient) Disconnect() {
	c.client.Disconnect(250)
}

// MQTTSink publishes each record as JSON, at least once
type MQTTSink struct {
	pub   Publisher
	topic string
}

// NewMQTTSink publishes to topic through pub
func NewMQTTSink(pub Publisher, topic string) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic}
}

// Write publishes records in order, stopping at the first failure
func (s *MQTTSink) Write(records []Record) error {
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := s.pub.Publish(s.topic, 1, false, payload); err != nil {
			return err
		}
	}
	return nil
}

// Close disconnects the publisher
func (s *MQTTSink) Close() error {
	s.pub.Disconnect()
	return nil
}
