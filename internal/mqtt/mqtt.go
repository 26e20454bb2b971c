// Package mqtt publishes tag events to an MQTT broker and accepts simulated
// scans from it. A client without a host is disabled and does nothing.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/micro-nova/amplipi-rfid/internal/events"
	"github.com/micro-nova/amplipi-rfid/internal/hardware"
	"github.com/micro-nova/amplipi-rfid/internal/models"
)

const (
	tagTopic    = "tag"
	scanTopic   = "scan"
	statusTopic = "status"
)

// Config holds the broker settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Prefix   string
	ClientID string
}

// ScanHandler receives tags injected over MQTT.
type ScanHandler func(tag models.Tag)

// Client wraps the paho client.
type Client struct {
	client  paho.Client
	prefix  string
	enabled bool
	onScan  ScanHandler
}

// New creates a client. It returns a disabled client when cfg.Host is empty.
func New(cfg Config, onScan ScanHandler) *Client {
	c := &Client{prefix: cfg.Prefix, onScan: onScan}
	if cfg.Host == "" {
		slog.Info("mqtt: disabled (no host configured)")
		return c
	}
	c.enabled = true
	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "amplipi-rfid-" + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(60*time.Second).
		SetWill(c.topic(statusTopic), "offline", 0, true).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	c.client = paho.NewClient(opts)
	return c
}

// Enabled reports whether a broker is configured.
func (c *Client) Enabled() bool { return c.enabled }

func (c *Client) topic(name string) string { return c.prefix + "/" + name }

// Connect starts connecting. With connect-retry on, paho keeps retrying in
// the background, so a missing broker is not an error here.
func (c *Client) Connect() error {
	if !c.enabled {
		return nil
	}
	token := c.client.Connect()
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("mqtt: connect: %w", token.Error())
	}
	return nil
}

// Disconnect publishes the offline status and closes the connection.
func (c *Client) Disconnect() {
	if !c.enabled {
		return
	}
	if c.client.IsConnected() {
		c.client.Publish(c.topic(statusTopic), 0, true, "offline").WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
	slog.Info("mqtt: disconnected")
}

// Run forwards bus events to <prefix>/tag until ctx is done.
func (c *Client) Run(ctx context.Context, bus *events.Bus) {
	if !c.enabled {
		return
	}
	id := "mqtt-" + uuid.NewString()
	ch := bus.Subscribe(id)
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.publishEvent(ev)
		}
	}
}

func (c *Client) publishEvent(ev models.TagEvent) {
	payload, err := eventPayload(ev)
	if err != nil {
		slog.Warn("mqtt: encode event failed", "err", err)
		return
	}
	c.client.Publish(c.topic(tagTopic), 0, false, payload)
	slog.Debug("mqtt: published tag", "tag", ev.Tag)
}

type eventMessage struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	TagID       string    `json:"tag_id"`
	URI         string    `json:"uri"`
	Description string    `json:"description,omitempty"`
	At          time.Time `json:"at"`
}

func eventPayload(ev models.TagEvent) ([]byte, error) {
	msg := eventMessage{
		ID:    ev.ID,
		Event: "tag_scanned",
		TagID: ev.Tag.Key(),
		URI:   ev.URI(),
		At:    ev.At,
	}
	if ev.Mapping != nil {
		msg.Description = ev.Mapping.Description
	}
	return json.Marshal(msg)
}

// parseScan accepts a bare tag id ("123", "0x7b") or {"tag_id": ...}.
func parseScan(payload []byte) (models.Tag, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '{' {
		var msg struct {
			TagID json.Number `json:"tag_id"`
		}
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&msg); err != nil {
			// tag_id may be a quoted string.
			var str struct {
				TagID string `json:"tag_id"`
			}
			if err2 := json.Unmarshal(payload, &str); err2 != nil {
				return 0, fmt.Errorf("mqtt: scan payload: %w", err)
			}
			return hardware.ParseRawTag(str.TagID)
		}
		return hardware.ParseRawTag(string(msg.TagID))
	}
	return hardware.ParseRawTag(string(payload))
}

func (c *Client) handleConnect(client paho.Client) {
	slog.Info("mqtt: connected")
	client.Publish(c.topic(statusTopic), 0, true, "online")
	if c.onScan == nil {
		return
	}
	// Subscriptions do not survive a clean-session reconnect.
	if token := client.Subscribe(c.topic(scanTopic), 0, c.handleScan); token.Wait() && token.Error() != nil {
		slog.Warn("mqtt: subscribe failed", "topic", c.topic(scanTopic), "err", token.Error())
	}
}

func (c *Client) handleConnectionLost(client paho.Client, err error) {
	slog.Warn("mqtt: connection lost", "err", err)
}

func (c *Client) handleScan(client paho.Client, msg paho.Message) {
	tag, err := parseScan(msg.Payload())
	if err != nil {
		slog.Warn("mqtt: ignoring scan", "payload", string(msg.Payload()), "err", err)
		return
	}
	slog.Info("mqtt: injected scan", "tag", tag)
	// onScan talks to the player; paho's router must not wait on it.
	go c.onScan(tag)
}
