package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/micro-nova/amplipi-rfid/internal/events"
	"github.com/micro-nova/amplipi-rfid/internal/models"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic   string
	payload []byte
}

// fakeClient records publishes; every other paho.Client method is unused.
type fakeClient struct {
	paho.Client
	mu  sync.Mutex
	out []published
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	f.out = append(f.out, published{topic: topic, payload: b})
	return doneToken{}
}

func (f *fakeClient) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.out...)
}

type fakeMessage struct {
	paho.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

func TestParseScan(t *testing.T) {
	tests := []struct {
		payload string
		want    models.Tag
	}{
		{"123", 123},
		{" 123\n", 123},
		{"0x7b", 123},
		{`{"tag_id": 123}`, 123},
		{`{"tag_id": "123"}`, 123},
		{`{"tag_id": "0x7b"}`, 123},
	}
	for _, tt := range tests {
		got, err := parseScan([]byte(tt.payload))
		if err != nil {
			t.Errorf("parseScan(%q) error = %v", tt.payload, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseScan(%q) = %d, want %d", tt.payload, got, tt.want)
		}
	}

	for _, bad := range []string{"", "zzz", "7b", `{"tag_id": -1}`, `{"other": 1}`, `{broken`} {
		if _, err := parseScan([]byte(bad)); err == nil {
			t.Errorf("parseScan(%q) expected error", bad)
		}
	}
}

func TestEventPayload(t *testing.T) {
	m := models.Mapping{Tag: "42", Action: models.TogglePlay(), Description: "kitchen"}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := eventPayload(models.TagEvent{ID: "abc", Tag: 42, Mapping: &m, At: at})
	if err != nil {
		t.Fatalf("eventPayload() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["event"] != "tag_scanned" || got["tag_id"] != "42" || got["uri"] != "TOGGLE_PLAY" || got["description"] != "kitchen" {
		t.Errorf("payload = %s", data)
	}

	data, _ = eventPayload(models.TagEvent{ID: "def", Tag: 7, At: at})
	got = nil
	json.Unmarshal(data, &got)
	if got["uri"] != "" {
		t.Errorf("unmapped uri = %v, want empty", got["uri"])
	}
	if _, ok := got["description"]; ok {
		t.Errorf("unmapped payload has description: %s", data)
	}
}

func TestDisabledClientIsNoOp(t *testing.T) {
	c := New(Config{Prefix: "rfid"}, nil)
	if c.Enabled() {
		t.Fatal("Enabled() = true without host")
	}
	if err := c.Connect(); err != nil {
		t.Errorf("Connect() error = %v", err)
	}
	bus := events.NewBus()

	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), bus)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() on a disabled client did not return")
	}
	if n := bus.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", n)
	}
	c.Disconnect()
}

func TestRun_PublishesBusEvents(t *testing.T) {
	fc := &fakeClient{}
	c := &Client{client: fc, prefix: "rfid", enabled: true}
	bus := events.NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, bus)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Run() never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	bus.Publish(models.TagEvent{ID: "e1", Tag: 123})

	deadline = time.Now().Add(time.Second)
	for len(fc.published()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event was not published")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	got := fc.published()[0]
	if got.topic != "rfid/tag" {
		t.Errorf("topic = %q, want rfid/tag", got.topic)
	}
	if bus.SubscriberCount() != 0 {
		t.Error("Run() did not unsubscribe on exit")
	}
}

func TestHandleScan_InjectsTag(t *testing.T) {
	got := make(chan models.Tag, 2)
	c := &Client{prefix: "rfid", enabled: true, onScan: func(tag models.Tag) { got <- tag }}

	c.handleScan(nil, fakeMessage{payload: []byte("123")})
	c.handleScan(nil, fakeMessage{payload: []byte("not a tag")})

	select {
	case tag := <-got:
		if tag != 123 {
			t.Errorf("injected = %v, want 123", tag)
		}
	case <-time.After(time.Second):
		t.Fatal("scan was not injected")
	}
	select {
	case tag := <-got:
		t.Errorf("unexpected injected tag %v", tag)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHandleScan_DoesNotWaitForHandler(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	c := &Client{prefix: "rfid", enabled: true, onScan: func(models.Tag) {
		close(started)
		<-release
	}}

	returned := make(chan struct{})
	go func() {
		c.handleScan(nil, fakeMessage{payload: []byte("7")})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("handleScan() blocked on a slow handler")
	}
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler was never called")
	}
}
