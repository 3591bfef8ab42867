package mqtt

import (
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type publication struct {
	topic    string
	qos      byte
	retained bool
	payload  any
}

// mockClient records publications. publishErrs are returned in order by
// the non-status publications.
type mockClient struct {
	opts        *paho.ClientOptions
	published   []publication
	publishErrs []error
	stall       bool
	connErr     error
}

// useMock swaps the paho constructor for the duration of the test.
func useMock(t *testing.T, mc *mockClient) {
	t.Helper()
	prev := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = prev })
}

// notifications drops the presence messages.
func (m *mockClient) notifications(status string) []publication {
	var out []publication
	for _, p := range m.published {
		if p.topic != status {
			out = append(out, p)
		}
	}
	return out
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.connErr != nil {
		return &dummyToken{err: m.connErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.published = append(m.published, publication{topic, qos, retained, payload})
	if m.stall {
		return &dummyToken{stalled: true}
	}
	if retained || len(m.publishErrs) == 0 {
		return &dummyToken{}
	}
	err := m.publishErrs[0]
	m.publishErrs = m.publishErrs[1:]
	return &dummyToken{err: err}
}
func (m *mockClient) Subscribe(string, byte, paho.MessageHandler) paho.Token { return &dummyToken{} }
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct {
	err     error
	stalled bool
}

func (d dummyToken) Wait() bool                     { return !d.stalled }
func (d dummyToken) WaitTimeout(time.Duration) bool { return !d.stalled }
func (d dummyToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !d.stalled {
		close(ch)
	}
	return ch
}
func (d dummyToken) Error() error { return d.err }
