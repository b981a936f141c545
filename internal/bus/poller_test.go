package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odoomcp/internal/odoo"
)

// longPollFake scripts the /longpolling/poll endpoint one batch at a time.
type longPollFake struct {
	t       *testing.T
	batches chan []busMessage
	polls   atomic.Int64
	lastIDs chan int64
}

func newLongPollFake(t *testing.T) *longPollFake {
	return &longPollFake{
		t:       t,
		batches: make(chan []busMessage, 8),
		lastIDs: make(chan int64, 8),
	}
}

func (f *longPollFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.polls.Add(1)
	require.Equal(f.t, http.MethodPost, r.Method)
	require.Equal(f.t, "/longpolling/poll", r.URL.Path)

	var req struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  struct {
			Channels []string `json:"channels"`
			Last     int64    `json:"last"`
		} `json:"params"`
	}
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	require.Equal(f.t, "call", req.Method)
	select {
	case f.lastIDs <- req.Params.Last:
	default:
	}

	select {
	case batch := <-f.batches:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "result": batch})
	case <-r.Context().Done():
	}
}

func startPoller(t *testing.T, fake *longPollFake, channels []string) (*Bus, *Sink, context.CancelFunc) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	b := New(8)
	t.Cleanup(b.Close)

	p, err := NewPoller(odoo.ClientOptions{URL: srv.URL, Database: "testdb"}, channels, b)
	require.NoError(t, err)

	sink := b.SubscribeAll()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		select {
		case <-p.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("poller did not stop")
		}
	})
	p.Start(ctx)
	return b, sink, cancel
}

func TestPollerPublishesOdooChannels(t *testing.T) {
	fake := newLongPollFake(t)
	fake.batches <- []busMessage{
		{ID: 3, Channel: "odoo://res.partner/7", Message: map[string]interface{}{"changed": true}},
	}

	_, sink, _ := startPoller(t, fake, []string{"odoo://res.partner/7"})

	got := receive(t, sink)
	assert.Equal(t, "odoo://res.partner/7", got.URI)
	assert.Equal(t, "odoo_bus", got.Params["source"])
	assert.Equal(t, true, got.Params["changed"])
}

func TestPollerIgnoresForeignChannels(t *testing.T) {
	fake := newLongPollFake(t)
	fake.batches <- []busMessage{
		{ID: 1, Channel: "mail.channel/4", Message: map[string]interface{}{}},
		{ID: 2, Channel: "odoo://sale.order/1", Message: nil},
	}

	_, sink, _ := startPoller(t, fake, []string{"odoo://sale.order/1"})

	got := receive(t, sink)
	assert.Equal(t, "odoo://sale.order/1", got.URI)
}

func TestPollerAdvancesCursor(t *testing.T) {
	fake := newLongPollFake(t)
	fake.batches <- []busMessage{
		{ID: 5, Channel: "odoo://res.partner/7", Message: nil},
	}
	fake.batches <- []busMessage{
		{ID: 6, Channel: "odoo://res.partner/7", Message: nil},
	}

	_, sink, _ := startPoller(t, fake, []string{"odoo://res.partner/7"})
	receive(t, sink)
	receive(t, sink)

	// First poll starts at 0; the second must resume past the first batch.
	require.Equal(t, int64(0), <-fake.lastIDs)
	require.Equal(t, int64(5), <-fake.lastIDs)
}

func TestPollerUnwrapsChannelPairs(t *testing.T) {
	fake := newLongPollFake(t)
	fake.batches <- []busMessage{
		{ID: 1, Channel: []interface{}{"testdb", "odoo://crm.lead/2"}, Message: nil},
	}

	_, sink, _ := startPoller(t, fake, []string{"odoo://crm.lead/2"})
	assert.Equal(t, "odoo://crm.lead/2", receive(t, sink).URI)
}

func TestChannelURI(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
		ok   bool
	}{
		{"odoo://res.partner/7", "odoo://res.partner/7", true},
		{"mail.channel/3", "", false},
		{"odoo://", "", false},
		{[]interface{}{"db", "odoo://sale.order/list"}, "odoo://sale.order/list", true},
		{[]interface{}{"db", float64(4)}, "", false},
		{[]interface{}{}, "", false},
		{float64(12), "", false},
	}
	for _, tc := range tests {
		got, ok := channelURI(tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
		assert.Equal(t, tc.want, got, "%v", tc.in)
	}
}
