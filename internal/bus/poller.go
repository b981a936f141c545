package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"odoomcp/internal/odoo"
	"odoomcp/pkg/logging"
)

// Odoo holds a long-poll request open for up to 50 seconds; the client
// timeout leaves headroom on top of that.
const (
	longPollHold    = 50 * time.Second
	pollHTTPTimeout = 75 * time.Second

	pollInitialBackoff = 5 * time.Second
	pollMaxBackoff     = 60 * time.Second
)

// Poller translates Odoo's long-poll bus into resource updates. Only
// channels in the odoo:// URI form are forwarded; everything else on the
// wire is someone else's traffic.
type Poller struct {
	endpoint string
	database string
	channels []string
	client   *http.Client
	bus      *Bus

	lastID int64
	done   chan struct{}
}

// NewPoller builds a poller against the backend's /longpolling/poll
// endpoint, reusing the RPC layer's TLS configuration.
func NewPoller(opts odoo.ClientOptions, channels []string, b *Bus) (*Poller, error) {
	tr, err := odoo.NewHTTPTransport(opts.TLS)
	if err != nil {
		return nil, err
	}
	return &Poller{
		endpoint: opts.URL + "/longpolling/poll",
		database: opts.Database,
		channels: channels,
		client:   &http.Client{Transport: tr, Timeout: pollHTTPTimeout},
		bus:      b,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the poll loop until ctx is cancelled. Poll failures back off
// exponentially and reset on the next successful poll; the loop never gives
// up on its own.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Done closes once the poll loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = pollInitialBackoff
	expo.MaxInterval = pollMaxBackoff

	logging.Info("Bus", "long-poll translator started for %d channels", len(p.channels))
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := p.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := expo.NextBackOff()
			logging.Warn("Bus", "long-poll failed, retrying in %v: %v", wait, err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}
		expo.Reset()

		for _, msg := range messages {
			if msg.ID > p.lastID {
				p.lastID = msg.ID
			}
			p.translate(msg)
		}
	}
}

type busMessage struct {
	ID      int64       `json:"id"`
	Channel interface{} `json:"channel"`
	Message interface{} `json:"message"`
}

type pollRequest struct {
	JSONRPC string     `json:"jsonrpc"`
	Method  string     `json:"method"`
	Params  pollParams `json:"params"`
	ID      int64      `json:"id"`
}

type pollParams struct {
	Channels []string               `json:"channels"`
	Last     int64                  `json:"last"`
	Options  map[string]interface{} `json:"options"`
}

type pollResponse struct {
	Result []busMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Poller) poll(ctx context.Context) ([]busMessage, error) {
	payload := pollRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  pollParams{Channels: p.channels, Last: p.lastID, Options: map[string]interface{}{}},
		ID:      p.lastID + 1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, odoo.NewProtocolError("cannot encode long-poll request").WithCause(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, longPollHold+10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, odoo.NewNetworkError("cannot build long-poll request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, odoo.NewNetworkError("long-poll request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, odoo.NewNetworkError("odoo bus returned HTTP %d", resp.StatusCode)
	}

	var decoded pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, odoo.NewProtocolError("cannot decode long-poll response").WithCause(err)
	}
	if decoded.Error != nil {
		return nil, odoo.NewProtocolError("odoo bus error: %s", decoded.Error.Message)
	}
	return decoded.Result, nil
}

// translate forwards a bus message whose channel is an odoo:// URI. Odoo
// renders channel names either as plain strings or as [db, name] pairs.
func (p *Poller) translate(msg busMessage) {
	uri, ok := channelURI(msg.Channel)
	if !ok {
		logging.Debug("Bus", "ignoring bus message on foreign channel %v", msg.Channel)
		return
	}

	extra := map[string]interface{}{"source": "odoo_bus"}
	if payload, ok := msg.Message.(map[string]interface{}); ok {
		for k, v := range payload {
			if k != "uri" && k != "source" {
				extra[k] = v
			}
		}
	}
	p.bus.Publish(NewUpdate(uri, extra))
}

func channelURI(channel interface{}) (string, bool) {
	switch c := channel.(type) {
	case string:
		if len(c) > len("odoo://") && c[:len("odoo://")] == "odoo://" {
			return c, true
		}
	case []interface{}:
		// [db, channel] pair; the name rides in the last slot.
		if len(c) > 0 {
			if s, ok := c[len(c)-1].(string); ok {
				return channelURI(s)
			}
		}
	}
	return "", false
}
