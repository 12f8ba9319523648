package realtime

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ClientState is the lifecycle position of a streaming subscription.
type ClientState string

const (
	ClientStateConnecting ClientState = "connecting"
	ClientStateStreaming  ClientState = "streaming"
	ClientStateBackoff    ClientState = "backoff"
	ClientStateErrored    ClientState = "errored"
)

const (
	maxDialAttempts  = 5
	baseRedialDelay  = time.Second
	maxRedialDelay   = 30 * time.Second
	handshakeTimeout = 10 * time.Second
)

// StreamClient subscribes to a session's event stream and redials on
// transient disconnects. Auth rejections are permanent: a credential
// that was refused once will be refused again.
type StreamClient struct {
	baseURL   string
	token     string
	sessionID string

	// OnState, when set, observes lifecycle transitions.
	OnState func(state ClientState, attempt int)
}

func NewStreamClient(baseURL, token, sessionID string) *StreamClient {
	return &StreamClient{
		baseURL:   baseURL,
		token:     token,
		sessionID: sessionID,
	}
}

// Follow delivers events to fn until the context ends, the retry
// budget runs out, or the server rejects the subscription outright.
func (c *StreamClient) Follow(ctx context.Context, fn func(Event)) error {
	attempt := 0
	for {
		c.setState(ClientStateConnecting, attempt)

		conn, err := c.dial(ctx)
		if err == nil {
			attempt = 0
			err = c.stream(ctx, conn, fn)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isAuthClose(err) {
			c.setState(ClientStateErrored, attempt)
			return err
		}

		attempt++
		if attempt >= maxDialAttempts {
			c.setState(ClientStateErrored, attempt)
			return fmt.Errorf("stream gave up after %d attempts: %w", attempt, err)
		}

		c.setState(ClientStateBackoff, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(redialDelay(attempt)):
		}
	}
}

func (c *StreamClient) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws/sessions/" + c.sessionID
	u.RawQuery = url.Values{"token": {c.token}}.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *StreamClient) stream(ctx context.Context, conn *websocket.Conn, fn func(Event)) error {
	defer conn.Close()
	c.setState(ClientStateStreaming, 0)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		fn(ev)
	}
}

func (c *StreamClient) setState(state ClientState, attempt int) {
	if c.OnState != nil {
		c.OnState(state, attempt)
	}
}

func isAuthClose(err error) bool {
	return websocket.IsCloseError(err,
		CloseMissingToken, CloseUnauthorizedSession, CloseInvalidToken)
}

func redialDelay(attempt int) time.Duration {
	delay := baseRedialDelay << (attempt - 1)
	if delay > maxRedialDelay {
		delay = maxRedialDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay/2 + jitter
}
