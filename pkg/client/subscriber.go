package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventJoin         = "join"
	eventNotification = "notification"
	eventError        = "error"

	// The server pings every 54s; anything slower means the link is gone.
	readTimeout = 75 * time.Second
	writeWait   = 10 * time.Second
)

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscriberOptions configures a Subscriber.
type SubscriberOptions struct {
	// URL of the push endpoint, see Client.WebSocketURL.
	URL    string
	Token  string
	UserID string

	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration

	OnNotification func(Notification)
	// OnState reports every connect and disconnect.
	OnState func(connected bool)
	Logger  *zap.Logger
}

// Subscriber holds one push connection open, joining the user's room after
// every (re)connect. Push is best-effort; callers reconcile by fetching.
type Subscriber struct {
	opts SubscriberOptions
}

func NewSubscriber(opts SubscriberOptions) *Subscriber {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Subscriber{opts: opts}
}

// Run connects and reconnects until ctx is done. It returns nil on
// cancellation.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := s.opts.MinBackoff
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		var connected *connectedError
		if errors.As(err, &connected) {
			backoff = s.opts.MinBackoff
			err = connected.err
		}
		s.opts.Logger.Debug("push channel down", zap.Duration("retry_in", backoff), zap.Error(err))

		timer := time.NewTimer(withJitter(backoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff *= 2
		if backoff > s.opts.MaxBackoff {
			backoff = s.opts.MaxBackoff
		}
	}
}

// connectedError marks a failure after a successful connect, which resets
// the backoff.
type connectedError struct{ err error }

func (e *connectedError) Error() string { return e.err.Error() }

func (s *Subscriber) session(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.opts.Token)

	ws, _, err := s.opts.Dialer.DialContext(ctx, s.opts.URL, header)
	if err != nil {
		return err
	}
	defer ws.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-stop:
		}
	}()

	join, err := json.Marshal(map[string]string{"userId": s.opts.UserID})
	if err != nil {
		return err
	}
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(wireEvent{Type: eventJoin, Payload: join}); err != nil {
		return err
	}

	s.setState(true)
	defer s.setState(false)

	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPingHandler(func(data string) error {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var ev wireEvent
		if err := ws.ReadJSON(&ev); err != nil {
			return &connectedError{err: err}
		}
		ws.SetReadDeadline(time.Now().Add(readTimeout))

		switch ev.Type {
		case eventNotification:
			var n Notification
			if err := json.Unmarshal(ev.Payload, &n); err != nil {
				s.opts.Logger.Warn("undecodable notification", zap.Error(err))
				continue
			}
			if s.opts.OnNotification != nil {
				s.opts.OnNotification(n)
			}
		case eventError:
			s.opts.Logger.Warn("push channel error", zap.ByteString("payload", ev.Payload))
		}
	}
}

func (s *Subscriber) setState(connected bool) {
	if s.opts.OnState != nil {
		s.opts.OnState(connected)
	}
}

// withJitter spreads d over [d/2, d].
func withJitter(d time.Duration) time.Duration {
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
