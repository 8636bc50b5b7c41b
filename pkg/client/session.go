package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brewnet/backend/pkg/reconcile"
)

// SessionOptions tunes how aggressively a Session reconciles.
type SessionOptions struct {
	// PollInterval applies while the push channel is up.
	PollInterval time.Duration
	// FallbackInterval applies while the push channel is down.
	FallbackInterval time.Duration
	// CountInterval paces the unread badge. It only runs when OnCount is
	// set.
	CountInterval    time.Duration
	Jitter           time.Duration
	FailureThreshold int

	// OnChange receives the unread view whenever it changes.
	OnChange func([]Notification)
	// OnCount receives the server's unread count whenever it changes.
	OnCount func(int64)
	// OnUnreachable reports the server becoming unreachable and back.
	OnUnreachable func(bool)
	// OnPush reports push channel state.
	OnPush func(connected bool)

	// Push overrides subscriber settings such as the dialer and backoff.
	Push   *SubscriberOptions
	Logger *zap.Logger
}

func (o *SessionOptions) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.FallbackInterval <= 0 {
		o.FallbackInterval = 5 * time.Second
	}
	if o.CountInterval <= 0 {
		o.CountInterval = time.Minute
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Session keeps the signed-in user's unread notifications converged. Push
// arrivals show up at once; the scheduler repairs anything push missed.
type Session struct {
	client    *Client
	opts      SessionOptions
	inbox     *reconcile.Inbox[Notification]
	scheduler *reconcile.Scheduler[[]Notification]
	// counter is nil unless OnCount is set. lastCount is only touched by
	// its Apply and by SignOut after the counter stopped.
	counter   *reconcile.Scheduler[int64]
	lastCount int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewSession(c *Client, opts SessionOptions) *Session {
	opts.defaults()

	s := &Session{
		client: c,
		opts:   opts,
		inbox: reconcile.NewInbox(
			func(n Notification) string { return n.ID },
			func(a, b Notification) bool {
				if !a.CreatedAt.Equal(b.CreatedAt) {
					return a.CreatedAt.After(b.CreatedAt)
				}
				return a.ID > b.ID
			},
		),
	}

	s.scheduler = reconcile.NewScheduler(reconcile.Options[[]Notification]{
		// Until the socket reports in, assume it is down.
		Interval:         opts.FallbackInterval,
		Jitter:           opts.Jitter,
		FailureThreshold: opts.FailureThreshold,
		Fetch:            c.Unread,
		Apply: func(list []Notification) {
			if s.inbox.Replace(list) {
				s.changed()
			}
		},
		OnUnreachable: opts.OnUnreachable,
		Logger:        opts.Logger,
	})

	if opts.OnCount != nil {
		s.lastCount = -1
		s.counter = reconcile.NewScheduler(reconcile.Options[int64]{
			Interval:         opts.CountInterval,
			Jitter:           opts.Jitter,
			FailureThreshold: opts.FailureThreshold,
			Fetch:            c.UnreadCount,
			Apply: func(n int64) {
				if n != s.lastCount {
					s.lastCount = n
					opts.OnCount(n)
				}
			},
			Logger: opts.Logger,
		})
	}
	return s
}

// Items returns the current unread view, newest first.
func (s *Session) Items() []Notification {
	return s.inbox.Items()
}

// Run reconciles and listens for pushes until ctx is done or Close is
// called. The client must know its user id (SignIn or SetUserID).
func (s *Session) Run(ctx context.Context) error {
	userID := s.client.UserID()
	if userID == "" {
		return ErrNotSignedIn
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("client: session already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	done := s.done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	subOpts := SubscriberOptions{}
	if s.opts.Push != nil {
		subOpts = *s.opts.Push
	}
	subOpts.URL = s.client.WebSocketURL()
	subOpts.Token = s.client.Token()
	subOpts.UserID = userID
	subOpts.OnNotification = s.pushed
	subOpts.OnState = s.pushState
	if subOpts.Logger == nil {
		subOpts.Logger = s.opts.Logger
	}
	subscriber := NewSubscriber(subOpts)

	g, gctx := errgroup.WithContext(ctx)
	s.scheduler.Start(gctx)
	if s.counter != nil {
		s.counter.Start(gctx)
	}
	g.Go(func() error {
		return subscriber.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.scheduler.Stop()
		if s.counter != nil {
			s.counter.Stop()
		}
		return nil
	})
	return g.Wait()
}

// Close stops Run and waits for it to return.
func (s *Session) Close() {
	s.mu.Lock()
	cancel, done, running := s.cancel, s.done, s.running
	s.mu.Unlock()

	if !running {
		return
	}
	cancel()
	<-done
}

// SignOut stops the session first so no late fetch repopulates the view,
// then signs out.
func (s *Session) SignOut(ctx context.Context) error {
	s.Close()
	s.inbox.Clear()
	s.changed()
	if s.counter != nil {
		s.lastCount = -1
		s.opts.OnCount(0)
	}
	return s.client.SignOut(ctx)
}

// Dismiss hides a notification at once and marks it read on the server. On
// failure the item comes back with the next reconciliation.
func (s *Session) Dismiss(ctx context.Context, id string) error {
	if s.inbox.Remove(id) {
		s.changed()
	}

	err := s.client.MarkRead(ctx, id)
	if err == nil || IsNotFound(err) {
		s.recount()
		return nil
	}
	s.inbox.Restore(id)
	s.scheduler.Trigger()
	return err
}

// DismissAll marks every notification read.
func (s *Session) DismissAll(ctx context.Context) (int64, error) {
	updated, err := s.client.MarkAllRead(ctx)
	if err != nil {
		return 0, err
	}
	s.inbox.Clear()
	s.changed()
	// A push that raced the server's update is still unread there.
	s.scheduler.Trigger()
	s.recount()
	return updated, nil
}

func (s *Session) pushed(n Notification) {
	if s.inbox.Upsert(n) {
		s.changed()
		s.recount()
	}
}

func (s *Session) pushState(connected bool) {
	if connected {
		s.scheduler.SetInterval(s.opts.PollInterval)
		// Anything sent while we were away only reaches us by fetching.
		s.scheduler.Trigger()
		s.recount()
	} else {
		s.scheduler.SetInterval(s.opts.FallbackInterval)
	}
	if s.opts.OnPush != nil {
		s.opts.OnPush(connected)
	}
}

func (s *Session) recount() {
	if s.counter != nil {
		s.counter.Trigger()
	}
}

func (s *Session) changed() {
	if s.opts.OnChange != nil {
		s.opts.OnChange(s.inbox.Items())
	}
}
