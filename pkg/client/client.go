// Package client is the Go SDK for the BrewNet presence and notification
// service: REST calls, the push subscriber, and a Session that keeps an
// unread inbox converged.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotSignedIn is returned by calls that need the caller's user id before
// SignIn has run.
var ErrNotSignedIn = errors.New("client: not signed in")

type Originator struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipientId"`
	Type        string     `json:"type"`
	Originator  Originator `json:"originator"`
	Read        bool       `json:"read"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type User struct {
	UserID      string     `json:"userId"`
	Name        string     `json:"name"`
	IsOnline    bool       `json:"isOnline"`
	LastSignOut *time.Time `json:"lastSignOut,omitempty"`
}

type Connection struct {
	ID       string `json:"id"`
	FromUser string `json:"fromUser"`
	ToUser   string `json:"toUser"`
	Status   string `json:"status"`
}

// APIError is a non-2xx reply carrying the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the REST surface with a bearer token.
type Client struct {
	http    *resty.Client
	baseURL string
	token   string

	mu     sync.RWMutex
	userID string
}

// New creates a client for the server at baseURL, e.g. http://localhost:4200.
func New(baseURL, token string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	rc := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")

	return &Client{http: rc, baseURL: baseURL, token: token}
}

// UserID returns the id learned from SignIn.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// SetUserID sets the caller's id without signing in.
func (c *Client) SetUserID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
}

// Token returns the bearer token used for REST and the push channel.
func (c *Client) Token() string {
	return c.token
}

// WebSocketURL returns the push channel endpoint.
func (c *Client) WebSocketURL() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/ws"
	return u.String()
}

func do[T any](ctx context.Context, req *resty.Request, method, path string) (T, error) {
	var zero T
	result := &envelope[T]{}
	failure := &envelope[struct{}]{}

	resp, err := req.SetContext(ctx).
		SetResult(result).
		SetError(failure).
		Execute(method, path)
	if err != nil {
		return zero, err
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if failure.Error != nil {
			apiErr.Code = failure.Error.Code
			apiErr.Message = failure.Error.Message
		}
		return zero, apiErr
	}
	return result.Data, nil
}

func (c *Client) self() (string, error) {
	id := c.UserID()
	if id == "" {
		return "", ErrNotSignedIn
	}
	return id, nil
}

// SignIn marks the caller online and records its user id.
func (c *Client) SignIn(ctx context.Context, name string) (*User, error) {
	user, err := do[*User](ctx, c.http.R().SetBody(map[string]string{"name": name}), http.MethodPost, "/api/v1/session/sign-in")
	if err != nil {
		return nil, err
	}
	if user != nil {
		c.SetUserID(user.UserID)
	}
	return user, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	_, err := do[struct{}](ctx, c.http.R(), http.MethodPost, "/api/v1/session/sign-out")
	return err
}

// Unread returns the caller's unread notifications, newest first.
func (c *Client) Unread(ctx context.Context) ([]Notification, error) {
	id, err := c.self()
	if err != nil {
		return nil, err
	}
	data, err := do[struct {
		Notifications []Notification `json:"notifications"`
	}](ctx, c.http.R().SetPathParam("userId", id), http.MethodGet, "/api/v1/notifications/{userId}")
	if err != nil {
		return nil, err
	}
	return data.Notifications, nil
}

// UnreadCount returns the number of unread notifications for the badge.
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	id, err := c.self()
	if err != nil {
		return 0, err
	}
	data, err := do[struct {
		Count int64 `json:"count"`
	}](ctx, c.http.R().SetPathParam("userId", id), http.MethodGet, "/api/v1/notifications/unread-count/{userId}")
	if err != nil {
		return 0, err
	}
	return data.Count, nil
}

func (c *Client) MarkRead(ctx context.Context, notificationID string) error {
	_, err := do[struct{}](ctx, c.http.R().SetPathParam("id", notificationID), http.MethodPut, "/api/v1/notifications/{id}/read")
	return err
}

func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	id, err := c.self()
	if err != nil {
		return 0, err
	}
	data, err := do[struct {
		Updated int64 `json:"updated"`
	}](ctx, c.http.R().SetPathParam("userId", id), http.MethodPut, "/api/v1/notifications/readAll/{userId}")
	if err != nil {
		return 0, err
	}
	return data.Updated, nil
}

func (c *Client) OnlineUsers(ctx context.Context) ([]User, error) {
	data, err := do[struct {
		Users []User `json:"users"`
	}](ctx, c.http.R(), http.MethodGet, "/api/v1/users/online")
	if err != nil {
		return nil, err
	}
	return data.Users, nil
}

func (c *Client) SendRequest(ctx context.Context, toUserID string) (*Connection, error) {
	return do[*Connection](ctx, c.http.R().SetBody(map[string]string{"toUserId": toUserID}), http.MethodPost, "/api/v1/connections/request")
}

func (c *Client) Accept(ctx context.Context, fromUserID string) (*Connection, error) {
	return do[*Connection](ctx, c.http.R().SetBody(map[string]string{"fromUserId": fromUserID}), http.MethodPost, "/api/v1/connections/accept")
}

func (c *Client) Remove(ctx context.Context, userID string) error {
	_, err := do[struct{}](ctx, c.http.R().SetPathParam("userId", userID), http.MethodDelete, "/api/v1/connections/{userId}")
	return err
}
