// Package auth is the client side of the credential service: it keeps the
// current token in a TokenStorage and reports lifecycle events to listeners.
package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"frontdesk/internal/logger"
	"frontdesk/internal/models"
	"frontdesk/internal/store"

	"go.uber.org/zap"
)

type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
)

// Listener receives every lifecycle event. session is nil for EventSignedOut
// and for an EventInitialSession without a valid token.
type Listener func(event Event, session *models.Session)

// Publisher mirrors events to other observers of the same identity.
type Publisher interface {
	PublishAuthEvent(identityID, event string)
}

type Options struct {
	SessionTTL time.Duration
	Publisher  Publisher
}

type Client struct {
	backend   store.Credentials
	storage   TokenStorage
	publisher Publisher
	ttl       time.Duration
	now       func() time.Time
	log       *zap.Logger

	mu          sync.Mutex
	listeners   map[int]Listener
	nextID      int
	initialized bool
	current     *models.Session
}

func NewClient(backend store.Credentials, storage TokenStorage, opts Options) *Client {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	if storage == nil {
		storage = &MemoryStorage{}
	}
	return &Client{
		backend:   backend,
		storage:   storage,
		publisher: opts.Publisher,
		ttl:       ttl,
		now:       time.Now,
		log:       logger.Named("auth"),
		listeners: make(map[int]Listener),
	}
}

// OnAuthStateChange registers l and returns a function removing it.
func (c *Client) OnAuthStateChange(l Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// GetSession validates the stored token. The first call emits EventInitialSession.
func (c *Client) GetSession(ctx context.Context) (*models.Session, error) {
	var session *models.Session
	var err error

	if token := c.storage.Token(); token != "" {
		var loaded models.Session
		loaded, err = c.backend.GetSession(ctx, token)
		switch {
		case err == nil && loaded.Expired(c.now()):
			c.storage.ClearToken()
		case err == nil:
			session = &loaded
		case errors.Is(err, store.ErrSessionNotFound):
			err = nil
			c.storage.ClearToken()
		}
	}

	c.mu.Lock()
	c.current = session
	first := !c.initialized
	c.initialized = true
	c.mu.Unlock()

	if first {
		c.emit(EventInitialSession, session)
	}
	return session, err
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata models.Metadata) (*models.Session, error) {
	identity, err := c.backend.CreateIdentity(ctx, store.SignUpInput{Email: email, Password: password, Metadata: metadata})
	if err != nil {
		return nil, err
	}
	return c.startSession(ctx, identity)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	identity, err := c.VerifyPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.StartSession(ctx, identity)
}

// VerifyPassword checks the credentials without creating a session or
// emitting any event.
func (c *Client) VerifyPassword(ctx context.Context, email, password string) (models.Identity, error) {
	return c.backend.VerifyPassword(ctx, email, password)
}

// StartSession creates a session for an already verified identity, stores its
// token and emits EventSignedIn.
func (c *Client) StartSession(ctx context.Context, identity models.Identity) (*models.Session, error) {
	return c.startSession(ctx, identity)
}

// SignOut deletes the remote session. Local token and state are cleared and
// EventSignedOut is emitted even when the remote call fails.
func (c *Client) SignOut(ctx context.Context) error {
	var err error
	if token := c.storage.Token(); token != "" {
		err = c.backend.DeleteSession(ctx, token)
	}
	c.storage.ClearToken()

	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.mu.Unlock()

	c.emit(EventSignedOut, nil)
	if previous != nil && c.publisher != nil {
		c.publisher.PublishAuthEvent(previous.Identity.ID, string(EventSignedOut))
	}
	return err
}

func (c *Client) startSession(ctx context.Context, identity models.Identity) (*models.Session, error) {
	session, err := c.backend.CreateSession(ctx, identity, c.now().UTC().Add(c.ttl))
	if err != nil {
		return nil, err
	}
	c.storage.SetToken(session.Token, session.ExpiresAt)

	c.mu.Lock()
	c.current = &session
	c.initialized = true
	c.mu.Unlock()

	c.log.Debug("session started", logger.IdentityID(identity.ID))
	c.emit(EventSignedIn, &session)
	if c.publisher != nil {
		c.publisher.PublishAuthEvent(identity.ID, string(EventSignedIn))
	}
	return &session, nil
}

func (c *Client) emit(event Event, session *models.Session) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(event, session)
	}
}
