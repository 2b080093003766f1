// Package session holds the process-wide view of the current identity.
//
// The Store is the only writer of that view. It follows the auth client's
// lifecycle events, and gates password sign-in behind the ban check: the
// session is only started once the verified identity passes it, so no token
// or SIGNED_IN event ever exists for a suspended identity.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"frontdesk/internal/auth"
	"frontdesk/internal/ban"
	"frontdesk/internal/logger"
	"frontdesk/internal/models"
	"frontdesk/internal/store"

	"go.uber.org/zap"
)

const DefaultLoginPath = "/login"

type State struct {
	Identity *models.Identity
	Session  *models.Session
	// Loading is true until the first definitive answer from the auth client.
	Loading bool
}

func (s State) Authenticated() bool {
	return !s.Loading && s.Identity != nil
}

func (s State) IdentityID() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.ID
}

type Listener func(State)

// AuthClient is the subset of *auth.Client the store drives.
type AuthClient interface {
	OnAuthStateChange(l auth.Listener) func()
	GetSession(ctx context.Context) (*models.Session, error)
	SignUp(ctx context.Context, email, password string, metadata models.Metadata) (*models.Session, error)
	VerifyPassword(ctx context.Context, email, password string) (models.Identity, error)
	StartSession(ctx context.Context, identity models.Identity) (*models.Session, error)
	SignOut(ctx context.Context) error
}

type BanChecker interface {
	Check(ctx context.Context, identity *models.Identity) ban.Result
}

type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

type Options struct {
	// StrictMode refuses sign-in when the ban check cannot be completed.
	StrictMode bool
	LoginPath  string
	Navigator  Navigator
}

type Store struct {
	auth     AuthClient
	registry store.Registry
	bans     BanChecker
	strict   bool
	login    string
	nav      Navigator
	log      *zap.Logger

	mu          sync.Mutex
	state       State
	listeners   map[int]Listener
	nextID      int
	unsubscribe func()
}

func NewStore(client AuthClient, registry store.Registry, bans BanChecker, opts Options) *Store {
	login := opts.LoginPath
	if login == "" {
		login = DefaultLoginPath
	}
	return &Store{
		auth:      client,
		registry:  registry,
		bans:      bans,
		strict:    opts.StrictMode,
		login:     login,
		nav:       opts.Navigator,
		log:       logger.Named("session"),
		state:     State{Loading: true},
		listeners: make(map[int]Listener),
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe calls l with the current state and then on every change.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	current := s.state
	s.mu.Unlock()

	l(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Start subscribes to lifecycle events before fetching the initial session so
// that no event between the two is lost.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubscribe == nil {
		s.unsubscribe = s.auth.OnAuthStateChange(s.handleAuthEvent)
	}
	s.mu.Unlock()

	current, err := s.auth.GetSession(ctx)
	if err != nil {
		s.log.Warn("initial session fetch failed", logger.Err(err))
		s.commit(State{})
		return &models.LookupError{Op: "session fetch", Cause: err}
	}
	s.commit(stateOf(current))
	return nil
}

func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.listeners = make(map[int]Listener)
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// SignUp registers credentials for a CPF present in the users registry. The
// registry's role and name become the identity's metadata.
func (s *Store) SignUp(ctx context.Context, email, password, cpf string) error {
	cpf = models.NormalizeCPF(cpf)
	if !models.ValidCPF(cpf) {
		return &models.ValidationError{Message: "CPF inválido"}
	}

	user, err := s.registry.FindUser(ctx, cpf)
	if errors.Is(err, store.ErrNotFound) {
		return &models.ValidationError{Message: "CPF não encontrado no cadastro"}
	}
	if err != nil {
		return &models.LookupError{Op: "registry lookup", Cause: err}
	}
	if user.Banned {
		return &models.BanError{Message: "conta suspensa", CPF: cpf}
	}

	created, err := s.auth.SignUp(ctx, email, password, models.Metadata{
		Role: user.Role.String(),
		Name: user.Name,
		CPF:  cpf,
	})
	if errors.Is(err, store.ErrEmailTaken) {
		return &models.ValidationError{Message: "e-mail já cadastrado", Cause: err}
	}
	if err != nil {
		return &models.AuthError{Message: "falha ao criar credencial", Cause: err}
	}

	s.log.Info("identity registered", logger.IdentityID(created.Identity.ID), logger.CPF(cpf))
	s.commit(stateOf(created))
	return nil
}

// SignIn verifies the credentials and runs the ban check before any session
// exists. A suspended identity gets a *models.BanError, and whatever session
// the client held before is signed out.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	identity, err := s.auth.VerifyPassword(ctx, email, password)
	if errors.Is(err, store.ErrInvalidCredentials) {
		return &models.AuthError{Message: "credenciais inválidas", Cause: err}
	}
	if err != nil {
		return &models.AuthError{Message: "falha na autenticação", Cause: err}
	}

	res := s.bans.Check(ctx, &identity)
	if res.Err != nil {
		if s.strict {
			s.forceSignOut(ctx)
			return &models.LookupError{Op: "ban check", Cause: res.Err}
		}
		s.log.Warn("ban check unavailable, allowing sign-in",
			logger.IdentityID(identity.ID), logger.Err(res.Err))
	}
	if res.Banned {
		s.log.Info("sign-in refused for suspended identity", logger.IdentityID(identity.ID))
		s.forceSignOut(ctx)
		return &models.BanError{Message: "conta suspensa", CPF: identity.Metadata.CPF}
	}

	current, err := s.auth.StartSession(ctx, identity)
	if err != nil {
		return &models.AuthError{Message: "falha na autenticação", Cause: err}
	}
	s.commit(stateOf(current))
	return nil
}

// SignOut always ends with an empty state and a navigation to the login path,
// whatever the remote call returned.
func (s *Store) SignOut(ctx context.Context) {
	if err := s.auth.SignOut(ctx); err != nil {
		s.log.Warn("remote sign-out failed", logger.Err(err))
	}
	s.commit(State{})
	if s.nav != nil {
		s.nav.Navigate(s.login)
	}
}

func (s *Store) forceSignOut(ctx context.Context) {
	if err := s.auth.SignOut(ctx); err != nil {
		s.log.Warn("forced sign-out failed", logger.Err(err))
	}
	s.commit(State{})
}

func (s *Store) handleAuthEvent(event auth.Event, current *models.Session) {
	switch event {
	case auth.EventSignedIn, auth.EventInitialSession:
		s.commit(stateOf(current))
	case auth.EventSignedOut:
		s.commit(State{})
	default:
		s.log.Debug("ignored auth event", zap.String("event", string(event)))
	}
}

func (s *Store) commit(next State) {
	s.mu.Lock()
	s.state = next
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
}

func stateOf(current *models.Session) State {
	if current == nil {
		return State{}
	}
	identity := current.Identity
	return State{Identity: &identity, Session: current}
}
