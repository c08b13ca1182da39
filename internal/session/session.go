// Package session owns the signed-in user: bearer tokens, the
// authenticated-session signal and the profile.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"postly/internal/models"
	"postly/internal/observability"

	"github.com/google/uuid"
)

// Session is created on sign-in or restore and torn down by Logout. It
// implements api.TokenStore.
type Session struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	auth         models.AuthState
	profile      *models.Profile

	store    Store
	instance string
	hooks    []logoutHook
	nextHook int
	log      *observability.ComponentLogger
}

// New returns an empty session persisted through store. A nil store keeps
// everything in memory.
func New(store Store) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{
		store:    store,
		instance: uuid.NewString(),
		log:      observability.NewComponentLogger("session"),
	}
}

// Restore loads a previously saved session. It reports whether one existed.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	snap, ok, err := s.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	s.accessToken = snap.AccessToken
	s.refreshToken = snap.RefreshToken
	s.auth = snap.Auth
	s.auth.IsAuthenticated = snap.Auth.UserID != ""
	s.mu.Unlock()
	return true, nil
}

// SignIn stores the tokens and user returned by login or signup.
func (s *Session) SignIn(ctx context.Context, result models.AuthResult) error {
	s.mu.Lock()
	s.accessToken = result.AccessToken
	s.refreshToken = result.RefreshToken
	s.auth = result.Auth
	s.auth.IsAuthenticated = result.Auth.UserID != ""
	s.profile = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// SetAccessToken replaces the access token after a refresh and persists it.
// Persistence failures are logged; the in-memory token is already usable.
func (s *Session) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.store.Save(context.Background(), snap); err != nil {
		s.log.Error(context.Background(), "persist refreshed token failed", err, nil)
	}
}

// SetAuth records the authenticated-session signal from /auth/me.
func (s *Session) SetAuth(auth models.AuthState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = auth
	s.auth.IsAuthenticated = auth.UserID != ""
}

// Auth returns the authenticated-session signal.
func (s *Session) Auth() models.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth
}

// UserID returns the signed-in user's id, or "" when signed out.
func (s *Session) UserID() string {
	return s.Auth().UserID
}

// IsAuthenticated reports whether a user is signed in.
func (s *Session) IsAuthenticated() bool {
	return s.Auth().IsAuthenticated
}

// SetProfile caches the profile fetched from /profile/me.
func (s *Session) SetProfile(p models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &p
}

// Profile returns the cached profile.
func (s *Session) Profile() (models.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return models.Profile{}, false
	}
	return *s.profile, true
}

// AccessTokenExpired reports whether the access token is missing or past its
// exp claim.
func (s *Session) AccessTokenExpired(now time.Time) bool {
	token := s.AccessToken()
	if token == "" {
		return true
	}
	claims, err := ParseClaims(token)
	if err != nil {
		return false
	}
	return claims.Expired(now)
}

type logoutHook struct {
	id int
	fn func(context.Context)
}

// OnLogout registers fn to run after every logout, local or remote. The
// returned func unregisters it.
func (s *Session) OnLogout(fn func(context.Context)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHook++
	id := s.nextHook
	s.hooks = append(s.hooks, logoutHook{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.hooks = slices.DeleteFunc(s.hooks, func(h logoutHook) bool { return h.id == id })
	}
}

// Logout clears the session, removes the persisted snapshot, tells other
// instances sharing the store and runs the logout hooks.
func (s *Session) Logout(ctx context.Context) error {
	hooks := s.clear()

	var err error
	if clearErr := s.store.Clear(ctx); clearErr != nil {
		err = fmt.Errorf("logout: %w", clearErr)
	}
	if b, ok := s.store.(Broadcaster); ok {
		if pubErr := b.PublishLogout(ctx, s.instance); pubErr != nil {
			s.log.Warn(ctx, "logout broadcast failed", map[string]interface{}{"error": pubErr.Error()})
		}
	}

	runHooks(ctx, hooks)
	return err
}

// WatchRemoteLogout clears this session whenever another instance sharing
// the store logs out. It is a no-op for stores that cannot broadcast.
func (s *Session) WatchRemoteLogout(ctx context.Context) error {
	b, ok := s.store.(Broadcaster)
	if !ok {
		return nil
	}
	return b.SubscribeLogout(ctx, func(origin string) {
		if origin == s.instance {
			return
		}
		s.log.Info(ctx, "remote logout received", map[string]interface{}{"origin": origin})
		runHooks(ctx, s.clear())
	})
}

func (s *Session) clear() []logoutHook {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = ""
	s.refreshToken = ""
	s.auth = models.AuthState{}
	s.profile = nil
	return slices.Clone(s.hooks)
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		Auth:         s.auth,
	}
}

func runHooks(ctx context.Context, hooks []logoutHook) {
	for _, h := range hooks {
		h.fn(ctx)
	}
}
