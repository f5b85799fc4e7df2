package app

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"devconnect/internal/auth"
	"devconnect/internal/config"
	"devconnect/internal/gravatar"
	"devconnect/internal/search"
	"devconnect/internal/store"
	"devconnect/internal/util"
)

// Store is the persistence surface the service needs. Both the Postgres and
// the Mongo store satisfy it.
type Store interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	DeleteUser(ctx context.Context, userID string) error

	InsertPost(ctx context.Context, post store.Post) error
	GetPost(ctx context.Context, postID string) (store.Post, error)
	ListPosts(ctx context.Context) ([]store.Post, error)
	ListPostsByOwner(ctx context.Context, userID string) ([]store.Post, error)
	UpdatePost(ctx context.Context, post store.Post) error
	DeletePost(ctx context.Context, postID string) error
	DeletePostsByOwner(ctx context.Context, userID string) error

	InsertProfile(ctx context.Context, profile store.Profile) error
	UpdateProfile(ctx context.Context, profile store.Profile) error
	GetProfileByOwner(ctx context.Context, userID string) (store.Profile, error)
	ListProfiles(ctx context.Context) ([]store.Profile, error)
	DeleteProfileByOwner(ctx context.Context, userID string) error

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error

	Ping(ctx context.Context) error
}

// refreshStore holds refresh sessions. It is the data store itself unless a
// Redis session store is configured.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Session is what a valid access token resolves to. Every protected handler
// goes through SessionFromToken before touching the service.
type Session struct {
	UserID string
	Name   string
	Avatar string
	JTI    string
}

// SessionTokens is the credential pair handed out on register, login and
// refresh.
type SessionTokens struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// searchIndex is the slice of the search service the app layer drives.
type searchIndex interface {
	Search(q search.Query) search.Response
	IndexPost(p search.PostRecord)
	IndexProfile(p search.ProfileRecord)
	DeletePost(id string)
	DeleteProfile(id string)
}

type Service struct {
	cfg      config.Config
	store    Store
	sessions refreshStore
	search   searchIndex
}

func NewService(cfg config.Config, st Store, searcher *search.Service) *Service {
	if searcher == nil {
		searcher = search.NewService(nil, nil)
	}
	return &Service{cfg: cfg, store: st, sessions: st, search: searcher}
}

// NewServiceWithSessionStore keeps refresh sessions in a dedicated store
// (Redis) instead of the main database.
func NewServiceWithSessionStore(cfg config.Config, st Store, sessions refreshStore, searcher *search.Service) *Service {
	svc := NewService(cfg, st, searcher)
	svc.sessions = sessions
	return svc
}

// Register creates a user with a bcrypt password hash and a gravatar URL
// derived from the email, then opens a session.
func (s *Service) Register(ctx context.Context, name, email, password string) (SessionTokens, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))

	var msgs []string
	if name == "" {
		msgs = append(msgs, "Name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		msgs = append(msgs, "Please include a valid email")
	}
	if len(password) < 6 {
		msgs = append(msgs, "Please enter a password with 6 or more characters")
	}
	if len(msgs) > 0 {
		return SessionTokens{}, validationError(msgs...)
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return SessionTokens{}, conflictError("EMAIL_EXISTS", "User already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return SessionTokens{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return SessionTokens{}, err
	}

	user := store.User{
		ID:           util.NewID("user"),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Avatar:       gravatar.URL(email),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return SessionTokens{}, err
	}

	return s.issueSession(ctx, user)
}

// Login checks credentials and opens a session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (SessionTokens, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	invalid := domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", nil)

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return SessionTokens{}, invalid
	}
	if err != nil {
		return SessionTokens{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return SessionTokens{}, invalid
	}

	return s.issueSession(ctx, user)
}

// Refresh exchanges a live refresh token for a new session pair. The old
// refresh token is revoked in the same call.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (SessionTokens, error) {
	hash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return SessionTokens{}, domainError(http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired", nil)
	}
	if err != nil {
		return SessionTokens{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return SessionTokens{}, err
	}

	// The session store may carry only the user ID. Re-resolve so the new
	// access token has a fresh name snapshot, and so deleted accounts
	// cannot refresh.
	user, err = s.store.GetUserByID(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return SessionTokens{}, domainError(http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired", nil)
	}
	if err != nil {
		return SessionTokens{}, err
	}
	return s.issueSession(ctx, user)
}

// Logout revokes the refresh token. The access token simply runs out.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// SessionFromToken validates a bearer token and resolves the subject to a
// live user. A deleted account invalidates all its outstanding tokens.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: user.ID, Name: user.Name, Avatar: user.Avatar, JTI: claims.JTI}, nil
}

// CurrentUser returns the authenticated user without the password hash.
func (s *Service) CurrentUser(ctx context.Context, userID string) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, notFoundError("User not found")
	}
	return user, err
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Search runs a full-text query over posts and profiles.
func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (SessionTokens, error) {
	expiresAt := time.Now().UTC().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Name,
		JTI:  util.NewID("jti"),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return SessionTokens{}, err
	}

	refreshToken := util.NewID("refresh")
	refreshExpiry := time.Now().UTC().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user.ID, refreshExpiry); err != nil {
		return SessionTokens{}, err
	}

	return SessionTokens{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		Name:         user.Name,
		Avatar:       user.Avatar,
		ExpiresAt:    expiresAt,
	}, nil
}
