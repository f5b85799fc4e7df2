package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"devconnect/internal/config"
	"devconnect/internal/search"
	"devconnect/internal/store"
)

type fakeSession struct {
	userID    string
	expiresAt time.Time
}

// fakeStore is an in-memory dataStore. Individual methods can be overridden
// per test through the fn fields.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]store.User
	posts    map[string]store.Post
	profiles map[string]store.Profile
	sessions map[string]fakeSession

	getPostFn       func(context.Context, string) (store.Post, error)
	updatePostFn    func(context.Context, store.Post) error
	getUserByIDFn   func(context.Context, string) (store.User, error)
	updateProfileFn func(context.Context, store.Profile) error
	pingFn          func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]store.User),
		posts:    make(map[string]store.Post),
		profiles: make(map[string]store.Profile),
		sessions: make(map[string]fakeSession),
	}
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, userID)
	return nil
}

func (f *fakeStore) InsertPost(_ context.Context, post store.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[post.ID] = post
	return nil
}

func (f *fakeStore) GetPost(ctx context.Context, postID string) (store.Post, error) {
	if f.getPostFn != nil {
		return f.getPostFn(ctx, postID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[postID]
	if !ok {
		return store.Post{}, store.ErrNotFound
	}
	return post, nil
}

func (f *fakeStore) ListPosts(_ context.Context) ([]store.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	posts := make([]store.Post, 0, len(f.posts))
	for _, p := range f.posts {
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

func (f *fakeStore) ListPostsByOwner(_ context.Context, userID string) ([]store.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var posts []store.Post
	for _, p := range f.posts {
		if p.User == userID {
			posts = append(posts, p)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

func (f *fakeStore) UpdatePost(ctx context.Context, post store.Post) error {
	if f.updatePostFn != nil {
		return f.updatePostFn(ctx, post)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[post.ID]; !ok {
		return store.ErrNotFound
	}
	f.posts[post.ID] = post
	return nil
}

func (f *fakeStore) DeletePost(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, postID)
	return nil
}

func (f *fakeStore) DeletePostsByOwner(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.posts {
		if p.User == userID {
			delete(f.posts, id)
		}
	}
	return nil
}

func (f *fakeStore) InsertProfile(_ context.Context, profile store.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[profile.User] = profile
	return nil
}

func (f *fakeStore) UpdateProfile(ctx context.Context, profile store.Profile) error {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, profile)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[profile.User]; !ok {
		return store.ErrNotFound
	}
	f.profiles[profile.User] = profile
	return nil
}

func (f *fakeStore) GetProfileByOwner(_ context.Context, userID string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[userID]
	if !ok {
		return store.Profile{}, store.ErrNotFound
	}
	return profile, nil
}

func (f *fakeStore) ListProfiles(_ context.Context) ([]store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profiles := make([]store.Profile, 0, len(f.profiles))
	for _, p := range f.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].ID < profiles[j].ID
	})
	return profiles, nil
}

func (f *fakeStore) DeleteProfileByOwner(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.profiles, userID)
	return nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = fakeSession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[tokenHash]
	if !ok || time.Now().After(sess.expiresAt) {
		return store.User{}, store.ErrNotFound
	}
	if user, ok := f.users[sess.userID]; ok {
		return user, nil
	}
	return store.User{ID: sess.userID}, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

// recordingSearch captures index deletions so tests can assert that removed
// entities leave the search index too.
type recordingSearch struct {
	mu              sync.Mutex
	deletedPosts    []string
	deletedProfiles []string
}

func (r *recordingSearch) Search(q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}
func (r *recordingSearch) IndexPost(search.PostRecord)       {}
func (r *recordingSearch) IndexProfile(search.ProfileRecord) {}
func (r *recordingSearch) DeletePost(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedPosts = append(r.deletedPosts, id)
}
func (r *recordingSearch) DeleteProfile(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedProfiles = append(r.deletedProfiles, id)
}

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
	return NewService(cfg, fs, search.NewService(nil, nil))
}

func seedUser(t *testing.T, fs *fakeStore, id, name string) store.User {
	t.Helper()
	user := store.User{
		ID:        id,
		Name:      name,
		Email:     id + "@example.com",
		Avatar:    "https://www.gravatar.com/avatar/x",
		CreatedAt: time.Now().UTC(),
	}
	if err := fs.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedPost(t *testing.T, fs *fakeStore, id, userID, text string) store.Post {
	t.Helper()
	post := store.Post{
		ID:        id,
		User:      userID,
		Text:      text,
		Likes:     []store.Like{},
		Comments:  []store.Comment{},
		CreatedAt: time.Now().UTC(),
	}
	if err := fs.InsertPost(context.Background(), post); err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return post
}

func assertDomainCode(t *testing.T, err error, wantStatus int, wantCode string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != wantStatus || domainErr.Code != wantCode {
		t.Fatalf("expected %d %s, got %d %s", wantStatus, wantCode, domainErr.Status, domainErr.Code)
	}
}

func TestRegisterRejectsWeakInput(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.Register(context.Background(), "", "not-an-email", "abc")
	assertDomainCode(t, err, 422, "VALIDATION_ERROR")

	var domainErr *DomainError
	errors.As(err, &domainErr)
	details, ok := domainErr.Details.([]map[string]string)
	if !ok || len(details) != 3 {
		t.Fatalf("expected three {msg} entries, got %#v", domainErr.Details)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)

	if _, err := svc.Register(context.Background(), "Avery", "avery@example.com", "hunter22"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(context.Background(), "Avery Again", "avery@example.com", "hunter22")
	assertDomainCode(t, err, 409, "EMAIL_EXISTS")
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)

	if _, err := svc.Register(context.Background(), "Avery", "avery@example.com", "hunter22"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := svc.Login(context.Background(), "avery@example.com", "wrong-password")
	assertDomainCode(t, err, 401, "INVALID_CREDENTIALS")

	_, err = svc.Login(context.Background(), "nobody@example.com", "hunter22")
	assertDomainCode(t, err, 401, "INVALID_CREDENTIALS")
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)

	first, err := svc.Register(context.Background(), "Avery", "avery@example.com", "hunter22")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}

	// Old refresh token is single use.
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatalf("expected second use of old refresh token to fail")
	}
}

func TestSessionFromTokenRejectsDeletedUser(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)

	tokens, err := svc.Register(context.Background(), "Avery", "avery@example.com", "hunter22")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := fs.DeleteUser(context.Background(), tokens.UserID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	if _, err := svc.SessionFromToken(context.Background(), tokens.Token); err == nil {
		t.Fatalf("expected token of deleted user to be rejected")
	}
}

func TestDeleteAccountRemovesProfileAndPosts(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)

	user := seedUser(t, fs, "user-1", "Avery")
	seedPost(t, fs, "post-1", user.ID, "first")
	seedPost(t, fs, "post-2", user.ID, "second")
	other := seedUser(t, fs, "user-2", "Blake")
	keep := seedPost(t, fs, "post-3", other.ID, "keep me")

	status := "Developer"
	skills := "go"
	if _, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{Status: &status, Skills: &skills}); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}

	if err := svc.DeleteAccount(context.Background(), user.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, err := fs.GetUserByID(context.Background(), user.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}
	if _, err := fs.GetProfileByOwner(context.Background(), user.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected profile gone, got %v", err)
	}
	posts, _ := fs.ListPosts(context.Background())
	if len(posts) != 1 || posts[0].ID != keep.ID {
		t.Fatalf("expected only the other user's post to remain, got %d", len(posts))
	}
}

func TestDeleteAccountRemovesSearchDocuments(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	rec := &recordingSearch{}
	svc.search = rec

	user := seedUser(t, fs, "user-1", "Avery")
	seedPost(t, fs, "post-1", user.ID, "first")
	seedPost(t, fs, "post-2", user.ID, "second")
	other := seedUser(t, fs, "user-2", "Blake")
	seedPost(t, fs, "post-3", other.ID, "keep me")

	status := "Developer"
	skills := "go"
	profile, err := svc.UpsertProfile(context.Background(), user.ID, ProfileInput{Status: &status, Skills: &skills})
	if err != nil {
		t.Fatalf("upsert profile: %v", err)
	}

	if err := svc.DeleteAccount(context.Background(), user.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	deleted := map[string]bool{}
	for _, id := range rec.deletedPosts {
		deleted[id] = true
	}
	if !deleted["post-1"] || !deleted["post-2"] {
		t.Fatalf("expected both posts de-indexed, got %v", rec.deletedPosts)
	}
	if deleted["post-3"] {
		t.Fatalf("expected the other user's post to stay indexed")
	}
	if len(rec.deletedProfiles) != 1 || rec.deletedProfiles[0] != profile.ID {
		t.Fatalf("expected profile %s de-indexed, got %v", profile.ID, rec.deletedProfiles)
	}
}
