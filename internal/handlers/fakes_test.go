package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/handlers"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/middleware"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/repository"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/routes"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/services"
	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

var errStoreDown = errors.New("store unavailable")

// memoryStore mirrors the repository's semantics in memory. nextErr is
// returned once by the next store call.
type memoryStore struct {
	mu sync.Mutex

	users  map[string]models.User
	groups map[string]models.Group
	posts  []models.Post
	panics []models.PanicAlert
	shares map[string]models.LocationShare
	creds  map[string]models.Credential

	nextErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:  make(map[string]models.User),
		groups: make(map[string]models.Group),
		shares: make(map[string]models.LocationShare),
		creds:  make(map[string]models.Credential),
	}
}

func (m *memoryStore) failNext(err error) {
	m.mu.Lock()
	m.nextErr = err
	m.mu.Unlock()
}

// begin locks the store and returns the pending injected error, if any.
func (m *memoryStore) begin() error {
	m.mu.Lock()
	err := m.nextErr
	m.nextErr = nil
	return err
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func (m *memoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (m *memoryStore) CreateUser(_ context.Context, u *models.User) error {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	u.CreatedAt, u.UpdatedAt = now(), now()
	m.users[u.ID] = *u
	return nil
}

func (m *memoryStore) UpdateUser(_ context.Context, id string, update models.UserUpdate) error {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	update.Apply(&u)
	u.UpdatedAt = now()
	m.users[id] = u
	return nil
}

func (m *memoryStore) AddUserToGroup(_ context.Context, userID, groupID string) error {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	return m.addToGroup(userID, groupID)
}

func (m *memoryStore) addToGroup(userID, groupID string) error {
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if !u.IsMember(groupID) {
		u.Groups = append(append([]string(nil), u.Groups...), groupID)
	}
	m.users[userID] = u
	return nil
}

func (m *memoryStore) usersWhere(match func(models.User) bool) []models.User {
	out := make([]models.User, 0)
	for _, u := range m.users {
		if match(u) {
			out = append(out, u)
		}
	}
	return out
}

func (m *memoryStore) ListUsersByGroup(_ context.Context, groupID string) ([]models.User, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	return m.usersWhere(func(u models.User) bool { return u.IsMember(groupID) }), nil
}

func (m *memoryStore) ListUsersByNotificationCategory(_ context.Context, suburb, category string) ([]models.User, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	return m.usersWhere(func(u models.User) bool { return u.Suburb == suburb && u.SubscribesTo(category) }), nil
}

func (m *memoryStore) ListUsersByEmails(_ context.Context, emails []string) ([]models.User, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(emails))
	for _, e := range emails {
		set[e] = true
	}
	return m.usersWhere(func(u models.User) bool { return set[u.Email] }), nil
}

func (m *memoryStore) ClearDeviceTokens(_ context.Context, tokens []string) (int64, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return 0, err
	}
	var cleared int64
	for id, u := range m.users {
		for _, t := range tokens {
			if u.DeviceToken != "" && u.DeviceToken == t {
				u.DeviceToken = ""
				m.users[id] = u
				cleared++
			}
		}
	}
	return cleared, nil
}

func (m *memoryStore) CreateGroupWithOwner(_ context.Context, g *models.Group) error {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	g.ID = uuid.NewString()
	g.CreatedAt = now()
	m.groups[g.ID] = *g
	return m.addToGroup(g.CreatedBy, g.ID)
}

func (m *memoryStore) GetGroup(_ context.Context, id string) (*models.Group, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	g, ok := m.groups[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &g, nil
}

func (m *memoryStore) ListGroupsBySuburb(_ context.Context, suburb string) ([]models.Group, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	out := make([]models.Group, 0)
	for _, g := range m.groups {
		if g.Suburb == suburb {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memoryStore) CreatePost(_ context.Context, p *models.Post) error {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	p.ID = uuid.NewString()
	p.CreatedAt = now()
	m.posts = append(m.posts, *p)
	return nil
}

func (m *memoryStore) ListPosts(_ context.Context, q repository.PostQuery) ([]models.Post, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	return m.listPosts(q, now().Add(-repository.PostWindow)), nil
}

// listPosts applies q to posts created at or after since.
func (m *memoryStore) listPosts(q repository.PostQuery, since time.Time) []models.Post {
	out := make([]models.Post, 0)
	for _, p := range m.posts {
		if p.CreatedAt.Before(since) {
			continue
		}
		if q.GroupID != "" {
			if p.GroupID != q.GroupID {
				continue
			}
		} else if (q.Suburb != "" && p.Suburb != q.Suburb) || (q.Category != "" && p.Category != q.Category) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (m *memoryStore) ListPostsByLocation(_ context.Context, lat, lon, radiusKm float64, category string) ([]models.Post, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	center := geo.Point{Latitude: lat, Longitude: lon}
	out := make([]models.Post, 0)
	for _, p := range m.listPosts(repository.PostQuery{Category: category, Limit: repository.ProximityCandidates}, now().Add(-repository.PostWindow)) {
		if p.Location != nil && geo.Within(center, *p.Location, radiusKm) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryStore) ListGroupPosts(_ context.Context, groupID string) ([]models.Post, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	return m.listPosts(repository.PostQuery{GroupID: groupID, Limit: repository.GroupPostLimit}, time.Time{}), nil
}

func (m *memoryStore) CreatePanicAlert(_ context.Context, a *models.PanicAlert) error {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	a.ID = uuid.NewString()
	a.CreatedAt = now()
	m.panics = append(m.panics, *a)
	return nil
}

func (m *memoryStore) ListRecentPanicAlerts(_ context.Context, userID string, hours int) ([]models.PanicAlert, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	since := now().Add(-time.Duration(hours) * time.Hour)
	out := make([]models.PanicAlert, 0)
	for _, a := range m.panics {
		if a.UserID == userID && a.CreatedAt.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) CreateLocationShare(_ context.Context, s *models.LocationShare) error {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	s.ID = uuid.NewString()
	s.CreatedAt = now()
	s.UpdatedAt = s.CreatedAt
	s.ExpiresAt = models.ShareExpiry(s.CreatedAt, s.Duration)
	m.shares[s.ID] = *s
	return nil
}

func (m *memoryStore) GetLocationShare(_ context.Context, id string) (*models.LocationShare, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	s, ok := m.shares[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *memoryStore) UpdateLocationSharePosition(_ context.Context, id string, p geo.Point) error {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	s, ok := m.shares[id]
	if !ok || s.Expired(now()) {
		return repository.ErrNotFound
	}
	s.Location = p
	s.UpdatedAt = now()
	m.shares[id] = s
	return nil
}

func (m *memoryStore) DeleteExpiredLocationShares(context.Context) (int64, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return 0, err
	}
	var n int64
	for id, s := range m.shares {
		if s.ExpiresAt.Before(now()) {
			delete(m.shares, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) FindCredentialByEmail(_ context.Context, email string) (*models.Credential, error) {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return nil, err
	}
	c, ok := m.creds[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (m *memoryStore) InsertCredential(_ context.Context, c *models.Credential) error {
	defer m.mu.Unlock()
	if err := m.begin(); err != nil {
		return err
	}
	if _, ok := m.creds[c.Email]; ok {
		return repository.ErrDuplicate
	}
	c.CreatedAt = now()
	m.creds[c.Email] = *c
	return nil
}

func (m *memoryStore) snapshot() (users, creds, posts, panics, shares int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), len(m.creds), len(m.posts), len(m.panics), len(m.shares)
}

// recordingGateway accepts every token except those listed in invalid.
type recordingGateway struct {
	mu       sync.Mutex
	messages []services.PushMessage
	tokens   [][]string
	invalid  map[string]bool
	err      error
}

func (g *recordingGateway) SendMulticast(_ context.Context, tokens []string, msg services.PushMessage) (*services.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = append(g.messages, msg)
	g.tokens = append(g.tokens, append([]string(nil), tokens...))
	if g.err != nil {
		return nil, g.err
	}
	res := &services.SendResult{}
	for _, t := range tokens {
		if g.invalid[t] {
			res.FailureCount++
			res.Responses = append(res.Responses, services.TokenResult{Token: t, Invalid: true})
			continue
		}
		res.SuccessCount++
		res.Responses = append(res.Responses, services.TokenResult{Token: t, Success: true})
	}
	return res, nil
}

func (g *recordingGateway) sent() []services.PushMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]services.PushMessage(nil), g.messages...)
}

type fakeUploader struct {
	body []byte
	err  error
}

func (u *fakeUploader) Upload(_ context.Context, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	u.body = b
	return "https://res.cloudinary.com/demo/image/upload/v1/neighbourwatch/photo.png", nil
}

type testEnv struct {
	store    *memoryStore
	gateway  *recordingGateway
	notifier *services.Notifier
	media    *fakeUploader
	router   http.Handler
}

const sweepToken = "sweep-secret"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := newMemoryStore()
	gateway := &recordingGateway{}
	notifier := services.NewNotifier(gateway, store, log)
	media := &fakeUploader{}
	identity := services.NewLocalIdentity(store, services.LocalIdentityConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "https://securetoken.google.com/test-project",
		Audience: "test-project",
	})

	h := handlers.New(handlers.Deps{
		Store:      store,
		Identity:   identity,
		Notifier:   notifier,
		Media:      media,
		Sweeper:    services.NewSweeper(store, log),
		Logger:     log,
		SweepToken: sweepToken,
	})

	r := chi.NewRouter()
	routes.SetupRoutes(r, h, middleware.Auth(identity))

	t.Cleanup(notifier.Wait)
	return &testEnv{store: store, gateway: gateway, notifier: notifier, media: media, router: r}
}

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Timestamp time.Time       `json:"timestamp"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(env.Data))
	return out
}

const testPassword = "secret123"

// signUp registers and logs in a user, returning the user id and token.
func (e *testEnv) signUp(t *testing.T, email, suburb string, contacts ...string) (string, string) {
	t.Helper()
	if len(contacts) == 0 {
		contacts = []string{"contact@example.com"}
	}
	status, env := e.do(t, http.MethodPost, "/api/users/register", "", map[string]interface{}{
		"email": email, "password": testPassword, "suburb": suburb, "trustedContacts": contacts,
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	reg := decodeData[struct {
		UserID string `json:"userId"`
	}](t, env)

	status, env = e.do(t, http.MethodPost, "/api/users/login", "", map[string]string{
		"email": email, "password": testPassword,
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	login := decodeData[struct {
		Token string `json:"token"`
	}](t, env)
	return reg.UserID, login.Token
}

func (e *testEnv) setDeviceToken(t *testing.T, token, device string) {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/api/users/settings", token, map[string]string{"deviceToken": device})
	require.Equal(t, http.StatusOK, status, env.Error)
}

func (m *memoryStore) share(id string) models.LocationShare {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shares[id]
}
