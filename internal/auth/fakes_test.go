package auth

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"postboard/internal/config"
	"postboard/internal/mail"
	"postboard/internal/observability"
	"postboard/internal/token"
)

type memoryStore struct {
	mu    sync.Mutex
	users map[string]Identity
	err   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]Identity)}
}

func (m *memoryStore) GetByEmail(_ context.Context, email string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Identity{}, m.err
	}
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return Identity{}, ErrUserNotFound
}

func (m *memoryStore) GetByID(_ context.Context, id string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Identity{}, m.err
	}
	user, ok := m.users[id]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memoryStore) Create(_ context.Context, email, passwordHash string, fullName *string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return Identity{}, ErrEmailTaken
		}
	}
	user := Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     fullName,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryStore) MarkVerified(_ context.Context, id string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	user.Verified = true
	m.users[id] = user
	return user, nil
}

func (m *memoryStore) UpdateProfile(_ context.Context, id string, fullName *string, passwordHash *string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return Identity{}, ErrUserNotFound
	}
	if fullName != nil {
		user.FullName = fullName
	}
	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	m.users[id] = user
	return user, nil
}

func (m *memoryStore) put(t *testing.T, email, password string, mutate func(*Identity)) Identity {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	user := Identity{ID: uuid.NewString(), Email: email, PasswordHash: hash, Active: true}
	if mutate != nil {
		mutate(&user)
	}
	m.mu.Lock()
	m.users[user.ID] = user
	m.mu.Unlock()
	return user
}

type memoryRevocations struct {
	mu   sync.Mutex
	used map[string]bool
}

func (m *memoryRevocations) Consume(_ context.Context, jti, _ string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used == nil {
		m.used = make(map[string]bool)
	}
	if m.used[jti] {
		return false, nil
	}
	m.used[jti] = true
	return true, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg mail.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) last(t *testing.T) mail.Message {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.messages)
	return p.messages[len(p.messages)-1]
}

type fixture struct {
	store   *memoryStore
	tokens  *token.Service
	mailer  *recordingPublisher
	service *Service
	logs    *bytes.Buffer
	now     *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	f := &fixture{
		store:  newMemoryStore(),
		mailer: &recordingPublisher{},
		logs:   &bytes.Buffer{},
		now:    &now,
	}
	f.tokens = token.NewService(config.Tokens{
		Secret:     []byte("auth-test-secret-auth-test-secret"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ActionTTL:  time.Hour,
	}).WithClock(func() time.Time { return *f.now })
	f.service = NewService(f.store, f.tokens, f.mailer, observability.NewLoggerTo(f.logs))
	return f
}
