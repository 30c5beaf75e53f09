package session

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/selectionstore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/selectionstore/internal/logging"
	"github.com/GriffinCanCode/selectionstore/internal/shared/id"
	"github.com/GriffinCanCode/selectionstore/internal/shared/types"
)

// Expiry reasons
const (
	ReasonPageUnload = "page-unload"
	ReasonDispose    = "dispose"
	ReasonExplicit   = "explicit"
)

// Status is the lifecycle state of a transient key
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusMissing Status = "missing"
)

// Session is an in-memory selection
type Session struct {
	Key       string            `json:"key"`
	Entries   []Entry           `json:"entries"`
	Counts    types.Counts      `json:"counts"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Expires   types.Expiry      `json:"expires"`
	Extra     map[string]string `json:"extra,omitempty"`
}

func (s *Session) clone() *Session {
	c := *s
	c.Entries = copyEntries(s.Entries)
	if s.Extra != nil {
		c.Extra = make(map[string]string, len(s.Extra))
		for k, v := range s.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Tombstone marks a session that was deliberately expired
type Tombstone struct {
	Key       string    `json:"key"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason"`
	ExpiredAt time.Time `json:"expired_at"`
	Message   string    `json:"message"`
}

// StatusResult answers GetStatus
type StatusResult struct {
	Status    Status     `json:"status"`
	Tombstone *Tombstone `json:"tombstone,omitempty"`
}

var transientExpiry = types.Expiry{
	Policy:  "session",
	Durable: false,
	Message: "Selection is held in memory and is lost when the process exits.",
}

// Manager holds transient sessions and the tombstones of expired ones.
// Nothing here is ever written to the store.
type Manager struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	order      []string
	tombstones map[string]*Tombstone

	teardown       Teardown
	attachOnce     sync.Once
	cancelTeardown func()

	ids     *id.Generator
	logger  *logging.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l.Component("session") }
}

func WithMetrics(mt *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIDs(ids *id.Generator) Option {
	return func(m *Manager) { m.ids = ids }
}

// WithTeardown sets the trigger that expires every session with
// ReasonPageUnload. It is subscribed to on first PersistEntries.
func WithTeardown(t Teardown) Option {
	return func(m *Manager) { m.teardown = t }
}

// NewManager creates a session manager
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:   make(map[string]*Session),
		tombstones: make(map[string]*Tombstone),
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ids == nil {
		m.ids = id.NewGenerator()
	}
	return m
}

// PersistEntries stores entries as a new session. Only an empty batch is an
// error; everything else succeeds.
func (m *Manager) PersistEntries(entries []Entry, meta types.Metadata) (types.PersistResult, error) {
	if len(entries) == 0 {
		return types.PersistResult{}, types.ErrMissingSelection
	}
	m.attachTeardown()

	result := types.PersistResult{StorageType: types.StorageTransientSession}
	key := meta.Key
	if key == "" {
		key = m.ids.TransientKey()
	}
	if err := id.ValidateKey(key); err != nil {
		return result.Fail(err), nil
	}

	created, updated := meta.Timestamps(m.now())
	session := &Session{
		Key:       key,
		Entries:   copyEntries(entries),
		Counts:    Classify(entries),
		CreatedAt: created,
		UpdatedAt: updated,
		Expires:   transientExpiry,
		Extra:     meta.CopyExtra(),
	}

	m.mu.Lock()
	if _, exists := m.sessions[key]; !exists {
		m.order = append(m.order, key)
	}
	m.sessions[key] = session
	delete(m.tombstones, key)
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetTransientActive(active)
	m.metrics.IncPersisted(string(types.StorageTransientSession))
	m.logger.Debug("session stored",
		zap.String("key", key),
		zap.Int("files", session.Counts.Files),
		zap.Int("directories", session.Counts.Directories))

	expiry := transientExpiry
	result.OK = true
	result.Key = key
	result.Counts = session.Counts
	result.CreatedAt = created
	result.UpdatedAt = updated
	result.Expires = &expiry
	return result, nil
}

func (m *Manager) attachTeardown() {
	m.attachOnce.Do(func() {
		if m.teardown == nil {
			return
		}
		cancel := m.teardown.OnTeardown(func() {
			m.ExpireAll(ReasonPageUnload)
		})
		m.mu.Lock()
		m.cancelTeardown = cancel
		m.mu.Unlock()
	})
}

// ExpireSession turns an active session into a tombstone
func (m *Manager) ExpireSession(key, reason string) bool {
	m.mu.Lock()
	expired := m.expireLocked(key, reason, m.now())
	active := len(m.sessions)
	m.mu.Unlock()

	if expired {
		m.metrics.SetTransientActive(active)
		m.metrics.IncTransientExpired(reason, 1)
	}
	return expired
}

// ExpireAll expires every active session and returns how many there were
func (m *Manager) ExpireAll(reason string) int {
	m.mu.Lock()
	now := m.now()
	keys := append([]string(nil), m.order...)
	n := 0
	for _, key := range keys {
		if m.expireLocked(key, reason, now) {
			n++
		}
	}
	m.mu.Unlock()

	if n > 0 {
		m.metrics.SetTransientActive(0)
		m.metrics.IncTransientExpired(reason, n)
		m.logger.Info("sessions expired", zap.String("reason", reason), zap.Int("count", n))
	}
	return n
}

func (m *Manager) expireLocked(key, reason string, now time.Time) bool {
	if _, ok := m.sessions[key]; !ok {
		return false
	}
	delete(m.sessions, key)
	m.removeOrderLocked(key)
	m.tombstones[key] = &Tombstone{
		Key:       key,
		Status:    StatusExpired,
		Reason:    reason,
		ExpiredAt: now,
		Message:   fmt.Sprintf("Selection expired (%s). Select the files again to continue.", reason),
	}
	return true
}

func (m *Manager) removeOrderLocked(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// GetStatus reports whether key is active, expired or unknown
func (m *Manager) GetStatus(key string) StatusResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[key]; ok {
		return StatusResult{Status: StatusActive}
	}
	if t, ok := m.tombstones[key]; ok {
		c := *t
		return StatusResult{Status: StatusExpired, Tombstone: &c}
	}
	return StatusResult{Status: StatusMissing}
}

// GetSession returns a copy of the active session
func (m *Manager) GetSession(key string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// GetEntries returns a copy of the session's entries
func (m *Manager) GetEntries(key string) ([]Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, false
	}
	return copyEntries(s.Entries), true
}

// Recount re-classifies the stored entries
func (m *Manager) Recount(key string) (types.Counts, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return types.Counts{}, false
	}
	return Classify(s.Entries), true
}

// Recorded returns the counts taken when the session was stored
func (m *Manager) Recorded(key string) (types.Counts, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return types.Counts{}, false
	}
	return s.Counts, true
}

// Remove drops the session and any tombstone for key
func (m *Manager) Remove(key string) bool {
	m.mu.Lock()
	_, active := m.sessions[key]
	_, expired := m.tombstones[key]
	delete(m.sessions, key)
	delete(m.tombstones, key)
	if active {
		m.removeOrderLocked(key)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if active {
		m.metrics.SetTransientActive(count)
	}
	return active || expired
}

// Keys returns active keys in insertion order
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Stats returns active and expired counts
func (m *Manager) Stats() (active, expired int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), len(m.tombstones)
}

// Close unsubscribes from the teardown trigger
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancelTeardown
	m.cancelTeardown = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
