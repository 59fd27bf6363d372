package influx

import (
	"fmt"
	"sync"
	"time"

	"com.aviebrantz.statistics/pkg/core/store/historical"
	"github.com/apex/log"
	client "github.com/influxdata/influxdb1-client/v2"
)

// Snapshot is an immutable set of connection parameters.
type Snapshot struct {
	URI      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s/%s (user %s)", s.URI, s.Database, s.Username)
}

type handle struct {
	client   client.Client
	snapshot Snapshot
	refs     int
	retired  bool
	closed   bool
}

type connector func(Snapshot) (client.Client, error)

func connect(s Snapshot) (client.Client, error) {
	return client.NewHTTPClient(client.HTTPConfig{
		Addr:     s.URI,
		Username: s.Username,
		Password: s.Password,
		Timeout:  s.Timeout,
	})
}

// Manager hands out reference counted clients. Reconfigure swaps the current
// client; a retired client is closed once its last user releases it.
type Manager struct {
	mu      sync.Mutex
	current *handle
	connect connector
	logger  *log.Entry
}

func NewManager(s Snapshot) (*Manager, error) {
	return newManager(s, connect)
}

func newManager(s Snapshot, c connector) (*Manager, error) {
	m := &Manager{
		connect: c,
		logger:  log.WithField("module", "influx-manager"),
	}
	if err := m.Reconfigure(s); err != nil {
		return nil, err
	}
	return m, nil
}

// Reconfigure opens a client for s and makes it current.
func (m *Manager) Reconfigure(s Snapshot) error {
	c, err := m.connect(s)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.URI, err)
	}
	next := &handle{client: c, snapshot: s}

	m.mu.Lock()
	old := m.current
	m.current = next
	closeOld := old != nil && m.retire(old)
	m.mu.Unlock()

	if closeOld {
		m.closeHandle(old)
	}
	m.logger.Infof("connected to %s", s)
	return nil
}

// retire marks h as no longer current and reports whether it can be closed
// right away. Callers hold m.mu.
func (m *Manager) retire(h *handle) bool {
	h.retired = true
	if h.refs == 0 && !h.closed {
		h.closed = true
		return true
	}
	return false
}

func (m *Manager) closeHandle(h *handle) {
	if err := h.client.Close(); err != nil {
		m.logger.Warnf("error closing client for %s: %v", h.snapshot, err)
	}
}

func (m *Manager) acquire() (*handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.current
	if h == nil || h.closed {
		return nil, fmt.Errorf("%w: no open connection", historical.ErrStoreUnavailable)
	}
	h.refs++
	return h, nil
}

func (m *Manager) release(h *handle) {
	m.mu.Lock()
	h.refs--
	closeNow := h.retired && h.refs == 0 && !h.closed
	if closeNow {
		h.closed = true
	}
	m.mu.Unlock()

	if closeNow {
		m.closeHandle(h)
	}
}

// Snapshot returns the parameters of the current connection.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Snapshot{}
	}
	return m.current.snapshot
}

// Close retires the current client. Later queries fail as unavailable.
func (m *Manager) Close() error {
	m.mu.Lock()
	old := m.current
	m.current = nil
	closeOld := old != nil && m.retire(old)
	m.mu.Unlock()

	if closeOld {
		return old.client.Close()
	}
	return nil
}
