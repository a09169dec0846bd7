package tasks

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/youufis/SmartKB/internal/filestore"
	"github.com/youufis/SmartKB/internal/identity"
	"github.com/youufis/SmartKB/internal/logging"
)

type mockUser struct {
	role   identity.Role
	cohort string
}

// MockDirectory is an in-memory identity provider.
type MockDirectory struct {
	mu    sync.Mutex
	users map[string]mockUser

	UsersWithRoleFunc func(ctx context.Context, role identity.Role) ([]string, error)
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{users: make(map[string]mockUser)}
}

func (d *MockDirectory) Add(username string, role identity.Role, cohort string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[username] = mockUser{role: role, cohort: cohort}
}

func (d *MockDirectory) RoleOf(ctx context.Context, username string) identity.Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return identity.RoleRegular
	}
	return u.role
}

func (d *MockDirectory) CohortOf(ctx context.Context, username string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok || u.cohort == "" {
		return "", false
	}
	return u.cohort, true
}

func (d *MockDirectory) UsersWithRole(ctx context.Context, role identity.Role) ([]string, error) {
	if d.UsersWithRoleFunc != nil {
		return d.UsersWithRoleFunc(ctx, role)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for name, u := range d.users {
		if u.role == role {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

var errInjected = errors.New("injected I/O fault")

// FaultyFiles wraps a Store and fails writes to paths with a given prefix.
type FaultyFiles struct {
	filestore.Store

	mu         sync.Mutex
	FailPrefix string
	FailWrites bool
	DropWrites bool
	WriteCalls int
}

func (f *FaultyFiles) matches(path string) bool {
	return f.FailPrefix != "" && strings.HasPrefix(path, f.FailPrefix)
}

func (f *FaultyFiles) Write(path string, data []byte) error {
	f.mu.Lock()
	f.WriteCalls++
	fail := f.FailWrites && f.matches(path)
	drop := f.DropWrites && f.matches(path)
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	if drop {
		// Reports success without writing anything.
		return nil
	}
	return f.Store.Write(path, data)
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	dir     *MockDirectory
	files   *FaultyFiles
	store   *Store
	manager *Manager
	clock   *fixedClock
}

func createTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnv(t, t.TempDir())
}

func newTestEnv(t interface{ Fatalf(string, ...any) }, root string) *testEnv {
	fs, err := filestore.New(root)
	if err != nil {
		t.Fatalf("Failed to create filestore: %v", err)
	}
	files := &FaultyFiles{Store: fs}
	dir := NewMockDirectory()
	dir.Add("root", identity.RoleAdmin, "")
	clock := &fixedClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	logger := logging.Discard()
	store := NewStore(files, dir, logger)
	manager := NewManager(store, dir, files, logger, WithClock(clock.Now))
	return &testEnv{dir: dir, files: files, store: store, manager: manager, clock: clock}
}
