package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/youufis/SmartKB/internal/filestore"
	"github.com/youufis/SmartKB/internal/identity"
)

// Directory is the identity provider the task subsystem depends on.
type Directory interface {
	RoleOf(ctx context.Context, username string) identity.Role
	CohortOf(ctx context.Context, username string) (string, bool)
	UsersWithRole(ctx context.Context, role identity.Role) ([]string, error)
}

const (
	tasksRoot       = "tasks"
	unifiedIndexKey = "tasks/all_active_tasks.yaml"
	taskListFile    = "active_tasks.yaml"
)

// Store persists per-creator task lists and the unified active-task index.
type Store struct {
	files  filestore.Store
	dir    Directory
	logger *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// indexMu makes RebuildUnifiedIndex the single writer of the index.
	indexMu sync.Mutex
	// indexStale is set when the last rebuild failed; reads then bypass the
	// cached file until a rebuild succeeds.
	indexStale bool
}

// NewStore creates a Store over files.
func NewStore(files filestore.Store, dir Directory, logger *slog.Logger) *Store {
	return &Store{
		files:  files,
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// CreatorPath is the creator-keyed task list location.
func CreatorPath(creator string) string {
	return path.Join(tasksRoot, filestore.Segment(creator), taskListFile)
}

// PrivatePath is the creator's personal copy of the task list.
func PrivatePath(creator string) string {
	return path.Join("users", filestore.Segment(creator), "tasks", taskListFile)
}

func (s *Store) lockFor(creator string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[creator]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[creator] = mu
	}
	return mu
}

// Load returns the creator's task list. A missing list is an empty list.
func (s *Store) Load(creator string) (TaskList, error) {
	data, ok, err := s.files.Read(CreatorPath(creator))
	if err != nil {
		return TaskList{}, fmt.Errorf("loading tasks for %s: %w", creator, err)
	}
	if !ok || len(data) == 0 {
		return TaskList{}, nil
	}
	var list TaskList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return TaskList{}, fmt.Errorf("parsing tasks for %s: %w", creator, err)
	}
	return list, nil
}

// Save writes the creator's list to the creator's private copy and then to
// the creator-keyed store, which is the copy Load reads. A failed private
// write leaves the creator-keyed store untouched.
func (s *Store) Save(creator string, list TaskList) error {
	data, err := yaml.Marshal(&list)
	if err != nil {
		return fmt.Errorf("encoding tasks for %s: %w", creator, err)
	}
	for _, p := range []string{PrivatePath(creator), CreatorPath(creator)} {
		if err := s.files.Write(p, data); err != nil {
			s.logger.Error("task list write failed", "creator", creator, "path", p, "error", err)
			return fmt.Errorf("saving tasks for %s: %w", creator, err)
		}
	}
	return nil
}

// Update runs fn on the creator's list under the creator's lock and saves the
// result if fn returns nil.
func (s *Store) Update(creator string, fn func(*TaskList) error) error {
	mu := s.lockFor(creator)
	mu.Lock()
	defer mu.Unlock()

	list, err := s.Load(creator)
	if err != nil {
		return err
	}
	if err := fn(&list); err != nil {
		return err
	}
	return s.Save(creator, list)
}

// indexCreators returns admins followed by teachers, each sorted by name.
func (s *Store) indexCreators(ctx context.Context) ([]string, error) {
	admins, err := s.dir.UsersWithRole(ctx, identity.RoleAdmin)
	if err != nil {
		return nil, err
	}
	teachers, err := s.dir.UsersWithRole(ctx, identity.RoleTeacher)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(admins)+len(teachers))
	var out []string
	for _, u := range append(admins, teachers...) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out, nil
}

// collectActive loads every admin and teacher list and keeps active tasks.
func (s *Store) collectActive(ctx context.Context) (TaskList, error) {
	creators, err := s.indexCreators(ctx)
	if err != nil {
		return TaskList{}, fmt.Errorf("listing task creators: %w", err)
	}
	var out TaskList
	for _, c := range creators {
		list, err := s.Load(c)
		if err != nil {
			return TaskList{}, err
		}
		out.Tasks = append(out.Tasks, list.Active()...)
	}
	return out, nil
}

// RebuildUnifiedIndex recomputes the union of active admin and teacher tasks
// and overwrites the cached index.
func (s *Store) RebuildUnifiedIndex(ctx context.Context) (TaskList, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	list, err := s.collectActive(ctx)
	if err == nil {
		var data []byte
		data, err = yaml.Marshal(&list)
		if err == nil {
			err = s.files.Write(unifiedIndexKey, data)
		}
	}
	if err != nil {
		s.indexStale = true
		s.logger.Error("unified index rebuild failed", "error", err)
		return TaskList{}, fmt.Errorf("rebuilding unified index: %w", err)
	}
	s.indexStale = false
	s.logger.Debug("unified index rebuilt", "active_tasks", len(list.Tasks))
	return list, nil
}

func (s *Store) isIndexStale() bool {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	return s.indexStale
}

// ReadUnifiedIndex returns the cached index, falling back to scanning every
// creator when the cache is missing, corrupt or known stale. It never fails:
// errors degrade to an empty list and a warning.
func (s *Store) ReadUnifiedIndex(ctx context.Context) TaskList {
	if !s.isIndexStale() {
		data, ok, err := s.files.Read(unifiedIndexKey)
		if err == nil && ok {
			var list TaskList
			if err := yaml.Unmarshal(data, &list); err == nil {
				return list
			}
			s.logger.Warn("unified index corrupt, scanning creators")
		} else if err != nil {
			s.logger.Warn("unified index unreadable, scanning creators", "error", err)
		}
	}
	list, err := s.collectActive(ctx)
	if err != nil {
		s.logger.Warn("unified index fallback failed", "error", err)
		return TaskList{}
	}
	return list
}
