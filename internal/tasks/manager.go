package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/youufis/SmartKB/internal/filestore"
	"github.com/youufis/SmartKB/internal/identity"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoActiveTasks    = errors.New("no active tasks")
	ErrNoEligibleTask   = errors.New("no eligible task")
	ErrInvalidSelection = errors.New("invalid selection")
	ErrTaskNotActive    = errors.New("task is no longer active")
	ErrSubmissionFailed = errors.New("submission failed")
)

const timeLayout = "2006-01-02 15:04:05"

// OutcomeKind classifies the result of handling a task message.
type OutcomeKind int

const (
	OutcomeNotHandled OutcomeKind = iota
	OutcomeCreated
	OutcomeReactivated
	OutcomeDenied
	OutcomeNoTasks
	OutcomeNoEligible
	OutcomeChoose
	OutcomeInvalidSelection
	OutcomeSubmitted
	OutcomeFailed
)

// Outcome is what the session shows the user after a task message.
type Outcome struct {
	Kind    OutcomeKind
	Message string
	// Task is the created or submitted task, when there is one.
	Task *Task
	// Candidates is the numbered list offered with OutcomeChoose.
	Candidates []Task
	// Err is the sentinel behind a refusal or failure.
	Err error
}

// Handled reports whether the message was consumed by the task subsystem.
func (o Outcome) Handled() bool { return o.Kind != OutcomeNotHandled }

// Manager drives the task lifecycle on top of a Store.
type Manager struct {
	store      *Store
	dir        Directory
	files      filestore.Store
	classifier IntentClassifier
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	pending map[string][]Task
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClassifier replaces the default RuleClassifier.
func WithClassifier(c IntentClassifier) ManagerOption {
	return func(m *Manager) { m.classifier = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager. files must be the same store backing store.
func NewManager(store *Store, dir Directory, files filestore.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		dir:        dir,
		files:      files,
		classifier: RuleClassifier{},
		logger:     logger,
		now:        time.Now,
		pending:    make(map[string][]Task),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying task store.
func (m *Manager) Store() *Store { return m.store }

// Create opens task name for actor, demoting the actor's current active task.
// An existing task with the same name is reactivated: it keeps its id, its
// submissions are cleared and its created time is refreshed.
func (m *Manager) Create(ctx context.Context, actor, name string) (Task, bool, error) {
	if !m.dir.RoleOf(ctx, actor).Privileged() {
		return Task{}, false, ErrPermissionDenied
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Task{}, false, errors.New("task name is required")
	}

	var created Task
	var reactivated bool
	err := m.store.Update(actor, func(list *TaskList) error {
		now := m.now()
		for i := range list.Tasks {
			if list.Tasks[i].IsActive() {
				list.Tasks[i].Status = StatusInactive
			}
		}
		if i := list.indexByName(name); i >= 0 {
			t := &list.Tasks[i]
			t.Status = StatusActive
			t.Submissions = []string{}
			t.CreatedTime = now
			created, reactivated = *t, true
			return nil
		}
		t := Task{
			ID:          newTaskID(*list, actor, name, now),
			Creator:     actor,
			Name:        name,
			Status:      StatusActive,
			CreatedTime: now,
			Submissions: []string{},
		}
		list.Tasks = append(list.Tasks, t)
		created = t
		return nil
	})
	if err != nil {
		return Task{}, false, fmt.Errorf("creating task %q: %w", name, err)
	}
	if _, err := m.store.RebuildUnifiedIndex(ctx); err != nil {
		m.logger.Warn("task saved but index rebuild failed", "task", created.ID, "error", err)
	}
	m.logger.Info("task activated", "task", created.ID, "creator", actor, "reactivated", reactivated)
	return created, reactivated, nil
}

// ResolveCandidates returns the active tasks actor may submit to: teacher
// tasks from the actor's cohort (or every teacher task when none match),
// followed by admin tasks. Order follows the unified index.
func (m *Manager) ResolveCandidates(ctx context.Context, actor string) []Task {
	index := m.store.ReadUnifiedIndex(ctx)
	cohort, hasCohort := m.dir.CohortOf(ctx, actor)

	roles := make(map[string]identity.Role)
	roleOf := func(u string) identity.Role {
		r, ok := roles[u]
		if !ok {
			r = m.dir.RoleOf(ctx, u)
			roles[u] = r
		}
		return r
	}

	var matched, teacher, admin []Task
	for _, t := range index.Tasks {
		if !t.IsActive() {
			continue
		}
		switch roleOf(t.Creator) {
		case identity.RoleTeacher:
			teacher = append(teacher, t)
			if hasCohort {
				if c, ok := m.dir.CohortOf(ctx, t.Creator); ok && c == cohort {
					matched = append(matched, t)
				}
			}
		case identity.RoleAdmin:
			admin = append(admin, t)
		}
	}

	candidates := matched
	if len(candidates) == 0 {
		candidates = teacher
	}
	out := make([]Task, 0, len(candidates)+len(admin))
	seen := make(map[string]bool)
	for _, t := range append(candidates, admin...) {
		if !seen[t.ID] {
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	return out
}

// Submit records actor's content against task. The three summary files are
// written and re-read before the submission is recorded; on any failure the
// task's submissions and the summary files are left unchanged.
func (m *Manager) Submit(ctx context.Context, actor string, task Task, content string) (Task, error) {
	var (
		submitted Task
		written   []summaryFile
	)
	err := m.store.Update(task.Creator, func(list *TaskList) error {
		i := list.indexByID(task.ID)
		if i < 0 || !list.Tasks[i].IsActive() {
			return ErrTaskNotActive
		}
		t := &list.Tasks[i]
		files, err := m.writeSummaries(actor, *t, content)
		if err != nil {
			return err
		}
		written = files
		t.addSubmission(actor)
		submitted = *t
		return nil
	})
	if err != nil {
		// The summaries went out but the task list did not.
		m.rollbackSummaries(written)
		m.logger.Error("submission failed", "task", task.ID, "actor", actor, "error", err)
		if errors.Is(err, ErrTaskNotActive) {
			return Task{}, err
		}
		return Task{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if _, err := m.store.RebuildUnifiedIndex(ctx); err != nil {
		m.logger.Warn("submission saved but index rebuild failed", "task", task.ID, "error", err)
	}
	m.logger.Info("task submitted", "task", task.ID, "actor", actor)
	return submitted, nil
}

// SummaryPaths returns the teacher-facing, personal and admin summary
// locations for a task.
func SummaryPaths(t Task) []string {
	creator, name := filestore.Segment(t.Creator), filestore.Segment(t.Name)
	return []string{
		path.Join("summary", "teachers", creator, "summary_"+name+".md"),
		path.Join("users", creator, "summary", "summary_"+name+".md"),
		path.Join("summary", "admin", "summary_"+creator+"_"+name+".md"),
	}
}

type summaryFile struct {
	path    string
	prev    []byte
	existed bool
}

// writeSummaries commits the entry to every summary file or to none of them.
// New contents are built from the current files first, then written one by
// one; a failed write or a failed read-back restores the files already
// committed. The returned files carry the prior contents for rollback.
func (m *Manager) writeSummaries(actor string, t Task, content string) ([]summaryFile, error) {
	now := m.now().Format(timeLayout)
	entry := fmt.Sprintf("## 学生 %s\n\n提交时间: %s\n\n内容:\n%s\n\n---\n\n", actor, now, content)
	header := fmt.Sprintf("# 任务汇总：%s\n\n创建者: %s\n创建时间: %s\n\n---\n\n", t.Name, t.Creator, now)

	paths := SummaryPaths(t)
	files := make([]summaryFile, 0, len(paths))
	for _, p := range paths {
		data, ok, err := m.files.Read(p)
		if err != nil {
			return nil, fmt.Errorf("reading summary %s: %w", p, err)
		}
		files = append(files, summaryFile{path: p, prev: data, existed: ok})
	}

	for i, f := range files {
		next := make([]byte, 0, len(f.prev)+len(header)+len(entry))
		next = append(next, f.prev...)
		if !f.existed {
			next = append(next, header...)
		}
		next = append(next, entry...)
		if err := m.files.Write(f.path, next); err != nil {
			m.rollbackSummaries(files[:i])
			return nil, fmt.Errorf("writing summary %s: %w", f.path, err)
		}
	}
	for _, f := range files {
		data, ok, err := m.files.Read(f.path)
		if err != nil || !ok || !bytes.HasSuffix(data, []byte(entry)) {
			m.rollbackSummaries(files)
			return nil, fmt.Errorf("summary %s missing after write", f.path)
		}
	}
	return files, nil
}

func (m *Manager) rollbackSummaries(files []summaryFile) {
	for _, f := range files {
		var err error
		if f.existed {
			err = m.files.Write(f.path, f.prev)
		} else {
			err = m.files.Remove(f.path)
		}
		if err != nil {
			m.logger.Error("summary rollback failed", "path", f.path, "error", err)
		}
	}
}

// Handle classifies message and runs the matching lifecycle step.
// transcript is the content submitted when the message completes a task.
// Messages that are not task operations return an OutcomeNotHandled.
func (m *Manager) Handle(ctx context.Context, actor, message, transcript string) Outcome {
	intent := m.classifier.Classify(message)
	switch intent.Kind {
	case IntentCreate:
		return m.handleCreate(ctx, actor, intent.TaskName)
	case IntentSubmit:
		return m.handleSubmitIntent(ctx, actor, transcript)
	case IntentSelect:
		if m.hasPending(actor) {
			return m.handleSelection(ctx, actor, intent.Selection, transcript)
		}
	}
	return Outcome{Kind: OutcomeNotHandled}
}

func (m *Manager) handleCreate(ctx context.Context, actor, name string) Outcome {
	t, reactivated, err := m.Create(ctx, actor, name)
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return Outcome{Kind: OutcomeDenied, Message: msgPermissionDenied, Err: err}
	case err != nil:
		return Outcome{Kind: OutcomeFailed, Message: msgCreateFailed, Err: err}
	case reactivated:
		return Outcome{Kind: OutcomeReactivated, Message: fmt.Sprintf(msgReactivated, t.Name), Task: &t}
	default:
		return Outcome{Kind: OutcomeCreated, Message: fmt.Sprintf(msgCreated, t.Name), Task: &t}
	}
}

func (m *Manager) handleSubmitIntent(ctx context.Context, actor, transcript string) Outcome {
	if len(m.store.ReadUnifiedIndex(ctx).Tasks) == 0 {
		m.clearPending(actor)
		return Outcome{Kind: OutcomeNoTasks, Message: msgNoActiveTasks, Err: ErrNoActiveTasks}
	}
	candidates := m.ResolveCandidates(ctx, actor)
	switch len(candidates) {
	case 0:
		m.clearPending(actor)
		return Outcome{Kind: OutcomeNoEligible, Message: msgNoEligible, Err: ErrNoEligibleTask}
	case 1:
		m.clearPending(actor)
		return m.submitOutcome(ctx, actor, candidates[0], transcript)
	default:
		m.setPending(actor, candidates)
		return Outcome{Kind: OutcomeChoose, Message: choicePrompt(candidates), Candidates: candidates}
	}
}

func (m *Manager) handleSelection(ctx context.Context, actor string, n int, transcript string) Outcome {
	candidates := m.getPending(actor)
	if n < 1 || n > len(candidates) {
		return Outcome{Kind: OutcomeInvalidSelection, Message: fmt.Sprintf(msgInvalidSelection, len(candidates)), Candidates: candidates, Err: ErrInvalidSelection}
	}
	out := m.submitOutcome(ctx, actor, candidates[n-1], transcript)
	if out.Kind == OutcomeSubmitted {
		m.clearPending(actor)
	}
	return out
}

func (m *Manager) submitOutcome(ctx context.Context, actor string, t Task, transcript string) Outcome {
	done, err := m.Submit(ctx, actor, t, transcript)
	switch {
	case errors.Is(err, ErrTaskNotActive):
		return Outcome{Kind: OutcomeNoEligible, Message: msgNoEligible, Err: err}
	case err != nil:
		return Outcome{Kind: OutcomeFailed, Message: msgSubmitFailed, Err: err}
	}
	return Outcome{Kind: OutcomeSubmitted, Message: fmt.Sprintf(msgSubmitted, done.Name, done.Creator), Task: &done}
}

func (m *Manager) hasPending(actor string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending[actor]) > 0
}

func (m *Manager) getPending(actor string) []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[actor]
}

func (m *Manager) setPending(actor string, ts []Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[actor] = ts
}

func (m *Manager) clearPending(actor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, actor)
}

func choicePrompt(candidates []Task) string {
	var b strings.Builder
	b.WriteString(msgChooseHeader)
	for i, t := range candidates {
		fmt.Fprintf(&b, "%d. %s（创建者：%s）\n", i+1, t.Name, t.Creator)
	}
	fmt.Fprintf(&b, msgChooseFooter, len(candidates))
	return b.String()
}
