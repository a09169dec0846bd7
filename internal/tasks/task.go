package tasks

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Task is a unit of classroom work opened by an admin or teacher.
type Task struct {
	ID          string    `yaml:"id" json:"id"`
	Creator     string    `yaml:"creator" json:"creator"`
	Name        string    `yaml:"name" json:"name"`
	Status      Status    `yaml:"status" json:"status"`
	CreatedTime time.Time `yaml:"created_time" json:"created_time"`
	Submissions []string  `yaml:"submissions" json:"submissions"`
}

// IsActive reports whether the task accepts submissions.
func (t Task) IsActive() bool { return t.Status == StatusActive }

// HasSubmitted reports whether user is in the submission set.
func (t Task) HasSubmitted(user string) bool {
	for _, s := range t.Submissions {
		if s == user {
			return true
		}
	}
	return false
}

// addSubmission inserts user into the submission set. It returns false if
// the user was already present.
func (t *Task) addSubmission(user string) bool {
	if t.HasSubmitted(user) {
		return false
	}
	t.Submissions = append(t.Submissions, user)
	return true
}

// TaskList is the persisted form of one creator's tasks.
type TaskList struct {
	Tasks []Task `yaml:"tasks" json:"tasks"`
}

// Active returns the active tasks in list order.
func (l TaskList) Active() []Task {
	var out []Task
	for _, t := range l.Tasks {
		if t.IsActive() {
			out = append(out, t)
		}
	}
	return out
}

// indexByName returns the position of the task named name, or -1.
func (l TaskList) indexByName(name string) int {
	for i, t := range l.Tasks {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// indexByID returns the position of the task with id, or -1.
func (l TaskList) indexByID(id string) int {
	for i, t := range l.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// newTaskID derives an id from creator, name and creation second. A suffix
// is added if the list already holds the same id.
func newTaskID(l TaskList, creator, name string, at time.Time) string {
	base := fmt.Sprintf("%s_%s_%d", creator, name, at.Unix())
	id := base
	for n := 2; l.indexByID(id) >= 0; n++ {
		id = fmt.Sprintf("%s_%d", base, n)
	}
	return id
}
