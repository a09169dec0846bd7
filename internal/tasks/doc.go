// Package tasks implements classroom task tracking: per-creator task lists
// with a single active task, the unified active-task index shared by all
// sessions, submission intent handling and three-way summary writes.
package tasks
