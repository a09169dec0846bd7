package tasks

import (
	"strconv"
	"strings"
)

// IntentKind is what a chat message asks the task subsystem to do.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentCreate
	IntentSubmit
	IntentSelect
)

func (k IntentKind) String() string {
	switch k {
	case IntentCreate:
		return "create"
	case IntentSubmit:
		return "submit"
	case IntentSelect:
		return "select"
	default:
		return "none"
	}
}

// Intent is a classified message.
type Intent struct {
	Kind IntentKind
	// TaskName is set for IntentCreate.
	TaskName string
	// Selection is the 1-based number for IntentSelect.
	Selection int
}

// IntentClassifier maps raw user text to an Intent.
type IntentClassifier interface {
	Classify(message string) Intent
}

// RuleClassifier recognises the fixed phrases used in class:
// "提交<name>任务" creates a task, "完成" or "结束" submits, and a bare number
// picks from a pending list.
type RuleClassifier struct{}

const (
	createPrefix = "提交"
	createSuffix = "任务"
)

var submitWords = map[string]bool{"完成": true, "结束": true}

// Classify implements IntentClassifier.
func (RuleClassifier) Classify(message string) Intent {
	msg := strings.TrimSpace(message)
	if strings.HasPrefix(msg, createPrefix) && strings.HasSuffix(msg, createSuffix) &&
		len(msg) >= len(createPrefix)+len(createSuffix) {
		name := strings.TrimSpace(msg[len(createPrefix) : len(msg)-len(createSuffix)])
		if name != "" {
			return Intent{Kind: IntentCreate, TaskName: name}
		}
	}
	if submitWords[msg] {
		return Intent{Kind: IntentSubmit}
	}
	if msg != "" && isDigits(msg) {
		n, err := strconv.Atoi(msg)
		if err == nil {
			return Intent{Kind: IntentSelect, Selection: n}
		}
	}
	return Intent{Kind: IntentNone}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
