// Package history writes finalized conversation turns to per-session
// markdown files and reads them back for resume.
package history

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/youufis/SmartKB/internal/filestore"
	"github.com/youufis/SmartKB/internal/llm"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	dateLayout = "2006-01-02"

	userMarker      = "**用户** ("
	assistantMarker = "**助手** ("
	separator       = "---"
)

// ErrNotFound is returned by Load when no conversation file exists.
var ErrNotFound = errors.New("conversation not found")

// Writer persists conversations under users/<user>/ChatHistory.
type Writer struct {
	files filestore.Store
	now   func() time.Time
}

// NewWriter creates a Writer. now may be nil.
func NewWriter(files filestore.Store, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{files: files, now: now}
}

// Path returns the file holding session sid of user on date.
func Path(user string, date time.Time, sid string) string {
	return path.Join("users", filestore.Segment(user), "ChatHistory", date.Format(dateLayout),
		"conversation_"+filestore.Segment(sid)+".md")
}

// SaveTurn appends one user/assistant pair, creating the file with its
// header on first write.
func (w *Writer) SaveTurn(user, sid, question, answer string) error {
	if user == "" || sid == "" {
		return fmt.Errorf("history: user and session id are required")
	}
	now := w.now()
	p := Path(user, now, sid)

	var b strings.Builder
	if !w.files.Exists(p) {
		fmt.Fprintf(&b, "创建时间: %s\n\n%s\n\n", now.Format(timeLayout), separator)
	}
	ts := now.Format(timeLayout)
	fmt.Fprintf(&b, "%s%s): %s\n\n", userMarker, ts, question)
	fmt.Fprintf(&b, "%s%s): %s\n\n", assistantMarker, ts, answer)
	b.WriteString(separator + "\n\n")

	if err := w.files.Append(p, b.String()); err != nil {
		return fmt.Errorf("saving turn for %s: %w", user, err)
	}
	return nil
}

// Load reads session sid of user on date back into chat messages.
func (w *Writer) Load(user string, date time.Time, sid string) ([]llm.Message, error) {
	data, ok, err := w.files.Read(Path(user, date, sid))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return Parse(string(data)), nil
}

// Parse extracts the turns of a conversation file. A separator line ends the
// current message only when the next non-blank line starts a turn or the file
// ends, so rules inside an answer are kept.
func Parse(doc string) []llm.Message {
	var msgs []llm.Message
	var cur *llm.Message
	var body []string

	flush := func() {
		if cur != nil {
			cur.Content = strings.TrimSpace(strings.Join(body, "\n"))
			msgs = append(msgs, *cur)
		}
		cur, body = nil, nil
	}

	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		role, rest, isTurn := parseMarker(line)
		switch {
		case isTurn:
			flush()
			cur = &llm.Message{Role: role}
			body = []string{rest}
		case strings.TrimSpace(line) == separator && endsMessage(lines[i+1:]):
			flush()
		case cur != nil:
			body = append(body, line)
		}
	}
	flush()
	return msgs
}

// endsMessage reports whether a separator followed by rest closes a message.
func endsMessage(rest []string) bool {
	for _, line := range rest {
		if strings.TrimSpace(line) == "" {
			continue
		}
		_, _, isTurn := parseMarker(line)
		return isTurn
	}
	return true
}

func parseMarker(line string) (llm.Role, string, bool) {
	var role llm.Role
	var rest string
	switch {
	case strings.HasPrefix(line, userMarker):
		role, rest = llm.RoleUser, line[len(userMarker):]
	case strings.HasPrefix(line, assistantMarker):
		role, rest = llm.RoleAssistant, line[len(assistantMarker):]
	default:
		return "", "", false
	}
	i := strings.Index(rest, "): ")
	if i < 0 {
		if strings.HasSuffix(rest, "):") {
			return role, "", true
		}
		return "", "", false
	}
	return role, rest[i+3:], true
}
