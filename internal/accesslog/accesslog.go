// Package accesslog records chat requests per client IP and enforces an
// optional daily request limit.
package accesslog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Entry is a row of the access_logs table.
type Entry struct {
	ID        uint      `gorm:"primaryKey"`
	IP        string    `gorm:"index:idx_ip_time"`
	Prompt    string
	CreatedAt time.Time `gorm:"index:idx_ip_time"`
}

// Log stores access entries and answers limit checks.
type Log struct {
	db      *gorm.DB
	enabled bool
	daily   int
	now     func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithDailyLimit turns on the per-IP limit.
func WithDailyLimit(n int) Option {
	return func(l *Log) {
		l.enabled = n > 0
		l.daily = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New migrates the access log table and returns a Log.
func New(db *gorm.DB, opts ...Option) (*Log, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("accesslog migrate: %w", err)
	}
	l := &Log{db: db, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Limit returns the configured daily limit and whether it is enforced.
func (l *Log) Limit() (int, bool) { return l.daily, l.enabled }

// Record appends an entry for ip.
func (l *Log) Record(ctx context.Context, ip, prompt string) error {
	return l.db.WithContext(ctx).Create(&Entry{IP: ip, Prompt: prompt, CreatedAt: l.now()}).Error
}

// CountToday returns how many requests ip made since local midnight.
func (l *Log) CountToday(ctx context.Context, ip string) (int64, error) {
	now := l.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var n int64
	err := l.db.WithContext(ctx).Model(&Entry{}).
		Where("ip = ? AND created_at >= ?", ip, midnight).
		Count(&n).Error
	return n, err
}

// Allow reports whether ip may make another request today. It always allows
// when the limit is disabled.
func (l *Log) Allow(ctx context.Context, ip string) (bool, error) {
	if !l.enabled {
		return true, nil
	}
	n, err := l.CountToday(ctx, ip)
	if err != nil {
		return false, fmt.Errorf("counting requests for %s: %w", ip, err)
	}
	return n < int64(l.daily), nil
}

// LimitMessage is shown to clients over their daily limit.
func LimitMessage(daily int) string {
	return fmt.Sprintf("您今天的请求次数已达到上限（%d次），请明天再试。", daily)
}
