// Package identity is the user directory: credentials, roles and class
// (cohort) membership.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Role is a user's privilege level. Values match the stored integers.
type Role int

const (
	RoleAdmin   Role = 0
	RoleTeacher Role = 1
	RoleRegular Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleTeacher:
		return "teacher"
	default:
		return "regular"
	}
}

// ParseRole accepts a role name or its numeric value.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "0":
		return RoleAdmin, nil
	case "teacher", "1":
		return RoleTeacher, nil
	case "regular", "student", "2":
		return RoleRegular, nil
	}
	return RoleRegular, fmt.Errorf("unknown role %q", s)
}

// Privileged reports whether the role may create tasks.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleTeacher
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
)

// User is a row of the users table.
type User struct {
	Username     string `gorm:"primaryKey"`
	PasswordHash []byte `gorm:"not null"`
	Class        string `gorm:"index"`
	Name         string `gorm:"index"`
	Gender       string
	Role         Role `gorm:"not null"`
}

// Directory is a gorm-backed user directory.
type Directory struct {
	db *gorm.DB
}

// NewDirectory migrates the users table and returns a Directory.
func NewDirectory(db *gorm.DB) (*Directory, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("identity migrate: %w", err)
	}
	return &Directory{db: db}, nil
}

// SetPassword hashes pwd into the user record.
func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword compares pwd against the stored hash.
func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// AddUser inserts a new user with a hashed password.
func (d *Directory) AddUser(ctx context.Context, u User, password string) error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return errors.New("username is required")
	}
	if password == "" {
		return errors.New("password is required")
	}
	if err := u.SetPassword(password); err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	var n int64
	if err := d.db.WithContext(ctx).Model(&User{}).Where("username = ?", u.Username).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrUserExists, u.Username)
	}
	return d.db.WithContext(ctx).Create(&u).Error
}

// Get returns the user with the given username.
func (d *Directory) Get(ctx context.Context, username string) (*User, error) {
	var u User
	err := d.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns every user ordered by username.
func (d *Directory) List(ctx context.Context) ([]User, error) {
	var users []User
	if err := d.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Authenticate checks a password for a login given as username or display
// name and returns the matching user.
func (d *Directory) Authenticate(ctx context.Context, login, password string) (*User, error) {
	login = strings.TrimSpace(login)
	var u User
	err := d.db.WithContext(ctx).Where("username = ? OR name = ?", login, login).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := u.CheckPassword(password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// RoleOf returns the user's role; unknown users and lookup failures are
// treated as regular users.
func (d *Directory) RoleOf(ctx context.Context, username string) Role {
	u, err := d.Get(ctx, username)
	if err != nil {
		return RoleRegular
	}
	return u.Role
}

// CohortOf returns the user's class, or false when unknown or blank.
func (d *Directory) CohortOf(ctx context.Context, username string) (string, bool) {
	u, err := d.Get(ctx, username)
	if err != nil {
		return "", false
	}
	c := strings.TrimSpace(u.Class)
	return c, c != ""
}

// UsersWithRole lists usernames holding role, ordered by username.
func (d *Directory) UsersWithRole(ctx context.Context, role Role) ([]string, error) {
	var names []string
	err := d.db.WithContext(ctx).Model(&User{}).Where("role = ?", role).Order("username").Pluck("username", &names).Error
	if err != nil {
		return nil, fmt.Errorf("listing %s users: %w", role, err)
	}
	return names, nil
}
