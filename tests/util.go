package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
)

func CreateUser(
	t *testing.T,
	b *Backend,
	email, pwd string,
	role user.Role,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr, err := b.AddUser(email, pwd, role, isActive, tstamp)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// LogIn stores a valid token pair for the user of email, as a successful login would.
func LogIn(t *testing.T, b *Backend, s core.Storage, email string) core.Tokens {
	tokens, err := b.IssueTokens(email)
	if err != nil {
		t.Fatalf("logIn() failed: %v", err)
	}
	if err = core.StoreTokens(context.Background(), s, tokens); err != nil {
		t.Fatalf("logIn() failed: %v", err)
	}
	return tokens
}

// Logger discards everything but keeps count of errors.
type Logger struct {
	errors int32
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) Debug(string, ...interface{}) {}
func (l *Logger) Info(string, ...interface{})  {}
func (l *Logger) Warn(string, ...interface{})  {}
func (l *Logger) Error(string, ...interface{}) { atomic.AddInt32(&l.errors, 1) }
func (l *Logger) Fatal(msg string, _ ...interface{}) {
	panic(msg)
}

// ErrorCount returns how many errors were logged.
func (l *Logger) ErrorCount() int {
	return int(atomic.LoadInt32(&l.errors))
}
