// Package lease provides short-lived exclusive claims on a unit of work
// (a batch or a final report) so that two invocations never process it at once.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHeld is returned when another holder owns the key.
var ErrHeld = errors.New("lease held by another worker")

// Lease is a claim on Key identified by Token.
type Lease struct {
	Key   string
	Token string
}

type Locker interface {
	// Acquire returns ErrHeld when the key is already claimed.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
	// Release drops the claim if it is still owned by l.
	Release(ctx context.Context, l *Lease) error
	// Held reports whether anyone currently owns key.
	Held(ctx context.Context, key string) (bool, error)
}

// LocalLocker is a Locker for a single process.
type LocalLocker struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]localEntry
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{now: time.Now, leases: make(map[string]localEntry)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.leases[key]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	l.leases[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &Lease{Key: key, Token: token}, nil
}

func (l *LocalLocker) Release(_ context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.leases[lease.Key]; ok && e.token == lease.Token {
		delete(l.leases, lease.Key)
	}
	return nil
}

func (l *LocalLocker) Held(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.leases[key]
	return ok && l.now().Before(e.expires), nil
}

// BatchKey names the lease of a batch.
func BatchKey(batchID uuid.UUID) string { return "visibility:batch:" + batchID.String() }

// ReportKey names the lease of a questionnaire's final report.
func ReportKey(questionnaireID uuid.UUID) string {
	return "visibility:final:" + questionnaireID.String()
}
