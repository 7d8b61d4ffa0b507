// Package memory holds process-local implementations of the repositories,
// used by tests and by the server when DB_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/domain/absence"
)

type txKey struct{}

// AbsenceStore keeps absence requests in a map. Transactions are serialized
// on one mutex and roll back to a snapshot on error, which also makes every
// ledger lock held for the whole transaction.
type AbsenceStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	requests map[string]absence.AbsenceRequest
	loc      *time.Location
}

func NewAbsenceStore(loc *time.Location) *AbsenceStore {
	if loc == nil {
		loc = time.UTC
	}
	return &AbsenceStore{requests: make(map[string]absence.AbsenceRequest), loc: loc}
}

// WithinTransaction implements absence.Transactor.
func (s *AbsenceStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

func (s *AbsenceStore) snapshot() map[string]absence.AbsenceRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]absence.AbsenceRequest, len(s.requests))
	for id, r := range s.requests {
		out[id] = r
	}
	return out
}

func (s *AbsenceStore) restore(snapshot map[string]absence.AbsenceRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = snapshot
}

func (s *AbsenceStore) Create(ctx context.Context, request absence.AbsenceRequest) (absence.AbsenceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request.Attachments = append([]absence.Attachment(nil), request.Attachments...)
	s.requests[request.ID] = request
	return request, nil
}

func (s *AbsenceStore) GetByID(ctx context.Context, id string) (absence.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return absence.AbsenceRequest{}, absence.ErrNotFound
	}
	return r, nil
}

// GetByIDForUpdate implements absence.Repository. Row locking is covered by
// the transaction mutex.
func (s *AbsenceStore) GetByIDForUpdate(ctx context.Context, id string) (absence.AbsenceRequest, error) {
	return s.GetByID(ctx, id)
}

func (s *AbsenceStore) Update(ctx context.Context, request absence.AbsenceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[request.ID]; !ok {
		return absence.ErrNotFound
	}
	s.requests[request.ID] = request
	return nil
}

func (s *AbsenceStore) ListOverlapping(ctx context.Context, userID string, kind absence.Kind, from, to time.Time) ([]absence.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []absence.AbsenceRequest
	for _, r := range s.requests {
		if r.UserID != userID || r.Kind != kind {
			continue
		}
		rFrom, rTo := absence.CivilSpan(r, s.loc)
		if rFrom.Before(to) && rTo.After(from) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *AbsenceStore) List(ctx context.Context, filter absence.Filter) ([]absence.AbsenceRequest, int64, error) {
	filter.Normalize()

	s.mu.RLock()
	var matched []absence.AbsenceRequest
	for _, r := range s.requests {
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if filter.Kind != "" && r.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		rFrom, rTo := absence.CivilSpan(r, s.loc)
		if filter.From != nil && !rTo.After(absence.CivilDate(*filter.From)) {
			continue
		}
		if filter.To != nil && rFrom.After(absence.CivilDate(*filter.To)) {
			continue
		}
		matched = append(matched, r)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(matched) {
		return []absence.AbsenceRequest{}, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *AbsenceStore) ListDueForTransition(ctx context.Context, now time.Time) ([]absence.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []absence.AbsenceRequest
	for _, r := range s.requests {
		if r.Status != absence.StatusApproved && r.Status != absence.StatusActive {
			continue
		}
		start, _ := r.Window(s.loc)
		if !start.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Start.Before(out[j].Period.Start) })
	return out, nil
}

// LockLedger implements absence.Repository. The caller already holds the
// transaction mutex.
func (s *AbsenceStore) LockLedger(ctx context.Context, key absence.LedgerKey) error {
	if ctx.Value(txKey{}) == nil {
		return errLockOutsideTx
	}
	return nil
}
