package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/iliyamo/mobile-seat-admission/internal/model"
)

type seatKey struct {
	variant model.AppVariant
	userID  uint64
}

type poolKey struct {
	variant    model.AppVariant
	customerID uint64
}

// memStore is an in-memory SeatStore that serializes InPool per pool and
// discards staged writes when fn fails.
type memStore struct {
	mu    sync.Mutex
	rows  map[seatKey]model.SeatAssignment
	pools map[poolKey]*sync.Mutex

	upsertErr     error
	deactivateErr map[uint64]error
}

func newMemStore(rows ...model.SeatAssignment) *memStore {
	s := &memStore{rows: map[seatKey]model.SeatAssignment{}, pools: map[poolKey]*sync.Mutex{}}
	for _, r := range rows {
		s.rows[seatKey{r.AppVariant, r.UserID}] = r
	}
	return s
}

func (s *memStore) get(variant model.AppVariant, userID uint64) (model.SeatAssignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[seatKey{variant, userID}]
	return a, ok
}

func (s *memStore) poolLock(k poolKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.pools[k]
	if !ok {
		l = &sync.Mutex{}
		s.pools[k] = l
	}
	return l
}

type memTx struct {
	s      *memStore
	staged []model.SeatAssignment
}

func (t *memTx) UsedCount(_ context.Context, variant model.AppVariant, customerID uint64) (uint, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var n uint
	for _, a := range t.s.rows {
		if a.AppVariant == variant && a.CustomerID == customerID && a.Active {
			n++
		}
	}
	return n, nil
}

func (t *memTx) Assignment(_ context.Context, variant model.AppVariant, userID uint64) (*model.SeatAssignment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.rows[seatKey{variant, userID}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (t *memTx) Upsert(_ context.Context, a model.SeatAssignment) error {
	if t.s.upsertErr != nil {
		return t.s.upsertErr
	}
	t.staged = append(t.staged, a)
	return nil
}

func (s *memStore) InPool(ctx context.Context, variant model.AppVariant, customerID uint64, fn func(tx SeatTx) error) error {
	l := s.poolLock(poolKey{variant, customerID})
	l.Lock()
	defer l.Unlock()
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range tx.staged {
		s.rows[seatKey{a.AppVariant, a.UserID}] = a
	}
	return nil
}

func (s *memStore) Remove(_ context.Context, variant model.AppVariant, userID uint64, deviceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := seatKey{variant, userID}
	a, ok := s.rows[k]
	if !ok || a.DeviceID != deviceID {
		return false, nil
	}
	delete(s.rows, k)
	return true, nil
}

func (s *memStore) Touch(_ context.Context, variant model.AppVariant, userID uint64, deviceID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := seatKey{variant, userID}
	a, ok := s.rows[k]
	if !ok || !a.Active || a.DeviceID != deviceID {
		return false, nil
	}
	a.LastActivityAt = at
	s.rows[k] = a
	return true, nil
}

func (s *memStore) ReapCandidates(_ context.Context, idleSince time.Time) ([]model.SeatAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SeatAssignment
	for _, a := range s.rows {
		if a.Active && !a.LastActivityAt.After(idleSince) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) Deactivate(_ context.Context, a model.SeatAssignment, reason model.ReasonCode, idleSince time.Time) (bool, error) {
	if err := s.deactivateErr[a.UserID]; err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := seatKey{a.AppVariant, a.UserID}
	cur, ok := s.rows[k]
	if !ok || !cur.Active || cur.LastActivityAt.After(idleSince) {
		return false, nil
	}
	cur.Active = false
	cur.Reason = reason
	s.rows[k] = cur
	return true, nil
}

type providerMock struct{ mock.Mock }

func (p *providerMock) AllowedSeats(ctx context.Context, customerID uint64, key model.EntitlementKey) (uint, error) {
	args := p.Called(ctx, customerID, key)
	return args.Get(0).(uint), args.Error(1)
}

type recordingReporter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingReporter) Report(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingReporter) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

var errBoom = errors.New("boom")
