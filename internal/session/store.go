// Package session orchestrates the lifecycle of mobile seat assignments:
// admission, logout, activity heartbeats and reaping of idle seats.
package session

import (
	"context"
	"time"

	"github.com/iliyamo/mobile-seat-admission/internal/model"
)

// SeatTx exposes the reads and the write an admission needs.  All calls on
// one SeatTx belong to the same atomic unit.
type SeatTx interface {
	UsedCount(ctx context.Context, variant model.AppVariant, customerID uint64) (uint, error)
	Assignment(ctx context.Context, variant model.AppVariant, userID uint64) (*model.SeatAssignment, error)
	Upsert(ctx context.Context, a model.SeatAssignment) error
}

// SeatStore owns persisted seat assignments.
//
// InPool runs fn so that no other InPool call for the same customer and
// variant can interleave with it; when fn returns an error nothing fn wrote
// is kept.  Remove, Touch and Deactivate are single conditional writes and
// report whether a record matched.  Deactivate only transitions an
// assignment that is still active and whose last activity is not newer than
// idleSince, so a concurrent admission or sync wins over the reaper.
type SeatStore interface {
	InPool(ctx context.Context, variant model.AppVariant, customerID uint64, fn func(tx SeatTx) error) error
	Remove(ctx context.Context, variant model.AppVariant, userID uint64, deviceID string) (bool, error)
	Touch(ctx context.Context, variant model.AppVariant, userID uint64, deviceID string, at time.Time) (bool, error)
	ReapCandidates(ctx context.Context, idleSince time.Time) ([]model.SeatAssignment, error)
	Deactivate(ctx context.Context, a model.SeatAssignment, reason model.ReasonCode, idleSince time.Time) (bool, error)
}
