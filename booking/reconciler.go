package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"parking-finder-cli/model"
)

var (
	ErrUnknownLot    = errors.New("lot is not in the current list")
	ErrLotFull       = errors.New("lot has no available spots")
	ErrNoSelection   = errors.New("no lot selected")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrNoQuery       = errors.New("no nearby search to refresh")
	ErrInvalidRadius = errors.New("radius must be positive")
)

// Directory is the part of the parking service the reconciler talks to.
type Directory interface {
	Nearby(ctx context.Context, center model.Coordinates, radiusKm float64) ([]model.ParkingLot, error)
	Book(ctx context.Context, lotID int) error
	Rate(ctx context.Context, lotID int, rating int) error
}

// Query is the center and radius of the last successful nearby fetch.
type Query struct {
	Center   model.Coordinates
	RadiusKm float64
}

// Pending is a booking whose optimistic decrement is applied but not yet settled.
type Pending struct {
	LotID   int
	LotName string
	// Before is the available count prior to the decrement.
	Before int

	generation uint64
}

// Reconciler owns the displayed lot list and selection. Every mutation replaces
// the list value as a whole, so readers never observe a partial update.
type Reconciler struct {
	dir Directory

	mu         sync.RWMutex
	lots       []model.ParkingLot
	generation uint64
	query      *Query
	selected   *model.ParkingLot
}

func NewReconciler(dir Directory) *Reconciler {
	return &Reconciler{dir: dir, lots: []model.ParkingLot{}}
}

// Lots returns a copy of the current list.
func (r *Reconciler) Lots() []model.ParkingLot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.lots)
}

// Lot returns the lot with the given id from the current list.
func (r *Reconciler) Lot(id int) (model.ParkingLot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := indexOf(r.lots, id)
	if idx < 0 {
		return model.ParkingLot{}, false
	}
	return r.lots[idx], true
}

// Selected returns the selection snapshot.
func (r *Reconciler) Selected() (model.ParkingLot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected == nil {
		return model.ParkingLot{}, false
	}
	return *r.selected, true
}

// Query returns the last successful nearby query.
func (r *Reconciler) Query() (Query, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.query == nil {
		return Query{}, false
	}
	return *r.query, true
}

// Generation increments every time the list is replaced by a fetch.
func (r *Reconciler) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Select makes the lot with id the current selection.
func (r *Reconciler) Select(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := indexOf(r.lots, id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownLot, id)
	}
	snapshot := r.lots[idx]
	r.selected = &snapshot
	return nil
}

// ClearSelection drops the current selection, e.g. once a booking notification is acknowledged.
func (r *Reconciler) ClearSelection() {
	r.mu.Lock()
	r.selected = nil
	r.mu.Unlock()
}

// FetchNearby replaces the whole list with the service's answer for center and
// radius. An empty answer is a success. On error the list is left untouched.
func (r *Reconciler) FetchNearby(ctx context.Context, center model.Coordinates, radiusKm float64) ([]model.ParkingLot, error) {
	if radiusKm <= 0 {
		return nil, ErrInvalidRadius
	}
	lots, err := r.dir.Nearby(ctx, center, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("fetch nearby lots: %w", err)
	}

	next := normalize(lots)
	r.mu.Lock()
	r.lots = next
	r.generation++
	r.query = &Query{Center: center, RadiusKm: radiusKm}
	r.syncSelectionLocked()
	r.mu.Unlock()

	return slices.Clone(next), nil
}

// Refresh repeats the last successful nearby query.
func (r *Reconciler) Refresh(ctx context.Context) ([]model.ParkingLot, error) {
	query, ok := r.Query()
	if !ok {
		return nil, ErrNoQuery
	}
	return r.FetchNearby(ctx, query.Center, query.RadiusKm)
}

// RequestBooking books one spot: optimistic decrement, single commit attempt,
// then revert on failure or authoritative refetch on success.
func (r *Reconciler) RequestBooking(ctx context.Context, lotID int) (BookingResult, error) {
	pending, err := r.BeginBooking(lotID)
	if err != nil {
		return BookingResult{}, err
	}
	return r.CompleteBooking(ctx, pending), nil
}

// BeginBooking applies the optimistic decrement to the list and the selection
// snapshot. It refuses lots that are unknown or already full.
func (r *Reconciler) BeginBooking(lotID int) (Pending, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := indexOf(r.lots, lotID)
	if idx < 0 {
		return Pending{}, fmt.Errorf("%w: %d", ErrUnknownLot, lotID)
	}
	lot := r.lots[idx]
	if lot.Available <= 0 {
		return Pending{}, fmt.Errorf("%w: %s", ErrLotFull, lot.Name)
	}

	r.applyDeltaLocked(idx, -1)
	return Pending{
		LotID:      lotID,
		LotName:    lot.Name,
		Before:     lot.Available,
		generation: r.generation,
	}, nil
}

// CompleteBooking submits the pending booking and settles it. It issues exactly
// one book request and, on success only, one refetch.
func (r *Reconciler) CompleteBooking(ctx context.Context, pending Pending) BookingResult {
	err := r.dir.Book(ctx, pending.LotID)
	outcome := Classify(err)
	result := BookingResult{
		Outcome: outcome,
		LotID:   pending.LotID,
		LotName: pending.LotName,
		Message: bookingMessage(outcome, pending.LotName, err),
	}

	if outcome != OutcomeConfirmed {
		result.Err = err
		log.Printf("[booking] lot %d %s: %v", pending.LotID, outcome, err)
		r.revert(pending)
		return result
	}

	if _, refreshErr := r.Refresh(ctx); refreshErr != nil {
		log.Printf("[booking] refresh after booking lot %d failed: %v", pending.LotID, refreshErr)
		result.RefreshErr = refreshErr
	} else {
		result.Refreshed = true
	}
	return result
}

// SubmitRating sends a rating for the selected lot. Nothing is changed locally
// until the refetch that follows a successful submission.
func (r *Reconciler) SubmitRating(ctx context.Context, lotID int, rating int) (RatingResult, error) {
	if rating < 1 || rating > 5 {
		return RatingResult{}, fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	selected, ok := r.Selected()
	if !ok {
		return RatingResult{}, ErrNoSelection
	}
	if selected.Id != lotID {
		return RatingResult{}, fmt.Errorf("%w: lot %d is not the selected lot", ErrNoSelection, lotID)
	}

	err := r.dir.Rate(ctx, lotID, rating)
	outcome := Classify(err)
	result := RatingResult{
		Outcome: outcome,
		LotID:   lotID,
		LotName: selected.Name,
		Rating:  rating,
		Message: ratingMessage(outcome, selected.Name, rating, err),
	}
	if outcome != OutcomeConfirmed {
		result.Err = err
		log.Printf("[rating] lot %d %s: %v", lotID, outcome, err)
		return result, nil
	}

	if _, refreshErr := r.Refresh(ctx); refreshErr != nil {
		log.Printf("[rating] refresh after rating lot %d failed: %v", lotID, refreshErr)
		result.RefreshErr = refreshErr
	} else {
		result.Refreshed = true
	}
	return result, nil
}

// revert applies the inverse of the optimistic decrement. When a fetch has
// replaced the list since BeginBooking, the list is already the service's view
// and carries no speculative edit, so nothing is undone.
func (r *Reconciler) revert(pending Pending) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.generation != pending.generation {
		log.Printf("[booking] lot %d: list replaced while booking was in flight; nothing to revert", pending.LotID)
		return
	}
	idx := indexOf(r.lots, pending.LotID)
	if idx < 0 {
		return
	}
	r.applyDeltaLocked(idx, +1)
}

// applyDeltaLocked swaps in a new list with lots[idx].Available shifted by
// delta and clamped to [0, capacity]. The caller holds mu.
func (r *Reconciler) applyDeltaLocked(idx int, delta int) {
	next := slices.Clone(r.lots)
	next[idx].Available = clamp(next[idx].Available+delta, 0, next[idx].Capacity)
	r.lots = next

	if r.selected != nil && r.selected.Id == next[idx].Id {
		snapshot := next[idx]
		r.selected = &snapshot
	}
}

// syncSelectionLocked refreshes the selection snapshot from the current list,
// dropping it when the lot is gone. The caller holds mu.
func (r *Reconciler) syncSelectionLocked() {
	if r.selected == nil {
		return
	}
	idx := indexOf(r.lots, r.selected.Id)
	if idx < 0 {
		r.selected = nil
		return
	}
	snapshot := r.lots[idx]
	r.selected = &snapshot
}

func normalize(lots []model.ParkingLot) []model.ParkingLot {
	next := make([]model.ParkingLot, len(lots))
	copy(next, lots)
	for i := range next {
		if next[i].Capacity < 0 {
			next[i].Capacity = 0
		}
		if !next[i].Consistent() {
			log.Printf("[booking] lot %d reported available=%d capacity=%d; clamping", next[i].Id, next[i].Available, next[i].Capacity)
			next[i].Available = clamp(next[i].Available, 0, next[i].Capacity)
		}
	}
	return next
}

func indexOf(lots []model.ParkingLot, id int) int {
	return slices.IndexFunc(lots, func(lot model.ParkingLot) bool { return lot.Id == id })
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
