package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nexcal/nexcal/internal/common"
	"github.com/nexcal/nexcal/internal/merge"
	"github.com/nexcal/nexcal/internal/models"
	"github.com/nexcal/nexcal/internal/store"
)

// Every mutation follows the same shape: optimistic store update, external
// write, and on success a pending-write record plus a scheduled sync check.
// On external-write failure the store is rolled back to its pre-mutation
// snapshot and the error is surfaced as common.ErrStorageWrite, so readers
// never see a half-applied state.

// CreateEvent creates a new event owned by the acting user.
func (r *Reconciler) CreateEvent(ctx context.Context, details models.EventDetails) (models.Key, error) {
	return r.create(ctx, models.KindEvent, details)
}

// CreateCalendar creates a new calendar owned by the acting user.
func (r *Reconciler) CreateCalendar(ctx context.Context, details models.CalendarDetails) (models.Key, error) {
	return r.create(ctx, models.KindCalendar, details)
}

func (r *Reconciler) create(ctx context.Context, kind models.Kind, details any) (models.Key, error) {
	wrapped, err := models.WrapDetails(details)
	if err != nil {
		return models.Key{}, err
	}

	key := models.Key{Kind: kind, Author: r.who.UserID(), ID: uuid.NewString()}
	res := &models.Resource{
		Key: key,
		Version: models.VersionInfo{
			Sequence:     1,
			LastModified: uint64(r.clock.Now().UnixMicro()),
		},
		Details: wrapped,
	}

	if err := r.store.Upsert(res, store.SourceLocal); err != nil {
		return models.Key{}, err
	}
	if err := r.putResource(ctx, res); err != nil {
		r.store.Remove(key)
		return models.Key{}, err
	}

	r.ledger.RecordFull(res)
	r.sched.Schedule(key)
	return key, nil
}

// UpdateEvent replaces an event's details, bumping its sequence.
func (r *Reconciler) UpdateEvent(ctx context.Context, key models.Key, details models.EventDetails) error {
	return r.updateDetails(ctx, key, details)
}

// UpdateCalendar replaces a calendar's details, bumping its sequence.
func (r *Reconciler) UpdateCalendar(ctx context.Context, key models.Key, details models.CalendarDetails) error {
	return r.updateDetails(ctx, key, details)
}

func (r *Reconciler) updateDetails(ctx context.Context, key models.Key, details any) error {
	wrapped, err := models.WrapDetails(details)
	if err != nil {
		return err
	}

	prev, ok := r.store.Get(key)
	if !ok {
		return common.ErrNotFound
	}

	next := prev.Resource.Clone()
	next.Details = wrapped
	next.Version.Sequence++
	next.Version.LastModified = uint64(r.clock.Now().UnixMicro())

	if err := r.store.Upsert(next, store.SourceLocal); err != nil {
		return err
	}
	if err := r.putResource(ctx, next); err != nil {
		r.store.Restore(key, prev)
		return err
	}

	r.ledger.RecordFull(next)
	r.sched.Schedule(key)
	return nil
}

// AddTag tags an event with label on behalf of the acting user.
func (r *Reconciler) AddTag(ctx context.Context, key models.Key, label string) error {
	return r.applyDelta(ctx, key, models.Delta{Action: models.DeltaAddTag, Label: label})
}

// RemoveTag removes the acting user's tag with label.
func (r *Reconciler) RemoveTag(ctx context.Context, key models.Key, label string) error {
	return r.applyDelta(ctx, key, models.Delta{Action: models.DeltaRemoveTag, Label: label})
}

// SetRSVP records the acting user's participation status on an event.
func (r *Reconciler) SetRSVP(ctx context.Context, key models.Key, status models.PartStat) error {
	return r.applyDelta(ctx, key, models.Delta{Action: models.DeltaSetRSVP, PartStat: status})
}

// LinkEvent links an event into a calendar.
func (r *Reconciler) LinkEvent(ctx context.Context, calendar models.Key, eventID string) error {
	return r.applyDelta(ctx, calendar, models.Delta{Action: models.DeltaLinkEvent, EventID: eventID})
}

// UnlinkEvent removes an event link from a calendar.
func (r *Reconciler) UnlinkEvent(ctx context.Context, calendar models.Key, eventID string) error {
	return r.applyDelta(ctx, calendar, models.Delta{Action: models.DeltaUnlinkEvent, EventID: eventID})
}

func (r *Reconciler) applyDelta(ctx context.Context, key models.Key, delta models.Delta) error {
	prev, ok := r.store.Get(key)
	if !ok {
		return common.ErrNotFound
	}
	actingID := r.who.UserID()

	next := prev.Resource.Clone()
	merge.ApplyDelta(&next.Social, delta, actingID)
	next.Version.Sequence++
	next.Version.LastModified = uint64(r.clock.Now().UnixMicro())

	if err := r.store.Upsert(next, store.SourceLocal); err != nil {
		return err
	}

	path := delta.Path(key, actingID)
	var err error
	if delta.Removal() {
		err = r.writer.Delete(ctx, path)
	} else {
		err = r.putDelta(ctx, path, delta, actingID)
	}
	if err != nil {
		r.store.Restore(key, prev)
		return fmt.Errorf("%w: %v", common.ErrStorageWrite, err)
	}

	r.ledger.RecordDelta(key, delta, next.Version.Sequence)
	r.sched.Schedule(key)
	return nil
}

// Delete removes a resource locally and from external storage. Deleting a
// resource never known locally still clears the remote record; deletes are
// idempotent end to end.
func (r *Reconciler) Delete(ctx context.Context, key models.Key) error {
	prev, hadLocal := r.store.Get(key)
	if hadLocal {
		r.store.Remove(key)
	}

	if err := r.writer.Delete(ctx, key.Path()); err != nil {
		if hadLocal {
			r.store.Restore(key, prev)
		}
		return fmt.Errorf("%w: %v", common.ErrStorageWrite, err)
	}

	r.ledger.ClearResource(key)
	r.sched.Cancel(key)
	return nil
}

func (r *Reconciler) putResource(ctx context.Context, res *models.Resource) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := r.writer.Put(ctx, res.Key.Path(), payload); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorageWrite, err)
	}
	return nil
}

// deltaRecord is the sub-resource document written for a delta mutation.
type deltaRecord struct {
	Action   models.DeltaAction `json:"action"`
	Label    string             `json:"label,omitempty"`
	PartStat models.PartStat    `json:"partstat,omitempty"`
	EventID  string             `json:"eventId,omitempty"`
	By       string             `json:"by"`
	At       uint64             `json:"at"`
}

func (r *Reconciler) putDelta(ctx context.Context, path string, delta models.Delta, actingID string) error {
	payload, err := json.Marshal(deltaRecord{
		Action:   delta.Action,
		Label:    delta.Label,
		PartStat: delta.PartStat,
		EventID:  delta.EventID,
		By:       actingID,
		At:       uint64(r.clock.Now().UnixMicro()),
	})
	if err != nil {
		return err
	}
	return r.writer.Put(ctx, path, payload)
}
