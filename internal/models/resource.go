// Package models defines the resource types the reconciliation engine moves
// around: versioned Event/Calendar envelopes, their social sub-collections,
// and the delta descriptors recorded for small mutations.
package models

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a resource.
type Kind string

const (
	KindEvent    Kind = "event"
	KindCalendar Kind = "calendar"
)

// Key identifies a resource by its acting author and id. It doubles as the
// map key of the store and the ledger.
type Key struct {
	Kind   Kind   `json:"kind"`
	Author string `json:"author"`
	ID     string `json:"id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Author, k.Kind, k.ID)
}

// Path returns the external-storage path of the resource record itself.
// Sub-resource records (tags, RSVPs) live below it.
func (k Key) Path() string {
	return fmt.Sprintf("%s/%s/%s", k.Author, k.Kind, k.ID)
}

// VersionInfo orders two representations of the same resource.
//
// Sequence is a per-resource edit counter incremented by the author on every
// local edit; it is the primary signal because wall clocks are not
// trustworthy across clients. LastModified is in microseconds, IndexedAt in
// milliseconds; both are tie-breakers only. A field that was never set is
// zero and is dominated by any explicitly versioned resource.
type VersionInfo struct {
	Sequence     uint64 `json:"sequence"`
	LastModified uint64 `json:"lastModified"`
	IndexedAt    uint64 `json:"indexedAt"`
}

// Tag is one label on an event together with everyone who applied it. The
// taggers set is aggregated by the indexer; the local client only ever adds
// or removes its own acting identity.
type Tag struct {
	Label   string   `json:"label"`
	Taggers []string `json:"taggers"`
}

// PartStat is an attendee's participation status, per RFC 5545 PARTSTAT.
type PartStat string

const (
	PartStatNeedsAction PartStat = "NEEDS-ACTION"
	PartStatAccepted    PartStat = "ACCEPTED"
	PartStatDeclined    PartStat = "DECLINED"
	PartStatTentative   PartStat = "TENTATIVE"
)

// Attendee is one RSVP on an event.
type Attendee struct {
	ID       string   `json:"id"`
	PartStat PartStat `json:"partstat"`
}

// SocialData holds the sub-collections that aggregate actions of other
// users. Once a resource is synced these are indexer-authoritative: a merge
// never takes them from the local side wholesale, only re-applies the acting
// user's own pending deltas on top.
type SocialData struct {
	Tags         []Tag      `json:"tags,omitempty"`
	Attendees    []Attendee `json:"attendees,omitempty"`
	LinkedEvents []string   `json:"linkedEvents,omitempty"`
}

// Clone returns a deep copy.
func (s SocialData) Clone() SocialData {
	out := SocialData{}
	if s.Tags != nil {
		out.Tags = make([]Tag, len(s.Tags))
		for i, tag := range s.Tags {
			out.Tags[i] = Tag{Label: tag.Label, Taggers: append([]string(nil), tag.Taggers...)}
		}
	}
	if s.Attendees != nil {
		out.Attendees = append([]Attendee(nil), s.Attendees...)
	}
	if s.LinkedEvents != nil {
		out.LinkedEvents = append([]string(nil), s.LinkedEvents...)
	}
	return out
}

// Resource is a versioned Event or Calendar envelope. Details is opaque to
// the engine beyond the version fields; recurrence rules, timezones and the
// like are someone else's problem.
type Resource struct {
	Key     Key             `json:"key"`
	Version VersionInfo     `json:"version"`
	Details json.RawMessage `json:"details,omitempty"`
	Social  SocialData      `json:"social"`
}

// Clone returns a deep copy. nil in, nil out.
func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	out := &Resource{Key: r.Key, Version: r.Version, Social: r.Social.Clone()}
	if r.Details != nil {
		out.Details = append(json.RawMessage(nil), r.Details...)
	}
	return out
}

// EventDetails is the typed payload of an event resource. Times are in
// microseconds since epoch, matching LastModified.
type EventDetails struct {
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Start       uint64 `json:"start"`
	End         uint64 `json:"end,omitempty"`
	RRule       string `json:"rrule,omitempty"`
}

// CalendarDetails is the typed payload of a calendar resource.
type CalendarDetails struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// WrapDetails marshals a typed details payload into the opaque form carried
// by Resource.
func WrapDetails(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal details: %w", err)
	}
	return b, nil
}

// UnwrapDetails decodes the opaque details payload into v.
func (r *Resource) UnwrapDetails(v any) error {
	if len(r.Details) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Details, v); err != nil {
		return fmt.Errorf("failed to unmarshal details: %w", err)
	}
	return nil
}
