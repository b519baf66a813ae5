package models

import (
	"fmt"
	"strings"
)

// DeltaAction names a small mutation recorded against one dimension of a
// resource.
type DeltaAction string

const (
	DeltaAddTag      DeltaAction = "add_tag"
	DeltaRemoveTag   DeltaAction = "remove_tag"
	DeltaSetRSVP     DeltaAction = "set_rsvp"
	DeltaLinkEvent   DeltaAction = "link_event"
	DeltaUnlinkEvent DeltaAction = "unlink_event"
)

// Delta describes one sub-resource mutation: which action, and the label,
// participation status or linked-event id it applies to. A Delta is the
// small-payload alternative to a full resource snapshot in a pending write.
type Delta struct {
	Action   DeltaAction `json:"action"`
	Label    string      `json:"label,omitempty"`
	PartStat PartStat    `json:"partstat,omitempty"`
	EventID  string      `json:"eventId,omitempty"`
}

// DimensionDetails is the dimension of a full-resource write.
const DimensionDetails = "details"

// Dimension returns the pending-write dimension this delta occupies. Two
// writes to the same dimension overwrite each other; writes to different
// dimensions are independent. Tag dimensions fold case so "Jazz" and "jazz"
// are the same pending slot.
func (d Delta) Dimension() string {
	switch d.Action {
	case DeltaAddTag, DeltaRemoveTag:
		return "tag:" + strings.ToLower(d.Label)
	case DeltaSetRSVP:
		return "rsvp"
	case DeltaLinkEvent, DeltaUnlinkEvent:
		return "link:" + d.EventID
	default:
		return string(d.Action)
	}
}

// Path returns the external-storage path of the sub-resource record this
// delta writes, below the resource's own path.
func (d Delta) Path(key Key, actingID string) string {
	switch d.Action {
	case DeltaAddTag, DeltaRemoveTag:
		return fmt.Sprintf("%s/tags/%s/%s", key.Path(), strings.ToLower(d.Label), actingID)
	case DeltaSetRSVP:
		return fmt.Sprintf("%s/rsvp/%s", key.Path(), actingID)
	case DeltaLinkEvent, DeltaUnlinkEvent:
		return fmt.Sprintf("%s/links/%s", key.Path(), d.EventID)
	default:
		return key.Path()
	}
}

// Removal reports whether this delta is expressed as a delete of its
// sub-resource record rather than a put.
func (d Delta) Removal() bool {
	return d.Action == DeltaRemoveTag || d.Action == DeltaUnlinkEvent
}
