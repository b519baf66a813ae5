package merge

import (
	"strings"

	"github.com/nexcal/nexcal/internal/models"
)

// ApplyDelta applies one pending sub-resource mutation to a social-data set
// at the field level. Application is idempotent: re-applying the same delta
// against the same data (a retried fetch, an optimistic copy that already
// carries it) never double-counts the acting identity.
//
// Tag labels match case-insensitively; the casing of the first insertion is
// preserved.
func ApplyDelta(s *models.SocialData, d models.Delta, actingID string) {
	switch d.Action {
	case models.DeltaAddTag:
		addTag(s, d.Label, actingID)
	case models.DeltaRemoveTag:
		removeTag(s, d.Label, actingID)
	case models.DeltaSetRSVP:
		setRSVP(s, actingID, d.PartStat)
	case models.DeltaLinkEvent:
		linkEvent(s, d.EventID)
	case models.DeltaUnlinkEvent:
		unlinkEvent(s, d.EventID)
	}
}

func findTag(tags []models.Tag, label string) int {
	for i, t := range tags {
		if strings.EqualFold(t.Label, label) {
			return i
		}
	}
	return -1
}

func addTag(s *models.SocialData, label, actingID string) {
	i := findTag(s.Tags, label)
	if i < 0 {
		s.Tags = append(s.Tags, models.Tag{Label: label, Taggers: []string{actingID}})
		return
	}
	for _, who := range s.Tags[i].Taggers {
		if who == actingID {
			return
		}
	}
	s.Tags[i].Taggers = append(s.Tags[i].Taggers, actingID)
}

func removeTag(s *models.SocialData, label, actingID string) {
	i := findTag(s.Tags, label)
	if i < 0 {
		return
	}
	taggers := s.Tags[i].Taggers[:0]
	for _, who := range s.Tags[i].Taggers {
		if who != actingID {
			taggers = append(taggers, who)
		}
	}
	if len(taggers) == 0 {
		s.Tags = append(s.Tags[:i], s.Tags[i+1:]...)
		return
	}
	s.Tags[i].Taggers = taggers
}

func setRSVP(s *models.SocialData, actingID string, status models.PartStat) {
	for i, a := range s.Attendees {
		if a.ID == actingID {
			s.Attendees[i].PartStat = status
			return
		}
	}
	s.Attendees = append(s.Attendees, models.Attendee{ID: actingID, PartStat: status})
}

func linkEvent(s *models.SocialData, eventID string) {
	for _, id := range s.LinkedEvents {
		if id == eventID {
			return
		}
	}
	s.LinkedEvents = append(s.LinkedEvents, eventID)
}

func unlinkEvent(s *models.SocialData, eventID string) {
	for i, id := range s.LinkedEvents {
		if id == eventID {
			s.LinkedEvents = append(s.LinkedEvents[:i], s.LinkedEvents[i+1:]...)
			return
		}
	}
}
