package domain

import (
	"errors"
	"strings"
	"time"
)

// ExternalIDTypeResource marks an external id that points at a submission
// held by another resource.
const ExternalIDTypeResource = "resource"

// ExternalID links a submission to a submission owned by another form or
// resource. At most one record per (type, resource) pair is meaningful; the
// first match wins.
type ExternalID struct {
	Type     string `json:"type"`
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

// Submission is a single saved form document. Data is an arbitrarily nested
// tree of maps, slices and scalars.
type Submission struct {
	ID          string         `json:"_id,omitempty"`
	FormID      string         `json:"form,omitempty"`
	Data        map[string]any `json:"data"`
	Roles       []string       `json:"roles,omitempty"`
	ExternalIDs []ExternalID   `json:"externalIds,omitempty"`
	Owner       string         `json:"owner,omitempty"`
	Created     time.Time      `json:"created,omitempty"`
	Modified    time.Time      `json:"modified,omitempty"`
}

func (s Submission) Validate() error {
	if strings.TrimSpace(s.FormID) == "" {
		return errors.New("form id is required")
	}
	if s.Data == nil {
		return errors.New("data is required")
	}
	return nil
}

// FindExternalID returns the first external id with the given type and
// resource.
func (s Submission) FindExternalID(typ, resource string) (ExternalID, bool) {
	for _, ext := range s.ExternalIDs {
		if ext.Type == typ && ext.Resource == resource {
			return ext, true
		}
	}
	return ExternalID{}, false
}

// Clone deep-copies the submission so callers can mutate the result without
// aliasing the receiver's data tree.
func (s Submission) Clone() Submission {
	out := s
	out.Data = CopyTree(s.Data)
	if s.Roles != nil {
		out.Roles = append([]string(nil), s.Roles...)
	}
	if s.ExternalIDs != nil {
		out.ExternalIDs = append([]ExternalID(nil), s.ExternalIDs...)
	}
	return out
}
