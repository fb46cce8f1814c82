package resource

import (
	"encoding/json"
	"fmt"

	"github.com/formbridge-labs/formbridge-go/internal/domain"
)

// assignResource records the relationship on the primary submission: the
// mirrored submission is written under settings.Property when configured,
// and a saved child gains exactly one external id record. An existing
// record for the same resource is never duplicated, so updates leave the
// externalIds sequence unchanged.
func assignResource(primary *domain.Submission, child *domain.Submission, childSaved bool, settings Settings) error {
	if child == nil {
		return nil
	}
	if settings.Property != "" {
		tree, err := submissionTree(*child)
		if err != nil {
			return fmt.Errorf("encode mirrored submission: %w", err)
		}
		if primary.Data == nil {
			primary.Data = map[string]any{}
		}
		domain.SetPath(primary.Data, settings.Property, tree)
	}
	if !childSaved {
		return nil
	}
	if _, exists := primary.FindExternalID(domain.ExternalIDTypeResource, settings.Resource); exists {
		return nil
	}
	primary.ExternalIDs = append(primary.ExternalIDs, domain.ExternalID{
		Type:     domain.ExternalIDTypeResource,
		Resource: settings.Resource,
		ID:       child.ID,
	})
	return nil
}

// submissionTree renders a submission as a plain data tree, the shape both
// the transform bindings and the property write expect.
func submissionTree(submission domain.Submission) (map[string]any, error) {
	encoded, err := json.Marshal(submission)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(encoded, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}
