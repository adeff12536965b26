// Package patch builds field-update requests and applies them to the
// item-tracking service one item at a time.
package patch

import (
	"github.com/agentstation/itemtype/internal/tracker"
)

// OpAdd is the only operation this tool issues.
const OpAdd = "add"

// Request is a single update addressed at one item.
type Request struct {
	Row       int               `json:"row" yaml:"row"`
	TargetID  string            `json:"target_id" yaml:"target_id"`
	Operation tracker.Operation `json:"operation" yaml:"operation"`
}

// Build returns the request that sets /fields/<fieldPath> to sourceID on the
// item destinationID.
func Build(fieldPath, sourceID, destinationID string) Request {
	return Request{
		TargetID: destinationID,
		Operation: tracker.Operation{
			Op:    OpAdd,
			Path:  FieldPath(fieldPath),
			Value: sourceID,
		},
	}
}

// FieldPath returns the JSON pointer of a field.
func FieldPath(field string) string {
	return "/fields/" + field
}
