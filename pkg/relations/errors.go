package relations

import "fmt"

// FetchError wraps a fetcher failure with the operation and cache id.
type FetchError struct {
	Op  string
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Operation names used in FetchError and log events.
const (
	OpRelationClasses = "relation_classes"
	OpRelationObjects = "relation_objects"
	OpSupportFeatures = "support_features"
)
