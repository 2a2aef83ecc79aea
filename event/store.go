package event

// ListOpts filters and pages event listings for a stream. Events are
// returned oldest first.
type ListOpts struct {
	Type   Type
	Limit  int
	Offset int
}
