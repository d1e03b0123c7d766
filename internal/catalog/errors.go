package catalog

// ValidationError marks a request rejected before any write. The message
// is safe to return to the client verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError marks a lookup that matched nothing.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}
