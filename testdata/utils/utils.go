package utils

// Ptr returns a pointer to v; test helper for optional fields.
func Ptr[T any](v T) *T {
	return &v
}
