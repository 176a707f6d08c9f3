package util

// FindFirst returns the first element of slice that satisfies predicate.
// The boolean is false, and the element the zero value, when none does.
func FindFirst[T any](slice []T, predicate func(T) bool) (T, bool) {
	for _, v := range slice {
		if predicate(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Chunk splits slice into consecutive pieces of at most size elements.
// It panics if size is less than 1.
func Chunk[T any](slice []T, size int) [][]T {
	if size < 1 {
		panic("util.Chunk: size must be at least 1")
	}
	var chunks [][]T
	for len(slice) > size {
		chunks = append(chunks, slice[:size:size])
		slice = slice[size:]
	}
	if len(slice) > 0 {
		chunks = append(chunks, slice)
	}
	return chunks
}
