package flowcache

import "fmt"

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func sprintKey[K comparable](k K) string { return fmt.Sprint(k) }
