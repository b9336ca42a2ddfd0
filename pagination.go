package flowcache

// edgeOf returns the sub-state a paging request of kind operates on.
func edgeOf(s DataState, kind RequestKind) AdditionalState {
	if kind == RequestPrepend {
		return s.Prepending()
	}
	return s.Appending()
}

// withEdge replaces the sub-state a paging request of kind operates on.
func withEdge(s DataState, kind RequestKind, edge AdditionalState) DataState {
	if kind == RequestPrepend {
		return s.withPrepending(edge)
	}
	return s.withAppending(edge)
}

// pageAllowed decides whether a paging request may fetch from edge.
//
//	Fixed(noMoreData=false)  fetch
//	Fixed(noMoreData=true)   no-op, the edge is exhausted
//	Loading                  no-op, a page is already on its way
//	Error                    fetch only with continueWhenError
func pageAllowed(edge AdditionalState, continueWhenError bool) bool {
	var ok bool
	edge.Visit(
		func(noMoreData bool) { ok = !noMoreData },
		func() { ok = false },
		func(error) { ok = continueWhenError },
	)
	return ok
}

// AppendPage returns cached followed by page. It is the usual merge for
// SaveAppending over slice values.
func AppendPage[E any](cached Content[[]E], page []E) []E {
	prev, _ := cached.Get()
	out := make([]E, 0, len(prev)+len(page))
	out = append(out, prev...)
	return append(out, page...)
}

// PrependPage returns page followed by cached.
func PrependPage[E any](cached Content[[]E], page []E) []E {
	prev, _ := cached.Get()
	out := make([]E, 0, len(prev)+len(page))
	out = append(out, page...)
	return append(out, prev...)
}
