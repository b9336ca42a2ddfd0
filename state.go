package flowcache

import "fmt"

// StateKind tags the variant held by a DataState.
type StateKind uint8

const (
	KindLoading StateKind = iota + 1
	KindFixed
	KindError
)

// Valid reports whether k names one of the DataState variants.
func (k StateKind) Valid() bool { return k >= KindLoading && k <= KindError }

func (k StateKind) String() string {
	switch k {
	case KindLoading:
		return "Loading"
	case KindFixed:
		return "Fixed"
	case KindError:
		return "Error"
	default:
		return fmt.Sprintf("StateKind(%d)", uint8(k))
	}
}

// AdditionalKind tags the variant held by an AdditionalState.
type AdditionalKind uint8

const (
	AdditionalFixed AdditionalKind = iota + 1
	AdditionalLoading
	AdditionalError
)

func (k AdditionalKind) Valid() bool { return k >= AdditionalFixed && k <= AdditionalError }

func (k AdditionalKind) String() string {
	switch k {
	case AdditionalFixed:
		return "Fixed"
	case AdditionalLoading:
		return "Loading"
	case AdditionalError:
		return "Error"
	default:
		return fmt.Sprintf("AdditionalKind(%d)", uint8(k))
	}
}

// AdditionalState is the sync status of one pagination edge (appending or
// prepending) of a collection whose main value is already Fixed.
type AdditionalState struct {
	kind       AdditionalKind
	noMoreData bool
	err        error
}

// AdditionalFixedState is an idle edge. noMoreData=true marks the edge as
// exhausted; further requests in that direction are no-ops.
func AdditionalFixedState(noMoreData bool) AdditionalState {
	return AdditionalState{kind: AdditionalFixed, noMoreData: noMoreData}
}

func AdditionalLoadingState() AdditionalState {
	return AdditionalState{kind: AdditionalLoading}
}

func AdditionalErrorState(err error) AdditionalState {
	return AdditionalState{kind: AdditionalError, err: err}
}

func (s AdditionalState) Kind() AdditionalKind { return s.kind }

// NoMoreData is meaningful only for AdditionalFixed.
func (s AdditionalState) NoMoreData() bool { return s.kind == AdditionalFixed && s.noMoreData }

// Err is non-nil only for AdditionalError.
func (s AdditionalState) Err() error { return s.err }

// Visit calls exactly one handler, selected by the variant.
func (s AdditionalState) Visit(onFixed func(noMoreData bool), onLoading func(), onError func(error)) {
	switch s.kind {
	case AdditionalFixed:
		onFixed(s.noMoreData)
	case AdditionalLoading:
		onLoading()
	case AdditionalError:
		onError(s.err)
	default:
		panic(fmt.Sprintf("flowcache: invalid %v", s.kind))
	}
}

func (s AdditionalState) String() string {
	switch s.kind {
	case AdditionalFixed:
		return fmt.Sprintf("Fixed(noMoreData=%t)", s.noMoreData)
	case AdditionalError:
		return fmt.Sprintf("Error(%v)", s.err)
	default:
		return s.kind.String()
	}
}

// DataState is the freshness tag of a key's cached value.
//
//	Loading                      a refresh is in progress or about to start
//	Fixed(appending, prepending) the main value is settled
//	Error(cause)                 the last refresh failed
//
// The zero DataState is not a valid state.
type DataState struct {
	kind       StateKind
	appending  AdditionalState
	prepending AdditionalState
	err        error
}

func LoadingState() DataState { return DataState{kind: KindLoading} }

func FixedState(appending, prepending AdditionalState) DataState {
	return DataState{kind: KindFixed, appending: appending, prepending: prepending}
}

func ErrorState(err error) DataState { return DataState{kind: KindError, err: err} }

// initialState is what a record holds before anything was written for it.
func initialState() DataState {
	return FixedState(AdditionalFixedState(false), AdditionalFixedState(false))
}

func (s DataState) Kind() StateKind { return s.kind }

// Err is non-nil only for KindError.
func (s DataState) Err() error { return s.err }

// Appending and Prepending are meaningful only for KindFixed.
func (s DataState) Appending() AdditionalState  { return s.appending }
func (s DataState) Prepending() AdditionalState { return s.prepending }

// Visit calls exactly one handler, selected by the variant.
func (s DataState) Visit(onLoading func(), onFixed func(appending, prepending AdditionalState), onError func(error)) {
	switch s.kind {
	case KindLoading:
		onLoading()
	case KindFixed:
		onFixed(s.appending, s.prepending)
	case KindError:
		onError(s.err)
	default:
		panic(fmt.Sprintf("flowcache: invalid %v", s.kind))
	}
}

func (s DataState) withAppending(a AdditionalState) DataState {
	s.appending = a
	return s
}

func (s DataState) withPrepending(p AdditionalState) DataState {
	s.prepending = p
	return s
}

func (s DataState) String() string {
	switch s.kind {
	case KindFixed:
		return fmt.Sprintf("Fixed(appending=%v, prepending=%v)", s.appending, s.prepending)
	case KindError:
		return fmt.Sprintf("Error(%v)", s.err)
	default:
		return s.kind.String()
	}
}

// Content tells whether there is a value to show, independent of the sync
// status: a value can exist while the state is Loading or Error.
type Content[V any] struct {
	value  V
	exists bool
}

func Exist[V any](v V) Content[V] { return Content[V]{value: v, exists: true} }

func NotExist[V any]() Content[V] { return Content[V]{} }

func (c Content[V]) Get() (V, bool) { return c.value, c.exists }

func (c Content[V]) Exists() bool { return c.exists }

func (c Content[V]) String() string {
	if !c.exists {
		return "NotExist"
	}
	return fmt.Sprintf("Exist(%v)", c.value)
}

// Snapshot is the per-key record published to subscribers.
type Snapshot[V any] struct {
	State   DataState
	Content Content[V]
}

func (s Snapshot[V]) String() string { return s.State.String() + " " + s.Content.String() }
