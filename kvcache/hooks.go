package kvcache

// Hooks report storage-level events. Like flowcache.Hooks they must be cheap
// and non-blocking.
type Hooks interface {
	// An entry was deleted on read. reason ∈ {"corrupt", "gen_mismatch", "decode"}
	SelfHeal(storageKey, reason string)
	// The provider refused a write under pressure.
	SetRejected(storageKey string)
	GenBumpError(storageKey string, err error)
	// Clear could neither bump the generation nor delete the entry.
	InvalidateOutage(storageKey string, bumpErr, delErr error)
}

type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) SetRejected(string)                    {}
func (NopHooks) GenBumpError(string, error)            {}
func (NopHooks) InvalidateOutage(string, error, error) {}
