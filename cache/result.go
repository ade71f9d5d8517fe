package cache

// Status tells why a cache operation answered the way it did. The neutral
// convenience methods collapse these; the Lookup/Put/Remove variants expose
// them so callers and tests can distinguish a miss from a dead store.
type Status int

const (
	// StatusHit means a live entry was found and decoded.
	StatusHit Status = iota

	// StatusMiss means the key was absent or expired.
	StatusMiss

	// StatusStored means a write was accepted by the backing store.
	StatusStored

	// StatusRemoved means a delete reached the backing store.
	StatusRemoved

	// StatusDecodeError means an entry existed but could not be decoded.
	StatusDecodeError

	// StatusUnavailable means the backing store could not be reached.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusMiss:
		return "miss"
	case StatusStored:
		return "stored"
	case StatusRemoved:
		return "removed"
	case StatusDecodeError:
		return "decode_error"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Result is the outcome of a lookup. Bytes is nil unless Status is StatusHit.
type Result struct {
	Bytes  []byte
	Status Status
	Err    error
}

// Hit reports whether the lookup found a usable entry.
func (r Result) Hit() bool {
	return r.Status == StatusHit
}

// OpResult is the outcome of a mutation.
type OpResult struct {
	OK     bool
	Status Status
	Err    error
}
