package fraud

import (
	"sync"
	"time"
)

// DefaultWindowCapacity bounds how many recent transactions are kept per account.
const DefaultWindowCapacity = 10

// WindowEntry records one past transaction for sliding-window rules.
type WindowEntry struct {
	Timestamp time.Time
	GeoLat    *float64
	GeoLng    *float64
	DeviceID  string
}

// HasGeo reports whether the entry carries a usable location.
func (e WindowEntry) HasGeo() bool {
	return e.GeoLat != nil && e.GeoLng != nil
}

// AccountWindow is the bounded recent history of one account, ordered
// oldest to newest with non-decreasing timestamps. Rules only read it;
// the engine appends after all rules for a transaction have run.
type AccountWindow struct {
	AccountID string
	Entries   []WindowEntry
}

// Len returns the number of entries in the window.
func (w *AccountWindow) Len() int {
	if w == nil {
		return 0
	}
	return len(w.Entries)
}

// WindowStore owns one AccountWindow per account. Windows for different
// accounts are independent; callers must serialize use of the same account
// (the streaming runner does this with a sharded mutex, batch mode is
// single-threaded). State is in-memory only; a restart re-derives windows
// by replaying stored transactions in order.
type WindowStore struct {
	capacity int
	windows  sync.Map // account id → *accountState
}

type accountState struct {
	mu     sync.Mutex
	window AccountWindow
}

// NewWindowStore creates a window store with the given per-account capacity.
// A capacity of zero or less falls back to DefaultWindowCapacity.
func NewWindowStore(capacity int) *WindowStore {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	return &WindowStore{capacity: capacity}
}

// Get returns a snapshot of the account's window, creating an empty one if
// the account has never been seen. The snapshot is safe to read while other
// accounts are being mutated.
func (s *WindowStore) Get(accountID string) *AccountWindow {
	st := s.state(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	snap := &AccountWindow{
		AccountID: accountID,
		Entries:   make([]WindowEntry, len(st.window.Entries)),
	}
	copy(snap.Entries, st.window.Entries)
	return snap
}

// Append adds an entry to the account's window, evicting the oldest entry
// once the window exceeds capacity.
func (s *WindowStore) Append(accountID string, entry WindowEntry) {
	st := s.state(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.window.Entries = append(st.window.Entries, entry)
	if n := len(st.window.Entries); n > s.capacity {
		st.window.Entries = st.window.Entries[n-s.capacity:]
	}
}

func (s *WindowStore) state(accountID string) *accountState {
	v, _ := s.windows.LoadOrStore(accountID, &accountState{
		window: AccountWindow{AccountID: accountID},
	})
	return v.(*accountState)
}

// EntryFor derives the window entry the engine appends after evaluating txn.
func EntryFor(txn *Transaction) WindowEntry {
	e := WindowEntry{Timestamp: txn.Timestamp, DeviceID: txn.DeviceID}
	if txn.HasGeo() {
		lat, lng := *txn.GeoLat, *txn.GeoLng
		e.GeoLat, e.GeoLng = &lat, &lng
	}
	return e
}
