// Package filter selects transaction logs by contract or sender address.
package filter

import (
	"strings"
	"sync"

	"github.com/vietddude/logwatcher/internal/core/domain"
)

// AddressFilter keeps logs whose address, or the address of any of their
// events, is tracked. An empty filter keeps everything.
type AddressFilter struct {
	addresses map[string]struct{}
	mu        sync.RWMutex
}

// NewAddressFilter creates a filter tracking addresses.
func NewAddressFilter(addresses ...string) *AddressFilter {
	f := &AddressFilter{addresses: make(map[string]struct{})}
	f.AddBatch(addresses)
	return f
}

// Contains checks if an address is tracked.
func (f *AddressFilter) Contains(address string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.addresses[strings.ToLower(address)]
	return exists
}

// AddBatch adds multiple addresses. Blank entries are ignored.
func (f *AddressFilter) AddBatch(addresses []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		f.addresses[strings.ToLower(addr)] = struct{}{}
	}
}

// Remove removes an address from the filter.
func (f *AddressFilter) Remove(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.addresses, strings.ToLower(address))
}

// Size returns the number of tracked addresses.
func (f *AddressFilter) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.addresses)
}

// Match reports whether log should be kept.
func (f *AddressFilter) Match(log domain.TransactionLog) bool {
	if f.Size() == 0 {
		return true
	}
	if f.Contains(log.Address) {
		return true
	}
	for _, ev := range log.Events {
		if f.Contains(ev.Address) {
			return true
		}
	}
	return false
}

// Apply returns the matching logs in their original order. The result is
// never nil.
func (f *AddressFilter) Apply(logs []domain.TransactionLog) []domain.TransactionLog {
	if f.Size() == 0 && logs != nil {
		return logs
	}
	kept := make([]domain.TransactionLog, 0, len(logs))
	for _, log := range logs {
		if f.Match(log) {
			kept = append(kept, log)
		}
	}
	return kept
}
