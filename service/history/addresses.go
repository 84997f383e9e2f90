package history

import (
	"time"
)

// AddressCollector accumulates unique addresses in discovery order up to a bound.
// Program IDs and empty strings are never collected.
type AddressCollector struct {
	max      int
	seen     map[string]struct{}
	excluded map[string]struct{}
	order    []string
}

// NewAddressCollector returns a collector bounded by limit. The extra IDs are
// excluded along with the built-in Axiom program IDs.
func NewAddressCollector(limit int, excluded ...string) *AddressCollector {
	c := &AddressCollector{
		max:      limit,
		seen:     make(map[string]struct{}),
		excluded: make(map[string]struct{}),
		order:    make([]string, 0, max(limit, 0)),
	}
	for _, id := range excluded {
		c.excluded[id] = struct{}{}
	}
	return c
}

// Add records addr and reports whether it was new and accepted.
func (c *AddressCollector) Add(addr string) bool {
	if addr == "" || c.Full() {
		return false
	}
	if _, skip := c.excluded[addr]; skip || IsAxiomProgram(addr) {
		return false
	}
	if _, dup := c.seen[addr]; dup {
		return false
	}
	c.seen[addr] = struct{}{}
	c.order = append(c.order, addr)
	return true
}

// Full reports whether the bound has been reached.
func (c *AddressCollector) Full() bool {
	return len(c.order) >= c.max
}

// Len returns the number of collected addresses.
func (c *AddressCollector) Len() int {
	return len(c.order)
}

// Addresses returns a copy of the collected addresses in discovery order.
func (c *AddressCollector) Addresses() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Result builds the AddressSet for programID.
func (c *AddressCollector) Result(programID string, now time.Time) *AddressSet {
	addrs := c.Addresses()
	return &AddressSet{
		ProgramID:       programID,
		UniqueAddresses: addrs,
		TotalFound:      len(addrs),
		Timestamp:       now.Format(TimestampLayout),
		TargetCount:     c.max,
	}
}
