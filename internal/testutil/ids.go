package testutil

import "fmt"

// GUID returns the n-th fixed document GUID. GUIDs are valid version 4
// UUIDs so they round-trip through anything that parses them:
//
//	GUID(1) == "00000000-0000-4000-8000-000000000001"
func GUID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

// ClientID returns the n-th fixed replica id. Ids start at 1 because zero
// asks the engine for a random one.
func ClientID(n int) uint64 {
	return uint64(n) + 1
}

// IDGenerator hands out GUID and client id pairs in sequence. Two
// generators created the same way yield identical sequences, which keeps
// scenario traces byte-identical across runs.
type IDGenerator struct {
	clock *DeterministicClock
}

// NewIDGenerator creates a generator whose first pair is (GUID(1), ClientID(1)).
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{clock: NewDeterministicClock()}
}

// Next returns the next GUID and client id.
func (g *IDGenerator) Next() (string, uint64) {
	n := int(g.clock.Next())
	return GUID(n), ClientID(n)
}
