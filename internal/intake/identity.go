package intake

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IdentityGenerator hands out correlation tokens for records. Tokens must
// never repeat for the lifetime of the generator.
type IdentityGenerator interface {
	NewID() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// CounterGenerator produces prefix-1, prefix-2, ... and is safe for
// concurrent use.
type CounterGenerator struct {
	prefix string
	n      atomic.Uint64
}

func NewCounterGenerator(prefix string) *CounterGenerator {
	return &CounterGenerator{prefix: prefix}
}

func (g *CounterGenerator) NewID() string {
	return g.prefix + strconv.FormatUint(g.n.Add(1), 10)
}

// EnsureIdentities returns a list where every record has a distinct ID.
// The first occurrence of an ID keeps it; empty or repeated IDs are replaced
// on a copy of the record. The input list is not modified.
func EnsureIdentities(list []*ImageRecord, ids IdentityGenerator) []*ImageRecord {
	out := make([]*ImageRecord, len(list))
	copy(out, list)

	seen := make(map[string]bool, len(out))
	var missing []int
	for i, r := range out {
		if r.ID == "" || seen[r.ID] {
			missing = append(missing, i)
			continue
		}
		seen[r.ID] = true
	}
	for _, i := range missing {
		id := ids.NewID()
		for seen[id] {
			id = ids.NewID()
		}
		seen[id] = true
		out[i] = out[i].withID(id)
	}
	return out
}
