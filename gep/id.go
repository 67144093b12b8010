package gep

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator issues message ids that never repeat within its lifetime.
//
// The sequence number guarantees uniqueness inside a session; the random
// component keeps ids from different sessions of the same node apart.
type IDGenerator struct {
	seq atomic.Uint64
}

func NewIDGenerator() *IDGenerator { return &IDGenerator{} }

// Next returns a fresh id of the form msg_<seq>_<random>.
func (g *IDGenerator) Next() string {
	n := g.seq.Add(1)
	r := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "msg_" + strconv.FormatUint(n, 10) + "_" + r[:12]
}
