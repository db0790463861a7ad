package idgen

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/segmentio/ksuid"
)

// Generator hands out user ids, invite codes and request ids.
type Generator struct {
	node *snowflake.Node

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New returns a Generator bound to the given snowflake node (0-1023).
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &Generator{
		node:    node,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// UserID returns a time-ordered 63-bit identifier.
func (g *Generator) UserID() int64 {
	return g.node.Generate().Int64()
}

// InviteCode returns a 26 character Crockford base32 ULID. Uniqueness is
// enforced by the users.invite_code index, not here.
func (g *Generator) InviteCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// RequestID is used as the Fiber requestid generator.
func RequestID() string {
	return ksuid.New().String()
}
