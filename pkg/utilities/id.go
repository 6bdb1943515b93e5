package utilities

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake IDs from a single node so the sequence
// counter is shared by every caller in the process.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for the given node ID (0-1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// NewID returns the next snowflake ID as a decimal string.
func (g *IDGenerator) NewID() string {
	return g.node.Generate().String()
}
