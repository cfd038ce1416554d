// Package idgen issues human readable, time ordered booking and invoice numbers.
package idgen

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const (
	BookingPrefix = "BK"
	InvoicePrefix = "INV"
)

// Generator wraps a snowflake node. Safe for concurrent use.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator creates a generator for the given node id (0-1023)
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// BookingNumber returns a new booking number such as BK3G5R8ZQ1W2C
func (g *Generator) BookingNumber() string {
	return BookingPrefix + strings.ToUpper(g.node.Generate().Base36())
}

// InvoiceNumber returns a new invoice number such as INV-1781234567890123456
func (g *Generator) InvoiceNumber() string {
	return InvoicePrefix + "-" + g.node.Generate().String()
}
