// Package idgen generates string IDs.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// Generator can generate IDs
type Generator interface {
	// Generate an ID
	Generate() string
}

// NewSequential returns a generator that counts from 1. The IDs are
// deterministic across runs.
func NewSequential() Generator {
	return &sequentialIDGenerator{}
}

// NewParallel returns a generator of globally unique IDs. The IDs are not
// deterministic across runs.
func NewParallel() Generator {
	return parallelIDGenerator{}
}

type sequentialIDGenerator struct {
	nextID atomic.Uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := g.nextID.Add(1)

	return strconv.FormatUint(idNumber, 10)
}

type parallelIDGenerator struct{}

func (parallelIDGenerator) Generate() string {
	return xid.New().String()
}
