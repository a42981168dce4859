package wire

import (
	"fmt"
	"hash/fnv"
)

// SiteID derives a variable or barrier identifier from a source location.
// It is FNV-1a over the canonical "<file>:<line>" string. The hash is part
// of the cluster ABI: every node must compute it identically, which a pure
// function of (file, line) guarantees.
func SiteID(file string, line int) uint32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%d", file, line)
	return h.Sum32()
}
