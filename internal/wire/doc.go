// Package wire defines the on-the-wire message format shared by every node
// in a PBSM cluster: the fixed 16-byte header, the nine message kinds that
// can appear in it, and the deterministic hash used to derive variable and
// barrier site identifiers from source locations.
//
// The header layout is fixed and part of the cluster's ABI:
//
//	offset 0, 4 bytes: kind (uint32)
//	offset 4, 4 bytes: id   (uint32) - variable id or barrier site id
//	offset 8, 8 bytes: aux  (uint64) - node id or payload size, per kind
//
// All integers are little-endian with no padding between fields. Every node
// in a cluster must use the same encoding, so this package has no
// configuration surface: Encode and Decode are pure functions of their
// arguments.
package wire
