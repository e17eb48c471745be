// Package node provides the canonical value tree exchanged between typed
// application values and the document engine.
//
// A Node is the engine's leaf representation: everything stored in a map
// entry, list element or text embed that is not itself a shared collection
// is a Node. The codec package converts application values to and from
// Nodes; the crdt package stores them.
//
// Key design constraints:
//   - Node is sealed: only Null, String, Int, Float, Bool, Array and Object implement it
//   - Integral JSON numbers decode to Int, everything else to Float
//   - Object keys are emitted in UTF-16 code unit order (RFC 8785)
//   - Canonical form (NFC strings, no HTML escaping) is used only for fingerprints
package node
