// Package event defines the immutable signed event model and its canonical
// byte encoding.
//
// This package is the foundational layer: every other internal package
// imports event; event imports nothing internal. The canonical encoding is
// the ONLY serialization used for hashing and signing — two implementations
// that disagree on a single byte will disagree on every hash and signature.
//
// Key constraints:
//   - No float values anywhere; timestamps and counters are int64.
//   - Optional fields canonicalize as explicit null, never by omission, so
//     adding or dropping an optional field always changes the hash.
//   - Object keys sort by plain byte-wise string comparison at every level.
package event
