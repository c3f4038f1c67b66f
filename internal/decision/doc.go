// Package decision defines the Decision record stored by magicball.
//
// A Decision is an immutable value: an identifier, the answer text and the
// moment it was created. Identity is carried by the identifier alone. Two
// decisions with the same ID are the same record even when their other
// fields differ, and the ID never changes after creation.
//
// # Identifiers
//
// Production code mints identifiers with UUIDv7Generator, whose output sorts
// by creation time. Tests inject a deterministic generator instead (see
// internal/testutil).
//
// # Answer text
//
// Answer text is NFC-normalized and trimmed at creation so that visually
// identical answers compare equal byte-for-byte in the store. Blank answers
// are rejected with ErrEmptyAnswer.
package decision
