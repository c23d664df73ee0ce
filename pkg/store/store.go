// Package store provides durable storage for user identities and face
// signatures. Records are per-user JSON files, encrypted at rest with
// NaCl secretbox when enabled. A raw signature never leaves this
// package except to the matcher.
package store

import "errors"

// ErrIdentityNotFound is returned when no record exists for an email.
var ErrIdentityNotFound = errors.New("identity not found")

// ErrIdentityExists is returned when creating an identity that already
// has a record.
var ErrIdentityExists = errors.New("identity already exists")

// ErrNoSignature is returned when an identity has no enrolled signature.
var ErrNoSignature = errors.New("no signature enrolled")

// ErrEncryption is returned when encryption or decryption fails.
var ErrEncryption = errors.New("encryption error")
