// Package cryptoutils provides the caller authentication primitives of the
// certificate manager.
//
// Callers are identified by secp256k1 keys. A signed HTTP request carries the
// caller address, a unix timestamp in milliseconds and a recoverable signature over
//
//	keccak256(method "\n" path "\n" timestamp "\n" body)
//
// The server recovers the public key from the signature and accepts the
// request only if it hashes to the claimed address.
//
// Private keys can be kept on disk in a KeyFile, sealed with AES-256-GCM under
// a key derived from a passphrase with Argon2id.
package cryptoutils
