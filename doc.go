// Package binderfs is the encryption core of a personal medical binder: a tree
// of encrypted JSON documents and binary attachments kept in a versioned
// working tree on top of the AbsFs filesystem abstraction.
//
// # Formats
//
// Documents (*.json) and folder metadata (.meta.json) are NIP-44 v2 payloads
// encrypted to self: the conversation key is derived from the owner's own
// secp256k1 key pair, and every payload carries its own random nonce.
//
// Attachments (*.enc) use a DEK container: the binary is sealed with
// ChaCha20-Poly1305 under a random per-file data encryption key, and only that
// key is NIP-44 encrypted. Re-keying an attachment for another recipient
// therefore rewrites a fixed-size header and copies the bulk ciphertext as is.
// Attachments written before the DEK container existed (version byte 0xFF)
// remain readable and are converted when rewrapped.
//
// # Basic Usage
//
//	keys, err := binderfs.NewStaticKeySource(privHex)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	base, err := binderfs.NewDirFS("/path/to/binder")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	session, err := binderfs.Login(base, keys, binderfs.Config{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer session.Logout()
//
//	items, err := session.ReadDirectory("/conditions")
//
// # Caching
//
// A Session caches decrypted directory listings and file contents for its
// lifetime. Every mutating Session method evicts what it changed once the
// filesystem has accepted the write; Logout drops the whole cache together
// with the key. Writes made outside the process can be picked up with
// Session.Watch.
//
// # Errors
//
// Failures carry typed errors (ValidationError, EncryptionError, IOError,
// CorruptionError) wrapping sentinels such as ErrAuthFailed and ErrNotFound,
// for use with errors.Is and errors.As.
package binderfs
