// Package signer signs repository metadata with a GPG key. Consumers verify
// repomd.xml against the detached repomd.xml.asc signature.
package signer

// Signer interface for signing repository metadata
type Signer interface {
	// SignDetached creates an armored detached signature (repomd.xml.asc)
	SignDetached(data []byte) ([]byte, error)

	// GetPublicKey returns the armored public key
	GetPublicKey() ([]byte, error)
}
