package kiosk

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var ownerCapDomain = []byte("owner-cap")

// OwnerCap authorizes owner-gated operations on exactly one kiosk. Values can
// only be produced by New or by the engine when it reloads a stored
// capability, so holding one is the credential.
//
// The id is a bearer secret. It mixes a random nonce into the kiosk id, so it
// cannot be computed from public data, and it is never published in events.
type OwnerCap struct {
	id       [32]byte
	kioskID  [32]byte
	consumed bool
}

// ID returns the capability identifier.
func (c *OwnerCap) ID() [32]byte { return c.id }

// KioskID returns the identifier of the kiosk this capability is bound to.
func (c *OwnerCap) KioskID() [32]byte { return c.kioskID }

// Consumed reports whether the capability was burned by Close.
func (c *OwnerCap) Consumed() bool { return c != nil && c.consumed }

func newOwnerCap(kioskID [32]byte) *OwnerCap {
	nonce := uuid.New()
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(kioskID[:], ownerCapDomain, nonce[:]))
	return &OwnerCap{id: id, kioskID: kioskID}
}

// restoreOwnerCap rebuilds the capability of k from a persisted binding. The
// id must match the one recorded in the kiosk itself, so a stored binding
// cannot rebind a capability to another kiosk.
func restoreOwnerCap(capID [32]byte, k *Kiosk) (*OwnerCap, error) {
	if k == nil || capID == ([32]byte{}) || k.capID != capID {
		return nil, ErrUnauthorized
	}
	return &OwnerCap{id: capID, kioskID: k.id}, nil
}
