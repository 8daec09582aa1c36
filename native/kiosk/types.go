package kiosk

import (
	"github.com/holiman/uint256"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Asset is a unique, non-fungible object identified by ID. Kiosks hold assets
// that were deposited in fulfillment of an offer.
type Asset struct {
	ID   [32]byte
	Kind string
	Data []byte
}

// Clone returns a deep copy of the asset.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Data = append([]byte(nil), a.Data...)
	return &clone
}

// OfferView describes an open offer.
type OfferView struct {
	AssetID [32]byte
	OfferID [32]byte
	Amount  *uint256.Int
}

// DeriveKioskID computes the identifier of a kiosk created by owner with the
// supplied salt.
func DeriveKioskID(owner [20]byte, salt [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(owner[:], salt[:]))
	return out
}

// OfferID returns the logical identifier of the offer a kiosk holds for an
// asset. It is stable across cancel and re-open.
func OfferID(kioskID, assetID [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(kioskID[:], assetID[:]))
	return out
}
