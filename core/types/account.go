package types

import "math/big"

// Account is the external bank record credited and debited by the kiosk
// engine. Balances are always non-negative.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// Clone returns a deep copy with a non-nil balance.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance.Set(a.Balance)
	}
	return clone
}

// AssetRecord tracks custody of a unique asset outside of any kiosk. When the
// asset is deposited into a kiosk, Kiosk carries the kiosk identifier and
// Holder is zeroed.
type AssetRecord struct {
	ID     [32]byte `json:"id"`
	Kind   string   `json:"kind"`
	Data   []byte   `json:"data"`
	Holder [20]byte `json:"holder"`
	Kiosk  [32]byte `json:"kiosk"`
}

// InKiosk reports whether the asset currently sits inside a kiosk.
func (r *AssetRecord) InKiosk() bool {
	return r != nil && r.Kiosk != ([32]byte{})
}

// Clone returns a deep copy of the record.
func (r *AssetRecord) Clone() *AssetRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Data = append([]byte(nil), r.Data...)
	return &clone
}
