package state

import (
	"fmt"
	"math/big"

	"offerkiosk/core/types"
)

// GetAccount returns the bank account for addr. Unknown addresses yield an
// empty account.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("address must not be empty")
	}
	account := new(types.Account)
	ok, err := m.KVGet(AccountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok || account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

// PutAccount stores the bank account for addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	stored := account.Clone()
	if stored.Balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance for %x", addr)
	}
	return m.KVPut(AccountKey(addr), stored)
}

// AssetGet loads the custody record of an asset.
func (m *Manager) AssetGet(id [32]byte) (*types.AssetRecord, bool, error) {
	record := new(types.AssetRecord)
	ok, err := m.KVGet(AssetKey(id), record)
	if err != nil || !ok {
		return nil, false, err
	}
	return record, true, nil
}

// AssetPut stores the custody record of an asset.
func (m *Manager) AssetPut(record *types.AssetRecord) error {
	if record == nil {
		return fmt.Errorf("state: nil asset record")
	}
	return m.KVPut(AssetKey(record.ID), record)
}
