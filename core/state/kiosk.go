package state

import (
	"fmt"

	"offerkiosk/native/kiosk"
)

// KioskPut persists a kiosk snapshot.
func (m *Manager) KioskPut(snap *kiosk.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("state: nil kiosk snapshot")
	}
	return m.KVPut(KioskKey(snap.ID), snap)
}

// KioskGet loads the kiosk snapshot stored under id.
func (m *Manager) KioskGet(id [32]byte) (*kiosk.Snapshot, bool, error) {
	snap := new(kiosk.Snapshot)
	ok, err := m.KVGet(KioskKey(id), snap)
	if err != nil || !ok {
		return nil, false, err
	}
	return snap, true, nil
}

// KioskDelete removes the kiosk stored under id.
func (m *Manager) KioskDelete(id [32]byte) error {
	return m.KVDelete(KioskKey(id))
}

// CapabilityPut binds a capability id to its kiosk.
func (m *Manager) CapabilityPut(capID, kioskID [32]byte) error {
	return m.KVPut(CapabilityKey(capID), kioskID)
}

// CapabilityGet returns the kiosk a capability id is bound to.
func (m *Manager) CapabilityGet(capID [32]byte) ([32]byte, bool, error) {
	var kioskID [32]byte
	ok, err := m.KVGet(CapabilityKey(capID), &kioskID)
	if err != nil || !ok {
		return [32]byte{}, false, err
	}
	return kioskID, true, nil
}

// CapabilityDelete removes a capability binding.
func (m *Manager) CapabilityDelete(capID [32]byte) error {
	return m.KVDelete(CapabilityKey(capID))
}
