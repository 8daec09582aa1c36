package state

var (
	kioskPrefix      = []byte("kiosk/record/")
	capabilityPrefix = []byte("kiosk/cap/")
	accountPrefix    = []byte("bank/account/")
	assetPrefix      = []byte("asset/record/")
	seedAppliedKey   = []byte("meta/seed-applied")
)

func prefixed(prefix []byte, id []byte) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id)
	return buf
}

// KioskKey returns the unhashed state key of a kiosk record.
func KioskKey(id [32]byte) []byte { return prefixed(kioskPrefix, id[:]) }

// CapabilityKey returns the unhashed state key of a capability binding.
func CapabilityKey(capID [32]byte) []byte { return prefixed(capabilityPrefix, capID[:]) }

// AccountKey returns the unhashed state key of a bank account.
func AccountKey(addr []byte) []byte { return prefixed(accountPrefix, addr) }

// AssetKey returns the unhashed state key of an asset custody record.
func AssetKey(id [32]byte) []byte { return prefixed(assetPrefix, id[:]) }
