package kiosk

import (
	"bytes"
	"sort"

	"github.com/holiman/uint256"
)

// FieldTag discriminates the logical sub-maps of the kiosk field store.
type FieldTag uint8

const (
	// TagOffer entries map an asset id to its escrowed amount.
	TagOffer FieldTag = iota + 1
	// TagItem entries map an asset id to the deposited asset.
	TagItem
	// TagLock entries mark an asset as exclusively locked.
	TagLock
)

func (t FieldTag) String() string {
	switch t {
	case TagOffer:
		return "offer"
	case TagItem:
		return "item"
	case TagLock:
		return "lock"
	default:
		return "unknown"
	}
}

type fieldKey struct {
	tag FieldTag
	id  [32]byte
}

func offerKey(id [32]byte) fieldKey { return fieldKey{tag: TagOffer, id: id} }
func itemKey(id [32]byte) fieldKey  { return fieldKey{tag: TagItem, id: id} }
func lockKey(id [32]byte) fieldKey  { return fieldKey{tag: TagLock, id: id} }

// fieldStore holds at most one value per key. Values are *uint256.Int for
// offers, *Asset for items and bool for locks.
type fieldStore struct {
	entries map[fieldKey]any
}

func newFieldStore() *fieldStore {
	return &fieldStore{entries: make(map[fieldKey]any)}
}

func (s *fieldStore) contains(key fieldKey) bool {
	_, ok := s.entries[key]
	return ok
}

func (s *fieldStore) add(key fieldKey, value any) error {
	if s.contains(key) {
		return errFieldExists
	}
	s.entries[key] = value
	return nil
}

func (s *fieldStore) remove(key fieldKey) (any, error) {
	value, ok := s.entries[key]
	if !ok {
		return nil, errFieldMissing
	}
	delete(s.entries, key)
	return value, nil
}

func (s *fieldStore) offerAmount(id [32]byte) (*uint256.Int, error) {
	value, ok := s.entries[offerKey(id)]
	if !ok {
		return nil, errFieldMissing
	}
	amount, ok := value.(*uint256.Int)
	if !ok || amount == nil {
		return nil, errFieldType
	}
	return amount, nil
}

func (s *fieldStore) item(id [32]byte) (*Asset, error) {
	value, ok := s.entries[itemKey(id)]
	if !ok {
		return nil, errFieldMissing
	}
	asset, ok := value.(*Asset)
	if !ok || asset == nil {
		return nil, errFieldType
	}
	return asset, nil
}

func (s *fieldStore) locked(id [32]byte) bool {
	value, ok := s.entries[lockKey(id)]
	if !ok {
		return false
	}
	flag, ok := value.(bool)
	return ok && flag
}

func (s *fieldStore) count(tag FieldTag) int {
	n := 0
	for key := range s.entries {
		if key.tag == tag {
			n++
		}
	}
	return n
}

// ids returns the identifiers stored under tag in ascending byte order.
func (s *fieldStore) ids(tag FieldTag) [][32]byte {
	out := make([][32]byte, 0)
	for key := range s.entries {
		if key.tag == tag {
			out = append(out, key.id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func (s *fieldStore) clone() *fieldStore {
	out := newFieldStore()
	for key, value := range s.entries {
		switch v := value.(type) {
		case *uint256.Int:
			out.entries[key] = v.Clone()
		case *Asset:
			out.entries[key] = v.Clone()
		default:
			out.entries[key] = v
		}
	}
	return out
}
