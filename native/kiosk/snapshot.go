package kiosk

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Snapshot is the persisted layout of a kiosk: its scalar fields followed by
// the field store entries, each list sorted by asset id. The layout is RLP
// encodable.
type Snapshot struct {
	ID        [32]byte
	CapID     [32]byte
	Owner     [20]byte
	Profits   *big.Int
	OfferPool *big.Int
	ItemCount uint64
	Closed    bool
	Offers    []SnapshotOffer
	Items     []Asset
	Locks     [][32]byte
}

// SnapshotOffer is a persisted Offer entry.
type SnapshotOffer struct {
	AssetID [32]byte
	Amount  *big.Int
}

// Snapshot captures the kiosk's current state.
func (k *Kiosk) Snapshot() *Snapshot {
	snap := &Snapshot{
		ID:        k.id,
		CapID:     k.capID,
		Owner:     k.owner,
		Profits:   k.profits.value.ToBig(),
		OfferPool: k.offers.value.ToBig(),
		ItemCount: k.itemCount,
		Closed:    k.closed,
		Offers:    make([]SnapshotOffer, 0),
		Items:     make([]Asset, 0),
		Locks:     make([][32]byte, 0),
	}
	for _, offer := range k.Offers() {
		snap.Offers = append(snap.Offers, SnapshotOffer{AssetID: offer.AssetID, Amount: offer.Amount.ToBig()})
	}
	for _, item := range k.Items() {
		snap.Items = append(snap.Items, *item)
	}
	for _, id := range k.store.ids(TagLock) {
		if k.store.locked(id) {
			snap.Locks = append(snap.Locks, id)
		}
	}
	return snap
}

// Restore rebuilds a kiosk from a snapshot and verifies its invariants.
func Restore(snap *Snapshot) (*Kiosk, error) {
	if snap == nil {
		return nil, fmt.Errorf("kiosk: nil snapshot")
	}
	k := &Kiosk{
		id:        snap.ID,
		capID:     snap.CapID,
		owner:     snap.Owner,
		itemCount: snap.ItemCount,
		closed:    snap.Closed,
		store:     newFieldStore(),
	}
	if err := setBalance(&k.profits, snap.Profits); err != nil {
		return nil, fmt.Errorf("kiosk: restore profits: %w", err)
	}
	if err := setBalance(&k.offers, snap.OfferPool); err != nil {
		return nil, fmt.Errorf("kiosk: restore offer pool: %w", err)
	}
	for _, offer := range snap.Offers {
		coin, err := CoinFromBig(offer.Amount)
		if err != nil {
			return nil, fmt.Errorf("kiosk: restore offer %x: %w", offer.AssetID, err)
		}
		if err := k.store.add(offerKey(offer.AssetID), coin.Value()); err != nil {
			return nil, fmt.Errorf("kiosk: restore offer %x: %w", offer.AssetID, err)
		}
	}
	for i := range snap.Items {
		item := snap.Items[i]
		if err := k.store.add(itemKey(item.ID), item.Clone()); err != nil {
			return nil, fmt.Errorf("kiosk: restore item %x: %w", item.ID, err)
		}
	}
	for _, id := range snap.Locks {
		if err := k.lock(id); err != nil {
			return nil, fmt.Errorf("kiosk: restore lock %x: %w", id, err)
		}
	}
	if err := k.VerifyInvariants(); err != nil {
		return nil, err
	}
	return k, nil
}

func setBalance(b *Balance, amount *big.Int) error {
	if amount == nil {
		b.value.Clear()
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrOverflow
	}
	b.value.Set(v)
	return nil
}
