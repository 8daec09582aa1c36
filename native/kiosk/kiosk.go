package kiosk

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// Kiosk escrows payments against assets its owner does not yet hold. The
// owner opens offers by depositing coins into the offer pool; anyone holding
// a targeted asset can accept the offer by depositing the asset, which pays
// the escrowed amount out of the offer pool. Owner-gated operations require
// the OwnerCap returned by New.
//
// A Kiosk is not safe for concurrent use. The Engine serializes access.
type Kiosk struct {
	id        [32]byte
	capID     [32]byte
	owner     [20]byte
	profits   Balance
	offers    Balance
	itemCount uint64
	store     *fieldStore
	closed    bool
}

// New creates an empty kiosk owned by owner and the capability bound to it.
func New(owner [20]byte, salt [32]byte) (*Kiosk, *OwnerCap) {
	id := DeriveKioskID(owner, salt)
	capability := newOwnerCap(id)
	k := &Kiosk{
		id:    id,
		capID: capability.id,
		owner: owner,
		store: newFieldStore(),
	}
	return k, capability
}

// HasAccess reports whether capability authorizes owner operations on k.
func (k *Kiosk) HasAccess(capability *OwnerCap) bool {
	if k == nil || capability == nil || k.closed || capability.consumed {
		return false
	}
	return capability.kioskID == k.id && capability.id == k.capID
}

func (k *Kiosk) authorize(capability *OwnerCap) error {
	if !k.HasAccess(capability) {
		return ErrUnauthorized
	}
	return nil
}

// SetOwner updates the advisory owner address. The capability binding is
// unaffected.
func (k *Kiosk) SetOwner(capability *OwnerCap, owner [20]byte) (*OwnerChanged, error) {
	if err := k.authorize(capability); err != nil {
		return nil, err
	}
	previous := k.owner
	k.owner = owner
	return &OwnerChanged{KioskID: k.id, Previous: previous, Owner: owner}, nil
}

// PlaceOffer escrows payment against assetID.
func (k *Kiosk) PlaceOffer(capability *OwnerCap, assetID [32]byte, payment Coin) (*OfferPlaced, error) {
	if err := k.authorize(capability); err != nil {
		return nil, err
	}
	if k.store.contains(offerKey(assetID)) {
		return nil, ErrAlreadyOffered
	}
	if k.store.contains(itemKey(assetID)) {
		return nil, fmt.Errorf("%w: asset %x is deposited awaiting withdrawal", ErrAlreadyOffered, assetID)
	}
	if k.itemCount == math.MaxUint64 || !k.offers.canJoin(payment) {
		return nil, ErrOverflow
	}

	amount := payment.Value()
	if err := k.offers.Join(payment); err != nil {
		return nil, err
	}
	if err := k.store.add(offerKey(assetID), amount.Clone()); err != nil {
		return nil, err
	}
	k.itemCount++
	return &OfferPlaced{KioskID: k.id, OfferID: OfferID(k.id, assetID), AssetID: assetID, Amount: amount}, nil
}

// CancelOffer removes the open offer for assetID and refunds the escrowed
// amount.
func (k *Kiosk) CancelOffer(capability *OwnerCap, assetID [32]byte) (Coin, *OfferCanceled, error) {
	if err := k.authorize(capability); err != nil {
		return Coin{}, nil, err
	}
	amount, err := k.store.offerAmount(assetID)
	if err != nil {
		if errors.Is(err, errFieldMissing) {
			return Coin{}, nil, ErrOfferNotFound
		}
		return Coin{}, nil, fmt.Errorf("%w: %v", ErrAmountMismatch, err)
	}
	if k.store.locked(assetID) {
		return Coin{}, nil, ErrOfferLocked
	}
	if err := k.checkEscrowed(amount); err != nil {
		return Coin{}, nil, err
	}

	if _, err := k.store.remove(offerKey(assetID)); err != nil {
		return Coin{}, nil, err
	}
	refund, err := k.offers.Split(amount)
	if err != nil {
		return Coin{}, nil, err
	}
	k.itemCount--
	return refund, &OfferCanceled{KioskID: k.id, OfferID: OfferID(k.id, assetID), AssetID: assetID, Amount: amount.Clone()}, nil
}

// AcceptOffer deposits asset in fulfillment of the offer targeting it and
// returns the escrowed payment. The offer is looked up by the asset's own
// identifier. No capability is required.
func (k *Kiosk) AcceptOffer(asset *Asset) (Coin, *OfferAccepted, error) {
	if k.closed {
		return Coin{}, nil, ErrClosed
	}
	if asset == nil {
		return Coin{}, nil, errNilAsset
	}
	key := offerKey(asset.ID)
	amount, err := k.store.offerAmount(key.id)
	if err != nil {
		if errors.Is(err, errFieldMissing) {
			return Coin{}, nil, ErrOfferNotFound
		}
		return Coin{}, nil, fmt.Errorf("%w: %v", ErrAmountMismatch, err)
	}
	if key.id != asset.ID || k.store.contains(itemKey(key.id)) {
		return Coin{}, nil, ErrAmountMismatch
	}
	if err := k.checkEscrowed(amount); err != nil {
		return Coin{}, nil, err
	}

	if _, err := k.store.remove(key); err != nil {
		return Coin{}, nil, err
	}
	if err := k.store.add(itemKey(asset.ID), asset.Clone()); err != nil {
		return Coin{}, nil, err
	}
	payout, err := k.offers.Split(amount)
	if err != nil {
		return Coin{}, nil, err
	}
	return payout, &OfferAccepted{KioskID: k.id, OfferID: OfferID(k.id, asset.ID), AssetID: asset.ID, Amount: amount.Clone()}, nil
}

// WithdrawItem hands a deposited asset to the owner.
func (k *Kiosk) WithdrawItem(capability *OwnerCap, assetID [32]byte) (*Asset, *ItemWithdrawn, error) {
	if err := k.authorize(capability); err != nil {
		return nil, nil, err
	}
	if _, err := k.store.item(assetID); err != nil {
		if errors.Is(err, errFieldMissing) {
			return nil, nil, ErrItemNotFound
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrAmountMismatch, err)
	}
	if k.itemCount == 0 {
		return nil, nil, ErrAmountMismatch
	}
	value, err := k.store.remove(itemKey(assetID))
	if err != nil {
		return nil, nil, err
	}
	k.itemCount--
	return value.(*Asset), &ItemWithdrawn{KioskID: k.id, AssetID: assetID}, nil
}

// DepositProfits credits coin to the profit pool.
func (k *Kiosk) DepositProfits(capability *OwnerCap, coin Coin) (*ProfitsDeposited, error) {
	if err := k.authorize(capability); err != nil {
		return nil, err
	}
	amount := coin.Value()
	if err := k.profits.Join(coin); err != nil {
		return nil, err
	}
	return &ProfitsDeposited{KioskID: k.id, Amount: amount}, nil
}

// Withdraw takes amount from the profit pool, or the whole pool when amount is
// nil.
func (k *Kiosk) Withdraw(capability *OwnerCap, amount *uint256.Int) (Coin, *ProfitsWithdrawn, error) {
	if err := k.authorize(capability); err != nil {
		return Coin{}, nil, err
	}
	var out Coin
	if amount == nil {
		out = k.profits.WithdrawAll()
	} else {
		coin, err := k.profits.Split(amount)
		if err != nil {
			return Coin{}, nil, err
		}
		out = coin
	}
	return out, &ProfitsWithdrawn{KioskID: k.id, Amount: out.Value()}, nil
}

// Close destroys an empty kiosk, consuming the capability and returning
// whatever remains in both pools.
func (k *Kiosk) Close(capability *OwnerCap) (Coin, *KioskClosed, error) {
	if err := k.authorize(capability); err != nil {
		return Coin{}, nil, err
	}
	if k.itemCount != 0 || k.store.count(TagOffer) != 0 || k.store.count(TagItem) != 0 {
		return Coin{}, nil, ErrNotEmpty
	}
	residual := k.profits.Value()
	offers := k.offers.Value()
	if _, overflow := residual.AddOverflow(residual, offers); overflow {
		return Coin{}, nil, ErrOverflow
	}

	k.profits.WithdrawAll()
	k.offers.WithdrawAll()
	k.store = newFieldStore()
	k.closed = true
	capability.consumed = true
	return NewCoin(residual), &KioskClosed{KioskID: k.id, Returned: residual.Clone()}, nil
}

func (k *Kiosk) checkEscrowed(amount *uint256.Int) error {
	if k.offers.value.Lt(amount) {
		return fmt.Errorf("%w: offer pool %s below escrowed %s", ErrAmountMismatch, k.offers.value.Dec(), amount.Dec())
	}
	return nil
}

func (k *Kiosk) ID() [32]byte { return k.id }

// Owner returns the advisory owner address.
func (k *Kiosk) Owner() [20]byte { return k.owner }

// ItemCount returns the number of open offers plus deposited items.
func (k *Kiosk) ItemCount() uint64 { return k.itemCount }

func (k *Kiosk) Closed() bool { return k.closed }

// ProfitsValue returns the profit pool total.
func (k *Kiosk) ProfitsValue() *uint256.Int { return k.profits.Value() }

// OfferPoolValue returns the total escrowed across open offers.
func (k *Kiosk) OfferPoolValue() *uint256.Int { return k.offers.Value() }

func (k *Kiosk) HasOffer(assetID [32]byte) bool { return k.store.contains(offerKey(assetID)) }

func (k *Kiosk) HasItem(assetID [32]byte) bool { return k.store.contains(itemKey(assetID)) }

func (k *Kiosk) IsLocked(assetID [32]byte) bool { return k.store.locked(assetID) }

// OfferAmount returns the escrowed amount of the open offer for assetID.
func (k *Kiosk) OfferAmount(assetID [32]byte) (*uint256.Int, bool) {
	amount, err := k.store.offerAmount(assetID)
	if err != nil {
		return nil, false
	}
	return amount.Clone(), true
}

// Item returns a copy of the deposited asset.
func (k *Kiosk) Item(assetID [32]byte) (*Asset, bool) {
	asset, err := k.store.item(assetID)
	if err != nil {
		return nil, false
	}
	return asset.Clone(), true
}

// Offers lists open offers ordered by asset id.
func (k *Kiosk) Offers() []OfferView {
	ids := k.store.ids(TagOffer)
	out := make([]OfferView, 0, len(ids))
	for _, id := range ids {
		amount, err := k.store.offerAmount(id)
		if err != nil {
			continue
		}
		out = append(out, OfferView{AssetID: id, OfferID: OfferID(k.id, id), Amount: amount.Clone()})
	}
	return out
}

// Items lists deposited assets ordered by id.
func (k *Kiosk) Items() []*Asset {
	ids := k.store.ids(TagItem)
	out := make([]*Asset, 0, len(ids))
	for _, id := range ids {
		asset, err := k.store.item(id)
		if err != nil {
			continue
		}
		out = append(out, asset.Clone())
	}
	return out
}

// VerifyInvariants checks that the offer pool equals the sum of open offers,
// no asset is both offered and deposited, and the item counter matches the
// stored entries.
func (k *Kiosk) VerifyInvariants() error {
	sum := new(uint256.Int)
	offerIDs := k.store.ids(TagOffer)
	for _, id := range offerIDs {
		amount, err := k.store.offerAmount(id)
		if err != nil {
			return fmt.Errorf("%w: offer %x: %v", ErrAmountMismatch, id, err)
		}
		if _, overflow := sum.AddOverflow(sum, amount); overflow {
			return fmt.Errorf("%w: offer total", ErrOverflow)
		}
		if k.store.contains(itemKey(id)) {
			return fmt.Errorf("kiosk: asset %x both offered and deposited", id)
		}
	}
	if !sum.Eq(&k.offers.value) {
		return fmt.Errorf("%w: offers total %s, pool %s", ErrAmountMismatch, sum.Dec(), k.offers.value.Dec())
	}
	for _, id := range k.store.ids(TagItem) {
		if _, err := k.store.item(id); err != nil {
			return fmt.Errorf("kiosk: item %x: %v", id, err)
		}
	}
	expected := uint64(len(offerIDs) + k.store.count(TagItem))
	if k.itemCount != expected {
		return fmt.Errorf("kiosk: item count %d, expected %d", k.itemCount, expected)
	}
	return nil
}

// lock marks an asset as exclusively locked. Lock entries only enter a kiosk
// through Restore of a persisted snapshot; no kiosk operation adds or clears
// one.
func (k *Kiosk) lock(assetID [32]byte) error {
	return k.store.add(lockKey(assetID), true)
}

// Clone returns an independent copy of the kiosk.
func (k *Kiosk) Clone() *Kiosk {
	if k == nil {
		return nil
	}
	clone := *k
	clone.store = k.store.clone()
	return &clone
}
