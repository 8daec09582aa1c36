package kiosk

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/text/unicode/norm"

	"offerkiosk/core/events"
	"offerkiosk/core/types"
	nativecommon "offerkiosk/native/common"
)

const moduleName = "kiosk"

var errNilState = errors.New("kiosk engine: state not configured")

type engineState interface {
	KioskPut(*Snapshot) error
	KioskGet(id [32]byte) (*Snapshot, bool, error)
	KioskDelete(id [32]byte) error
	CapabilityPut(capID, kioskID [32]byte) error
	CapabilityGet(capID [32]byte) ([32]byte, bool, error)
	CapabilityDelete(capID [32]byte) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	AssetGet(id [32]byte) (*types.AssetRecord, bool, error)
	AssetPut(record *types.AssetRecord) error
	Commit() error
	Discard()
}

type kioskEvent struct {
	evt *types.Event
}

func (e kioskEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e kioskEvent) Event() *types.Event { return e.evt }

// Engine hosts kiosks against external account, asset and kiosk state. Every
// mutating call runs under a single lock and either commits all of its writes
// or discards them; events are emitted only after a successful commit.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine creates a kiosk engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the pause view consulted before every kiosk mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used to stamp events.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(kioskEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// apply runs fn as one atomic transition. guarded transitions are rejected
// while the kiosk module is paused.
func (e *Engine) apply(guarded bool, fn func() ([]Notification, error)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if guarded {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
	}
	notes, err := fn()
	if err != nil {
		e.state.Discard()
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.Discard()
		return err
	}
	ts := strconv.FormatInt(e.now(), 10)
	for _, note := range notes {
		evt := note.Event()
		evt.Attributes["timestamp"] = ts
		e.emit(evt)
	}
	return nil
}

func (e *Engine) loadKiosk(id [32]byte) (*Kiosk, error) {
	snap, ok, err := e.state.KioskGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrKioskNotFound
	}
	return Restore(snap)
}

// loadByCap resolves a capability id to its kiosk and a restored capability.
// Unknown or orphaned capabilities are unauthorized.
func (e *Engine) loadByCap(capID [32]byte) (*Kiosk, *OwnerCap, error) {
	kioskID, ok, err := e.state.CapabilityGet(capID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrUnauthorized
	}
	k, err := e.loadKiosk(kioskID)
	if errors.Is(err, ErrKioskNotFound) {
		return nil, nil, ErrUnauthorized
	}
	if err != nil {
		return nil, nil, err
	}
	if k.ID() != kioskID {
		return nil, nil, ErrUnauthorized
	}
	capability, err := restoreOwnerCap(capID, k)
	if err != nil {
		return nil, nil, err
	}
	return k, capability, nil
}

func (e *Engine) storeKiosk(k *Kiosk) error {
	if err := k.VerifyInvariants(); err != nil {
		return err
	}
	return e.state.KioskPut(k.Snapshot())
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return e.state.PutAccount(addr[:], acc)
}

func (e *Engine) debit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc = ensureAccount(acc)
	if acc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %x holds %s, needs %s", ErrInsufficientFunds, addr, acc.Balance, amount)
	}
	acc.Balance = new(big.Int).Sub(acc.Balance, amount)
	return e.state.PutAccount(addr[:], acc)
}

// CreateKiosk creates and persists a kiosk owned by owner together with its
// capability.
func (e *Engine) CreateKiosk(owner [20]byte, salt [32]byte) (*Kiosk, *OwnerCap, error) {
	var (
		created    *Kiosk
		capability *OwnerCap
	)
	err := e.apply(true, func() ([]Notification, error) {
		k, c := New(owner, salt)
		if _, ok, err := e.state.KioskGet(k.ID()); err != nil {
			return nil, err
		} else if ok {
			return nil, ErrKioskExists
		}
		if err := e.storeKiosk(k); err != nil {
			return nil, err
		}
		if err := e.state.CapabilityPut(c.ID(), k.ID()); err != nil {
			return nil, err
		}
		created, capability = k, c
		return []Notification{&KioskCreated{KioskID: k.ID(), Owner: owner}}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created.Clone(), capability, nil
}

// SetOwner updates the advisory owner of the kiosk bound to capID.
func (e *Engine) SetOwner(capID [32]byte, owner [20]byte) error {
	return e.apply(true, func() ([]Notification, error) {
		k, capability, err := e.loadByCap(capID)
		if err != nil {
			return nil, err
		}
		note, err := k.SetOwner(capability, owner)
		if err != nil {
			return nil, err
		}
		return []Notification{note}, e.storeKiosk(k)
	})
}

// PlaceOffer debits amount from the kiosk owner's account and escrows it
// against assetID.
func (e *Engine) PlaceOffer(capID, assetID [32]byte, amount *big.Int) error {
	payment, err := CoinFromBig(amount)
	if err != nil {
		return err
	}
	return e.apply(true, func() ([]Notification, error) {
		k, capability, err := e.loadByCap(capID)
		if err != nil {
			return nil, err
		}
		if err := e.debit(k.Owner(), payment.Big()); err != nil {
			return nil, err
		}
		note, err := k.PlaceOffer(capability, assetID, payment)
		if err != nil {
			return nil, err
		}
		return []Notification{note}, e.storeKiosk(k)
	})
}

// CancelOffer cancels the open offer for assetID and refunds the kiosk owner.
func (e *Engine) CancelOffer(capID, assetID [32]byte) (*big.Int, error) {
	var refunded *big.Int
	err := e.apply(true, func() ([]Notification, error) {
		k, capability, err := e.loadByCap(capID)
		if err != nil {
			return nil, err
		}
		refund, note, err := k.CancelOffer(capability, assetID)
		if err != nil {
			return nil, err
		}
		if err := e.credit(k.Owner(), refund.Big()); err != nil {
			return nil, err
		}
		refunded = refund.Big()
		return []Notification{note}, e.storeKiosk(k)
	})
	if err != nil {
		return nil, err
	}
	return refunded, nil
}

// AcceptOffer deposits the asset held by fulfiller into the kiosk and pays
// the fulfiller the escrowed amount.
func (e *Engine) AcceptOffer(kioskID [32]byte, fulfiller [20]byte, assetID [32]byte) (*big.Int, error) {
	var paid *big.Int
	err := e.apply(true, func() ([]Notification, error) {
		k, err := e.loadKiosk(kioskID)
		if err != nil {
			return nil, err
		}
		record, ok, err := e.state.AssetGet(assetID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAssetNotFound
		}
		if record.InKiosk() || record.Holder != fulfiller {
			return nil, ErrAssetNotHeld
		}
		asset := &Asset{ID: record.ID, Kind: record.Kind, Data: append([]byte(nil), record.Data...)}
		payout, note, err := k.AcceptOffer(asset)
		if err != nil {
			return nil, err
		}
		if err := e.credit(fulfiller, payout.Big()); err != nil {
			return nil, err
		}
		record.Holder = [20]byte{}
		record.Kiosk = k.ID()
		if err := e.state.AssetPut(record); err != nil {
			return nil, err
		}
		paid = payout.Big()
		return []Notification{note}, e.storeKiosk(k)
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// WithdrawItem releases a deposited asset to the kiosk owner's custody.
func (e *Engine) WithdrawItem(capID, assetID [32]byte) error {
	return e.apply(true, func() ([]Notification, error) {
		k, capability, err := e.loadByCap(capID)
		if err != nil {
			return nil, err
		}
		asset, note, err := k.WithdrawItem(capability, assetID)
		if err != nil {
			return nil, err
		}
		record, ok, err := e.state.AssetGet(asset.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			record = &types.AssetRecord{ID: asset.ID, Kind: asset.Kind, Data: asset.Data}
		}
		record.Holder = k.Owner()
		record.Kiosk = [32]byte{}
		if err := e.state.AssetPut(record); err != nil {
			return nil, err
		}
		return []Notification{note}, e.storeKiosk(k)
	})
}

// DepositProfits moves amount from the owner's account into the profit pool.
func (e *Engine) DepositProfits(capID [32]byte, amount *big.Int) error {
	coin, err := CoinFromBig(amount)
	if err != nil {
		return err
	}
	return e.apply(true, func() ([]Notification, error) {
		k, capability, err := e.loadByCap(capID)
		if err != nil {
			return nil, err
		}
		if err := e.debit(k.Owner(), coin.Big()); err != nil {
			return nil, err
		}
		note, err := k.DepositProfits(capability, coin)
		if err != nil {
			return nil, err
		}
		return []Notification{note}, e.storeKiosk(k)
	})
}

// Withdraw pays profits out to the kiosk owner. A nil amount withdraws the
// whole profit pool.
func (e *Engine) Withdraw(capID [32]byte, amount *big.Int) (*big.Int, error) {
	var requested *uint256.Int
	if amount != nil {
		coin, err := CoinFromBig(amount)
		if err != nil {
			return nil, err
		}
		requested = coin.Value()
	}
	var withdrawn *big.Int
	err := e.apply(true, func() ([]Notification, error) {
		k, capability, err := e.loadByCap(capID)
		if err != nil {
			return nil, err
		}
		out, note, err := k.Withdraw(capability, requested)
		if err != nil {
			return nil, err
		}
		if err := e.credit(k.Owner(), out.Big()); err != nil {
			return nil, err
		}
		withdrawn = out.Big()
		return []Notification{note}, e.storeKiosk(k)
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// Close destroys an empty kiosk and its capability, crediting any residual
// value to the owner.
func (e *Engine) Close(capID [32]byte) (*big.Int, error) {
	var returned *big.Int
	err := e.apply(true, func() ([]Notification, error) {
		k, capability, err := e.loadByCap(capID)
		if err != nil {
			return nil, err
		}
		residual, note, err := k.Close(capability)
		if err != nil {
			return nil, err
		}
		if err := e.credit(k.Owner(), residual.Big()); err != nil {
			return nil, err
		}
		if err := e.state.KioskDelete(k.ID()); err != nil {
			return nil, err
		}
		if err := e.state.CapabilityDelete(capability.ID()); err != nil {
			return nil, err
		}
		returned = residual.Big()
		return []Notification{note}, nil
	})
	if err != nil {
		return nil, err
	}
	return returned, nil
}

// Kiosk returns a copy of the stored kiosk.
func (e *Engine) Kiosk(id [32]byte) (*Kiosk, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadKiosk(id)
}

// Capability resolves a capability id to the capability and its kiosk id.
func (e *Engine) Capability(capID [32]byte) (*OwnerCap, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, capability, err := e.loadByCap(capID)
	return capability, err
}

// OwnerCapability returns the live capability of kioskID. It hands out the
// credential itself, so callers must first authenticate the kiosk's current
// owner.
func (e *Engine) OwnerCapability(kioskID [32]byte) (*OwnerCap, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	k, err := e.loadKiosk(kioskID)
	if err != nil {
		return nil, err
	}
	capability, err := restoreOwnerCap(k.capID, k)
	if err != nil {
		return nil, err
	}
	if _, ok, err := e.state.CapabilityGet(capability.ID()); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrUnauthorized
	}
	return capability, nil
}

// HasOffer reports whether kioskID holds an open offer for assetID.
func (e *Engine) HasOffer(kioskID, assetID [32]byte) (bool, error) {
	k, err := e.Kiosk(kioskID)
	if err != nil {
		return false, err
	}
	return k.HasOffer(assetID), nil
}

// HasItem reports whether kioskID holds a deposited assetID.
func (e *Engine) HasItem(kioskID, assetID [32]byte) (bool, error) {
	k, err := e.Kiosk(kioskID)
	if err != nil {
		return false, err
	}
	return k.HasItem(assetID), nil
}

// Mint credits amount to addr. It is an operator facility and is not paused
// with the kiosk module.
func (e *Engine) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: mint amount must be positive", ErrInvalidAmount)
	}
	return e.apply(false, func() ([]Notification, error) {
		return nil, e.credit(addr, amount)
	})
}

// NormalizeAssetKind folds kind to its NFKC form without surrounding space so
// visually identical kinds derive identical asset ids.
func NormalizeAssetKind(kind string) string {
	return norm.NFKC.String(strings.TrimSpace(kind))
}

// DeriveAssetID computes the identifier of an asset minted with the supplied
// kind, payload and salt.
func DeriveAssetID(kind string, data []byte, salt [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(NormalizeAssetKind(kind)), data, salt[:]))
	return out
}

// MintAsset registers a new asset held by holder.
func (e *Engine) MintAsset(holder [20]byte, kind string, data []byte, salt [32]byte) (*types.AssetRecord, error) {
	kind = NormalizeAssetKind(kind)
	if kind == "" {
		return nil, ErrInvalidAssetKind
	}
	record := &types.AssetRecord{
		ID:     DeriveAssetID(kind, data, salt),
		Kind:   kind,
		Data:   append([]byte(nil), data...),
		Holder: holder,
	}
	err := e.apply(false, func() ([]Notification, error) {
		if _, ok, err := e.state.AssetGet(record.ID); err != nil {
			return nil, err
		} else if ok {
			return nil, ErrAssetExists
		}
		return nil, e.state.AssetPut(record)
	})
	if err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// TransferAsset moves an asset held by from to to. Assets inside a kiosk
// cannot be transferred.
func (e *Engine) TransferAsset(from, to [20]byte, assetID [32]byte) error {
	return e.apply(false, func() ([]Notification, error) {
		record, ok, err := e.state.AssetGet(assetID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAssetNotFound
		}
		if record.InKiosk() || record.Holder != from {
			return nil, ErrAssetNotHeld
		}
		record.Holder = to
		return nil, e.state.AssetPut(record)
	})
}

// Balance returns the account balance of addr.
func (e *Engine) Balance(addr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(ensureAccount(acc).Balance), nil
}

// Asset returns the custody record of an asset.
func (e *Engine) Asset(id [32]byte) (*types.AssetRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	record, ok, err := e.state.AssetGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotFound
	}
	return record.Clone(), nil
}
