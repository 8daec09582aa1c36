package kiosk

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"offerkiosk/core/events"
	"offerkiosk/core/types"
	nativecommon "offerkiosk/native/common"
)

// journal is a committed map plus a pending overlay that Commit folds in and
// Discard drops.
type journal[K comparable, V any] struct {
	committed map[K]V
	pending   map[K]V
	deleted   map[K]bool
}

func newJournal[K comparable, V any]() *journal[K, V] {
	return &journal[K, V]{
		committed: make(map[K]V),
		pending:   make(map[K]V),
		deleted:   make(map[K]bool),
	}
}

func (j *journal[K, V]) get(k K) (V, bool) {
	if v, ok := j.pending[k]; ok {
		return v, true
	}
	if j.deleted[k] {
		var zero V
		return zero, false
	}
	v, ok := j.committed[k]
	return v, ok
}

func (j *journal[K, V]) put(k K, v V) {
	delete(j.deleted, k)
	j.pending[k] = v
}

func (j *journal[K, V]) del(k K) {
	delete(j.pending, k)
	j.deleted[k] = true
}

func (j *journal[K, V]) commit() {
	for k := range j.deleted {
		delete(j.committed, k)
	}
	for k, v := range j.pending {
		j.committed[k] = v
	}
	j.discard()
}

func (j *journal[K, V]) discard() {
	j.pending = make(map[K]V)
	j.deleted = make(map[K]bool)
}

type mockState struct {
	kiosks    *journal[[32]byte, *Snapshot]
	caps      *journal[[32]byte, [32]byte]
	accounts  *journal[[20]byte, *types.Account]
	assets    *journal[[32]byte, *types.AssetRecord]
	failWrite error
}

func newMockState() *mockState {
	return &mockState{
		kiosks:   newJournal[[32]byte, *Snapshot](),
		caps:     newJournal[[32]byte, [32]byte](),
		accounts: newJournal[[20]byte, *types.Account](),
		assets:   newJournal[[32]byte, *types.AssetRecord](),
	}
}

func (m *mockState) KioskPut(s *Snapshot) error {
	if m.failWrite != nil {
		return m.failWrite
	}
	m.kiosks.put(s.ID, s)
	return nil
}

func (m *mockState) KioskGet(id [32]byte) (*Snapshot, bool, error) {
	s, ok := m.kiosks.get(id)
	return s, ok, nil
}

func (m *mockState) KioskDelete(id [32]byte) error {
	m.kiosks.del(id)
	return nil
}

func (m *mockState) CapabilityPut(capID, kioskID [32]byte) error {
	m.caps.put(capID, kioskID)
	return nil
}

func (m *mockState) CapabilityGet(capID [32]byte) ([32]byte, bool, error) {
	id, ok := m.caps.get(capID)
	return id, ok, nil
}

func (m *mockState) CapabilityDelete(capID [32]byte) error {
	m.caps.del(capID)
	return nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	acc, ok := m.accounts.get(key)
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return acc.Clone(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	m.accounts.put(key, account.Clone())
	return nil
}

func (m *mockState) AssetGet(id [32]byte) (*types.AssetRecord, bool, error) {
	record, ok := m.assets.get(id)
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) AssetPut(record *types.AssetRecord) error {
	m.assets.put(record.ID, record.Clone())
	return nil
}

func (m *mockState) Commit() error {
	m.kiosks.commit()
	m.caps.commit()
	m.accounts.commit()
	m.assets.commit()
	return nil
}

func (m *mockState) Discard() {
	m.kiosks.discard()
	m.caps.discard()
	m.accounts.discard()
	m.assets.discard()
}

type engineFixture struct {
	engine    *Engine
	state     *mockState
	recorder  *events.Recorder
	owner     [20]byte
	fulfiller [20]byte
	kioskID   [32]byte
	capID     [32]byte
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		engine:    NewEngine(),
		state:     newMockState(),
		recorder:  &events.Recorder{},
		owner:     testAddress(0x01),
		fulfiller: testAddress(0x02),
	}
	f.engine.SetState(f.state)
	f.engine.SetEmitter(f.recorder)
	f.engine.SetNowFunc(func() int64 { return 1_700_000_000 })

	if err := f.engine.Mint(f.owner, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	k, capability, err := f.engine.CreateKiosk(f.owner, testID(0xEE))
	if err != nil {
		t.Fatalf("create kiosk: %v", err)
	}
	f.kioskID = k.ID()
	f.capID = capability.ID()
	return f
}

func (f *engineFixture) balance(t *testing.T, addr [20]byte) int64 {
	t.Helper()
	bal, err := f.engine.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (f *engineFixture) mintAsset(t *testing.T, holder [20]byte, salt byte) *types.AssetRecord {
	t.Helper()
	record, err := f.engine.MintAsset(holder, "ticket", []byte{salt}, testID(salt))
	if err != nil {
		t.Fatalf("mint asset: %v", err)
	}
	return record
}

func TestEngineOfferLifecycle(t *testing.T) {
	f := newEngineFixture(t)
	asset := f.mintAsset(t, f.fulfiller, 0xA1)

	if err := f.engine.PlaceOffer(f.capID, asset.ID, big.NewInt(100)); err != nil {
		t.Fatalf("place offer: %v", err)
	}
	if got := f.balance(t, f.owner); got != 900 {
		t.Fatalf("owner balance after offer: %d", got)
	}
	if ok, err := f.engine.HasOffer(f.kioskID, asset.ID); err != nil || !ok {
		t.Fatalf("expected open offer, ok=%v err=%v", ok, err)
	}

	paid, err := f.engine.AcceptOffer(f.kioskID, f.fulfiller, asset.ID)
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	if paid.Int64() != 100 || f.balance(t, f.fulfiller) != 100 {
		t.Fatalf("fulfiller must receive 100, paid=%s", paid)
	}
	record, err := f.engine.Asset(asset.ID)
	if err != nil {
		t.Fatalf("asset: %v", err)
	}
	if record.Kiosk != f.kioskID || record.Holder != ([20]byte{}) {
		t.Fatalf("asset must sit in the kiosk: %+v", record)
	}
	k, err := f.engine.Kiosk(f.kioskID)
	if err != nil {
		t.Fatalf("kiosk: %v", err)
	}
	if k.ItemCount() != 1 || k.HasOffer(asset.ID) || !k.HasItem(asset.ID) {
		t.Fatalf("unexpected kiosk state after accept: count=%d", k.ItemCount())
	}

	if err := f.engine.WithdrawItem(f.capID, asset.ID); err != nil {
		t.Fatalf("withdraw item: %v", err)
	}
	record, _ = f.engine.Asset(asset.ID)
	if record.Holder != f.owner || record.InKiosk() {
		t.Fatalf("owner must custody the asset: %+v", record)
	}

	returned, err := f.engine.Close(f.capID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if returned.Sign() != 0 {
		t.Fatalf("expected zero residual, got %s", returned)
	}
	if _, err := f.engine.Kiosk(f.kioskID); !errors.Is(err, ErrKioskNotFound) {
		t.Fatalf("closed kiosk must be removed, got %v", err)
	}
	if _, err := f.engine.Capability(f.capID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("closed capability must be unusable, got %v", err)
	}

	want := []string{
		EventTypeKioskCreated,
		EventTypeOfferPlaced,
		EventTypeOfferAccepted,
		EventTypeItemWithdrawn,
		EventTypeKioskClosed,
	}
	got := f.recorder.Types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	last := f.recorder.Events()[len(got)-1].(interface{ Event() *types.Event }).Event()
	if last.Attributes["timestamp"] != "1700000000" {
		t.Fatalf("events must carry the engine timestamp: %+v", last.Attributes)
	}
}

func TestEngineCancelRefundsOwner(t *testing.T) {
	f := newEngineFixture(t)
	asset := testID(0xA1)
	if err := f.engine.PlaceOffer(f.capID, asset, big.NewInt(100)); err != nil {
		t.Fatalf("place offer: %v", err)
	}
	refund, err := f.engine.CancelOffer(f.capID, asset)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if refund.Int64() != 100 || f.balance(t, f.owner) != 1_000 {
		t.Fatalf("owner must be refunded in full, refund=%s", refund)
	}
	k, _ := f.engine.Kiosk(f.kioskID)
	if k.ItemCount() != 0 || !k.OfferPoolValue().IsZero() {
		t.Fatalf("kiosk must be empty after cancel")
	}
}

func TestEngineFailedCallDiscardsWrites(t *testing.T) {
	f := newEngineFixture(t)
	asset := testID(0xA1)
	if err := f.engine.PlaceOffer(f.capID, asset, big.NewInt(100)); err != nil {
		t.Fatalf("place offer: %v", err)
	}
	f.recorder.Reset()

	// The debit lands before the duplicate is detected and must be rolled back.
	if err := f.engine.PlaceOffer(f.capID, asset, big.NewInt(50)); !errors.Is(err, ErrAlreadyOffered) {
		t.Fatalf("expected already offered, got %v", err)
	}
	if got := f.balance(t, f.owner); got != 900 {
		t.Fatalf("failed offer must not debit owner, balance=%d", got)
	}
	if len(f.recorder.Events()) != 0 {
		t.Fatalf("failed call must not emit events")
	}

	f.state.failWrite = errors.New("disk full")
	if _, err := f.engine.CancelOffer(f.capID, asset); err == nil {
		t.Fatalf("expected write failure")
	}
	f.state.failWrite = nil
	if got := f.balance(t, f.owner); got != 900 {
		t.Fatalf("refund credited despite failed persist, balance=%d", got)
	}
	if ok, _ := f.engine.HasOffer(f.kioskID, asset); !ok {
		t.Fatalf("offer must survive the failed cancel")
	}
}

func TestEngineRequiresOwnerFunds(t *testing.T) {
	f := newEngineFixture(t)
	err := f.engine.PlaceOffer(f.capID, testID(0xA1), big.NewInt(5_000))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := f.engine.PlaceOffer(f.capID, testID(0xA1), big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if ok, _ := f.engine.HasOffer(f.kioskID, testID(0xA1)); ok {
		t.Fatalf("no offer may be recorded")
	}
}

func TestEngineAcceptRequiresHeldAsset(t *testing.T) {
	f := newEngineFixture(t)
	asset := f.mintAsset(t, f.fulfiller, 0xA1)
	if err := f.engine.PlaceOffer(f.capID, asset.ID, big.NewInt(10)); err != nil {
		t.Fatalf("place offer: %v", err)
	}
	stranger := testAddress(0x07)
	if _, err := f.engine.AcceptOffer(f.kioskID, stranger, asset.ID); !errors.Is(err, ErrAssetNotHeld) {
		t.Fatalf("expected asset not held, got %v", err)
	}
	if _, err := f.engine.AcceptOffer(f.kioskID, f.fulfiller, testID(0x99)); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected asset not found, got %v", err)
	}
	if err := f.engine.TransferAsset(f.fulfiller, stranger, asset.ID); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := f.engine.AcceptOffer(f.kioskID, stranger, asset.ID); err != nil {
		t.Fatalf("accept by new holder: %v", err)
	}
	if _, err := f.engine.AcceptOffer(f.kioskID, stranger, asset.ID); !errors.Is(err, ErrAssetNotHeld) {
		t.Fatalf("deposited asset cannot be offered again, got %v", err)
	}
	if f.balance(t, stranger) != 10 {
		t.Fatalf("payout must happen exactly once")
	}
}

func TestEngineProfitsAndClose(t *testing.T) {
	f := newEngineFixture(t)
	if err := f.engine.DepositProfits(f.capID, big.NewInt(300)); err != nil {
		t.Fatalf("deposit profits: %v", err)
	}
	if _, err := f.engine.Withdraw(f.capID, big.NewInt(301)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	out, err := f.engine.Withdraw(f.capID, big.NewInt(100))
	if err != nil || out.Int64() != 100 {
		t.Fatalf("withdraw 100: out=%v err=%v", out, err)
	}
	if err := f.engine.PlaceOffer(f.capID, testID(0xA1), big.NewInt(1)); err != nil {
		t.Fatalf("place offer: %v", err)
	}
	if _, err := f.engine.Close(f.capID); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("expected not empty, got %v", err)
	}
	if _, err := f.engine.CancelOffer(f.capID, testID(0xA1)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	returned, err := f.engine.Close(f.capID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if returned.Int64() != 200 || f.balance(t, f.owner) != 1_000 {
		t.Fatalf("residual must return to owner, returned=%s", returned)
	}
}

func TestEngineUnknownCapability(t *testing.T) {
	f := newEngineFixture(t)
	forged := testID(0x42)
	if err := f.engine.SetOwner(forged, testAddress(0x05)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.engine.Withdraw(forged, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.state.CapabilityPut(forged, f.kioskID); err != nil {
		t.Fatalf("seed forged binding: %v", err)
	}
	if err := f.state.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := f.engine.SetOwner(forged, testAddress(0x05)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stored binding must not authorize a foreign capability id, got %v", err)
	}
}

func TestEngineOwnerCapability(t *testing.T) {
	f := newEngineFixture(t)
	capability, err := f.engine.OwnerCapability(f.kioskID)
	if err != nil {
		t.Fatalf("owner capability: %v", err)
	}
	if capability.ID() != f.capID || capability.KioskID() != f.kioskID {
		t.Fatalf("unexpected capability %x for kiosk %x", capability.ID(), capability.KioskID())
	}
	created := f.recorder.Events()[0].(interface{ Event() *types.Event }).Event()
	for key, value := range created.Attributes {
		if strings.Contains(value, hex.EncodeToString(f.capID[:])) {
			t.Fatalf("created event must not publish the capability id in %q", key)
		}
	}

	if _, err := f.engine.Close(f.capID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.engine.OwnerCapability(f.kioskID); !errors.Is(err, ErrKioskNotFound) {
		t.Fatalf("closed kiosk has no capability, got %v", err)
	}
}

func TestEnginePausedRejectsMutations(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.SetPauses(nativecommon.NewStaticPauses(moduleName))
	if err := f.engine.PlaceOffer(f.capID, testID(0xA1), big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := f.engine.Mint(f.owner, big.NewInt(1)); err != nil {
		t.Fatalf("mint is not paused with the module: %v", err)
	}
	if _, err := f.engine.Kiosk(f.kioskID); err != nil {
		t.Fatalf("queries stay available while paused: %v", err)
	}
}

func TestEngineCreateTwiceFails(t *testing.T) {
	f := newEngineFixture(t)
	if _, _, err := f.engine.CreateKiosk(f.owner, testID(0xEE)); !errors.Is(err, ErrKioskExists) {
		t.Fatalf("expected kiosk exists, got %v", err)
	}
	k, _, err := f.engine.CreateKiosk(f.owner, testID(0xEF))
	if err != nil {
		t.Fatalf("second kiosk with new salt: %v", err)
	}
	if k.ID() == f.kioskID {
		t.Fatalf("salt must change the kiosk id")
	}
}

func TestEngineMintAssetNormalizesKind(t *testing.T) {
	f := newEngineFixture(t)
	// U+FB01 LATIN SMALL LIGATURE FI folds to "fi" under NFKC
	record, err := f.engine.MintAsset(f.fulfiller, "  ﬁgurine ", []byte{7}, testID(7))
	if err != nil {
		t.Fatalf("mint asset: %v", err)
	}
	if record.Kind != "figurine" {
		t.Fatalf("expected normalized kind, got %q", record.Kind)
	}
	if record.ID != DeriveAssetID("figurine", []byte{7}, testID(7)) {
		t.Fatalf("asset id must derive from the normalized kind")
	}
	if _, err := f.engine.MintAsset(f.fulfiller, "figurine", []byte{7}, testID(7)); !errors.Is(err, ErrAssetExists) {
		t.Fatalf("expected duplicate after normalization, got %v", err)
	}
	if _, err := f.engine.MintAsset(f.fulfiller, "   ", nil, testID(8)); !errors.Is(err, ErrInvalidAssetKind) {
		t.Fatalf("expected invalid kind, got %v", err)
	}
}
