package rpc

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offerkiosk/native/common"
	"offerkiosk/native/kiosk"
)

type kioskFixture struct {
	env       *testEnv
	owner     actor
	fulfiller actor
	kioskID   [32]byte
	token     string
	assetID   string
}

func (e *testEnv) createKiosk(t *testing.T, owner actor) CreateKioskResult {
	t.Helper()
	deadline := e.now.Unix() + 60
	var salt [32]byte
	resp := e.call(t, "kiosk_create", map[string]interface{}{
		"owner":     owner.bech32(),
		"deadline":  deadline,
		"signature": owner.sign(t, CreateDigest(owner.addr, salt, deadline)),
	}, "")
	var created CreateKioskResult
	decodeResult(t, resp, &created)
	return created
}

func newKioskFixture(t *testing.T) *kioskFixture {
	t.Helper()
	env := newTestEnv(t, nil)
	f := &kioskFixture{env: env, owner: newActor(t), fulfiller: newActor(t)}

	resp := env.call(t, "bank_mint", map[string]string{"address": f.owner.bech32(), "amount": "1000"}, testOperatorToken)
	var bal BalanceResult
	decodeResult(t, resp, &bal)
	require.Equal(t, "1000", bal.Balance)

	resp = env.call(t, "asset_mint", map[string]string{"holder": f.fulfiller.bech32(), "kind": "ticket", "data": "0x01"}, testOperatorToken)
	var asset AssetJSON
	decodeResult(t, resp, &asset)
	require.Equal(t, f.fulfiller.bech32(), asset.Holder)
	f.assetID = asset.ID

	created := env.createKiosk(t, f.owner)
	require.NotEmpty(t, created.Token)
	require.Equal(t, env.now.Unix()+3600, created.ExpiresAt)
	f.kioskID = kiosk.DeriveKioskID(f.owner.addr, [32]byte{})
	require.Equal(t, hexID(f.kioskID), created.KioskID)
	require.Len(t, created.CapID, 66)
	f.token = created.Token
	return f
}

func (f *kioskFixture) accept(t *testing.T, signer actor) testResponse {
	t.Helper()
	deadline := f.env.now.Unix() + 60
	assetID, err := parseHash32(f.assetID)
	require.NoError(t, err)
	return f.env.call(t, "kiosk_acceptOffer", map[string]interface{}{
		"kioskId":   hexID(f.kioskID),
		"assetId":   f.assetID,
		"fulfiller": f.fulfiller.bech32(),
		"deadline":  deadline,
		"signature": signer.sign(t, AcceptDigest(f.kioskID, assetID, f.fulfiller.addr, deadline)),
	}, "")
}

func (f *kioskFixture) balance(t *testing.T, who actor) string {
	t.Helper()
	var bal BalanceResult
	decodeResult(t, f.env.call(t, "bank_balance", map[string]string{"address": who.bech32()}, ""), &bal)
	return bal.Balance
}

func TestKioskLifecycleOverRPC(t *testing.T) {
	f := newKioskFixture(t)
	env := f.env

	var amount AmountResult
	decodeResult(t, env.call(t, "kiosk_placeOffer", map[string]string{"assetId": f.assetID, "amount": "100"}, f.token), &amount)
	require.Equal(t, "100", amount.Amount)
	require.Equal(t, "900", f.balance(t, f.owner))

	var present bool
	decodeResult(t, env.call(t, "kiosk_hasOffer", map[string]string{"kioskId": hexID(f.kioskID), "assetId": f.assetID}, ""), &present)
	require.True(t, present)

	decodeResult(t, f.accept(t, f.fulfiller), &amount)
	require.Equal(t, "100", amount.Amount)
	require.Equal(t, "100", f.balance(t, f.fulfiller))

	var view KioskJSON
	decodeResult(t, env.call(t, "kiosk_get", map[string]string{"kioskId": hexID(f.kioskID)}, ""), &view)
	require.Equal(t, uint64(1), view.ItemCount)
	require.Equal(t, "0", view.OfferPool)
	require.Empty(t, view.Offers)
	require.Len(t, view.Items, 1)
	require.Equal(t, f.owner.bech32(), view.Owner)

	decodeResult(t, env.call(t, "kiosk_hasItem", map[string]string{"kioskId": hexID(f.kioskID), "assetId": f.assetID}, ""), &present)
	require.True(t, present)

	var asset AssetJSON
	decodeResult(t, env.call(t, "kiosk_withdrawItem", map[string]string{"assetId": f.assetID}, f.token), &asset)
	require.Equal(t, f.owner.bech32(), asset.Holder)
	require.Empty(t, asset.Kiosk)

	decodeResult(t, env.call(t, "kiosk_close", nil, f.token), &amount)
	require.Equal(t, "0", amount.Amount)

	requireCode(t, env.call(t, "kiosk_get", map[string]string{"kioskId": hexID(f.kioskID)}, ""), http.StatusNotFound, codeNotFound)
	requireCode(t, env.call(t, "kiosk_placeOffer", map[string]string{"assetId": f.assetID, "amount": "1"}, f.token), http.StatusForbidden, codeUnauthorized)

	var evts []EventJSON
	decodeResult(t, env.call(t, "kiosk_listEvents", map[string]string{"kioskId": hexID(f.kioskID)}, ""), &evts)
	types := make([]string, 0, len(evts))
	for _, evt := range evts {
		types = append(types, evt.Type)
	}
	require.Equal(t, []string{
		kiosk.EventTypeKioskCreated,
		kiosk.EventTypeOfferPlaced,
		kiosk.EventTypeOfferAccepted,
		kiosk.EventTypeItemWithdrawn,
		kiosk.EventTypeKioskClosed,
	}, types)
	require.Equal(t, f.assetID, evts[1].AssetID)
	require.Equal(t, "100", evts[1].Attributes["amount"])
}

func TestKioskCancelRefundsOwner(t *testing.T) {
	f := newKioskFixture(t)
	env := f.env
	var amount AmountResult
	decodeResult(t, env.call(t, "kiosk_placeOffer", map[string]string{"assetId": f.assetID, "amount": "250"}, f.token), &amount)
	requireCode(t, env.call(t, "kiosk_placeOffer", map[string]string{"assetId": f.assetID, "amount": "1"}, f.token), http.StatusConflict, codeConflict)

	decodeResult(t, env.call(t, "kiosk_cancelOffer", map[string]string{"assetId": f.assetID}, f.token), &amount)
	require.Equal(t, "250", amount.Amount)
	require.Equal(t, "1000", f.balance(t, f.owner))

	requireCode(t, env.call(t, "kiosk_cancelOffer", map[string]string{"assetId": f.assetID}, f.token), http.StatusNotFound, codeNotFound)
	requireCode(t, f.accept(t, f.fulfiller), http.StatusNotFound, codeNotFound)
}

func TestKioskAcceptRequiresFulfillerSignature(t *testing.T) {
	f := newKioskFixture(t)
	var amount AmountResult
	decodeResult(t, f.env.call(t, "kiosk_placeOffer", map[string]string{"assetId": f.assetID, "amount": "10"}, f.token), &amount)

	requireCode(t, f.accept(t, f.owner), http.StatusUnauthorized, codeUnauthorized)

	var present bool
	decodeResult(t, f.env.call(t, "kiosk_hasOffer", map[string]string{"kioskId": hexID(f.kioskID), "assetId": f.assetID}, ""), &present)
	require.True(t, present)
}

func TestKioskProfitsDepositAndWithdrawAll(t *testing.T) {
	f := newKioskFixture(t)
	env := f.env
	var amount AmountResult
	decodeResult(t, env.call(t, "kiosk_depositProfits", map[string]string{"amount": "70"}, f.token), &amount)
	require.Equal(t, "930", f.balance(t, f.owner))

	decodeResult(t, env.call(t, "kiosk_withdraw", map[string]string{"amount": "20"}, f.token), &amount)
	require.Equal(t, "20", amount.Amount)
	requireCode(t, env.call(t, "kiosk_withdraw", map[string]string{"amount": "51"}, f.token), http.StatusConflict, codeInsufficient)

	decodeResult(t, env.call(t, "kiosk_withdraw", nil, f.token), &amount)
	require.Equal(t, "50", amount.Amount)
	require.Equal(t, "1000", f.balance(t, f.owner))
}

func TestKioskCloseRejectsNonEmpty(t *testing.T) {
	f := newKioskFixture(t)
	var amount AmountResult
	decodeResult(t, f.env.call(t, "kiosk_placeOffer", map[string]string{"assetId": f.assetID, "amount": "5"}, f.token), &amount)
	requireCode(t, f.env.call(t, "kiosk_close", nil, f.token), http.StatusConflict, codeConflict)
}

func TestKioskPlaceOfferInsufficientFunds(t *testing.T) {
	f := newKioskFixture(t)
	requireCode(t, f.env.call(t, "kiosk_placeOffer", map[string]string{"assetId": f.assetID, "amount": "1001"}, f.token), http.StatusConflict, codeInsufficient)
	requireCode(t, f.env.call(t, "kiosk_placeOffer", map[string]string{"assetId": f.assetID, "amount": "-1"}, f.token), http.StatusBadRequest, codeInvalidParams)
	require.Equal(t, "1000", f.balance(t, f.owner))
}

func TestKioskSetOwnerNeedsConsent(t *testing.T) {
	f := newKioskFixture(t)
	env := f.env
	next := newActor(t)
	deadline := env.now.Unix() + 60
	digest := SetOwnerDigest(f.kioskID, next.addr, deadline)

	resp := env.call(t, "kiosk_setOwner", map[string]interface{}{
		"owner": next.bech32(), "deadline": deadline, "signature": f.owner.sign(t, digest),
	}, f.token)
	requireCode(t, resp, http.StatusUnauthorized, codeUnauthorized)

	var ok bool
	decodeResult(t, env.call(t, "kiosk_setOwner", map[string]interface{}{
		"owner": next.bech32(), "deadline": deadline, "signature": next.sign(t, digest),
	}, f.token), &ok)
	require.True(t, ok)

	var view KioskJSON
	decodeResult(t, env.call(t, "kiosk_get", map[string]string{"kioskId": hexID(f.kioskID)}, ""), &view)
	require.Equal(t, next.bech32(), view.Owner)
}

func TestKioskCreateSignatureChecks(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := newActor(t)
	other := newActor(t)
	var salt [32]byte

	deadline := env.now.Unix() + 60
	resp := env.call(t, "kiosk_create", map[string]interface{}{
		"owner": owner.bech32(), "deadline": deadline, "signature": other.sign(t, CreateDigest(owner.addr, salt, deadline)),
	}, "")
	requireCode(t, resp, http.StatusUnauthorized, codeUnauthorized)

	expired := env.now.Unix() - 1
	resp = env.call(t, "kiosk_create", map[string]interface{}{
		"owner": owner.bech32(), "deadline": expired, "signature": owner.sign(t, CreateDigest(owner.addr, salt, expired)),
	}, "")
	requireCode(t, resp, http.StatusUnauthorized, codeUnauthorized)

	far := env.now.Unix() + 86400
	resp = env.call(t, "kiosk_create", map[string]interface{}{
		"owner": owner.bech32(), "deadline": far, "signature": owner.sign(t, CreateDigest(owner.addr, salt, far)),
	}, "")
	requireCode(t, resp, http.StatusBadRequest, codeInvalidParams)

	env.createKiosk(t, owner)
	deadline++
	resp = env.call(t, "kiosk_create", map[string]interface{}{
		"owner": owner.bech32(), "deadline": deadline, "signature": owner.sign(t, CreateDigest(owner.addr, salt, deadline)),
	}, "")
	requireCode(t, resp, http.StatusConflict, codeConflict)
}

func TestKioskRefreshToken(t *testing.T) {
	f := newKioskFixture(t)
	f.env.now = f.env.now.Add(30 * time.Minute)
	var refreshed TokenResult
	decodeResult(t, f.env.call(t, "kiosk_refreshToken", nil, f.token), &refreshed)
	require.Equal(t, f.env.now.Unix()+3600, refreshed.ExpiresAt)

	var amount AmountResult
	decodeResult(t, f.env.call(t, "kiosk_depositProfits", map[string]string{"amount": "1"}, refreshed.Token), &amount)
}

func (f *kioskFixture) recoverToken(t *testing.T, signer actor) testResponse {
	t.Helper()
	deadline := f.env.now.Unix() + 60
	return f.env.call(t, "kiosk_recoverToken", map[string]interface{}{
		"kioskId":   hexID(f.kioskID),
		"deadline":  deadline,
		"signature": signer.sign(t, RecoverTokenDigest(f.kioskID, deadline)),
	}, "")
}

func TestKioskRecoverTokenAfterExpiry(t *testing.T) {
	f := newKioskFixture(t)
	env := f.env
	decodeResult(t, env.call(t, "kiosk_depositProfits", map[string]string{"amount": "25"}, f.token), new(AmountResult))
	env.now = env.now.Add(2 * time.Hour)

	requireCode(t, env.call(t, "kiosk_refreshToken", nil, f.token), http.StatusUnauthorized, codeUnauthorized)
	requireCode(t, env.call(t, "kiosk_close", nil, f.token), http.StatusUnauthorized, codeUnauthorized)

	requireCode(t, f.recoverToken(t, f.fulfiller), http.StatusUnauthorized, codeUnauthorized)

	var recovered TokenResult
	decodeResult(t, f.recoverToken(t, f.owner), &recovered)
	require.Equal(t, env.now.Unix()+3600, recovered.ExpiresAt)

	var amount AmountResult
	decodeResult(t, env.call(t, "kiosk_close", nil, recovered.Token), &amount)
	require.Equal(t, "25", amount.Amount)
	require.Equal(t, "1000", f.balance(t, f.owner))

	requireCode(t, f.recoverToken(t, f.owner), http.StatusNotFound, codeNotFound)
}

func TestKioskRecoverTokenAfterSecretRotation(t *testing.T) {
	f := newKioskFixture(t)
	env := f.env
	rotated, err := NewServer(env.engine, env.index, ServerConfig{
		OperatorToken:    testOperatorToken,
		CapabilitySecret: []byte("rotated-capability-secret"),
		CapabilityTTL:    time.Hour,
	}, env.srv.logger)
	require.NoError(t, err)
	rotated.nowFn = env.srv.nowFn
	env.srv = rotated

	requireCode(t, env.call(t, "kiosk_depositProfits", map[string]string{"amount": "1"}, f.token), http.StatusUnauthorized, codeUnauthorized)

	var recovered TokenResult
	decodeResult(t, f.recoverToken(t, f.owner), &recovered)
	decodeResult(t, env.call(t, "kiosk_depositProfits", map[string]string{"amount": "1"}, recovered.Token), new(AmountResult))
}

func TestKioskRecoverTokenFollowsOwnerChange(t *testing.T) {
	f := newKioskFixture(t)
	env := f.env
	heir := newActor(t)
	deadline := env.now.Unix() + 60
	decodeResult(t, env.call(t, "kiosk_setOwner", map[string]interface{}{
		"owner":     heir.bech32(),
		"deadline":  deadline,
		"signature": heir.sign(t, SetOwnerDigest(f.kioskID, heir.addr, deadline)),
	}, f.token), new(bool))

	requireCode(t, f.recoverToken(t, f.owner), http.StatusUnauthorized, codeUnauthorized)
	var recovered TokenResult
	decodeResult(t, f.recoverToken(t, heir), &recovered)
	require.NotEmpty(t, recovered.Token)
}

func TestKioskPausedModule(t *testing.T) {
	env := newTestEnv(t, nil)
	env.engine.SetPauses(common.NewStaticPauses("kiosk"))
	owner := newActor(t)
	deadline := env.now.Unix() + 60
	var salt [32]byte
	resp := env.call(t, "kiosk_create", map[string]interface{}{
		"owner": owner.bech32(), "deadline": deadline, "signature": owner.sign(t, CreateDigest(owner.addr, salt, deadline)),
	}, "")
	requireCode(t, resp, http.StatusServiceUnavailable, codePaused)
}

func TestAssetTransferSigned(t *testing.T) {
	f := newKioskFixture(t)
	env := f.env
	assetID, err := parseHash32(f.assetID)
	require.NoError(t, err)
	deadline := env.now.Unix() + 60
	params := map[string]interface{}{
		"assetId":   f.assetID,
		"from":      f.fulfiller.bech32(),
		"to":        f.owner.bech32(),
		"deadline":  deadline,
		"signature": f.owner.sign(t, TransferDigest(assetID, f.fulfiller.addr, f.owner.addr, deadline)),
	}
	requireCode(t, env.call(t, "asset_transfer", params, ""), http.StatusUnauthorized, codeUnauthorized)

	params["signature"] = f.fulfiller.sign(t, TransferDigest(assetID, f.fulfiller.addr, f.owner.addr, deadline))
	var asset AssetJSON
	decodeResult(t, env.call(t, "asset_transfer", params, ""), &asset)
	require.Equal(t, f.owner.bech32(), asset.Holder)

	decodeResult(t, env.call(t, "asset_get", map[string]string{"assetId": f.assetID}, ""), &asset)
	require.Equal(t, f.owner.bech32(), asset.Holder)

	requireCode(t, env.call(t, "asset_get", map[string]string{"assetId": hexID([32]byte{9})}, ""), http.StatusNotFound, codeNotFound)
}
