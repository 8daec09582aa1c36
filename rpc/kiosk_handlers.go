package rpc

import (
	"math/big"
	"net/http"
	"strings"

	"offerkiosk/indexer"
)

type kioskCreateParams struct {
	Owner string `json:"owner"`
	Salt  string `json:"salt,omitempty"`
	Signed
}

type kioskRecoverTokenParams struct {
	KioskID string `json:"kioskId"`
	Signed
}

type kioskSetOwnerParams struct {
	Owner string `json:"owner"`
	Signed
}

type kioskAssetParams struct {
	AssetID string `json:"assetId"`
}

type kioskPlaceOfferParams struct {
	AssetID string `json:"assetId"`
	Amount  string `json:"amount"`
}

type kioskAcceptParams struct {
	KioskID   string `json:"kioskId"`
	AssetID   string `json:"assetId"`
	Fulfiller string `json:"fulfiller"`
	Signed
}

type kioskAmountParams struct {
	Amount string `json:"amount"`
}

type kioskWithdrawParams struct {
	// Amount is optional; omitted withdraws the whole profit pool.
	Amount *string `json:"amount,omitempty"`
}

type kioskIDParams struct {
	KioskID string `json:"kioskId"`
}

type kioskLookupParams struct {
	KioskID string `json:"kioskId"`
	AssetID string `json:"assetId"`
}

type kioskListEventsParams struct {
	KioskID string `json:"kioskId,omitempty"`
	AssetID string `json:"assetId,omitempty"`
	Type    string `json:"type,omitempty"`
	After   uint64 `json:"after,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func (s *Server) handleKioskCreate(call *rpcCall) (interface{}, *RPCError) {
	var params kioskCreateParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return nil, invalidParams("invalid owner", err.Error())
	}
	salt, err := parseOptionalHash32(params.Salt)
	if err != nil {
		return nil, invalidParams("invalid salt", err.Error())
	}
	if rpcErr := s.verifySigned(params.Signed, CreateDigest(owner, salt, params.Deadline), owner); rpcErr != nil {
		return nil, rpcErr
	}
	k, capability, err := s.engine.CreateKiosk(owner, salt)
	if err != nil {
		return nil, engineError(err)
	}
	token, expires, err := s.tokens.Issue(capability.ID(), k.ID(), s.now())
	if err != nil {
		return nil, engineError(err)
	}
	return CreateKioskResult{
		KioskID:   hexID(k.ID()),
		CapID:     hexID(capability.ID()),
		Owner:     formatAddress(owner),
		Token:     token,
		ExpiresAt: expires.Unix(),
	}, nil
}

func (s *Server) handleKioskRefreshToken(call *rpcCall) (interface{}, *RPCError) {
	if len(call.req.Params) > 0 {
		return nil, invalidParams("no parameters expected", nil)
	}
	capability, err := s.engine.Capability(call.capID)
	if err != nil {
		return nil, engineError(err)
	}
	token, expires, err := s.tokens.Issue(capability.ID(), capability.KioskID(), s.now())
	if err != nil {
		return nil, engineError(err)
	}
	return TokenResult{Token: token, ExpiresAt: expires.Unix()}, nil
}

// handleKioskRecoverToken issues a capability token to the kiosk's current
// owner address. Tokens that expired or were signed with a rotated secret are
// replaced this way; the capability itself lives as long as the kiosk.
func (s *Server) handleKioskRecoverToken(call *rpcCall) (interface{}, *RPCError) {
	var params kioskRecoverTokenParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	kioskID, err := parseHash32(params.KioskID)
	if err != nil {
		return nil, invalidParams("invalid kioskId", err.Error())
	}
	k, err := s.engine.Kiosk(kioskID)
	if err != nil {
		return nil, engineError(err)
	}
	if rpcErr := s.verifySigned(params.Signed, RecoverTokenDigest(kioskID, params.Deadline), k.Owner()); rpcErr != nil {
		return nil, rpcErr
	}
	capability, err := s.engine.OwnerCapability(kioskID)
	if err != nil {
		return nil, engineError(err)
	}
	token, expires, err := s.tokens.Issue(capability.ID(), capability.KioskID(), s.now())
	if err != nil {
		return nil, engineError(err)
	}
	s.logger.Info("capability token recovered", "kioskId", hexID(kioskID))
	return TokenResult{Token: token, ExpiresAt: expires.Unix()}, nil
}

// handleKioskSetOwner changes the advisory owner. Besides the capability it
// requires a signature from the new owner address, which is debited for
// offers and profit deposits from then on.
func (s *Server) handleKioskSetOwner(call *rpcCall) (interface{}, *RPCError) {
	var params kioskSetOwnerParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return nil, invalidParams("invalid owner", err.Error())
	}
	capability, err := s.engine.Capability(call.capID)
	if err != nil {
		return nil, engineError(err)
	}
	if rpcErr := s.verifySigned(params.Signed, SetOwnerDigest(capability.KioskID(), owner, params.Deadline), owner); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.SetOwner(call.capID, owner); err != nil {
		return nil, engineError(err)
	}
	return true, nil
}

func (s *Server) handleKioskPlaceOffer(call *rpcCall) (interface{}, *RPCError) {
	var params kioskPlaceOfferParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	assetID, err := parseHash32(params.AssetID)
	if err != nil {
		return nil, invalidParams("invalid assetId", err.Error())
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams("invalid amount", err.Error())
	}
	if err := s.engine.PlaceOffer(call.capID, assetID, amount); err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: formatAmount(amount)}, nil
}

func (s *Server) handleKioskCancelOffer(call *rpcCall) (interface{}, *RPCError) {
	var params kioskAssetParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	assetID, err := parseHash32(params.AssetID)
	if err != nil {
		return nil, invalidParams("invalid assetId", err.Error())
	}
	refund, err := s.engine.CancelOffer(call.capID, assetID)
	if err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: formatAmount(refund)}, nil
}

func (s *Server) handleKioskAcceptOffer(call *rpcCall) (interface{}, *RPCError) {
	var params kioskAcceptParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	kioskID, err := parseHash32(params.KioskID)
	if err != nil {
		return nil, invalidParams("invalid kioskId", err.Error())
	}
	assetID, err := parseHash32(params.AssetID)
	if err != nil {
		return nil, invalidParams("invalid assetId", err.Error())
	}
	fulfiller, err := parseAddress(params.Fulfiller)
	if err != nil {
		return nil, invalidParams("invalid fulfiller", err.Error())
	}
	if rpcErr := s.verifySigned(params.Signed, AcceptDigest(kioskID, assetID, fulfiller, params.Deadline), fulfiller); rpcErr != nil {
		return nil, rpcErr
	}
	paid, err := s.engine.AcceptOffer(kioskID, fulfiller, assetID)
	if err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: formatAmount(paid)}, nil
}

func (s *Server) handleKioskWithdrawItem(call *rpcCall) (interface{}, *RPCError) {
	var params kioskAssetParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	assetID, err := parseHash32(params.AssetID)
	if err != nil {
		return nil, invalidParams("invalid assetId", err.Error())
	}
	if err := s.engine.WithdrawItem(call.capID, assetID); err != nil {
		return nil, engineError(err)
	}
	record, err := s.engine.Asset(assetID)
	if err != nil {
		return nil, engineError(err)
	}
	return assetToJSON(record), nil
}

func (s *Server) handleKioskDepositProfits(call *rpcCall) (interface{}, *RPCError) {
	var params kioskAmountParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams("invalid amount", err.Error())
	}
	if err := s.engine.DepositProfits(call.capID, amount); err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: formatAmount(amount)}, nil
}

func (s *Server) handleKioskWithdraw(call *rpcCall) (interface{}, *RPCError) {
	var params kioskWithdrawParams
	if len(call.req.Params) > 0 {
		if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
			return nil, rpcErr
		}
	}
	var requested *big.Int
	if params.Amount != nil {
		amount, err := parseAmount(*params.Amount)
		if err != nil {
			return nil, invalidParams("invalid amount", err.Error())
		}
		requested = amount
	}
	out, err := s.engine.Withdraw(call.capID, requested)
	if err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: formatAmount(out)}, nil
}

func (s *Server) handleKioskClose(call *rpcCall) (interface{}, *RPCError) {
	if len(call.req.Params) > 0 {
		return nil, invalidParams("no parameters expected", nil)
	}
	returned, err := s.engine.Close(call.capID)
	if err != nil {
		return nil, engineError(err)
	}
	return AmountResult{Amount: formatAmount(returned)}, nil
}

func (s *Server) handleKioskGet(call *rpcCall) (interface{}, *RPCError) {
	var params kioskIDParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	kioskID, err := parseHash32(params.KioskID)
	if err != nil {
		return nil, invalidParams("invalid kioskId", err.Error())
	}
	k, err := s.engine.Kiosk(kioskID)
	if err != nil {
		return nil, engineError(err)
	}
	return kioskToJSON(k), nil
}

func (s *Server) lookup(call *rpcCall) ([32]byte, [32]byte, *RPCError) {
	var params kioskLookupParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return [32]byte{}, [32]byte{}, rpcErr
	}
	kioskID, err := parseHash32(params.KioskID)
	if err != nil {
		return [32]byte{}, [32]byte{}, invalidParams("invalid kioskId", err.Error())
	}
	assetID, err := parseHash32(params.AssetID)
	if err != nil {
		return [32]byte{}, [32]byte{}, invalidParams("invalid assetId", err.Error())
	}
	return kioskID, assetID, nil
}

func (s *Server) handleKioskHasOffer(call *rpcCall) (interface{}, *RPCError) {
	kioskID, assetID, rpcErr := s.lookup(call)
	if rpcErr != nil {
		return nil, rpcErr
	}
	k, err := s.engine.Kiosk(kioskID)
	if err != nil {
		return nil, engineError(err)
	}
	return k.HasOffer(assetID), nil
}

func (s *Server) handleKioskHasItem(call *rpcCall) (interface{}, *RPCError) {
	kioskID, assetID, rpcErr := s.lookup(call)
	if rpcErr != nil {
		return nil, rpcErr
	}
	k, err := s.engine.Kiosk(kioskID)
	if err != nil {
		return nil, engineError(err)
	}
	return k.HasItem(assetID), nil
}

func (s *Server) handleKioskListEvents(call *rpcCall) (interface{}, *RPCError) {
	if s.index == nil {
		return nil, newError(http.StatusInternalServerError, codeServerError, "event index not configured", nil)
	}
	var params kioskListEventsParams
	if len(call.req.Params) > 0 {
		if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
			return nil, rpcErr
		}
	}
	q := indexer.Query{Type: strings.TrimSpace(params.Type), AfterID: params.After, Limit: params.Limit}
	if params.KioskID != "" {
		id, err := parseHash32(params.KioskID)
		if err != nil {
			return nil, invalidParams("invalid kioskId", err.Error())
		}
		q.KioskID = strings.TrimPrefix(hexID(id), "0x")
	}
	if params.AssetID != "" {
		id, err := parseHash32(params.AssetID)
		if err != nil {
			return nil, invalidParams("invalid assetId", err.Error())
		}
		q.AssetID = strings.TrimPrefix(hexID(id), "0x")
	}
	records, err := s.index.List(call.r.Context(), q)
	if err != nil {
		return nil, engineError(err)
	}
	out := make([]EventJSON, 0, len(records))
	for _, record := range records {
		attrs, err := record.Decode()
		if err != nil {
			return nil, engineError(err)
		}
		evt := EventJSON{
			ID:         record.ID,
			Type:       record.Type,
			Timestamp:  record.Timestamp,
			Attributes: attrs,
		}
		if record.KioskID != "" {
			evt.KioskID = "0x" + record.KioskID
		}
		if record.AssetID != "" {
			evt.AssetID = "0x" + record.AssetID
		}
		out = append(out, evt)
	}
	return out, nil
}
