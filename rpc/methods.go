package rpc

import (
	"net/http"
)

type methodAuth int

const (
	authNone methodAuth = iota
	authCapability
	authOperator
)

type rpcCall struct {
	req   *RPCRequest
	r     *http.Request
	capID [32]byte
}

type method struct {
	auth    methodAuth
	handler func(*rpcCall) (interface{}, *RPCError)
}

func (s *Server) routes() map[string]method {
	return map[string]method{
		"kiosk_create":         {authNone, s.handleKioskCreate},
		"kiosk_refreshToken":   {authCapability, s.handleKioskRefreshToken},
		"kiosk_recoverToken":   {authNone, s.handleKioskRecoverToken},
		"kiosk_setOwner":       {authCapability, s.handleKioskSetOwner},
		"kiosk_placeOffer":     {authCapability, s.handleKioskPlaceOffer},
		"kiosk_cancelOffer":    {authCapability, s.handleKioskCancelOffer},
		"kiosk_acceptOffer":    {authNone, s.handleKioskAcceptOffer},
		"kiosk_withdrawItem":   {authCapability, s.handleKioskWithdrawItem},
		"kiosk_depositProfits": {authCapability, s.handleKioskDepositProfits},
		"kiosk_withdraw":       {authCapability, s.handleKioskWithdraw},
		"kiosk_close":          {authCapability, s.handleKioskClose},
		"kiosk_get":            {authNone, s.handleKioskGet},
		"kiosk_hasOffer":       {authNone, s.handleKioskHasOffer},
		"kiosk_hasItem":        {authNone, s.handleKioskHasItem},
		"kiosk_listEvents":     {authNone, s.handleKioskListEvents},
		"bank_balance":         {authNone, s.handleBankBalance},
		"bank_mint":            {authOperator, s.handleBankMint},
		"asset_mint":           {authOperator, s.handleAssetMint},
		"asset_get":            {authNone, s.handleAssetGet},
		"asset_transfer":       {authNone, s.handleAssetTransfer},
	}
}
