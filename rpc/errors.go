package rpc

import (
	"errors"
	"net/http"

	"offerkiosk/native/common"
	"offerkiosk/native/kiosk"
)

// engineError maps engine failures onto JSON-RPC error codes.
func engineError(err error) *RPCError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kiosk.ErrUnauthorized):
		return newError(http.StatusForbidden, codeUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, common.ErrModulePaused):
		return newError(http.StatusServiceUnavailable, codePaused, "kiosk module paused", nil)
	case errors.Is(err, kiosk.ErrKioskNotFound),
		errors.Is(err, kiosk.ErrAssetNotFound),
		errors.Is(err, kiosk.ErrOfferNotFound),
		errors.Is(err, kiosk.ErrItemNotFound):
		return newError(http.StatusNotFound, codeNotFound, "not_found", err.Error())
	case errors.Is(err, kiosk.ErrInsufficientFunds):
		return newError(http.StatusConflict, codeInsufficient, "insufficient_funds", err.Error())
	case errors.Is(err, kiosk.ErrAlreadyOffered),
		errors.Is(err, kiosk.ErrKioskExists),
		errors.Is(err, kiosk.ErrAssetExists),
		errors.Is(err, kiosk.ErrAssetNotHeld),
		errors.Is(err, kiosk.ErrNotEmpty),
		errors.Is(err, kiosk.ErrOfferLocked),
		errors.Is(err, kiosk.ErrClosed):
		return newError(http.StatusConflict, codeConflict, "conflict", err.Error())
	case errors.Is(err, kiosk.ErrInvalidAmount), errors.Is(err, kiosk.ErrOverflow):
		return invalidParams("invalid_amount", err.Error())
	case errors.Is(err, kiosk.ErrInvalidAssetKind):
		return invalidParams("invalid_asset_kind", err.Error())
	default:
		return newError(http.StatusInternalServerError, codeServerError, "internal_error", err.Error())
	}
}
