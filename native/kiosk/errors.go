package kiosk

import "errors"

var (
	// ErrUnauthorized is returned when the presented capability is not bound to
	// the kiosk, has been consumed, or is missing.
	ErrUnauthorized = errors.New("kiosk: unauthorized")
	// ErrAlreadyOffered rejects a second offer for an asset that already has an
	// open offer or a deposited item.
	ErrAlreadyOffered = errors.New("kiosk: asset already offered")
	ErrOfferNotFound  = errors.New("kiosk: offer not found")
	ErrItemNotFound   = errors.New("kiosk: item not found")
	// ErrAmountMismatch signals that internal bookkeeping disagrees with itself.
	// Correct callers never observe it.
	ErrAmountMismatch    = errors.New("kiosk: amount mismatch")
	ErrInsufficientFunds = errors.New("kiosk: insufficient funds")
	ErrNotEmpty          = errors.New("kiosk: kiosk not empty")
	ErrOfferLocked       = errors.New("kiosk: offer locked")
	ErrClosed            = errors.New("kiosk: kiosk closed")
	ErrInvalidAmount     = errors.New("kiosk: invalid amount")
	ErrOverflow          = errors.New("kiosk: balance overflow")

	// Engine errors.
	ErrKioskNotFound    = errors.New("kiosk: kiosk not found")
	ErrKioskExists      = errors.New("kiosk: kiosk already exists")
	ErrAssetNotFound    = errors.New("kiosk: asset not found")
	ErrAssetExists      = errors.New("kiosk: asset already exists")
	ErrAssetNotHeld     = errors.New("kiosk: asset not held by caller")
	ErrInvalidAssetKind = errors.New("kiosk: asset kind required")

	errFieldExists  = errors.New("kiosk: field already exists")
	errFieldMissing = errors.New("kiosk: field missing")
	errFieldType    = errors.New("kiosk: field type mismatch")
	errNilAsset     = errors.New("kiosk: nil asset")
)
