package kiosk

import (
	"encoding/hex"

	"github.com/holiman/uint256"

	"offerkiosk/core/types"
)

const (
	EventTypeKioskCreated     = "kiosk.created"
	EventTypeOwnerChanged     = "kiosk.owner.changed"
	EventTypeOfferPlaced      = "kiosk.offer.placed"
	EventTypeOfferCanceled    = "kiosk.offer.canceled"
	EventTypeOfferAccepted    = "kiosk.offer.accepted"
	EventTypeItemWithdrawn    = "kiosk.item.withdrawn"
	EventTypeProfitsDeposited = "kiosk.profits.deposited"
	EventTypeProfitsWithdrawn = "kiosk.profits.withdrawn"
	EventTypeKioskClosed      = "kiosk.closed"
)

// Notification is the explicit record returned by every mutating kiosk
// operation. The engine converts notifications into wire events after commit.
type Notification interface {
	Event() *types.Event
}

type KioskCreated struct {
	KioskID [32]byte
	Owner   [20]byte
}

func (n *KioskCreated) Event() *types.Event {
	attrs := kioskAttrs(n.KioskID)
	attrs["owner"] = hex.EncodeToString(n.Owner[:])
	return &types.Event{Type: EventTypeKioskCreated, Attributes: attrs}
}

type OwnerChanged struct {
	KioskID  [32]byte
	Previous [20]byte
	Owner    [20]byte
}

func (n *OwnerChanged) Event() *types.Event {
	attrs := kioskAttrs(n.KioskID)
	attrs["previous"] = hex.EncodeToString(n.Previous[:])
	attrs["owner"] = hex.EncodeToString(n.Owner[:])
	return &types.Event{Type: EventTypeOwnerChanged, Attributes: attrs}
}

type OfferPlaced struct {
	KioskID [32]byte
	OfferID [32]byte
	AssetID [32]byte
	Amount  *uint256.Int
}

func (n *OfferPlaced) Event() *types.Event {
	return offerEvent(EventTypeOfferPlaced, n.KioskID, n.OfferID, n.AssetID, n.Amount)
}

type OfferCanceled struct {
	KioskID [32]byte
	OfferID [32]byte
	AssetID [32]byte
	Amount  *uint256.Int
}

func (n *OfferCanceled) Event() *types.Event {
	return offerEvent(EventTypeOfferCanceled, n.KioskID, n.OfferID, n.AssetID, n.Amount)
}

type OfferAccepted struct {
	KioskID [32]byte
	OfferID [32]byte
	AssetID [32]byte
	Amount  *uint256.Int
}

func (n *OfferAccepted) Event() *types.Event {
	return offerEvent(EventTypeOfferAccepted, n.KioskID, n.OfferID, n.AssetID, n.Amount)
}

type ItemWithdrawn struct {
	KioskID [32]byte
	AssetID [32]byte
}

func (n *ItemWithdrawn) Event() *types.Event {
	attrs := kioskAttrs(n.KioskID)
	attrs["assetId"] = hex.EncodeToString(n.AssetID[:])
	return &types.Event{Type: EventTypeItemWithdrawn, Attributes: attrs}
}

type ProfitsDeposited struct {
	KioskID [32]byte
	Amount  *uint256.Int
}

func (n *ProfitsDeposited) Event() *types.Event {
	return amountEvent(EventTypeProfitsDeposited, n.KioskID, n.Amount)
}

type ProfitsWithdrawn struct {
	KioskID [32]byte
	Amount  *uint256.Int
}

func (n *ProfitsWithdrawn) Event() *types.Event {
	return amountEvent(EventTypeProfitsWithdrawn, n.KioskID, n.Amount)
}

// KioskClosed reports the residual value returned when a kiosk is destroyed.
type KioskClosed struct {
	KioskID  [32]byte
	Returned *uint256.Int
}

func (n *KioskClosed) Event() *types.Event {
	return amountEvent(EventTypeKioskClosed, n.KioskID, n.Returned)
}

func kioskAttrs(id [32]byte) map[string]string {
	return map[string]string{"kioskId": hex.EncodeToString(id[:])}
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func offerEvent(eventType string, kioskID, offerID, assetID [32]byte, amount *uint256.Int) *types.Event {
	attrs := kioskAttrs(kioskID)
	attrs["offerId"] = hex.EncodeToString(offerID[:])
	attrs["assetId"] = hex.EncodeToString(assetID[:])
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func amountEvent(eventType string, kioskID [32]byte, amount *uint256.Int) *types.Event {
	attrs := kioskAttrs(kioskID)
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: eventType, Attributes: attrs}
}
