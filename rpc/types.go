package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"offerkiosk/core/types"
	"offerkiosk/crypto"
	"offerkiosk/native/kiosk"
)

// CreateKioskResult is returned by kiosk_create.
type CreateKioskResult struct {
	KioskID   string `json:"kioskId"`
	CapID     string `json:"capId"`
	Owner     string `json:"owner"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// TokenResult is returned by kiosk_refreshToken and kiosk_recoverToken.
type TokenResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type KioskJSON struct {
	ID        string      `json:"id"`
	Owner     string      `json:"owner"`
	ItemCount uint64      `json:"itemCount"`
	Profits   string      `json:"profits"`
	OfferPool string      `json:"offerPool"`
	Offers    []OfferJSON `json:"offers"`
	Items     []AssetJSON `json:"items"`
}

type OfferJSON struct {
	OfferID string `json:"offerId"`
	AssetID string `json:"assetId"`
	Amount  string `json:"amount"`
	Locked  bool   `json:"locked,omitempty"`
}

type AssetJSON struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Data   string `json:"data"`
	Holder string `json:"holder,omitempty"`
	Kiosk  string `json:"kiosk,omitempty"`
}

// AmountResult reports value moved by a call.
type AmountResult struct {
	Amount string `json:"amount"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type EventJSON struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	KioskID    string            `json:"kioskId,omitempty"`
	AssetID    string            `json:"assetId,omitempty"`
	Timestamp  int64             `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

func hexID(id [32]byte) string { return hexutil.Encode(id[:]) }

func formatAddress(addr [20]byte) string { return crypto.AddressFromArray(addr).String() }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func kioskToJSON(k *kiosk.Kiosk) KioskJSON {
	out := KioskJSON{
		ID:        hexID(k.ID()),
		Owner:     formatAddress(k.Owner()),
		ItemCount: k.ItemCount(),
		Profits:   k.ProfitsValue().Dec(),
		OfferPool: k.OfferPoolValue().Dec(),
		Offers:    make([]OfferJSON, 0),
		Items:     make([]AssetJSON, 0),
	}
	for _, offer := range k.Offers() {
		out.Offers = append(out.Offers, OfferJSON{
			OfferID: hexID(offer.OfferID),
			AssetID: hexID(offer.AssetID),
			Amount:  offer.Amount.Dec(),
			Locked:  k.IsLocked(offer.AssetID),
		})
	}
	for _, item := range k.Items() {
		out.Items = append(out.Items, AssetJSON{
			ID:    hexID(item.ID),
			Kind:  item.Kind,
			Data:  hexutil.Encode(item.Data),
			Kiosk: out.ID,
		})
	}
	return out
}

func assetToJSON(record *types.AssetRecord) AssetJSON {
	out := AssetJSON{
		ID:   hexID(record.ID),
		Kind: record.Kind,
		Data: hexutil.Encode(record.Data),
	}
	if record.InKiosk() {
		out.Kiosk = hexID(record.Kiosk)
	} else {
		out.Holder = formatAddress(record.Holder)
	}
	return out
}

// decodeParams requires exactly one parameter object and decodes it into dst,
// rejecting unknown fields.
func decodeParams(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected", nil)
	}
	dec := json.NewDecoder(strings.NewReader(string(req.Params[0])))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidParams("invalid parameter object", err.Error())
	}
	return nil
}

func parseHash32(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, fmt.Errorf("identifier required")
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + trimmed
	}
	decoded, err := hexutil.Decode(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid identifier %q: %w", raw, err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("identifier must be 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func parseOptionalHash32(raw string) ([32]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [32]byte{}, nil
	}
	return parseHash32(raw)
}

func parseBytes(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "0x" {
		return []byte{}, nil
	}
	if !strings.HasPrefix(trimmed, "0x") {
		trimmed = "0x" + trimmed
	}
	return hexutil.Decode(trimmed)
}

func parseAddress(raw string) ([20]byte, error) {
	return crypto.ParseKioskAddress(strings.TrimSpace(raw))
}

// parseAmount decodes a non-negative base-10 amount.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return v, nil
}
