package main

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"offerkiosk/crypto"
	"offerkiosk/rpc"
)

func parseID(flagName, raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, fmt.Errorf("--%s is required", flagName)
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + trimmed
	}
	decoded, err := hexutil.Decode(trimmed)
	if err != nil || len(decoded) != len(out) {
		return out, fmt.Errorf("--%s must be a 32-byte hex string", flagName)
	}
	copy(out[:], decoded)
	return out, nil
}

func parseAddressFlag(flagName, raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, fmt.Errorf("--%s is required", flagName)
	}
	addr, err := crypto.ParseKioskAddress(strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, fmt.Errorf("--%s: %v", flagName, err)
	}
	return addr, nil
}

func parseAmountFlag(raw string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if trimmed == "" {
		return "", fmt.Errorf("--amount is required")
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return "", fmt.Errorf("--amount must be a non-negative integer")
	}
	return v.String(), nil
}

func noPositional(fs interface{ NArg() int }, stderr io.Writer) bool {
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func runCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("create", stderr)
	keyPath := fs.String("key", "", "keystore of the kiosk owner")
	saltRaw := fs.String("salt", "", "optional 32-byte hex salt")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	var salt [32]byte
	if strings.TrimSpace(*saltRaw) != "" {
		var err error
		if salt, err = parseID("salt", *saltRaw); err != nil {
			return printError(stderr, err.Error())
		}
	}
	s, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	deadline := signatureDeadline()
	sig, err := s.sign(rpc.CreateDigest(s.addr, salt, deadline))
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{
		"owner":     s.address(),
		"salt":      hexutil.Encode(salt[:]),
		"deadline":  deadline,
		"signature": sig,
	}
	return invoke(stdout, stderr, "kiosk_create", params, "")
}

func runRefreshToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("refresh-token", stderr)
	capFlag := fs.String("cap", "", "capability token")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	token, err := capabilityToken(*capFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "kiosk_refreshToken", nil, token)
}

func runRecoverToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("recover-token", stderr)
	kioskRaw := fs.String("kiosk", "", "kiosk identifier")
	keyPath := fs.String("key", "", "keystore of the current kiosk owner")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	kioskID, err := parseID("kiosk", *kioskRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	s, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	deadline := signatureDeadline()
	sig, err := s.sign(rpc.RecoverTokenDigest(kioskID, deadline))
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{
		"kioskId":   hexutil.Encode(kioskID[:]),
		"deadline":  deadline,
		"signature": sig,
	}
	return invoke(stdout, stderr, "kiosk_recoverToken", params, "")
}

func runSetOwner(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("set-owner", stderr)
	capFlag := fs.String("cap", "", "capability token")
	kioskRaw := fs.String("kiosk", "", "kiosk identifier")
	keyPath := fs.String("key", "", "keystore of the new owner")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	kioskID, err := parseID("kiosk", *kioskRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	token, err := capabilityToken(*capFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	s, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	deadline := signatureDeadline()
	sig, err := s.sign(rpc.SetOwnerDigest(kioskID, s.addr, deadline))
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{
		"owner":     s.address(),
		"deadline":  deadline,
		"signature": sig,
	}
	return invoke(stdout, stderr, "kiosk_setOwner", params, token)
}

func runPlaceOffer(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("place-offer", stderr)
	capFlag := fs.String("cap", "", "capability token")
	assetRaw := fs.String("asset", "", "asset identifier")
	amountRaw := fs.String("amount", "", "payment escrowed for the asset")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	assetID, err := parseID("asset", *assetRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	amount, err := parseAmountFlag(*amountRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	token, err := capabilityToken(*capFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{"assetId": hexutil.Encode(assetID[:]), "amount": amount}
	return invoke(stdout, stderr, "kiosk_placeOffer", params, token)
}

// runAssetCapCommand handles the capability gated commands that only name an
// asset.
func runAssetCapCommand(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	capFlag := fs.String("cap", "", "capability token")
	assetRaw := fs.String("asset", "", "asset identifier")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	assetID, err := parseID("asset", *assetRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	token, err := capabilityToken(*capFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, method, map[string]interface{}{"assetId": hexutil.Encode(assetID[:])}, token)
}

func runCancelOffer(args []string, stdout, stderr io.Writer) int {
	return runAssetCapCommand("cancel-offer", "kiosk_cancelOffer", args, stdout, stderr)
}

func runWithdrawItem(args []string, stdout, stderr io.Writer) int {
	return runAssetCapCommand("withdraw-item", "kiosk_withdrawItem", args, stdout, stderr)
}

func runAccept(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("accept", stderr)
	kioskRaw := fs.String("kiosk", "", "kiosk identifier")
	assetRaw := fs.String("asset", "", "asset to deliver")
	keyPath := fs.String("key", "", "keystore of the fulfiller holding the asset")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	kioskID, err := parseID("kiosk", *kioskRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	assetID, err := parseID("asset", *assetRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	s, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	deadline := signatureDeadline()
	sig, err := s.sign(rpc.AcceptDigest(kioskID, assetID, s.addr, deadline))
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{
		"kioskId":   hexutil.Encode(kioskID[:]),
		"assetId":   hexutil.Encode(assetID[:]),
		"fulfiller": s.address(),
		"deadline":  deadline,
		"signature": sig,
	}
	return invoke(stdout, stderr, "kiosk_acceptOffer", params, "")
}

func runDepositProfits(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("deposit-profits", stderr)
	capFlag := fs.String("cap", "", "capability token")
	amountRaw := fs.String("amount", "", "amount debited from the owner")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	amount, err := parseAmountFlag(*amountRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	token, err := capabilityToken(*capFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "kiosk_depositProfits", map[string]interface{}{"amount": amount}, token)
}

func runWithdraw(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("withdraw", stderr)
	capFlag := fs.String("cap", "", "capability token")
	amountRaw := fs.String("amount", "", "amount to withdraw; omit to empty the profit pool")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	params := map[string]interface{}{}
	if strings.TrimSpace(*amountRaw) != "" {
		amount, err := parseAmountFlag(*amountRaw)
		if err != nil {
			return printError(stderr, err.Error())
		}
		params["amount"] = amount
	}
	token, err := capabilityToken(*capFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "kiosk_withdraw", params, token)
}

func runClose(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("close", stderr)
	capFlag := fs.String("cap", "", "capability token")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	token, err := capabilityToken(*capFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "kiosk_close", nil, token)
}

func runGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("get", stderr)
	kioskRaw := fs.String("kiosk", "", "kiosk identifier")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	kioskID, err := parseID("kiosk", *kioskRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "kiosk_get", map[string]interface{}{"kioskId": hexutil.Encode(kioskID[:])}, "")
}

func runLookup(name, method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(name, stderr)
	kioskRaw := fs.String("kiosk", "", "kiosk identifier")
	assetRaw := fs.String("asset", "", "asset identifier")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	kioskID, err := parseID("kiosk", *kioskRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	assetID, err := parseID("asset", *assetRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{
		"kioskId": hexutil.Encode(kioskID[:]),
		"assetId": hexutil.Encode(assetID[:]),
	}
	return invoke(stdout, stderr, method, params, "")
}

func runHasOffer(args []string, stdout, stderr io.Writer) int {
	return runLookup("has-offer", "kiosk_hasOffer", args, stdout, stderr)
}

func runHasItem(args []string, stdout, stderr io.Writer) int {
	return runLookup("has-item", "kiosk_hasItem", args, stdout, stderr)
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	kioskRaw := fs.String("kiosk", "", "only events of this kiosk")
	assetRaw := fs.String("asset", "", "only events naming this asset")
	eventType := fs.String("type", "", "only events of this type")
	after := fs.Uint64("after", 0, "return events with an id above this cursor")
	limit := fs.Int("limit", 0, "page size")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	params := map[string]interface{}{}
	if strings.TrimSpace(*kioskRaw) != "" {
		id, err := parseID("kiosk", *kioskRaw)
		if err != nil {
			return printError(stderr, err.Error())
		}
		params["kioskId"] = hexutil.Encode(id[:])
	}
	if strings.TrimSpace(*assetRaw) != "" {
		id, err := parseID("asset", *assetRaw)
		if err != nil {
			return printError(stderr, err.Error())
		}
		params["assetId"] = hexutil.Encode(id[:])
	}
	if t := strings.TrimSpace(*eventType); t != "" {
		params["type"] = t
	}
	if *after > 0 {
		params["after"] = *after
	}
	if *limit < 0 {
		return printError(stderr, "--limit must not be negative")
	}
	if *limit > 0 {
		params["limit"] = *limit
	}
	return invoke(stdout, stderr, "kiosk_listEvents", params, "")
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	address := fs.String("address", "", "account address")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	if _, err := parseAddressFlag("address", *address); err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "bank_balance", map[string]interface{}{"address": strings.TrimSpace(*address)}, "")
}

func runMint(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint", stderr)
	address := fs.String("address", "", "account to credit")
	amountRaw := fs.String("amount", "", "amount to credit")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	if _, err := parseAddressFlag("address", *address); err != nil {
		return printError(stderr, err.Error())
	}
	amount, err := parseAmountFlag(*amountRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	token, err := operatorToken()
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{"address": strings.TrimSpace(*address), "amount": amount}
	return invoke(stdout, stderr, "bank_mint", params, token)
}

func runMintAsset(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("mint-asset", stderr)
	holder := fs.String("holder", "", "address receiving the asset")
	kind := fs.String("kind", "", "asset kind")
	data := fs.String("data", "", "optional hex payload")
	salt := fs.String("salt", "", "optional 32-byte hex salt")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	if _, err := parseAddressFlag("holder", *holder); err != nil {
		return printError(stderr, err.Error())
	}
	if strings.TrimSpace(*kind) == "" {
		return printError(stderr, "--kind is required")
	}
	params := map[string]interface{}{"holder": strings.TrimSpace(*holder), "kind": *kind}
	if strings.TrimSpace(*data) != "" {
		raw := strings.TrimSpace(*data)
		if !strings.HasPrefix(raw, "0x") {
			raw = "0x" + raw
		}
		if _, err := hexutil.Decode(raw); err != nil {
			return printError(stderr, "--data must be hex encoded")
		}
		params["data"] = raw
	}
	if strings.TrimSpace(*salt) != "" {
		id, err := parseID("salt", *salt)
		if err != nil {
			return printError(stderr, err.Error())
		}
		params["salt"] = hexutil.Encode(id[:])
	}
	token, err := operatorToken()
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "asset_mint", params, token)
}

func runAsset(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("asset", stderr)
	assetRaw := fs.String("asset", "", "asset identifier")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	assetID, err := parseID("asset", *assetRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return invoke(stdout, stderr, "asset_get", map[string]interface{}{"assetId": hexutil.Encode(assetID[:])}, "")
}

func runTransferAsset(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("transfer-asset", stderr)
	assetRaw := fs.String("asset", "", "asset identifier")
	to := fs.String("to", "", "recipient address")
	keyPath := fs.String("key", "", "keystore of the current holder")
	if err := fs.Parse(args); err != nil || !noPositional(fs, stderr) {
		return 1
	}
	assetID, err := parseID("asset", *assetRaw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	toAddr, err := parseAddressFlag("to", *to)
	if err != nil {
		return printError(stderr, err.Error())
	}
	s, err := loadSigner(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	deadline := signatureDeadline()
	sig, err := s.sign(rpc.TransferDigest(assetID, s.addr, toAddr, deadline))
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := map[string]interface{}{
		"assetId":   hexutil.Encode(assetID[:]),
		"from":      s.address(),
		"to":        strings.TrimSpace(*to),
		"deadline":  deadline,
		"signature": sig,
	}
	return invoke(stdout, stderr, "asset_transfer", params, "")
}
