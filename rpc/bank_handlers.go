package rpc

import (
	"strings"
)

type bankAddressParams struct {
	Address string `json:"address"`
}

type bankMintParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type assetMintParams struct {
	Holder string `json:"holder"`
	Kind   string `json:"kind"`
	Data   string `json:"data,omitempty"`
	Salt   string `json:"salt,omitempty"`
}

type assetIDParams struct {
	AssetID string `json:"assetId"`
}

type assetTransferParams struct {
	AssetID string `json:"assetId"`
	From    string `json:"from"`
	To      string `json:"to"`
	Signed
}

func (s *Server) handleBankBalance(call *rpcCall) (interface{}, *RPCError) {
	var params bankAddressParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		return nil, invalidParams("invalid address", err.Error())
	}
	balance, err := s.engine.Balance(addr)
	if err != nil {
		return nil, engineError(err)
	}
	return BalanceResult{Address: formatAddress(addr), Balance: formatAmount(balance)}, nil
}

func (s *Server) handleBankMint(call *rpcCall) (interface{}, *RPCError) {
	var params bankMintParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		return nil, invalidParams("invalid address", err.Error())
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams("invalid amount", err.Error())
	}
	if err := s.engine.Mint(addr, amount); err != nil {
		return nil, engineError(err)
	}
	balance, err := s.engine.Balance(addr)
	if err != nil {
		return nil, engineError(err)
	}
	return BalanceResult{Address: formatAddress(addr), Balance: formatAmount(balance)}, nil
}

func (s *Server) handleAssetMint(call *rpcCall) (interface{}, *RPCError) {
	var params assetMintParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	holder, err := parseAddress(params.Holder)
	if err != nil {
		return nil, invalidParams("invalid holder", err.Error())
	}
	kind := strings.TrimSpace(params.Kind)
	if kind == "" {
		return nil, invalidParams("kind required", nil)
	}
	data, err := parseBytes(params.Data)
	if err != nil {
		return nil, invalidParams("invalid data", err.Error())
	}
	salt, err := parseOptionalHash32(params.Salt)
	if err != nil {
		return nil, invalidParams("invalid salt", err.Error())
	}
	record, err := s.engine.MintAsset(holder, kind, data, salt)
	if err != nil {
		return nil, engineError(err)
	}
	return assetToJSON(record), nil
}

func (s *Server) handleAssetGet(call *rpcCall) (interface{}, *RPCError) {
	var params assetIDParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	assetID, err := parseHash32(params.AssetID)
	if err != nil {
		return nil, invalidParams("invalid assetId", err.Error())
	}
	record, err := s.engine.Asset(assetID)
	if err != nil {
		return nil, engineError(err)
	}
	return assetToJSON(record), nil
}

func (s *Server) handleAssetTransfer(call *rpcCall) (interface{}, *RPCError) {
	var params assetTransferParams
	if rpcErr := decodeParams(call.req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	assetID, err := parseHash32(params.AssetID)
	if err != nil {
		return nil, invalidParams("invalid assetId", err.Error())
	}
	from, err := parseAddress(params.From)
	if err != nil {
		return nil, invalidParams("invalid from", err.Error())
	}
	to, err := parseAddress(params.To)
	if err != nil {
		return nil, invalidParams("invalid to", err.Error())
	}
	if rpcErr := s.verifySigned(params.Signed, TransferDigest(assetID, from, to, params.Deadline), from); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.TransferAsset(from, to, assetID); err != nil {
		return nil, engineError(err)
	}
	record, err := s.engine.Asset(assetID)
	if err != nil {
		return nil, engineError(err)
	}
	return assetToJSON(record), nil
}
