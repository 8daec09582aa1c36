package rpc

import (
	"net/http"
	"time"

	"offerkiosk/crypto"
)

// Requests that act on behalf of an address rather than a capability are
// signed by that address over a digest that names the method, a deadline and
// every field the request commits to.

func CreateDigest(owner [20]byte, salt [32]byte, deadline int64) [32]byte {
	return crypto.RequestDigest("kiosk_create", deadline, owner[:], salt[:])
}

func SetOwnerDigest(kioskID [32]byte, owner [20]byte, deadline int64) [32]byte {
	return crypto.RequestDigest("kiosk_setOwner", deadline, kioskID[:], owner[:])
}

func RecoverTokenDigest(kioskID [32]byte, deadline int64) [32]byte {
	return crypto.RequestDigest("kiosk_recoverToken", deadline, kioskID[:])
}

func AcceptDigest(kioskID, assetID [32]byte, fulfiller [20]byte, deadline int64) [32]byte {
	return crypto.RequestDigest("kiosk_acceptOffer", deadline, kioskID[:], assetID[:], fulfiller[:])
}

func TransferDigest(assetID [32]byte, from, to [20]byte, deadline int64) [32]byte {
	return crypto.RequestDigest("asset_transfer", deadline, assetID[:], from[:], to[:])
}

// Signed is embedded in the parameters of address-authorised methods.
type Signed struct {
	Deadline  int64  `json:"deadline"`
	Signature string `json:"signature"`
}

// verifySigned checks that signer produced the signature over digest and that
// the deadline has not passed and is not unreasonably far away.
func (s *Server) verifySigned(signed Signed, digest [32]byte, signer [20]byte) *RPCError {
	now := s.now().Unix()
	if signed.Deadline < now {
		return newError(http.StatusUnauthorized, codeUnauthorized, "signature expired", signed.Deadline)
	}
	if signed.Deadline > now+int64(s.cfg.SignatureSkew/time.Second) {
		return invalidParams("deadline too far in the future", signed.Deadline)
	}
	sig, err := parseBytes(signed.Signature)
	if err != nil {
		return invalidParams("invalid signature encoding", err.Error())
	}
	recovered, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		return newError(http.StatusUnauthorized, codeUnauthorized, "invalid signature", err.Error())
	}
	if recovered != signer {
		return newError(http.StatusUnauthorized, codeUnauthorized, "signature does not match signer", nil)
	}
	return nil
}
