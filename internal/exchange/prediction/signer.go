package prediction

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// orderSigner produces the EIP-712 signature a Polymarket-style CLOB
// requires on every order, grounded on the pack's own ClobAuth/order signing
// shape (0xtitan6-polymarket-mm's internal/exchange/auth.go) rather than the
// go-order-utils package, which no example in the pack actually imports.
type orderSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

func newOrderSigner(privKeyHex string, chainID int64) (*orderSigner, error) {
	key, err := crypto.HexToECDSA(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return &orderSigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:    big.NewInt(chainID),
	}, nil
}

// signOrder signs the order's EIP-712 typed-data hash (tokenID, side, price,
// size, maker address), returning a hex-encoded 65-byte signature.
func (s *orderSigner) signOrder(tokenID, side string, price, size string, salt int64) (string, error) {
	domain := apitypes.TypedDataDomain{
		Name:    "Polymarket CTF Exchange",
		Version: "1",
		ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(s.chainID)),
	}
	types := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
		},
		"Order": {
			{Name: "maker", Type: "address"},
			{Name: "tokenId", Type: "string"},
			{Name: "side", Type: "string"},
			{Name: "price", Type: "string"},
			{Name: "size", Type: "string"},
			{Name: "salt", Type: "uint256"},
		},
	}
	message := apitypes.TypedDataMessage{
		"maker":   s.address.Hex(),
		"tokenId": tokenID,
		"side":    side,
		"price":   price,
		"size":    size,
		"salt":    fmt.Sprintf("%d", salt),
	}

	typedData := apitypes.TypedData{Types: types, PrimaryType: "Order", Domain: domain, Message: message}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("typed data hash: %w", err)
	}
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign order: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + common.Bytes2Hex(sig), nil
}
