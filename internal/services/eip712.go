package services

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"minesweeper-rewards/internal/models"
)

const ClaimPrimaryType = "ClaimReward"

var claimTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	ClaimPrimaryType: {
		{Name: "player", Type: "address"},
		{Name: "gameId", Type: "uint256"},
		{Name: "score", Type: "uint256"},
		{Name: "duration", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

// Domain binds claim signatures to one contract on one chain.
type Domain struct {
	Name              string         `json:"name"`
	Version           string         `json:"version"`
	ChainID           *big.Int       `json:"chain_id"`
	VerifyingContract common.Address `json:"verifying_contract"`
}

func (d Domain) typedDomain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(d.ChainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

func (d Domain) typedData(auth *models.ClaimAuthorization) (apitypes.TypedData, error) {
	if auth.Nonce == nil {
		return apitypes.TypedData{}, fmt.Errorf("%w: missing nonce", ErrInvalidSignature)
	}
	return apitypes.TypedData{
		Types:       claimTypes,
		PrimaryType: ClaimPrimaryType,
		Domain:      d.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"player":   auth.Player.Hex(),
			"gameId":   new(big.Int).SetUint64(auth.GameID),
			"score":    new(big.Int).SetUint64(auth.Score),
			"duration": new(big.Int).SetUint64(auth.Duration),
			"nonce":    new(big.Int).Set(auth.Nonce),
			"deadline": big.NewInt(auth.Deadline),
		},
	}, nil
}

func (d Domain) Separator() (common.Hash, error) {
	td := apitypes.TypedData{Types: claimTypes, Domain: d.typedDomain()}
	sep, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(sep), nil
}

// ClaimDigest is keccak256("\x19\x01" || domainSeparator || hashStruct(claim)).
func (d Domain) ClaimDigest(auth *models.ClaimAuthorization) (common.Hash, error) {
	td, err := d.typedData(auth)
	if err != nil {
		return common.Hash{}, err
	}
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return common.BytesToHash(digest), nil
}

// RecoverClaimSigner returns the address that produced auth.Signature.
func (d Domain) RecoverClaimSigner(auth *models.ClaimAuthorization) (common.Address, error) {
	digest, err := d.ClaimDigest(auth)
	if err != nil {
		return common.Address{}, err
	}
	return recoverAddress(digest.Bytes(), auth.Signature)
}

// ClaimSigner is the off-chain authority's signing half. The service itself
// never signs; operators use it through cmd/signclaim and tests use it directly.
type ClaimSigner struct {
	domain Domain
	key    *ecdsa.PrivateKey
}

func NewClaimSigner(domain Domain, key *ecdsa.PrivateKey) *ClaimSigner {
	return &ClaimSigner{domain: domain, key: key}
}

func NewClaimSignerFromHex(domain Domain, hexKey string) (*ClaimSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %v", err)
	}
	return NewClaimSigner(domain, key), nil
}

func (s *ClaimSigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// Sign fills auth.Signature with a 65-byte [R || S || V] signature, V in {27, 28}.
func (s *ClaimSigner) Sign(auth *models.ClaimAuthorization) error {
	digest, err := s.domain.ClaimDigest(auth)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return err
	}
	sig[crypto.RecoveryIDOffset] += 27
	auth.Signature = sig
	return nil
}
