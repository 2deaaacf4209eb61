package evm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/x402-paywall"
)

// PrimaryType is the EIP-712 primary type signed for the exact scheme.
const PrimaryType = "TransferWithAuthorization"

// ErrInvalidTypedData indicates typed data that does not match the
// TransferWithAuthorization schema. It is never handed to a signer.
var ErrInvalidTypedData = errors.New("evm: invalid transfer authorization typed data")

var validate = validator.New()

// Domain holds the EIP-712 domain fields of the asset contract.
type Domain struct {
	Name              string `validate:"required"`
	Version           string `validate:"required"`
	ChainID           int64  `validate:"gt=0"`
	VerifyingContract string `validate:"required,eth_addr"`
}

// DomainFor returns the signing domain of req's asset on chain.
func DomainFor(req *x402.PaymentRequirement, chain x402.ChainConfig) Domain {
	return Domain{
		Name:              req.DomainName(),
		Version:           req.DomainVersion(),
		ChainID:           chain.ChainID,
		VerifyingContract: req.Asset,
	}
}

type messageFields struct {
	From        string   `validate:"required,eth_addr"`
	To          string   `validate:"required,eth_addr"`
	Value       *big.Int `validate:"required"`
	ValidAfter  *big.Int `validate:"required"`
	ValidBefore *big.Int `validate:"required"`
}

// TransferWithAuthorizationTypes returns the fixed EIP-712 type schema.
func TransferWithAuthorizationTypes() apitypes.Types {
	return apitypes.Types{
		"EIP712Domain": []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		PrimaryType: []apitypes.Type{
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}
}

// BuildTransferAuthorization assembles the EIP-712 typed data for auth
// under domain and validates it against the schema, including a full
// EIP-712 encoding pass. Any violation returns ErrInvalidTypedData.
func BuildTransferAuthorization(domain Domain, auth *Authorization) (apitypes.TypedData, error) {
	if auth == nil {
		return apitypes.TypedData{}, fmt.Errorf("%w: nil authorization", ErrInvalidTypedData)
	}
	if err := validate.Struct(domain); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("%w: domain: %v", ErrInvalidTypedData, err)
	}

	fields := messageFields{
		From:        auth.From.Hex(),
		To:          auth.To.Hex(),
		Value:       auth.Value,
		ValidAfter:  auth.ValidAfter,
		ValidBefore: auth.ValidBefore,
	}
	if err := validate.Struct(fields); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("%w: message: %v", ErrInvalidTypedData, err)
	}
	if auth.Value.Sign() < 0 {
		return apitypes.TypedData{}, fmt.Errorf("%w: negative value", ErrInvalidTypedData)
	}
	if auth.ValidBefore.Cmp(auth.ValidAfter) <= 0 {
		return apitypes.TypedData{}, fmt.Errorf("%w: validBefore must be after validAfter", ErrInvalidTypedData)
	}

	typedData := apitypes.TypedData{
		Types:       TransferWithAuthorizationTypes(),
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           math.NewHexOrDecimal256(domain.ChainID),
			VerifyingContract: common.HexToAddress(domain.VerifyingContract).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       auth.Value.String(),
			"validAfter":  auth.ValidAfter.String(),
			"validBefore": auth.ValidBefore.String(),
			"nonce":       auth.Nonce.Hex(),
		},
	}

	if _, _, err := apitypes.TypedDataAndHash(typedData); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("%w: %v", ErrInvalidTypedData, err)
	}
	return typedData, nil
}
