package evm

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mark3labs/x402-paywall"
)

// Test private key (DO NOT use in production)
const testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testAsset = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"

func testDomain() Domain {
	return Domain{
		Name:              "USD Coin",
		Version:           "2",
		ChainID:           84532,
		VerifyingContract: testAsset,
	}
}

func testAuthorization(t *testing.T) *Authorization {
	t.Helper()
	auth, err := NewAuthorization(
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
		big.NewInt(2500),
		3600,
		time.Unix(1_700_000_000, 0),
	)
	if err != nil {
		t.Fatalf("NewAuthorization: %v", err)
	}
	return auth
}

func TestNewAuthorization(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	from := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")

	tests := []struct {
		name            string
		timeout         int
		wantValidBefore int64
	}{
		{"explicit timeout", 60, 1_700_000_060},
		{"zero timeout uses default", 0, 1_700_003_600},
		{"negative timeout uses default", -5, 1_700_003_600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := NewAuthorization(from, to, big.NewInt(2500), tt.timeout, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := auth.ValidAfter.Int64(); got != 1_700_000_000-600 {
				t.Errorf("ValidAfter = %d, want %d", got, 1_700_000_000-600)
			}
			if got := auth.ValidBefore.Int64(); got != tt.wantValidBefore {
				t.Errorf("ValidBefore = %d, want %d", got, tt.wantValidBefore)
			}
			if auth.Nonce == (common.Hash{}) {
				t.Error("nonce should not be zero")
			}
		})
	}
}

func TestNewAuthorization_CopiesValue(t *testing.T) {
	value := big.NewInt(100)
	auth, err := NewAuthorization(common.Address{1}, common.Address{2}, value, 60, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value.SetInt64(999)
	if auth.Value.Int64() != 100 {
		t.Errorf("authorization value changed with caller's big.Int: %s", auth.Value)
	}
}

func TestGenerateNonce_Unique(t *testing.T) {
	seen := make(map[common.Hash]bool)
	for i := 0; i < 64; i++ {
		nonce, err := GenerateNonce()
		if err != nil {
			t.Fatalf("GenerateNonce: %v", err)
		}
		if seen[nonce] {
			t.Fatalf("duplicate nonce %s", nonce.Hex())
		}
		seen[nonce] = true
	}
}

func TestAuthorizationPayload(t *testing.T) {
	auth := testAuthorization(t)
	payload := auth.Payload()

	if payload.From != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Errorf("From = %s", payload.From)
	}
	if payload.Value != "2500" {
		t.Errorf("Value = %s, want 2500", payload.Value)
	}
	if payload.ValidAfter != "1699999400" {
		t.Errorf("ValidAfter = %s, want 1699999400", payload.ValidAfter)
	}
	if payload.ValidBefore != "1700003600" {
		t.Errorf("ValidBefore = %s, want 1700003600", payload.ValidBefore)
	}
	if len(payload.Nonce) != 66 {
		t.Errorf("Nonce length = %d, want 66", len(payload.Nonce))
	}
}

func TestBuildTransferAuthorization(t *testing.T) {
	auth := testAuthorization(t)

	typedData, err := BuildTransferAuthorization(testDomain(), auth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if typedData.PrimaryType != PrimaryType {
		t.Errorf("PrimaryType = %s, want %s", typedData.PrimaryType, PrimaryType)
	}
	if typedData.Domain.Name != "USD Coin" || typedData.Domain.Version != "2" {
		t.Errorf("unexpected domain: %+v", typedData.Domain)
	}
	if typedData.Domain.ChainId == nil || (*big.Int)(typedData.Domain.ChainId).Int64() != 84532 {
		t.Errorf("ChainId = %v, want 84532", typedData.Domain.ChainId)
	}
	if typedData.Message["value"] != "2500" {
		t.Errorf("message value = %v, want 2500", typedData.Message["value"])
	}

	fields := typedData.Types[PrimaryType]
	want := []string{"from", "to", "value", "validAfter", "validBefore", "nonce"}
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i, name := range want {
		if fields[i].Name != name {
			t.Errorf("field %d = %s, want %s", i, fields[i].Name, name)
		}
	}
}

func TestBuildTransferAuthorization_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		domain func(d *Domain)
		auth   func(a *Authorization)
		nilAut bool
	}{
		{name: "nil authorization", nilAut: true},
		{name: "missing domain name", domain: func(d *Domain) { d.Name = "" }},
		{name: "missing domain version", domain: func(d *Domain) { d.Version = "" }},
		{name: "zero chain id", domain: func(d *Domain) { d.ChainID = 0 }},
		{name: "bad verifying contract", domain: func(d *Domain) { d.VerifyingContract = "0x1234" }},
		{name: "nil value", auth: func(a *Authorization) { a.Value = nil }},
		{name: "negative value", auth: func(a *Authorization) { a.Value = big.NewInt(-1) }},
		{name: "nil validAfter", auth: func(a *Authorization) { a.ValidAfter = nil }},
		{name: "window inverted", auth: func(a *Authorization) { a.ValidBefore = big.NewInt(1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domain := testDomain()
			if tt.domain != nil {
				tt.domain(&domain)
			}
			var auth *Authorization
			if !tt.nilAut {
				auth = testAuthorization(t)
				if tt.auth != nil {
					tt.auth(auth)
				}
			}

			_, err := BuildTransferAuthorization(domain, auth)
			if !errors.Is(err, ErrInvalidTypedData) {
				t.Errorf("expected ErrInvalidTypedData, got %v", err)
			}
		})
	}
}

func TestDomainFor(t *testing.T) {
	req := &x402.PaymentRequirement{
		Network: x402.NetworkBaseSepolia,
		Asset:   testAsset,
		Extra:   map[string]interface{}{"name": "USDC", "version": "2"},
	}
	domain := DomainFor(req, x402.BaseSepolia)

	if domain.Name != "USDC" || domain.Version != "2" {
		t.Errorf("unexpected domain fields: %+v", domain)
	}
	if domain.ChainID != 84532 {
		t.Errorf("ChainID = %d, want 84532", domain.ChainID)
	}
	if domain.VerifyingContract != testAsset {
		t.Errorf("VerifyingContract = %s", domain.VerifyingContract)
	}
}

func TestSignTypedData_RecoversSigner(t *testing.T) {
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("failed to parse key: %v", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	auth := testAuthorization(t)
	auth.From = address
	typedData, err := BuildTransferAuthorization(testDomain(), auth)
	if err != nil {
		t.Fatalf("BuildTransferAuthorization: %v", err)
	}

	signature, err := SignTypedData(key, typedData)
	if err != nil {
		t.Fatalf("SignTypedData: %v", err)
	}
	if len(signature) != 132 {
		t.Errorf("signature length = %d, want 132", len(signature))
	}
	if v := signature[130:]; v != "1b" && v != "1c" {
		t.Errorf("v = %s, want 1b or 1c", v)
	}

	recovered, err := RecoverSigner(typedData, signature)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if recovered != address {
		t.Errorf("recovered %s, want %s", recovered.Hex(), address.Hex())
	}
}

func TestRecoverSigner_InvalidSignature(t *testing.T) {
	typedData, err := BuildTransferAuthorization(testDomain(), testAuthorization(t))
	if err != nil {
		t.Fatalf("BuildTransferAuthorization: %v", err)
	}

	for _, sig := range []string{"", "0x1234", "not-hex"} {
		if _, err := RecoverSigner(typedData, sig); err == nil {
			t.Errorf("RecoverSigner(%q) expected error", sig)
		}
	}
}
