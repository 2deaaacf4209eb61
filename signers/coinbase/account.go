package coinbase

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const evmAccountsPath = "/platform/v2/evm/accounts"

// CDPAccount is a CDP-managed EVM account. EVM accounts are not bound to a
// network; the same address signs on every chain.
type CDPAccount struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type createAccountRequest struct {
	Name string `json:"name"`
}

type listAccountsResponse struct {
	Accounts  []CDPAccount `json:"accounts"`
	NextToken string       `json:"nextPageToken,omitempty"`
}

// CreateOrGetAccount returns the EVM account called name, creating it when
// it does not exist yet. Calling it repeatedly never creates duplicates.
func CreateOrGetAccount(ctx context.Context, client *CDPClient, name string) (*CDPAccount, error) {
	if name == "" {
		return nil, fmt.Errorf("account name is required")
	}

	path := evmAccountsPath
	for {
		var list listAccountsResponse
		if err := client.do(ctx, "GET", path, nil, &list, false); err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		for _, account := range list.Accounts {
			if account.Name == name {
				return validAccount(account)
			}
		}
		if list.NextToken == "" {
			break
		}
		path = evmAccountsPath + "?pageToken=" + list.NextToken
	}

	var created CDPAccount
	if err := client.do(ctx, "POST", evmAccountsPath, createAccountRequest{Name: name}, &created, true); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return validAccount(created)
}

func validAccount(account CDPAccount) (*CDPAccount, error) {
	if !common.IsHexAddress(account.Address) {
		return nil, fmt.Errorf("CDP API returned invalid account address %q", account.Address)
	}
	account.Address = common.HexToAddress(account.Address).Hex()
	return &account, nil
}
