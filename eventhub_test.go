package x402

import (
	"reflect"
	"testing"
)

func TestEventHub(t *testing.T) {
	var hub EventHub

	var gotAccounts [][]string
	var gotChains []int64
	stopAccounts := hub.OnAccountsChanged(func(a []string) { gotAccounts = append(gotAccounts, a) })
	stopChains := hub.OnChainChanged(func(id int64) { gotChains = append(gotChains, id) })

	hub.EmitAccountsChanged([]string{"0x1"})
	hub.EmitChainChanged(8453)

	stopAccounts()
	stopChains()
	hub.EmitAccountsChanged(nil)
	hub.EmitChainChanged(1)

	if !reflect.DeepEqual(gotAccounts, [][]string{{"0x1"}}) {
		t.Errorf("accounts = %v", gotAccounts)
	}
	if !reflect.DeepEqual(gotChains, []int64{8453}) {
		t.Errorf("chains = %v", gotChains)
	}
}

func TestEventHub_HandlerMayUnsubscribe(t *testing.T) {
	var hub EventHub
	calls := 0
	var stop func()
	stop = hub.OnAccountsChanged(func([]string) {
		calls++
		stop()
	})

	hub.EmitAccountsChanged([]string{"0x1"})
	hub.EmitAccountsChanged([]string{"0x2"})
	if calls != 1 {
		t.Errorf("handler called %d times", calls)
	}
}
