package runtime

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/objects"
	"github.com/louisbranch/accord/internal/platform/errors"
)

// bank is the coin ledger. Balances live in the same store layer as the
// invocation that moves them, so a discarded layer also rolls back
// transfers.
type bank struct {
	store kv.Store
}

func bankKey(addr objects.Address, denom string) []byte {
	return []byte(fmt.Sprintf("bank/%s/%s", addr, denom))
}

func (b bank) balance(addr objects.Address, denom string) (uint64, error) {
	raw, err := b.store.Get(bankKey(addr, denom))
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("malformed balance record for %s/%s", addr, denom)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (b bank) setBalance(addr objects.Address, denom string, amount uint64) error {
	key := bankKey(addr, denom)
	if amount == 0 {
		return b.store.Delete(key)
	}
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], amount)
	return b.store.Set(key, raw[:])
}

// mint credits coins out of thin air. Only the runtime's genesis and
// test funding paths use it.
func (b bank) mint(to objects.Address, coins []objects.Coin) error {
	for _, coin := range coins {
		have, err := b.balance(to, coin.Denom)
		if err != nil {
			return err
		}
		if err := b.setBalance(to, coin.Denom, have+coin.Amount); err != nil {
			return err
		}
	}
	return nil
}

// send moves coins between addresses, failing without partial effect
// when any denomination is short. Callers run it inside a cache layer.
func (b bank) send(from, to objects.Address, coins []objects.Coin) error {
	for _, coin := range coins {
		if coin.Amount == 0 {
			continue
		}
		have, err := b.balance(from, coin.Denom)
		if err != nil {
			return err
		}
		if have < coin.Amount {
			return errors.WithMetadata(errors.CodeInsufficientFunds,
				fmt.Sprintf("send %s from %s: balance %d", coin, from, have),
				map[string]string{
					"Denom": coin.Denom,
					"Have":  strconv.FormatUint(have, 10),
					"Need":  strconv.FormatUint(coin.Amount, 10),
				})
		}
		if err := b.setBalance(from, coin.Denom, have-coin.Amount); err != nil {
			return err
		}
		toHave, err := b.balance(to, coin.Denom)
		if err != nil {
			return err
		}
		if err := b.setBalance(to, coin.Denom, toHave+coin.Amount); err != nil {
			return err
		}
	}
	return nil
}

// balances returns every denomination addr holds, in denom order.
func (b bank) balances(addr objects.Address) ([]objects.Coin, error) {
	prefix := []byte(fmt.Sprintf("bank/%s/", addr))
	var coins []objects.Coin
	err := b.store.Iterate(prefix, func(key, value []byte) (bool, error) {
		if len(value) != 8 {
			return false, fmt.Errorf("malformed balance record at %q", key)
		}
		coins = append(coins, objects.Coin{
			Denom:  string(key[len(prefix):]),
			Amount: binary.BigEndian.Uint64(value),
		})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return coins, nil
}
