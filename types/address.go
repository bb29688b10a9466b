package types

import (
	"sort"

	"github.com/tendermint/tendermint/crypto"
)

// Address identifies one agent in the participant set. It is the
// hex-encoded, truncated hash of the agent's public key, so it can be
// used directly as a map key and compares by value.
type Address string

func AddressFromPubKey(key crypto.PubKey) Address {
	return Address(key.Address().String())
}

func (addr Address) String() string {
	return string(addr)
}

func (addr Address) Equal(other Address) bool {
	return addr == other
}

// SortAddresses returns a sorted copy. Participant lists are kept sorted so
// that every replica iterates them in the same order.
func SortAddresses(addrs []Address) []Address {
	sorted := make([]Address, len(addrs))
	copy(sorted, addrs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

// ContainsAddress reports whether addr appears in addrs.
func ContainsAddress(addrs []Address, addr Address) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}
