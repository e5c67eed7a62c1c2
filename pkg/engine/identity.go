package engine

import "encoding/hex"

// Identity is the 256-bit caller identity attached to every reducer
// call, matching the original datastore's Identity type. This package
// only carries it through to the reducer and the commit-log/
// subscription layer; authentication and identity issuance are out of
// scope.
type Identity [32]byte

func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}
