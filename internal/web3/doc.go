// Package web3 defines the read-only EVM access used by the Sei service and
// the operator CLI: chain metadata, native and ERC-20 balances, token
// metadata, transaction lookups and contract detection. Concrete clients live
// in the ethereum subpackage; provider keeps one client per configured chain.
package web3
