package model

import "github.com/holiman/uint256"

// StxBalance is the native token position of an address over canonical
// events. Balance = TotalReceived - TotalSent.
type StxBalance struct {
	Balance       *uint256.Int
	TotalSent     *uint256.Int
	TotalReceived *uint256.Int
}

// FtBalance is a fungible token position for one asset identifier.
type FtBalance struct {
	Balance       *uint256.Int
	TotalSent     *uint256.Int
	TotalReceived *uint256.Int
}

// NftCount is a non-fungible token position for one asset identifier.
// Count = TotalReceived - TotalSent.
type NftCount struct {
	Count         int64
	TotalSent     int64
	TotalReceived int64
}
