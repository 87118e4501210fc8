package contract

// ERC20 is the built-in ID of the token interface the trade client needs.
//
// Function selectors:
//
//	decimals()          → 0x313ce567
//	balanceOf(address)  → 0x70a08231
//	allowance(a,a)      → 0xdd62ed3e
//	approve(a,u256)     → 0x095ea7b3
const ERC20 = "erc20"

func init() {
	RegisterBuiltin(BuiltinKind{
		ID:          ERC20,
		Name:        "ERC-20 Token",
		Description: "Subset of EIP-20 used for balances and allowances.",
		ABI:         erc20ABI,
	})
}

var erc20ABI = []ABIEntry{
	fn("balanceOf", "view", params("account", "address"), ABIParam{Type: "uint256"}),
	fn("allowance", "view", params("owner", "address", "spender", "address"), ABIParam{Type: "uint256"}),
	fn("decimals", "view", nil, ABIParam{Type: "uint8"}),
	fn("approve", "nonpayable", params("spender", "address", "amount", "uint256"), ABIParam{Type: "bool"}),
}
