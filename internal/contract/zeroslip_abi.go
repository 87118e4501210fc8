package contract

// ZeroSlip is the built-in ID of the zero-slippage batch trading contract.
const ZeroSlip = "zeroslip"

func init() {
	RegisterBuiltin(BuiltinKind{
		ID:          ZeroSlip,
		Name:        "Zero-Slippage Trader",
		Description: "Batched buy/sell router with slippage bound and owner withdrawals.",
		ABI:         zeroSlipABI,
	})
}

var zeroSlipABI = []ABIEntry{
	fn("approveToken", "nonpayable", params("token", "address", "amount", "uint256")),
	fn("checkTokenAllowance", "view", params("token", "address"), ABIParam{Type: "uint256"}),
	fn("executeTrade", "nonpayable", params(
		"amountIn", "uint256",
		"amountOutMin", "uint256",
		"path", "address[]",
		"deadline", "uint256",
	)),
	fn("executeBatchTrade", "nonpayable", params(
		"buyPath", "address[]",
		"sellPath", "address[]",
		"buyAmountIn", "uint256",
		"sellAmountIn", "uint256",
		"maxSlippagePercent", "uint256",
		"deadline", "uint256",
	)),
	fn("withdrawToken", "nonpayable", params("token", "address", "amount", "uint256")),
	fn("withdrawBNB", "nonpayable", params("amount", "uint256")),
}
