package chain

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// DestinationChainClient narrows *ethclient.Client to exactly what the
// executor and reconciler need (§4.B, §4.C, §6). A concrete adapter
// wraps *ethclient.Client directly; tests substitute a fake.
type DestinationChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (tx *types.Transaction, isPending bool, err error)
	NetworkID(ctx context.Context) (*big.Int, error)
}

// EthClient adapts *ethclient.Client to DestinationChainClient, the way
// the teacher dials ethclient.Client directly in bridge.Watcher and
// relayer.Relayer.
type EthClient struct {
	*ethclient.Client
}

func DialEthClient(rpcURL string) (*EthClient, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &EthClient{Client: c}, nil
}

// bridgeProxyABI is the minimal ABI surface the executor needs to pack
// calls against (§6): transferTokens(address,address,uint256,uint256).
const bridgeProxyABIJSON = `[
	{
		"name": "transferTokens",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "token", "type": "address"},
			{"name": "recipient", "type": "address"},
			{"name": "nonce", "type": "uint256"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": []
	}
]`

var bridgeProxyABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(bridgeProxyABIJSON))
	if err != nil {
		panic("chain: invalid embedded bridge proxy ABI: " + err.Error())
	}
	bridgeProxyABI = parsed
}

// PackTransferTokens ABI-encodes a transferTokens(token, recipient,
// nonce, amount) call, the single destination-chain method the executor
// submits (§4.B.4, §6).
func PackTransferTokens(token, recipient common.Address, nonce, amount *big.Int) ([]byte, error) {
	return bridgeProxyABI.Pack("transferTokens", token, recipient, nonce, amount)
}

// TransferTokensCallMsg builds the ethereum.CallMsg used for gas
// estimation of a transferTokens call.
func TransferTokensCallMsg(from, proxy common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{
		From: from,
		To:   &proxy,
		Data: data,
	}
}

// TxSigner is the out-of-scope destination-chain signing primitive
// (K_dst, §1, §6): it owns the private key and turns an unsigned
// DynamicFeeTx into a transaction ready for SendTransaction.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}
