package blockchain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	dialEVMClient    = ethclient.Dial
	getClientChainID = func(client *ethclient.Client, ctx context.Context) (*big.Int, error) {
		return client.ChainID(ctx)
	}
)

// ErrNoEVMClient is returned by EVMClient methods that need a live RPC connection.
var ErrNoEVMClient = errors.New("evm rpc client not connected")

// EVMClient provides EVM blockchain interaction
type EVMClient struct {
	client  *ethclient.Client
	chainID *big.Int
	rpcURL  string
	// testCallView allows deterministic unit tests without network sockets.
	testCallView func(ctx context.Context, to string, data []byte) ([]byte, error)
}

// NewEVMClient creates a new EVM client
func NewEVMClient(rpcURL string) (*EVMClient, error) {
	client, err := dialEVMClient(rpcURL)
	if err != nil {
		return nil, err
	}

	chainID, err := getClientChainID(client, context.Background())
	if err != nil {
		return nil, err
	}

	return &EVMClient{
		client:  client,
		chainID: chainID,
		rpcURL:  rpcURL,
	}, nil
}

// NewEVMClientWithCallView creates an EVM client that uses an injected CallView implementation.
// This is intended for unit tests where RPC sockets are unavailable.
func NewEVMClientWithCallView(chainID *big.Int, callViewFn func(ctx context.Context, to string, data []byte) ([]byte, error)) *EVMClient {
	if chainID == nil {
		chainID = big.NewInt(1)
	}
	return &EVMClient{
		chainID:      chainID,
		testCallView: callViewFn,
	}
}

// ChainID returns the chain ID
func (c *EVMClient) ChainID() *big.Int {
	return c.chainID
}

// GetBalance gets the native token balance of an address
func (c *EVMClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if c.client == nil {
		return nil, ErrNoEVMClient
	}
	return c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
}

// GetTokenBalance gets the ERC20 token balance of an address
func (c *EVMClient) GetTokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error) {
	owner := common.HexToAddress(ownerAddress)

	// balanceOf(address) selector: 0x70a08231
	data := append(common.Hex2Bytes("70a08231"), common.LeftPadBytes(owner.Bytes(), 32)...)

	result, err := c.CallView(ctx, tokenAddress, data)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(result), nil
}

// GetTransactionReceipt gets transaction receipt. A missing receipt returns ethereum.NotFound.
func (c *EVMClient) GetTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	if c.client == nil {
		return nil, ErrNoEVMClient
	}
	return c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
}

// GetBlockNumber gets the latest block number
func (c *EVMClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	if c.client == nil {
		return 0, ErrNoEVMClient
	}
	return c.client.BlockNumber(ctx)
}

// EstimateGas estimates gas for a transaction
func (c *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if c.client == nil {
		return 0, ErrNoEVMClient
	}
	return c.client.EstimateGas(ctx, msg)
}

// PendingNonce returns the next nonce for an address including pending transactions
func (c *EVMClient) PendingNonce(ctx context.Context, address string) (uint64, error) {
	if c.client == nil {
		return 0, ErrNoEVMClient
	}
	return c.client.PendingNonceAt(ctx, common.HexToAddress(address))
}

// SuggestGasPrice returns the node's legacy gas price suggestion
func (c *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if c.client == nil {
		return nil, ErrNoEVMClient
	}
	return c.client.SuggestGasPrice(ctx)
}

// SuggestGasTipCap returns the node's priority fee suggestion
func (c *EVMClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if c.client == nil {
		return nil, ErrNoEVMClient
	}
	return c.client.SuggestGasTipCap(ctx)
}

// SendTransaction broadcasts a signed transaction
func (c *EVMClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if c.client == nil {
		return ErrNoEVMClient
	}
	return c.client.SendTransaction(ctx, tx)
}

// CallView executes a read-only contract call
func (c *EVMClient) CallView(ctx context.Context, to string, data []byte) ([]byte, error) {
	if c.testCallView != nil {
		return c.testCallView(ctx, to, data)
	}
	if c.client == nil {
		return nil, ErrNoEVMClient
	}
	addr := common.HexToAddress(to)
	msg := ethereum.CallMsg{
		To:   &addr,
		Data: data,
	}
	return c.client.CallContract(ctx, msg, nil)
}

// Close closes the client connection
func (c *EVMClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
