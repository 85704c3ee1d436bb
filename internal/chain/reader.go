// Package chain reads wallet and nonce data from an EVM chain. The
// agent core never submits transactions itself; this reader only feeds
// the guardrail sizing and the redeploy nonce guard.
package chain

import (
	"context"
	"fmt"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"InternAgent/internal/model"
)

// Reader is the wallet view the tick loop depends on.
type Reader interface {
	FetchBalances(ctx context.Context) (model.WalletSnapshot, error)
	PendingTxCount(ctx context.Context) (uint64, error)
	Name() string
}

// EthReader implements Reader over a go-ethereum RPC client.
type EthReader struct {
	eth    *ethclient.Client
	wallet common.Address
	token  common.Address
}

var balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// NewEthReader dials the RPC endpoint and returns a ready-to-use reader.
func NewEthReader(ctx context.Context, rpcURL, walletAddr, tokenAddr string) (*EthReader, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &EthReader{
		eth:    eth,
		wallet: common.HexToAddress(walletAddr),
		token:  common.HexToAddress(tokenAddr),
	}, nil
}

// FetchBalances reads the wallet's ETH balance and ERC-20 token
// balance at the latest block.
func (r *EthReader) FetchBalances(ctx context.Context) (model.WalletSnapshot, error) {
	ethBal, err := r.eth.BalanceAt(ctx, r.wallet, nil)
	if err != nil {
		return model.WalletSnapshot{}, fmt.Errorf("eth balance: %w", err)
	}

	tokenBal := new(big.Int)
	if r.token != (common.Address{}) {
		data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(r.wallet.Bytes(), 32)...)
		out, err := r.eth.CallContract(ctx, gethcore.CallMsg{To: &r.token, Data: data}, nil)
		if err != nil {
			return model.WalletSnapshot{}, fmt.Errorf("token balanceOf: %w", err)
		}
		tokenBal.SetBytes(out)
	}

	return model.WalletSnapshot{EthBalanceWei: ethBal, TokenBalanceWei: tokenBal}, nil
}

// PendingTxCount returns the wallet's pending transaction count, the
// input to the redeploy nonce guard.
func (r *EthReader) PendingTxCount(ctx context.Context) (uint64, error) {
	nonce, err := r.eth.PendingNonceAt(ctx, r.wallet)
	if err != nil {
		return 0, fmt.Errorf("pending nonce: %w", err)
	}
	return nonce, nil
}

// Name identifies the reader in logs.
func (r *EthReader) Name() string {
	return "ethclient"
}

// Close releases the underlying RPC connection.
func (r *EthReader) Close() {
	r.eth.Close()
}
