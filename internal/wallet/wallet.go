// Package wallet pays out reward claims in the chain's native coin.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/riskmesh/internal/units"
)

var (
	ErrInvalidPrivateKey = errors.New("wallet: invalid private key")
	ErrInvalidAddress    = errors.New("wallet: invalid address")
	ErrInvalidAmount     = errors.New("wallet: invalid amount")
	ErrTransactionFailed = errors.New("wallet: transaction failed")
	ErrTimeout           = errors.New("wallet: operation timed out")
	ErrRPCConnection     = errors.New("wallet: RPC connection failed")
)

// TransferError wraps transfer failures with context.
type TransferError struct {
	Op     string // nonce, gas_price, sign, send or confirm
	TxHash string // set once the transaction is signed
	Err    error

	// MaybeSent is true when the node may hold the transaction even though
	// the call failed, e.g. a dropped connection during send or a
	// confirmation timeout.
	MaybeSent bool
}

func (e *TransferError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("wallet: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("wallet: %s failed: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Unconfirmed reports the hash of a transfer whose outcome is unknown.
func (e *TransferError) Unconfirmed() (string, bool) {
	return e.TxHash, e.MaybeSent && e.TxHash != ""
}

// rpcError matches JSON-RPC errors returned by the node. A node that answers
// with one has rejected the transaction.
type rpcError interface {
	ErrorCode() int
}

// EthClient is the subset of ethclient.Client the wallet uses.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

const (
	// TransferGasLimit is the intrinsic gas of a plain value transfer.
	TransferGasLimit = uint64(21000)

	DefaultConfirmationTimeout = 30 * time.Second
	ConfirmationPollInterval   = 2 * time.Second
)

// Config for creating a new wallet
type Config struct {
	RPCURL     string
	PrivateKey string // hex, with or without 0x
	ChainID    int64
}

// Option configures the wallet
type Option func(*Wallet)

// WithClient sets a custom Ethereum client (useful for testing)
func WithClient(client EthClient) Option {
	return func(w *Wallet) {
		w.client = client
	}
}

// WithConfirmation makes Transfer wait up to timeout for the receipt.
// Zero returns as soon as the node accepts the transaction.
func WithConfirmation(timeout time.Duration) Option {
	return func(w *Wallet) {
		w.confirmTimeout = timeout
	}
}

// Receipt describes a confirmed payout.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Wallet signs and sends native-coin transfers from the payout account.
type Wallet struct {
	client     EthClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// New creates a new Wallet instance
func New(cfg Config, opts ...Option) (*Wallet, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	w := &Wallet{
		privateKey:   privateKey,
		address:      crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:      big.NewInt(cfg.ChainID),
		pollInterval: ConfirmationPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		w.client = client
	}
	return w, nil
}

// ValidateConfig checks cfg without dialing.
func ValidateConfig(cfg Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	key := strings.TrimPrefix(cfg.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	if cfg.ChainID <= 0 {
		return fmt.Errorf("chain ID required")
	}
	return nil
}

// Address returns the payout account address
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// Balance returns the payout account balance in wei.
func (w *Wallet) Balance(ctx context.Context) (*big.Int, error) {
	return w.client.BalanceAt(ctx, w.address, nil)
}

// Transfer signs and broadcasts a value transfer of amount wei to to and
// returns the transaction hash. With WithConfirmation it also waits for a
// successful receipt.
func (w *Wallet) Transfer(ctx context.Context, to string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}
	if !units.Positive(amount) {
		return "", ErrInvalidAmount
	}
	recipient := common.HexToAddress(to)

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", &TransferError{Op: "nonce", Err: err}
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", &TransferError{Op: "gas_price", Err: err}
	}
	gasLimit, err := w.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &recipient,
		Value: amount,
	})
	if err != nil {
		// Recipients that are plain accounts always cost the intrinsic gas.
		gasLimit = TransferGasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &recipient,
		Value:    new(big.Int).Set(amount),
		Gas:      gasLimit,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(w.chainID), w.privateKey)
	if err != nil {
		return "", &TransferError{Op: "sign", Err: err}
	}
	txHash := signed.Hash().Hex()
	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return w.afterSendError(ctx, txHash, err)
	}

	if w.confirmTimeout <= 0 {
		return txHash, nil
	}
	if _, err := w.WaitForConfirmation(ctx, txHash, w.confirmTimeout); err != nil {
		var te *TransferError
		if errors.As(err, &te) {
			return "", te
		}
		return "", &TransferError{Op: "confirm", TxHash: txHash, Err: err, MaybeSent: true}
	}
	return txHash, nil
}

// afterSendError classifies a failed SendTransaction. An explicit node
// rejection means nothing was sent. Anything else may have reached the
// mempool, so the receipt is checked once before giving up.
func (w *Wallet) afterSendError(ctx context.Context, txHash string, sendErr error) (string, error) {
	var rejected rpcError
	if errors.As(sendErr, &rejected) {
		return "", &TransferError{Op: "send", TxHash: txHash, Err: sendErr}
	}

	receipt, err := w.client.TransactionReceipt(context.WithoutCancel(ctx), common.HexToHash(txHash))
	switch {
	case err != nil:
		return "", &TransferError{Op: "send", TxHash: txHash, Err: sendErr, MaybeSent: true}
	case receipt.Status == types.ReceiptStatusFailed:
		return "", &TransferError{Op: "send", TxHash: txHash, Err: ErrTransactionFailed}
	default:
		return txHash, nil
	}
}

// WaitForConfirmation polls for the receipt of txHash.
func (w *Wallet) WaitForConfirmation(ctx context.Context, txHash string, timeout time.Duration) (*Receipt, error) {
	hash := common.HexToHash(txHash)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, &TransferError{Op: "confirm", TxHash: txHash, Err: ErrTransactionFailed}
			}
			return &Receipt{
				TxHash:      txHash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: waiting for tx %s", ErrTimeout, txHash)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes the client connection
func (w *Wallet) Close() error {
	if w.client != nil {
		w.client.Close()
	}
	return nil
}
