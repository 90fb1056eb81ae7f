package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/jdziat/paid-deploy-jobs/pkg/core"
)

// TransferEventSignature is topic0 of the ERC-20 Transfer event.
var TransferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Client is the subset of the JSON-RPC API the monitor needs.
// *ethclient.Client satisfies it.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Monitor watches transfers of one token to one recipient.
type Monitor struct {
	client    Client
	token     common.Address
	recipient common.Address
	config    Config
}

type transfer struct {
	from  common.Address
	to    common.Address
	value *big.Int
	block uint64
	tx    common.Hash
}

// NewMonitor creates a Monitor for transfers of token to recipient.
func NewMonitor(client Client, token, recipient common.Address, opts ...Option) *Monitor {
	cfg := NewConfig()
	for _, opt := range opts {
		opt.Apply(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Monitor{
		client:    client,
		token:     token,
		recipient: recipient,
		config:    *cfg,
	}
}

// Token returns the monitored token contract.
func (m *Monitor) Token() common.Address { return m.token }

// Recipient returns the address payments must be sent to.
func (m *Monitor) Recipient() common.Address { return m.recipient }

// MonitorPayment polls from the current head forward until a transfer of
// exactly amount from sender to the recipient has enough confirmations.
// Poll failures are logged and retried. When the timeout elapses first a
// *core.PaymentTimeoutError is returned.
func (m *Monitor) MonitorPayment(ctx context.Context, sender, amount string, opts ...Option) (*core.PaymentTransaction, error) {
	cfg := m.config
	for _, opt := range opts {
		opt.Apply(&cfg)
	}

	if !common.IsHexAddress(sender) {
		return nil, core.Terminal(fmt.Errorf("%w: sender %q", core.ErrInvalidAddress, sender))
	}
	want, err := ParseAmount(amount, cfg.Decimals)
	if err != nil {
		return nil, core.Terminal(err)
	}
	from := common.HexToAddress(sender)

	logger := cfg.Logger
	pollCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	logger.Info("monitoring payment",
		"sender", from.Hex(), "amount", amount, "timeout", cfg.Timeout, "confirmations", cfg.Confirmations)

	var next uint64
	started := false
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		if !started {
			head, err := m.client.BlockNumber(pollCtx)
			if err != nil {
				logger.Warn("payment poll failed", "stage", "head", "error", err)
			} else {
				next = head
				started = true
			}
		}
		if started {
			tx, resume, err := m.poll(pollCtx, from, want, next, &cfg)
			switch {
			case err != nil:
				logger.Warn("payment poll failed", "from_block", next, "error", err)
			case tx != nil:
				logger.Info("payment confirmed", "tx", tx.Hash, "block", tx.BlockNumber, "amount", tx.Amount)
				return tx, nil
			default:
				next = resume
			}
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &core.PaymentTimeoutError{Sender: from.Hex(), Amount: amount, Timeout: cfg.Timeout}
		case <-ticker.C:
		}
	}
}

// poll scans [next, head] once. It returns the accepted payment, or the block
// to resume from: the earliest still-unconfirmed match, else head+1.
func (m *Monitor) poll(ctx context.Context, from common.Address, want *big.Int, next uint64, cfg *Config) (*core.PaymentTransaction, uint64, error) {
	head, err := m.client.BlockNumber(ctx)
	if err != nil {
		return nil, next, err
	}
	if head < next {
		return nil, next, nil
	}

	logs, err := m.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(next),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{m.token},
		Topics: [][]common.Hash{
			{TransferEventSignature},
			{addressTopic(from)},
			{addressTopic(m.recipient)},
		},
	})
	if err != nil {
		return nil, next, err
	}

	resume := head + 1
	for _, lg := range logs {
		t, ok := m.decode(lg)
		if !ok || t.from != from || t.to != m.recipient {
			continue
		}
		if t.value.Cmp(want) != 0 {
			cfg.Logger.Debug("transfer amount mismatch",
				"tx", t.tx.Hex(), "got", FormatAmount(t.value, cfg.Decimals), "want", FormatAmount(want, cfg.Decimals))
			continue
		}
		if t.block <= head && head-t.block >= cfg.Confirmations {
			return m.toPayment(t, cfg), 0, nil
		}
		cfg.Logger.Debug("transfer awaiting confirmations", "tx", t.tx.Hex(), "block", t.block, "head", head)
		if t.block < resume {
			resume = t.block
		}
	}
	return nil, resume, nil
}

// VerifyPaymentTransaction checks that the transaction hash succeeded and
// emitted a transfer of exactly amount to the recipient.
func (m *Monitor) VerifyPaymentTransaction(ctx context.Context, hash, amount string) (bool, error) {
	if len(hash) != 66 || !strings.HasPrefix(hash, "0x") {
		return false, fmt.Errorf("%w: %q", core.ErrInvalidTxHash, hash)
	}
	want, err := ParseAmount(amount, m.config.Decimals)
	if err != nil {
		return false, err
	}

	receipt, err := m.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return false, nil
		}
		return false, fmt.Errorf("jobs: fetch receipt %s: %w", hash, err)
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		return false, nil
	}

	for _, lg := range receipt.Logs {
		if lg == nil {
			continue
		}
		t, ok := m.decode(*lg)
		if ok && t.to == m.recipient && t.value.Cmp(want) == 0 {
			return true, nil
		}
	}
	return false, nil
}

// GetRecentPayments scans the last blockRange blocks for any transfer to the
// recipient, newest first.
func (m *Monitor) GetRecentPayments(ctx context.Context, blockRange uint64) ([]core.PaymentTransaction, error) {
	head, err := m.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobs: fetch head: %w", err)
	}
	var start uint64
	if blockRange < head {
		start = head - blockRange
	}

	logs, err := m.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(start),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{m.token},
		Topics: [][]common.Hash{
			{TransferEventSignature},
			nil,
			{addressTopic(m.recipient)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: filter transfers: %w", err)
	}

	payments := make([]core.PaymentTransaction, 0, len(logs))
	for _, lg := range logs {
		t, ok := m.decode(lg)
		if !ok || t.to != m.recipient {
			continue
		}
		payments = append(payments, *m.toPayment(t, &m.config))
	}
	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].BlockNumber > payments[j].BlockNumber
	})
	return payments, nil
}

// addressTopic is the 32-byte indexed topic form of an address.
func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func (m *Monitor) decode(lg types.Log) (transfer, bool) {
	if lg.Removed || lg.Address != m.token || len(lg.Topics) != 3 || lg.Topics[0] != TransferEventSignature {
		return transfer{}, false
	}
	if len(lg.Data) != 32 {
		return transfer{}, false
	}
	return transfer{
		from:  common.BytesToAddress(lg.Topics[1].Bytes()),
		to:    common.BytesToAddress(lg.Topics[2].Bytes()),
		value: new(big.Int).SetBytes(lg.Data),
		block: lg.BlockNumber,
		tx:    lg.TxHash,
	}, true
}

func (m *Monitor) toPayment(t transfer, cfg *Config) *core.PaymentTransaction {
	return &core.PaymentTransaction{
		Hash:        t.tx.Hex(),
		BlockNumber: t.block,
		Amount:      FormatAmount(t.value, cfg.Decimals),
		From:        t.from.Hex(),
		To:          t.to.Hex(),
		ObservedAt:  cfg.Clock(),
	}
}
