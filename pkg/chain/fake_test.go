package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	testToken     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testRecipient = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testSender    = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	otherSender   = common.HexToAddress("0x00000000000000000000000000000000000000dd")
)

// fakeClient is an in-memory chain. The head advances by step after every
// FilterLogs call so successive polls observe new blocks.
type fakeClient struct {
	mu         sync.Mutex
	head       uint64
	step       uint64
	logs       []types.Log
	receipts   map[common.Hash]*types.Receipt
	filterErrs int
	headErrs   int
	receiptErr error
	queries    []ethereum.FilterQuery
}

func newFakeClient(head uint64) *fakeClient {
	return &fakeClient{head: head, step: 1, receipts: make(map[common.Hash]*types.Receipt)}
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErrs > 0 {
		f.headErrs--
		return 0, errors.New("connection refused")
	}
	return f.head, nil
}

func (f *fakeClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.filterErrs > 0 {
		f.filterErrs--
		return nil, errors.New("503 service unavailable")
	}

	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if !matchAddress(q.Addresses, lg.Address) || !matchTopics(q.Topics, lg.Topics) {
			continue
		}
		out = append(out, lg)
	}
	f.head += f.step
	return out, nil
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeClient) addLog(lg types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, lg)
}

func (f *fakeClient) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func matchAddress(want []common.Address, got common.Address) bool {
	if len(want) == 0 {
		return true
	}
	for _, a := range want {
		if a == got {
			return true
		}
	}
	return false
}

func matchTopics(want [][]common.Hash, got []common.Hash) bool {
	for i, alts := range want {
		if len(alts) == 0 {
			continue
		}
		if i >= len(got) {
			return false
		}
		found := false
		for _, h := range alts {
			if h == got[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func transferLog(from, to common.Address, units int64, block uint64, tx byte) types.Log {
	return types.Log{
		Address:     testToken,
		Topics:      []common.Hash{TransferEventSignature, common.HexToHash(from.Hex()), common.HexToHash(to.Hex())},
		Data:        common.LeftPadBytes(big.NewInt(units).Bytes(), 32),
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{tx}),
	}
}
