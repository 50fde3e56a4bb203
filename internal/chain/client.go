package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

const DefaultTimeout = 15 * time.Second

type Config struct {
	// URL is the primary endpoint. Head subscriptions always go through it.
	URL string
	// ReadURL optionally moves eth_getLogs and friends to a second endpoint,
	// usually the HTTPS twin of a WSS URL.
	ReadURL string
	Timeout time.Duration
}

// Client is a thin I/O boundary over an EVM JSON-RPC node. It never retries;
// every call runs under its own timeout.
type Client struct {
	live    *ethclient.Client
	read    *ethclient.Client
	chainID *big.Int
	signer  types.Signer
	timeout time.Duration
}

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	dctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	rc, err := rpc.DialContext(dctx, cfg.URL)
	if err != nil {
		return nil, &RPCError{Method: "dial", Err: err}
	}
	live := ethclient.NewClient(rc)

	read := live
	if cfg.ReadURL != "" && cfg.ReadURL != cfg.URL {
		read, err = ethclient.DialContext(dctx, cfg.ReadURL)
		if err != nil {
			live.Close()
			return nil, &RPCError{Method: "dial", Err: err}
		}
	}

	c := &Client{live: live, read: read, timeout: cfg.Timeout}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.chainID = chainID
	c.signer = types.LatestSignerForChainID(chainID)

	return c, nil
}

func (c *Client) Close() {
	if c.read != c.live {
		c.read.Close()
	}
	c.live.Close()
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := c.read.ChainID(cctx)
	if err != nil {
		return nil, wrapRPC("eth_chainId", err)
	}
	return id, nil
}

func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.read.BlockNumber(cctx)
	if err != nil {
		return 0, wrapRPC("eth_blockNumber", err)
	}
	return n, nil
}

// Logs returns the logs of q.Contract emitted in blocks r.From+1..r.To.
func (c *Client) Logs(ctx context.Context, r BlockRange, q LogQuery) ([]types.Log, error) {
	if r.Empty() {
		return nil, nil
	}

	fq := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From + 1),
		ToBlock:   new(big.Int).SetUint64(r.To),
		Addresses: []common.Address{q.Contract},
	}
	if q.Topic != nil {
		fq.Topics = [][]common.Hash{{*q.Topic}}
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logs, err := c.read.FilterLogs(cctx, fq)
	if err != nil {
		return nil, wrapRPC("eth_getLogs", err)
	}

	out := logs[:0]
	for _, l := range logs {
		if l.Removed {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (c *Client) Transaction(ctx context.Context, ref TxRef) (Candidate, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tx, pending, err := c.read.TransactionByHash(cctx, ref.Hash)
	if err != nil {
		return Candidate{}, wrapRPC("eth_getTransactionByHash", err)
	}
	if pending {
		return Candidate{}, errors.Wrapf(ErrNotFound, "tx %s is still pending", ref.Hash.Hex())
	}

	return Candidate{
		Hash:        tx.Hash(),
		From:        c.sender(cctx, tx, ref.BlockHash, ref.Index),
		To:          tx.To(),
		Value:       valueOf(tx),
		BlockNumber: ref.BlockNumber,
	}, nil
}

// BlockTransactions returns every transaction of block number.
func (c *Client) BlockTransactions(ctx context.Context, number uint64) ([]Candidate, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	block, err := c.read.BlockByNumber(cctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, wrapRPC("eth_getBlockByNumber", err)
	}

	txs := block.Transactions()
	out := make([]Candidate, 0, len(txs))
	for i, tx := range txs {
		out = append(out, Candidate{
			Hash:        tx.Hash(),
			From:        c.sender(cctx, tx, block.Hash(), uint(i)),
			To:          tx.To(),
			Value:       valueOf(tx),
			BlockNumber: block.NumberU64(),
		})
	}
	return out, nil
}

func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sub, err := c.live.SubscribeNewHead(cctx, ch)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	return sub, nil
}

// sender prefers the "from" the node returned with the transaction, which
// ethclient caches, and falls back to signature recovery. Unrecoverable
// senders come back as the zero address.
func (c *Client) sender(ctx context.Context, tx *types.Transaction, block common.Hash, index uint) common.Address {
	if from, err := c.read.TransactionSender(ctx, tx, block, index); err == nil {
		return from
	}
	if c.signer != nil {
		if from, err := types.Sender(c.signer, tx); err == nil {
			return from
		}
	}
	return common.Address{}
}

func valueOf(tx *types.Transaction) *big.Int {
	if v := tx.Value(); v != nil {
		return v
	}
	return new(big.Int)
}

func wrapRPC(method string, err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return errors.Wrap(ErrNotFound, method)
	}
	return &RPCError{Method: method, Err: err}
}
