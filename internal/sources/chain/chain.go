// Package chain reads prices from on-chain price-feed contracts. Reads
// are gated by the shared token-bucket limiter and the window budget so
// the upstream RPC quota is never exceeded.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/coinoracle/pricecore/internal/domain"
	"github.com/coinoracle/pricecore/internal/net/budget"
	"github.com/coinoracle/pricecore/internal/net/ratelimit"
)

// DefaultTimeout bounds a single contract read.
const DefaultTimeout = 10 * time.Second

const feedABIJSON = `[{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}]`

var feedABI = mustParseABI(feedABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid feed ABI: %v", err))
	}
	return parsed
}

// ContractCaller is the slice of ethclient.Client the source needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Source reads fixed-point prices from feed contracts.
type Source struct {
	client  ContractCaller
	limiter *ratelimit.Limiter
	budget  *budget.Tracker
	timeout time.Duration
}

// New creates an on-chain source. The limiter and budget are shared
// process-wide; timeout <= 0 falls back to DefaultTimeout.
func New(client ContractCaller, limiter *ratelimit.Limiter, tracker *budget.Tracker, timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Source{
		client:  client,
		limiter: limiter,
		budget:  tracker,
		timeout: timeout,
	}
}

// GetPrice reads the latest round from the asset's feed contract.
// A denied rate-limit slot or spent budget returns ErrRateLimited
// immediately without blocking; the aggregator falls through to the
// next tier. Transport errors and decode failures are returned wrapped
// for retry accounting upstream.
func (s *Source) GetPrice(ctx context.Context, asset domain.Asset) (*domain.PriceSample, error) {
	if !asset.HasFeed() {
		return nil, fmt.Errorf("no price feed configured for %s", asset.Symbol)
	}

	if !s.limiter.TryAcquire() {
		return nil, fmt.Errorf("%w: no slot in current window for %s", domain.ErrRateLimited, asset.Symbol)
	}
	if err := s.budget.Spend(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	callData, err := feedABI.Pack("latestRoundData")
	if err != nil {
		return nil, fmt.Errorf("failed to pack feed call: %w", err)
	}

	feedAddr := common.HexToAddress(asset.FeedAddress)
	raw, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &feedAddr, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("feed read failed for %s: %w", asset.Symbol, err)
	}

	answer, err := unpackAnswer(raw)
	if err != nil {
		return nil, fmt.Errorf("feed decode failed for %s: %w", asset.Symbol, err)
	}

	scale := asset.OracleScale
	if scale <= 0 {
		scale = domain.DefaultOracleScale
	}
	price := DecodeAnswer(answer, scale)

	log.Debug().
		Str("symbol", asset.Symbol).
		Str("feed", asset.FeedAddress).
		Str("raw", answer.String()).
		Float64("price", price).
		Msg("On-chain price read")

	return &domain.PriceSample{
		Symbol:     asset.Symbol,
		Value:      price,
		Source:     domain.SourceOnChain,
		ObservedAt: time.Now(),
	}, nil
}

func unpackAnswer(raw []byte) (*big.Int, error) {
	values, err := feedABI.Unpack("latestRoundData", raw)
	if err != nil {
		return nil, err
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("unexpected round data shape: %d values", len(values))
	}
	answer, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("answer is not an integer")
	}
	return answer, nil
}

// DecodeAnswer converts a raw fixed-point feed answer into a price by
// dividing by 10^scale. The scale belongs to the oracle, not the asset:
// asset decimals must never be used here.
func DecodeAnswer(raw *big.Int, scale int) float64 {
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil))
	price, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), divisor).Float64()
	return price
}
