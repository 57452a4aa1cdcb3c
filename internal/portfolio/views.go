package portfolio

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jonzyyyy/CS50-Finance/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const historyBatchSize = 100

// errStopIteration aborts FindInBatches when the consumer stops ranging.
var errStopIteration = errors.New("stop iteration")

// History yields the user's transactions oldest first. The sequence is lazy
// and restartable: each range re-runs the query in batches. A query failure
// is yielded as the final element's error.
func (s *Service) History(ctx context.Context, userID uint) iter.Seq2[models.Transaction, error] {
	return func(yield func(models.Transaction, error) bool) {
		batch := make([]models.Transaction, 0, historyBatchSize)
		// FindInBatches pages by primary key, which is creation order for an
		// append-only ledger.
		err := s.db.WithContext(ctx).
			Where("user_id = ?", userID).
			FindInBatches(&batch, historyBatchSize, func(_ *gorm.DB, _ int) error {
				for _, txn := range batch {
					if !yield(txn, nil) {
						return errStopIteration
					}
				}
				return nil
			}).Error
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(models.Transaction{}, fmt.Errorf("failed to read history: %w", err))
		}
	}
}

// Holding is a user's net position in one symbol, derived from the ledger.
// Price and Value are filled in by Summary from the current quote; plain
// Holdings reads leave them zero.
type Holding struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Value     decimal.Decimal `json:"value"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// Holdings returns the user's open positions: symbols with a positive net
// share count, with total cost summed over the ledger. Pure read, no quote
// provider calls.
func (s *Service) Holdings(ctx context.Context, userID uint) ([]Holding, error) {
	var holdings []Holding
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("symbol, MAX(stock_name) AS name, SUM(shares) AS shares, SUM(cost) AS total_cost").
		Where("user_id = ?", userID).
		Group("symbol").
		Having("SUM(shares) > 0").
		Order("symbol").
		Scan(&holdings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to derive holdings: %w", err)
	}
	return holdings, nil
}

// Summary is the valuation view of one user's portfolio.
type Summary struct {
	Cash           decimal.Decimal `json:"cash"`
	HoldingsValue  decimal.Decimal `json:"holdings_value"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	Holdings       []Holding       `json:"holdings"`
}

// Summary re-quotes every held symbol and values the portfolio as
// cash + Σ netShares×latestPrice. Current prices live only in the returned
// view; historical ledger rows are never rewritten. The recomputed total is
// persisted on the user row as the portfolio_value cache.
func (s *Service) Summary(ctx context.Context, userID uint) (*Summary, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	holdings, err := s.Holdings(ctx, userID)
	if err != nil {
		return nil, err
	}

	holdingsValue := decimal.Zero
	for i := range holdings {
		quote, err := s.provider.Lookup(ctx, holdings[i].Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh price for %s: %w", holdings[i].Symbol, err)
		}
		holdings[i].Price = quote.Price
		holdings[i].Value = quote.Price.Mul(decimal.NewFromInt(holdings[i].Shares))
		holdingsValue = holdingsValue.Add(holdings[i].Value)
	}

	total := user.Cash.Add(holdingsValue)
	if err := s.db.WithContext(ctx).Model(&user).Update("portfolio_value", total).Error; err != nil {
		return nil, fmt.Errorf("failed to persist portfolio value: %w", err)
	}

	s.logger.Debug("Computed portfolio summary",
		zap.Uint("user_id", userID),
		zap.Int("positions", len(holdings)),
		zap.String("portfolio_value", total.String()),
	)

	return &Summary{
		Cash:           user.Cash,
		HoldingsValue:  holdingsValue,
		PortfolioValue: total,
		Holdings:       holdings,
	}, nil
}
