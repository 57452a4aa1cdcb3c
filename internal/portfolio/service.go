package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonzyyyy/CS50-Finance/internal/models"
	"github.com/jonzyyyy/CS50-Finance/internal/quotes"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Service is the portfolio ledger and valuation engine. Every mutation runs
// inside a single database transaction; quote lookups happen before the
// transaction is opened so a provider failure never leaves the ledger
// half-applied.
type Service struct {
	db          *gorm.DB
	provider    quotes.Provider
	logger      *zap.Logger
	initialCash decimal.Decimal
}

// NewService creates a new portfolio engine.
func NewService(db *gorm.DB, provider quotes.Provider, logger *zap.Logger, initialCash decimal.Decimal) *Service {
	return &Service{
		db:          db,
		provider:    provider,
		logger:      logger,
		initialCash: initialCash,
	}
}

// Register creates a new user with a hashed credential and the initial cash
// balance. The username must be unique and non-blank, and the password must
// match its confirmation.
func (s *Service) Register(ctx context.Context, username, password, confirmation string) (*models.User, error) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return nil, fmt.Errorf("%w: username is blank", ErrValidation)
	case password == "":
		return nil, fmt.Errorf("%w: password is blank", ErrValidation)
	case confirmation == "":
		return nil, fmt.Errorf("%w: confirmation is blank", ErrValidation)
	case password != confirmation:
		return nil, fmt.Errorf("%w: passwords do not match", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		Username:       username,
		Hash:           string(hash),
		Cash:           s.initialCash,
		PortfolioValue: s.initialCash,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		err := tx.Where("username = ?", username).First(&existing).Error
		if err == nil {
			return fmt.Errorf("%w: username is taken", ErrValidation)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Registered user", zap.Uint("user_id", user.ID), zap.String("username", username))
	return &user, nil
}

// Authenticate verifies a username/password pair and returns the user for
// session establishment. Session mechanics belong to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown username", ErrAuth)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: wrong password", ErrAuth)
	}
	return &user, nil
}

// ChangePassword replaces the user's credential hash after verifying the old
// password.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword, confirmation string) error {
	switch {
	case oldPassword == "":
		return fmt.Errorf("%w: old password is blank", ErrValidation)
	case newPassword == "" || confirmation == "":
		return fmt.Errorf("%w: new password is blank", ErrValidation)
	case newPassword != confirmation:
		return fmt.Errorf("%w: new passwords do not match", ErrValidation)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(oldPassword)); err != nil {
			return fmt.Errorf("%w: old password is wrong", ErrAuth)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		if err := tx.Model(&user).Update("hash", string(hash)).Error; err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		return nil
	})
}

// Quote looks up the current name and price for a symbol.
func (s *Service) Quote(ctx context.Context, symbol string) (*quotes.Quote, error) {
	return s.provider.Lookup(ctx, symbol)
}

// Buy purchases shares at the current quoted price, debiting cash and
// appending a positive ledger row.
func (s *Service) Buy(ctx context.Context, userID uint, symbol string, shares int64) (*models.Transaction, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("%w: shares must be a positive integer", ErrInvalidInput)
	}

	quote, err := s.provider.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	cost := quote.Price.Mul(decimal.NewFromInt(shares))
	txn := models.Transaction{
		UserID:    userID,
		Symbol:    quote.Symbol,
		StockName: quote.Name,
		Price:     quote.Price,
		Shares:    shares,
		Cost:      cost,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if user.Cash.LessThan(cost) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost, user.Cash)
		}
		if err := tx.Model(&user).Update("cash", user.Cash.Sub(cost)).Error; err != nil {
			return fmt.Errorf("failed to debit cash: %w", err)
		}
		if err := tx.Create(&txn).Error; err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Bought shares",
		zap.Uint("user_id", userID),
		zap.String("symbol", txn.Symbol),
		zap.Int64("shares", shares),
		zap.String("cost", cost.String()),
	)
	return &txn, nil
}

// Sell disposes of shares at the current quoted price, crediting cash and
// appending a negative ledger row. The user must hold at least the requested
// number of shares.
func (s *Service) Sell(ctx context.Context, userID uint, symbol string, shares int64) (*models.Transaction, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("%w: shares must be a positive integer", ErrInvalidInput)
	}

	quote, err := s.provider.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}

	proceeds := quote.Price.Mul(decimal.NewFromInt(shares))
	txn := models.Transaction{
		UserID:    userID,
		Symbol:    quote.Symbol,
		StockName: quote.Name,
		Price:     quote.Price,
		Shares:    -shares,
		Cost:      proceeds.Neg(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		held, err := netShares(tx, userID, quote.Symbol)
		if err != nil {
			return err
		}
		if shares > held {
			return fmt.Errorf("%w: selling %d, holding %d", ErrInsufficientShares, shares, held)
		}

		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		if err := tx.Model(&user).Update("cash", user.Cash.Add(proceeds)).Error; err != nil {
			return fmt.Errorf("failed to credit cash: %w", err)
		}
		if err := tx.Create(&txn).Error; err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Sold shares",
		zap.Uint("user_id", userID),
		zap.String("symbol", txn.Symbol),
		zap.Int64("shares", shares),
		zap.String("proceeds", proceeds.String()),
	)
	return &txn, nil
}

// Deposit adds virtual cash to the user's balance. The portfolio value cache
// is not touched here; it is rederived from cash and holdings on summary
// reads, so repeated deposits cannot double-count.
func (s *Service) Deposit(ctx context.Context, userID uint, amount decimal.Decimal) (*models.User, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		user.Cash = user.Cash.Add(amount)
		if err := tx.Model(&user).Update("cash", user.Cash).Error; err != nil {
			return fmt.Errorf("failed to credit cash: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Deposited cash", zap.Uint("user_id", userID), zap.String("amount", amount.String()))
	return &user, nil
}

// netShares computes the user's net position in one symbol from the ledger.
// Always scoped by both user and symbol.
func netShares(tx *gorm.DB, userID uint, symbol string) (int64, error) {
	var net int64
	err := tx.Model(&models.Transaction{}).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Select("COALESCE(SUM(shares), 0)").
		Scan(&net).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum shares: %w", err)
	}
	return net, nil
}
