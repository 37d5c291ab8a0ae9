package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kivu-erp/kivu-erp/internal/shared"
)

// ConverterPort exposes the currency engine operations the ledger needs.
type ConverterPort interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, explicit *decimal.Decimal) (decimal.Decimal, error)
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJournal(ctx context.Context, id int64) (Journal, error)
	GetPeriod(ctx context.Context, id int64) (Period, error)
	ListAccounts(ctx context.Context, page shared.Pagination) ([]Account, error)
	AggregateItems(ctx context.Context, from, to time.Time) ([]AccountAggregate, error)
}

// TxRepository exposes transactional operations used by the posting path.
type TxRepository interface {
	FindPeriodByDateForUpdate(ctx context.Context, date time.Time) (Period, error)
	GetAccountsByIDs(ctx context.Context, ids []int64) (map[int64]Account, error)
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	InsertItems(ctx context.Context, txID int64, items []TransactionItem) error
	CreateAccount(ctx context.Context, account Account) (int64, error)
	CreateJournal(ctx context.Context, journal Journal) (int64, error)
	CreatePeriod(ctx context.Context, period Period) (int64, error)
	ClosePeriod(ctx context.Context, periodID int64, at time.Time) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts posting outcomes.
type MetricsPort interface {
	ObservePosting(journal, outcome string)
}

// Service coordinates postings, period management, and reports.
type Service struct {
	repo    RepositoryPort
	fx      ConverterPort
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, fx ConverterPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, fx: fx, audit: audit, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostTransaction validates, converts, and persists a transaction.
//
// Rate resolution order: an exchange rate carried on the transaction always
// wins; only when the transaction has none is a fresh pair lookup made for
// each item whose account currency differs from the journal currency. The
// original mixed both orders depending on the model; this one is uniform.
func (s *Service) PostTransaction(ctx context.Context, input PostingInput) (Transaction, error) {
	if err := input.Validate(); err != nil {
		s.observe(input.JournalID, "rejected")
		return Transaction{}, err
	}
	journal, err := s.repo.GetJournal(ctx, input.JournalID)
	if err != nil {
		return Transaction{}, err
	}
	var posted Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.FindPeriodByDateForUpdate(ctx, input.Date)
		if err != nil {
			return err
		}
		if period.Closed {
			return ErrPeriodClosed
		}
		ids := make([]int64, 0, len(input.Items))
		for _, item := range input.Items {
			ids = append(ids, item.AccountID)
		}
		accounts, err := tx.GetAccountsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		header := Transaction{
			Date:         input.Date,
			JournalID:    input.JournalID,
			Reference:    input.Reference,
			Description:  input.Description,
			PaymentID:    input.PaymentID,
			TransferID:   input.TransferID,
			ExchangeRate: input.ExchangeRate,
		}
		txID, err := tx.InsertTransaction(ctx, header)
		if err != nil {
			return err
		}
		items := make([]TransactionItem, 0, len(input.Items))
		for _, item := range input.Items {
			account, ok := accounts[item.AccountID]
			if !ok {
				return fmt.Errorf("%w: id %d", ErrAccountNotFound, item.AccountID)
			}
			amount, err := s.fx.Convert(ctx, item.Amount, journal.Currency, account.Currency, input.ExchangeRate)
			if err != nil {
				return err
			}
			items = append(items, TransactionItem{
				TransactionID: txID,
				AccountID:     item.AccountID,
				Amount:        amount,
				Currency:      account.Currency,
				IsDebit:       item.IsDebit,
			})
		}
		if err := tx.InsertItems(ctx, txID, items); err != nil {
			return err
		}
		header.ID = txID
		header.Items = items
		posted = header
		return nil
	})
	if err != nil {
		s.observe(input.JournalID, "failed")
		return Transaction{}, err
	}
	s.observe(input.JournalID, "posted")
	s.recordAudit(ctx, "transaction.post", fmt.Sprintf("%d", posted.ID), map[string]any{
		"journal_id": input.JournalID,
		"reference":  input.Reference,
	})
	return posted, nil
}

// ListAccounts pages through the chart of accounts.
func (s *Service) ListAccounts(ctx context.Context, page shared.Pagination) ([]Account, error) {
	return s.repo.ListAccounts(ctx, page.Normalise())
}

// CreateAccount validates and persists a chart-of-accounts node.
func (s *Service) CreateAccount(ctx context.Context, account Account) (Account, error) {
	account.Code = strings.TrimSpace(account.Code)
	if account.Code == "" || account.Name == "" {
		return Account{}, fmt.Errorf("%w: code and name required", ErrValidation)
	}
	if account.ClassNumber < 1 || account.ClassNumber > 9 {
		return Account{}, fmt.Errorf("%w: class must be 1..9", ErrValidation)
	}
	switch account.Type {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
	default:
		return Account{}, fmt.Errorf("%w: unknown account type %q", ErrValidation, account.Type)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateAccount(ctx, account)
		if err != nil {
			return err
		}
		account.ID = id
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// CreateJournal persists a journal.
func (s *Service) CreateJournal(ctx context.Context, journal Journal) (Journal, error) {
	journal.Code = strings.TrimSpace(journal.Code)
	if journal.Code == "" || journal.Name == "" {
		return Journal{}, fmt.Errorf("%w: code and name required", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateJournal(ctx, journal)
		if err != nil {
			return err
		}
		journal.ID = id
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	return journal, nil
}

// CreatePeriod persists a fiscal period.
func (s *Service) CreatePeriod(ctx context.Context, period Period) (Period, error) {
	if period.Name == "" {
		return Period{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	if !period.EndDate.After(period.StartDate) {
		return Period{}, fmt.Errorf("%w: end date must follow start date", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreatePeriod(ctx, period)
		if err != nil {
			return err
		}
		period.ID = id
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// ClosePeriod marks a period closed. Closing twice fails.
func (s *Service) ClosePeriod(ctx context.Context, periodID int64, actorID int64) error {
	period, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return err
	}
	if period.Closed {
		return ErrPeriodClosed
	}
	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.ClosePeriod(ctx, periodID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "period.close", fmt.Sprintf("%d", periodID), map[string]any{"actor_id": actorID})
	return nil
}

func (s *Service) observe(journalID int64, outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePosting(fmt.Sprintf("%d", journalID), outcome)
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "ledger",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now(),
	})
}
