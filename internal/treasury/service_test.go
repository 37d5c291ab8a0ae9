package treasury

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeRepo implements RepositoryPort and TxRepository in memory.
type fakeRepo struct {
	accounts    map[uuid.UUID]*CashAccount
	transfers   []AccountTransfer
	payments    []Payment
	forecasts   map[string]*CashFlowForecast
	assignments []AssignmentHistory
	lockOrder   []uuid.UUID
	nextID      int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts:  map[uuid.UUID]*CashAccount{},
		forecasts: map[string]*CashFlowForecast{},
	}
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *fakeRepo) GetAccount(_ context.Context, id uuid.UUID) (CashAccount, error) {
	account, ok := r.accounts[id]
	if !ok {
		return CashAccount{}, ErrAccountNotFound
	}
	return *account, nil
}

func (r *fakeRepo) ListAccounts(context.Context) ([]CashAccount, error) {
	var out []CashAccount
	for _, account := range r.accounts {
		out = append(out, *account)
	}
	return out, nil
}

func (r *fakeRepo) ListForecasts(_ context.Context, periodID int64) ([]CashFlowForecast, error) {
	var out []CashFlowForecast
	for _, forecast := range r.forecasts {
		if forecast.PeriodID == periodID {
			out = append(out, *forecast)
		}
	}
	return out, nil
}

func (r *fakeRepo) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (CashAccount, error) {
	r.lockOrder = append(r.lockOrder, id)
	return r.GetAccount(ctx, id)
}

func (r *fakeRepo) SetBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal) error {
	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.Balance = balance
	return nil
}

func (r *fakeRepo) InsertTransfer(_ context.Context, transfer AccountTransfer) (int64, error) {
	r.nextID++
	transfer.ID = r.nextID
	r.transfers = append(r.transfers, transfer)
	return transfer.ID, nil
}

func (r *fakeRepo) InsertPayment(_ context.Context, payment Payment) error {
	r.payments = append(r.payments, payment)
	return nil
}

func (r *fakeRepo) InsertAccount(_ context.Context, account CashAccount) error {
	for _, existing := range r.accounts {
		if existing.Number == account.Number {
			return ErrDuplicateNumber
		}
	}
	stored := account
	r.accounts[account.ID] = &stored
	return nil
}

func (r *fakeRepo) SetAssignee(_ context.Context, id uuid.UUID, userID int64, at time.Time) error {
	account, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.AssignedTo = &userID
	r.assignments = append(r.assignments, AssignmentHistory{CashAccountID: id, AssignedTo: userID, AssignedAt: at})
	return nil
}

func (r *fakeRepo) UpsertForecast(_ context.Context, forecast CashFlowForecast) (CashFlowForecast, error) {
	key := fmt.Sprintf("%s/%d", forecast.CashAccountID, forecast.PeriodID)
	if existing, ok := r.forecasts[key]; ok {
		existing.Inflow = forecast.Inflow
		existing.Outflow = forecast.Outflow
		return *existing, nil
	}
	r.nextID++
	forecast.ID = r.nextID
	stored := forecast
	r.forecasts[key] = &stored
	return stored, nil
}

func seedTreasury(t *testing.T) (*fakeRepo, *Service, uuid.UUID, uuid.UUID) {
	t.Helper()
	repo := newFakeRepo()
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) })

	usdID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	cdfID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	repo.accounts[usdID] = &CashAccount{ID: usdID, Number: "CA-USD", Name: "Main USD", Currency: "USD", Balance: decimal.NewFromInt(1000)}
	repo.accounts[cdfID] = &CashAccount{ID: cdfID, Number: "CA-CDF", Name: "Main CDF", Currency: "CDF", Balance: decimal.NewFromInt(500000)}
	return repo, svc, usdID, cdfID
}

func TestTransferSameCurrencyForcesRateOne(t *testing.T) {
	repo, svc, usdID, _ := seedTreasury(t)
	otherID := uuid.MustParse("33333333-3333-3333-3333-333333333333")
	repo.accounts[otherID] = &CashAccount{ID: otherID, Number: "CA-USD-2", Name: "Petty USD", Currency: "USD", Balance: decimal.NewFromInt(50)}

	// An explicit rate on a same-currency transfer is ignored.
	explicit := decimal.NewFromInt(2)
	transfer, err := svc.Transfer(context.Background(), TransferInput{
		FromAccountID: usdID,
		ToAccountID:   otherID,
		Amount:        decimal.NewFromInt(200),
		ExchangeRate:  &explicit,
	})
	require.NoError(t, err)
	require.True(t, transfer.ExchangeRate.Equal(decimal.NewFromInt(1)))
	require.True(t, transfer.AmountConverted.Equal(transfer.Amount))
	require.True(t, repo.accounts[usdID].Balance.Equal(decimal.NewFromInt(800)))
	require.True(t, repo.accounts[otherID].Balance.Equal(decimal.NewFromInt(250)))
}

func TestTransferCrossCurrencyConverts(t *testing.T) {
	repo, svc, usdID, cdfID := seedTreasury(t)

	rate := decimal.NewFromInt(2500)
	transfer, err := svc.Transfer(context.Background(), TransferInput{
		FromAccountID: usdID,
		ToAccountID:   cdfID,
		Amount:        decimal.NewFromInt(100),
		ExchangeRate:  &rate,
	})
	require.NoError(t, err)
	require.True(t, transfer.AmountConverted.Equal(decimal.NewFromInt(250000)))
	require.True(t, repo.accounts[usdID].Balance.Equal(decimal.NewFromInt(900)))
	require.True(t, repo.accounts[cdfID].Balance.Equal(decimal.NewFromInt(750000)))
}

func TestTransferCrossCurrencyRequiresRate(t *testing.T) {
	repo, svc, usdID, cdfID := seedTreasury(t)

	_, err := svc.Transfer(context.Background(), TransferInput{
		FromAccountID: usdID,
		ToAccountID:   cdfID,
		Amount:        decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, ErrRateRequired)
	// No partial debit.
	require.True(t, repo.accounts[usdID].Balance.Equal(decimal.NewFromInt(1000)))
}

func TestTransferInsufficientFunds(t *testing.T) {
	repo, svc, usdID, cdfID := seedTreasury(t)

	rate := decimal.NewFromInt(2500)
	_, err := svc.Transfer(context.Background(), TransferInput{
		FromAccountID: usdID,
		ToAccountID:   cdfID,
		Amount:        decimal.NewFromInt(5000),
		ExchangeRate:  &rate,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.True(t, repo.accounts[cdfID].Balance.Equal(decimal.NewFromInt(500000)))
}

func TestTransferSameAccountRejected(t *testing.T) {
	_, svc, usdID, _ := seedTreasury(t)

	_, err := svc.Transfer(context.Background(), TransferInput{
		FromAccountID: usdID,
		ToAccountID:   usdID,
		Amount:        decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, ErrSameAccount)
}

func TestTransferLocksInAccountIDOrder(t *testing.T) {
	repo, svc, usdID, cdfID := seedTreasury(t)

	rate := decimal.NewFromInt(2500)
	// Transfer runs destination-first by ID; locks must still be ordered.
	_, err := svc.Transfer(context.Background(), TransferInput{
		FromAccountID: cdfID,
		ToAccountID:   usdID,
		Amount:        decimal.NewFromInt(2500),
		ExchangeRate:  &rate,
	})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{usdID, cdfID}, repo.lockOrder)
}

func TestPayCrossCurrency(t *testing.T) {
	repo, svc, _, cdfID := seedTreasury(t)

	// CDF cash account settles a USD requisition: 250000 CDF at 0.0004.
	rate := decimal.NewFromFloat(0.0004)
	payment, err := svc.Pay(context.Background(), PaymentInput{
		CashAccountID: cdfID,
		Amount:        decimal.NewFromInt(250000),
		Currency:      "USD",
		ExchangeRate:  &rate,
	})
	require.NoError(t, err)
	require.True(t, payment.RequisitionAmount.Equal(decimal.NewFromInt(100)))
	require.True(t, repo.accounts[cdfID].Balance.Equal(decimal.NewFromInt(250000)))
	require.Len(t, repo.payments, 1)
}

func TestPaySameCurrency(t *testing.T) {
	_, svc, usdID, _ := seedTreasury(t)

	payment, err := svc.Pay(context.Background(), PaymentInput{
		CashAccountID: usdID,
		Amount:        decimal.NewFromInt(100),
		Currency:      "USD",
	})
	require.NoError(t, err)
	require.True(t, payment.ExchangeRate.Equal(decimal.NewFromInt(1)))
	require.True(t, payment.RequisitionAmount.Equal(decimal.NewFromInt(100)))
}

func TestPayCrossCurrencyRequiresRate(t *testing.T) {
	_, svc, _, cdfID := seedTreasury(t)

	_, err := svc.Pay(context.Background(), PaymentInput{
		CashAccountID: cdfID,
		Amount:        decimal.NewFromInt(1000),
		Currency:      "USD",
	})
	require.ErrorIs(t, err, ErrRateRequired)
}

func TestCreateAndAssignAccount(t *testing.T) {
	repo, svc, _, _ := seedTreasury(t)

	account, err := svc.CreateAccount(context.Background(), CashAccount{Number: "CA-EUR", Name: "Euro Desk", Currency: "EUR"})
	require.NoError(t, err)
	require.True(t, account.Balance.IsZero())

	_, err = svc.CreateAccount(context.Background(), CashAccount{Number: "CA-EUR", Name: "Again", Currency: "EUR"})
	require.ErrorIs(t, err, ErrDuplicateNumber)

	_, err = svc.CreateAccount(context.Background(), CashAccount{Number: "CA-XX", Name: "Bad", Currency: "NOPE"})
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, svc.AssignAccount(context.Background(), account.ID, 42))
	require.Len(t, repo.assignments, 1)
	require.EqualValues(t, 42, *repo.accounts[account.ID].AssignedTo)
}

func TestForecastUpsert(t *testing.T) {
	_, svc, usdID, _ := seedTreasury(t)

	first, err := svc.SetForecast(context.Background(), CashFlowForecast{
		CashAccountID: usdID,
		PeriodID:      1,
		Inflow:        decimal.NewFromInt(300),
		Outflow:       decimal.NewFromInt(120),
	})
	require.NoError(t, err)
	require.True(t, first.Net().Equal(decimal.NewFromInt(180)))

	second, err := svc.SetForecast(context.Background(), CashFlowForecast{
		CashAccountID: usdID,
		PeriodID:      1,
		Inflow:        decimal.NewFromInt(500),
		Outflow:       decimal.NewFromInt(120),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	forecasts, err := svc.ListForecasts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, forecasts, 1)
}
