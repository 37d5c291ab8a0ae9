package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AccountAggregate carries per-account debit/credit sums over a date range,
// denominated in the account's own currency.
type AccountAggregate struct {
	Account Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// TrialBalanceRow is one account line in the trial balance.
type TrialBalanceRow struct {
	Code     string
	Name     string
	Currency string
	Debit    decimal.Decimal
	Credit   decimal.Decimal
	Balance  decimal.Decimal
}

// TrialBalance summarises debit/credit/balance per account over a period.
type TrialBalance struct {
	PeriodID    int64
	Currency    string
	Rows        []TrialBalanceRow
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// StatementLine is one account line in an income statement or balance sheet.
type StatementLine struct {
	Code   string
	Name   string
	Amount decimal.Decimal
}

// StatementSection groups account lines under a label.
type StatementSection struct {
	Label string
	Lines []StatementLine
	Total decimal.Decimal
}

// IncomeStatement reports revenue, expenses, and net income.
type IncomeStatement struct {
	PeriodID  int64
	Standard  Standard
	Currency  string
	Income    StatementSection
	Expense   StatementSection
	NetIncome decimal.Decimal
}

// BalanceSheet reports assets against liabilities and equity.
type BalanceSheet struct {
	PeriodID                  int64
	Standard                  Standard
	Currency                  string
	Assets                    StatementSection
	Liabilities               StatementSection
	Equity                    StatementSection
	TotalLiabilitiesAndEquity decimal.Decimal
}

// TrialBalance aggregates items per account over the period and optionally
// re-expresses the result in a target currency. Conversion applies to the
// final per-account aggregates only, never to raw rows.
func (s *Service) TrialBalance(ctx context.Context, periodID int64, currency string) (TrialBalance, error) {
	period, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return TrialBalance{}, err
	}
	aggregates, err := s.repo.AggregateItems(ctx, period.StartDate, period.EndDate)
	if err != nil {
		return TrialBalance{}, err
	}
	aggregates, err = s.convertAggregates(ctx, aggregates, currency)
	if err != nil {
		return TrialBalance{}, err
	}
	sortAggregates(aggregates)

	report := TrialBalance{PeriodID: periodID, Currency: currency, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, agg := range aggregates {
		rowCurrency := agg.Account.Currency
		if currency != "" {
			rowCurrency = currency
		}
		row := TrialBalanceRow{
			Code:     agg.Account.Code,
			Name:     agg.Account.Name,
			Currency: rowCurrency,
			Debit:    agg.Debit,
			Credit:   agg.Credit,
			Balance:  agg.Debit.Sub(agg.Credit),
		}
		report.Rows = append(report.Rows, row)
		report.TotalDebit = report.TotalDebit.Add(row.Debit)
		report.TotalCredit = report.TotalCredit.Add(row.Credit)
	}
	return report, nil
}

// IncomeStatement builds the revenue/expense report for a period under the
// chosen accounting standard.
func (s *Service) IncomeStatement(ctx context.Context, periodID int64, standard Standard, currency string) (IncomeStatement, error) {
	if err := validateStandard(standard); err != nil {
		return IncomeStatement{}, err
	}
	period, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return IncomeStatement{}, err
	}
	aggregates, err := s.repo.AggregateItems(ctx, period.StartDate, period.EndDate)
	if err != nil {
		return IncomeStatement{}, err
	}
	aggregates, err = s.convertAggregates(ctx, aggregates, currency)
	if err != nil {
		return IncomeStatement{}, err
	}
	sortAggregates(aggregates)

	report := IncomeStatement{PeriodID: periodID, Standard: standard, Currency: currency}
	report.Income.Label = "Income"
	report.Income.Total = decimal.Zero
	report.Expense.Label = "Expense"
	report.Expense.Total = decimal.Zero
	for _, agg := range aggregates {
		switch {
		case isIncomeAccount(agg.Account, standard):
			// Income accounts accumulate on the credit side.
			amount := agg.Credit.Sub(agg.Debit)
			report.Income.Lines = append(report.Income.Lines, StatementLine{Code: agg.Account.Code, Name: agg.Account.Name, Amount: amount})
			report.Income.Total = report.Income.Total.Add(amount)
		case isExpenseAccount(agg.Account, standard):
			amount := agg.Debit.Sub(agg.Credit)
			report.Expense.Lines = append(report.Expense.Lines, StatementLine{Code: agg.Account.Code, Name: agg.Account.Name, Amount: amount})
			report.Expense.Total = report.Expense.Total.Add(amount)
		}
	}
	report.NetIncome = report.Income.Total.Sub(report.Expense.Total)
	return report, nil
}

// BalanceSheet builds the asset/liability/equity report as of the period end.
func (s *Service) BalanceSheet(ctx context.Context, periodID int64, standard Standard, currency string) (BalanceSheet, error) {
	if err := validateStandard(standard); err != nil {
		return BalanceSheet{}, err
	}
	period, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return BalanceSheet{}, err
	}
	aggregates, err := s.repo.AggregateItems(ctx, time.Time{}, period.EndDate)
	if err != nil {
		return BalanceSheet{}, err
	}
	aggregates, err = s.convertAggregates(ctx, aggregates, currency)
	if err != nil {
		return BalanceSheet{}, err
	}
	sortAggregates(aggregates)

	report := BalanceSheet{PeriodID: periodID, Standard: standard, Currency: currency}
	report.Assets.Label = "Assets"
	report.Assets.Total = decimal.Zero
	report.Liabilities.Label = "Liabilities"
	report.Liabilities.Total = decimal.Zero
	report.Equity.Label = "Equity"
	report.Equity.Total = decimal.Zero
	for _, agg := range aggregates {
		switch agg.Account.Type {
		case AccountTypeAsset:
			amount := agg.Debit.Sub(agg.Credit)
			report.Assets.Lines = append(report.Assets.Lines, StatementLine{Code: agg.Account.Code, Name: agg.Account.Name, Amount: amount})
			report.Assets.Total = report.Assets.Total.Add(amount)
		case AccountTypeLiability:
			amount := agg.Credit.Sub(agg.Debit)
			report.Liabilities.Lines = append(report.Liabilities.Lines, StatementLine{Code: agg.Account.Code, Name: agg.Account.Name, Amount: amount})
			report.Liabilities.Total = report.Liabilities.Total.Add(amount)
		case AccountTypeEquity:
			amount := agg.Credit.Sub(agg.Debit)
			report.Equity.Lines = append(report.Equity.Lines, StatementLine{Code: agg.Account.Code, Name: agg.Account.Name, Amount: amount})
			report.Equity.Total = report.Equity.Total.Add(amount)
		}
	}
	report.TotalLiabilitiesAndEquity = report.Liabilities.Total.Add(report.Equity.Total)
	return report, nil
}

// convertAggregates re-expresses aggregate sums in the target currency.
// An empty target keeps each account's own currency.
func (s *Service) convertAggregates(ctx context.Context, aggregates []AccountAggregate, currency string) ([]AccountAggregate, error) {
	if currency == "" {
		return aggregates, nil
	}
	out := make([]AccountAggregate, 0, len(aggregates))
	for _, agg := range aggregates {
		if agg.Account.Currency != currency {
			debit, err := s.fx.Convert(ctx, agg.Debit, agg.Account.Currency, currency, nil)
			if err != nil {
				return nil, err
			}
			credit, err := s.fx.Convert(ctx, agg.Credit, agg.Account.Currency, currency, nil)
			if err != nil {
				return nil, err
			}
			agg.Debit, agg.Credit = debit, credit
		}
		out = append(out, agg)
	}
	return out, nil
}

func validateStandard(standard Standard) error {
	switch standard {
	case StandardOHADA, StandardUSGAAP:
		return nil
	default:
		return ErrUnknownStandard
	}
}

func isIncomeAccount(account Account, standard Standard) bool {
	if account.Type == AccountTypeIncome {
		return true
	}
	return standard == StandardOHADA && account.ClassNumber == 7
}

func isExpenseAccount(account Account, standard Standard) bool {
	if account.Type == AccountTypeExpense {
		return true
	}
	return standard == StandardOHADA && account.ClassNumber == 6
}

func sortAggregates(aggregates []AccountAggregate) {
	sort.Slice(aggregates, func(i, j int) bool {
		if aggregates[i].Account.ClassNumber != aggregates[j].Account.ClassNumber {
			return aggregates[i].Account.ClassNumber < aggregates[j].Account.ClassNumber
		}
		return aggregates[i].Account.Code < aggregates[j].Account.Code
	})
}
