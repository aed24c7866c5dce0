package sales

import "context"

// DailySummary aggregates settled sales inside one reporting window.
type DailySummary struct {
	Transactions int64                     `json:"transactions"`
	Revenue      float64                   `json:"revenue"`
	ByMethod     map[PaymentMethod]float64 `json:"by_method"`
}

// UnpaidSummary aggregates outstanding debt sales.
type UnpaidSummary struct {
	Count  int64   `json:"count"`
	Amount float64 `json:"amount"`
}

// Summarize aggregates PAID transactions created inside the window.
func (s *Store) Summarize(ctx context.Context, fromMillis, toMillis int64) (DailySummary, error) {
	summary := DailySummary{ByMethod: map[PaymentMethod]float64{}}

	err := s.db.WithContext(ctx).Model(&Transaction{}).
		Where("created_at_ms BETWEEN ? AND ?", fromMillis, toMillis).
		Where("payment_status = ?", StatusPaid).
		Count(&summary.Transactions).Error
	if err != nil {
		return DailySummary{}, err
	}

	var rows []struct {
		PaymentMethod PaymentMethod
		Total         float64
	}
	err = s.db.WithContext(ctx).Model(&Transaction{}).
		Select("payment_method, COALESCE(SUM(total_amount), 0) AS total").
		Where("created_at_ms BETWEEN ? AND ?", fromMillis, toMillis).
		Where("payment_status = ?", StatusPaid).
		Group("payment_method").
		Scan(&rows).Error
	if err != nil {
		return DailySummary{}, err
	}
	for _, row := range rows {
		summary.ByMethod[row.PaymentMethod] = row.Total
		summary.Revenue += row.Total
	}
	return summary, nil
}

// SummarizeUnpaid aggregates all outstanding debt transactions.
func (s *Store) SummarizeUnpaid(ctx context.Context) (UnpaidSummary, error) {
	var summary UnpaidSummary

	err := s.db.WithContext(ctx).Model(&Transaction{}).
		Where("payment_status = ?", StatusUnpaid).
		Count(&summary.Count).Error
	if err != nil {
		return UnpaidSummary{}, err
	}
	err = s.db.WithContext(ctx).Model(&Transaction{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("payment_status = ?", StatusUnpaid).
		Scan(&summary.Amount).Error
	if err != nil {
		return UnpaidSummary{}, err
	}
	return summary, nil
}
