package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/fingerprint"
	"github.com/yourorg/market-cache/internal/model"
)

// SQLite is the embedded single-file storage variant. The hosted variant
// matches symbols case-insensitively in SQL; here the same semantics come
// from casefolding every symbol at the boundary, writes included, so both
// variants agree that "aapl" == "AAPL".
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the database file and applies the
// schema. A single writer connection sidesteps SQLITE_BUSY under the
// fabric's concurrent writes.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrStorageUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, schemaSQLite); err != nil {
		db.Close()
		return nil, classify(err)
	}
	return &SQLite{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) GetSymbol(ctx context.Context, symbol string) (*model.Symbol, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, name, currency, exchange, isin, created_at, updated_at
		FROM symbols WHERE symbol = ?`,
		fingerprint.NormalizeSymbol(symbol))

	var sym model.Symbol
	var updated sql.NullTime
	err := row.Scan(&sym.ID, &sym.Symbol, &sym.Name, &sym.Currency, &sym.Exchange,
		&sym.ISIN, &sym.CreatedAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to get symbol", zap.Error(err), zap.String("symbol", symbol))
		return nil, classify(err)
	}
	if updated.Valid {
		sym.UpdatedAt = &updated.Time
	}
	return &sym, nil
}

func (s *SQLite) UpsertSymbol(ctx context.Context, sym *model.Symbol) (*model.Symbol, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO symbols (symbol, name, currency, exchange, isin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol)
		DO UPDATE SET
			name     = CASE WHEN excluded.name != '' THEN excluded.name ELSE symbols.name END,
			currency = CASE WHEN excluded.currency != '' THEN excluded.currency ELSE symbols.currency END,
			exchange = CASE WHEN excluded.exchange != '' THEN excluded.exchange ELSE symbols.exchange END,
			isin     = COALESCE(excluded.isin, symbols.isin),
			updated_at = ?`,
		fingerprint.NormalizeSymbol(sym.Symbol), sym.Name, sym.Currency, sym.Exchange, sym.ISIN,
		now, now)
	if err != nil {
		s.logger.Error("Failed to upsert symbol", zap.Error(err), zap.String("symbol", sym.Symbol))
		return nil, classify(err)
	}
	return s.GetSymbol(ctx, sym.Symbol)
}

func (s *SQLite) UpdateSymbol(ctx context.Context, symbol string, update model.SymbolUpdate) error {
	if update.Empty() {
		return nil
	}

	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	if update.Name != nil {
		set = append(set, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Currency != nil {
		set = append(set, "currency = ?")
		args = append(args, *update.Currency)
	}
	if update.Exchange != nil {
		set = append(set, "exchange = ?")
		args = append(args, *update.Exchange)
	}
	if update.ISIN != nil {
		set = append(set, "isin = ?")
		args = append(args, *update.ISIN)
	}
	set = append(set, "updated_at = ?")
	args = append(args, time.Now().UTC(), fingerprint.NormalizeSymbol(symbol))

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE symbols SET %s WHERE symbol = ?", strings.Join(set, ", ")),
		args...)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Wrapf(core.ErrNotFound, "symbol %s unknown", symbol)
	}
	return nil
}

func (s *SQLite) symbolID(ctx context.Context, symbol string) (int, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `SELECT id FROM symbols WHERE symbol = ?`,
		fingerprint.NormalizeSymbol(symbol)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.Wrapf(core.ErrNotFound, "symbol %s unknown", symbol)
	}
	if err != nil {
		return 0, classify(err)
	}
	return id, nil
}

func (s *SQLite) scanBars(rows *sql.Rows) ([]model.Bar, error) {
	defer rows.Close()
	bars := []model.Bar{}
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.ID, &b.SymbolID, &b.Date, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Volume, &b.AdjustedClose, &b.SplitRatio, &b.Dividend, &b.Currency,
			&b.DataSource, &b.CreatedAt); err != nil {
			return nil, classify(err)
		}
		bars = append(bars, b)
	}
	return bars, classify(rows.Err())
}

func (s *SQLite) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.symbol_id, b.date, b.open, b.high, b.low, b.close, b.volume,
		       b.adjusted_close, b.split_ratio, b.dividend, b.currency, b.data_source, b.created_at
		FROM bars b
		JOIN symbols s ON s.id = b.symbol_id
		WHERE s.symbol = ? AND b.date >= ? AND b.date <= ?
		ORDER BY b.date ASC`,
		fingerprint.NormalizeSymbol(symbol), start, end)
	if err != nil {
		s.logger.Error("Failed to get bars", zap.Error(err), zap.String("symbol", symbol))
		return nil, classify(err)
	}
	return s.scanBars(rows)
}

func (s *SQLite) UpsertBars(ctx context.Context, symbol string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	symbolID, err := s.symbolID(ctx, symbol)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol_id, date, open, high, low, close, volume,
		                  adjusted_close, split_ratio, dividend, currency, data_source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol_id, date)
		DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			adjusted_close = excluded.adjusted_close,
			split_ratio = excluded.split_ratio,
			dividend = excluded.dividend,
			currency = excluded.currency,
			data_source = excluded.data_source`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbolID, b.Date, b.Open, b.High, b.Low, b.Close,
			b.Volume, b.AdjustedClose, b.SplitRatio, b.Dividend, b.Currency, b.DataSource, now); err != nil {
			s.logger.Error("Failed to upsert bar", zap.Error(err),
				zap.String("symbol", symbol), zap.Time("date", b.Date))
			return classify(err)
		}
	}
	return classify(tx.Commit())
}

func (s *SQLite) LastBar(ctx context.Context, symbol string) (*model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.symbol_id, b.date, b.open, b.high, b.low, b.close, b.volume,
		       b.adjusted_close, b.split_ratio, b.dividend, b.currency, b.data_source, b.created_at
		FROM bars b
		JOIN symbols s ON s.id = b.symbol_id
		WHERE s.symbol = ?
		ORDER BY b.date DESC
		LIMIT 1`,
		fingerprint.NormalizeSymbol(symbol))
	if err != nil {
		return nil, classify(err)
	}
	bars, err := s.scanBars(rows)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return &bars[0], nil
}

func (s *SQLite) GetFundamentals(ctx context.Context, symbol, metricType string) ([]model.Fundamental, error) {
	query := `
		SELECT f.id, f.symbol_id, f.metric_type, f.period_ending, f.value,
		       f.currency, f.report_date, f.data_source, f.created_at
		FROM fundamentals f
		JOIN symbols s ON s.id = f.symbol_id
		WHERE s.symbol = ?`
	args := []interface{}{fingerprint.NormalizeSymbol(symbol)}
	if metricType != "" {
		query += " AND f.metric_type = ?"
		args = append(args, metricType)
	}
	query += " ORDER BY f.period_ending DESC, f.metric_type ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []model.Fundamental{}
	for rows.Next() {
		var f model.Fundamental
		if err := rows.Scan(&f.ID, &f.SymbolID, &f.MetricType, &f.PeriodEnding, &f.Value,
			&f.Currency, &f.ReportDate, &f.DataSource, &f.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, f)
	}
	return out, classify(rows.Err())
}

func (s *SQLite) UpsertFundamentals(ctx context.Context, symbol string, rows []model.Fundamental) error {
	if len(rows) == 0 {
		return nil
	}
	symbolID, err := s.symbolID(ctx, symbol)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fundamentals (symbol_id, metric_type, period_ending, value, currency, report_date, data_source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol_id, metric_type, period_ending)
		DO UPDATE SET
			value = excluded.value,
			currency = excluded.currency,
			report_date = excluded.report_date,
			data_source = excluded.data_source`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, f := range rows {
		if _, err := stmt.ExecContext(ctx, symbolID, f.MetricType, f.PeriodEnding,
			f.Value, f.Currency, f.ReportDate, f.DataSource, now); err != nil {
			return classify(err)
		}
	}
	return classify(tx.Commit())
}

func (s *SQLite) GetIndicators(ctx context.Context, symbol, indicatorType string, since *time.Time) ([]model.IndicatorValue, error) {
	query := `
		SELECT i.id, i.symbol_id, i.indicator_type, i.date, i.param_fingerprint,
		       i.value, i.params, i.data_source, i.created_at
		FROM indicators i
		JOIN symbols s ON s.id = i.symbol_id
		WHERE s.symbol = ?`
	args := []interface{}{fingerprint.NormalizeSymbol(symbol)}
	if indicatorType != "" {
		query += " AND i.indicator_type = ?"
		args = append(args, indicatorType)
	}
	if since != nil {
		query += " AND i.date >= ?"
		args = append(args, *since)
	}
	query += " ORDER BY i.date DESC, i.indicator_type ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []model.IndicatorValue{}
	for rows.Next() {
		var iv model.IndicatorValue
		if err := rows.Scan(&iv.ID, &iv.SymbolID, &iv.IndicatorType, &iv.Date, &iv.ParamFingerprint,
			&iv.Value, &iv.Params, &iv.DataSource, &iv.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, iv)
	}
	return out, classify(rows.Err())
}

func (s *SQLite) UpsertIndicators(ctx context.Context, symbol string, rows []model.IndicatorValue) error {
	if len(rows) == 0 {
		return nil
	}
	symbolID, err := s.symbolID(ctx, symbol)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO indicators (symbol_id, indicator_type, date, param_fingerprint, value, params, data_source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol_id, indicator_type, date, param_fingerprint)
		DO UPDATE SET
			value = excluded.value,
			params = excluded.params,
			data_source = excluded.data_source`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, iv := range rows {
		if _, err := stmt.ExecContext(ctx, symbolID, iv.IndicatorType, iv.Date,
			iv.ParamFingerprint, iv.Value, iv.Params, iv.DataSource, now); err != nil {
			return classify(err)
		}
	}
	return classify(tx.Commit())
}

func (s *SQLite) GetCorporateActions(ctx context.Context, symbol string) ([]model.CorporateAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.symbol_id, a.action_date, a.action_type, a.split_ratio,
		       a.dividend_amount, a.adjustment_factor, a.created_at
		FROM corporate_actions a
		JOIN symbols s ON s.id = a.symbol_id
		WHERE s.symbol = ?
		ORDER BY a.action_date ASC`,
		fingerprint.NormalizeSymbol(symbol))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []model.CorporateAction{}
	for rows.Next() {
		var a model.CorporateAction
		if err := rows.Scan(&a.ID, &a.SymbolID, &a.ActionDate, &a.ActionType, &a.SplitRatio,
			&a.DividendAmount, &a.AdjustmentFactor, &a.CreatedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, a)
	}
	return out, classify(rows.Err())
}

func (s *SQLite) UpsertCorporateActions(ctx context.Context, symbol string, rows []model.CorporateAction) error {
	if len(rows) == 0 {
		return nil
	}
	symbolID, err := s.symbolID(ctx, symbol)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO corporate_actions (symbol_id, action_date, action_type, split_ratio, dividend_amount, adjustment_factor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol_id, action_date, action_type)
		DO UPDATE SET
			split_ratio = excluded.split_ratio,
			dividend_amount = excluded.dividend_amount,
			adjustment_factor = excluded.adjustment_factor`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, a := range rows {
		if _, err := stmt.ExecContext(ctx, symbolID, a.ActionDate, a.ActionType,
			a.SplitRatio, a.DividendAmount, a.AdjustmentFactor, now); err != nil {
			return classify(err)
		}
	}
	return classify(tx.Commit())
}

func (s *SQLite) scanFxRate(row *sql.Row) (*model.FxRate, error) {
	var r model.FxRate
	err := row.Scan(&r.ID, &r.FromCurrency, &r.ToCurrency, &r.Rate, &r.SourceRate,
		&r.ExpiresAt, &r.DataSource, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &r, nil
}

func (s *SQLite) GetFxRate(ctx context.Context, from, to string) (*model.FxRate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, from_currency, to_currency, rate, source_rate, expires_at, data_source, created_at, updated_at
		FROM fx_rates
		WHERE from_currency = ? AND to_currency = ? AND expires_at > ?`,
		fingerprint.NormalizeSymbol(from), fingerprint.NormalizeSymbol(to), time.Now().UTC())
	return s.scanFxRate(row)
}

func (s *SQLite) GetFxRateRaw(ctx context.Context, from, to string) (*model.FxRate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, from_currency, to_currency, rate, source_rate, expires_at, data_source, created_at, updated_at
		FROM fx_rates
		WHERE from_currency = ? AND to_currency = ?`,
		fingerprint.NormalizeSymbol(from), fingerprint.NormalizeSymbol(to))
	return s.scanFxRate(row)
}

func (s *SQLite) UpsertFxRate(ctx context.Context, rate *model.FxRate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	from := fingerprint.NormalizeSymbol(rate.FromCurrency)
	to := fingerprint.NormalizeSymbol(rate.ToCurrency)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fx_rates (from_currency, to_currency, rate, source_rate, expires_at, data_source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (from_currency, to_currency)
		DO UPDATE SET
			rate = excluded.rate,
			source_rate = excluded.source_rate,
			expires_at = excluded.expires_at,
			data_source = excluded.data_source,
			updated_at = excluded.updated_at`,
		from, to, rate.Rate, rate.SourceRate, rate.ExpiresAt, rate.DataSource, now, now)
	if err != nil {
		s.logger.Error("Failed to upsert fx rate", zap.Error(err),
			zap.String("from", from), zap.String("to", to))
		return classify(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fx_rate_history (from_currency, to_currency, rate, data_source, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		from, to, rate.Rate, rate.DataSource, now)
	if err != nil {
		return classify(err)
	}
	return classify(tx.Commit())
}

func (s *SQLite) FxRateHistory(ctx context.Context, from, to string, start, end time.Time) ([]model.FxRateHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_currency, to_currency, rate, data_source, recorded_at
		FROM fx_rate_history
		WHERE from_currency = ? AND to_currency = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at ASC`,
		fingerprint.NormalizeSymbol(from), fingerprint.NormalizeSymbol(to), start, end)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []model.FxRateHistory{}
	for rows.Next() {
		var h model.FxRateHistory
		if err := rows.Scan(&h.ID, &h.FromCurrency, &h.ToCurrency, &h.Rate,
			&h.DataSource, &h.RecordedAt); err != nil {
			return nil, classify(err)
		}
		out = append(out, h)
	}
	return out, classify(rows.Err())
}

func (s *SQLite) IsCacheValid(ctx context.Context, key string) (bool, error) {
	var valid bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM cache_metadata
			WHERE cache_key = ? AND expires_at > ?
		)`, key, time.Now().UTC()).Scan(&valid)
	if err != nil {
		return false, classify(err)
	}
	return valid, nil
}

func (s *SQLite) TouchCache(ctx context.Context, key string, dataType model.DataType, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_metadata (cache_key, data_type, expires_at, access_count, last_accessed, created_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (cache_key)
		DO UPDATE SET
			data_type = excluded.data_type,
			expires_at = excluded.expires_at,
			access_count = cache_metadata.access_count + 1,
			last_accessed = excluded.last_accessed`,
		key, string(dataType), now.Add(ttl), now, now)
	if err != nil {
		s.logger.Error("Failed to touch cache metadata", zap.Error(err), zap.String("key", key))
		return classify(err)
	}
	return nil
}

func (s *SQLite) DeleteCache(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_metadata WHERE cache_key = ?`, key)
	return classify(err)
}

func (s *SQLite) ClearCache(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_metadata`)
	return classify(err)
}

func (s *SQLite) ReapExpiredCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_metadata WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, classify(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLite) HealthSnapshot(ctx context.Context) *model.HealthSnapshot {
	snap := &model.HealthSnapshot{Timestamp: time.Now().UTC()}

	if s.db == nil {
		snap.Connection = "error"
		return snap
	}
	if err := s.db.PingContext(ctx); err != nil {
		snap.Connection = "error"
		return snap
	}

	var stats model.HealthStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols`).Scan(&stats.Symbols); err != nil {
		snap.Connection = "error"
		return snap
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bars`).Scan(&stats.Bars); err != nil {
		snap.Connection = "error"
		return snap
	}

	var last sql.NullTime
	_ = s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM bars`).Scan(&last)
	if last.Valid {
		snap.LastUpdated = &last.Time
	}

	snap.Healthy = true
	snap.Connection = "connected"
	snap.Stats = stats
	return snap
}
