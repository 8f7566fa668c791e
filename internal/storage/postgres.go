package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/yourorg/market-cache/internal/core"
	"github.com/yourorg/market-cache/internal/fingerprint"
	"github.com/yourorg/market-cache/internal/model"
)

// Postgres is the hosted-remote storage variant.
type Postgres struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// OpenPostgres connects to the hosted database with bounded retry and
// applies the schema.
func OpenPostgres(ctx context.Context, cfg Config, logger *zap.Logger) (*Postgres, error) {
	var db *sqlx.DB
	connect := func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, "pgx", cfg.DSN)
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(connect, bo); err != nil {
		return nil, core.WrapError(core.ErrStorageUnavailable, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	p := &Postgres{db: db, logger: logger}
	if _, err := db.ExecContext(ctx, schemaPostgres); err != nil {
		db.Close()
		return nil, classify(err)
	}
	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// GetSymbol retrieves a symbol row, matching case-insensitively.
// Returns (nil, nil) when the symbol is unknown.
func (p *Postgres) GetSymbol(ctx context.Context, symbol string) (*model.Symbol, error) {
	query := `
		SELECT id, symbol, name, currency, exchange, isin, created_at, updated_at
		FROM symbols
		WHERE UPPER(symbol) = $1
	`

	var sym model.Symbol
	err := p.db.GetContext(ctx, &sym, query, fingerprint.NormalizeSymbol(symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		p.logger.Error("Failed to get symbol", zap.Error(err), zap.String("symbol", symbol))
		return nil, classify(err)
	}
	return &sym, nil
}

// UpsertSymbol inserts the symbol on first observation or enriches its
// mutable attributes, bumping updated_at. created_at is preserved.
func (p *Postgres) UpsertSymbol(ctx context.Context, sym *model.Symbol) (*model.Symbol, error) {
	query := `
		INSERT INTO symbols (symbol, name, currency, exchange, isin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol)
		DO UPDATE SET
			name     = COALESCE(NULLIF(EXCLUDED.name, ''), symbols.name),
			currency = COALESCE(NULLIF(EXCLUDED.currency, ''), symbols.currency),
			exchange = COALESCE(NULLIF(EXCLUDED.exchange, ''), symbols.exchange),
			isin     = COALESCE(EXCLUDED.isin, symbols.isin),
			updated_at = $6
		RETURNING id, symbol, name, currency, exchange, isin, created_at, updated_at
	`

	var out model.Symbol
	err := p.db.GetContext(ctx, &out, query,
		fingerprint.NormalizeSymbol(sym.Symbol),
		sym.Name, sym.Currency, sym.Exchange, sym.ISIN,
		time.Now().UTC(),
	)
	if err != nil {
		p.logger.Error("Failed to upsert symbol", zap.Error(err), zap.String("symbol", sym.Symbol))
		return nil, classify(err)
	}
	return &out, nil
}

// UpdateSymbol applies a partial update to a known symbol. No-op when the
// update carries no fields; NotFound when the symbol is unknown.
func (p *Postgres) UpdateSymbol(ctx context.Context, symbol string, update model.SymbolUpdate) error {
	if update.Empty() {
		return nil
	}

	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	add := func(column string, v interface{}) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(column), len(args)))
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Currency != nil {
		add("currency", *update.Currency)
	}
	if update.Exchange != nil {
		add("exchange", *update.Exchange)
	}
	if update.ISIN != nil {
		add("isin", *update.ISIN)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, fingerprint.NormalizeSymbol(symbol))
	query := fmt.Sprintf(
		"UPDATE symbols SET %s WHERE UPPER(symbol) = $%d",
		strings.Join(set, ", "), len(args),
	)

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		p.logger.Error("Failed to update symbol", zap.Error(err), zap.String("symbol", symbol))
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Wrapf(core.ErrNotFound, "symbol %s unknown", symbol)
	}
	return nil
}

func (p *Postgres) symbolID(ctx context.Context, symbol string) (int, error) {
	var id int
	err := p.db.GetContext(ctx, &id,
		`SELECT id FROM symbols WHERE UPPER(symbol) = $1`,
		fingerprint.NormalizeSymbol(symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.Wrapf(core.ErrNotFound, "symbol %s unknown", symbol)
	}
	if err != nil {
		return 0, classify(err)
	}
	return id, nil
}

// GetBars retrieves bars in [start, end], ordered by ascending date.
// An unknown symbol or empty window yields an empty slice, not an error.
func (p *Postgres) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	query := `
		SELECT b.id, b.symbol_id, b.date, b.open, b.high, b.low, b.close, b.volume,
		       b.adjusted_close, b.split_ratio, b.dividend, b.currency, b.data_source, b.created_at
		FROM bars b
		JOIN symbols s ON s.id = b.symbol_id
		WHERE UPPER(s.symbol) = $1 AND b.date >= $2 AND b.date <= $3
		ORDER BY b.date ASC
	`

	bars := []model.Bar{}
	err := p.db.SelectContext(ctx, &bars, query, fingerprint.NormalizeSymbol(symbol), start, end)
	if err != nil {
		p.logger.Error("Failed to get bars", zap.Error(err), zap.String("symbol", symbol))
		return nil, classify(err)
	}
	return bars, nil
}

// UpsertBars writes a normalized batch inside one transaction; either the
// whole batch lands or none of it does. The caller guarantees the bars
// passed normalization.
func (p *Postgres) UpsertBars(ctx context.Context, symbol string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	symbolID, err := p.symbolID(ctx, symbol)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO bars (symbol_id, date, open, high, low, close, volume,
		                  adjusted_close, split_ratio, dividend, currency, data_source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (symbol_id, date)
		DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			adjusted_close = EXCLUDED.adjusted_close,
			split_ratio = EXCLUDED.split_ratio,
			dividend = EXCLUDED.dividend,
			currency = EXCLUDED.currency,
			data_source = EXCLUDED.data_source
	`)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, b := range bars {
		_, err = stmt.ExecContext(ctx, symbolID, b.Date, b.Open, b.High, b.Low, b.Close,
			b.Volume, b.AdjustedClose, b.SplitRatio, b.Dividend, b.Currency, b.DataSource, now)
		if err != nil {
			p.logger.Error("Failed to upsert bar",
				zap.Error(err),
				zap.String("symbol", symbol),
				zap.Time("date", b.Date))
			return classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// LastBar returns the most recent bar, or (nil, nil) when none exist.
func (p *Postgres) LastBar(ctx context.Context, symbol string) (*model.Bar, error) {
	query := `
		SELECT b.id, b.symbol_id, b.date, b.open, b.high, b.low, b.close, b.volume,
		       b.adjusted_close, b.split_ratio, b.dividend, b.currency, b.data_source, b.created_at
		FROM bars b
		JOIN symbols s ON s.id = b.symbol_id
		WHERE UPPER(s.symbol) = $1
		ORDER BY b.date DESC
		LIMIT 1
	`

	var bar model.Bar
	err := p.db.GetContext(ctx, &bar, query, fingerprint.NormalizeSymbol(symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &bar, nil
}

// GetFundamentals retrieves fundamentals ordered by period_ending DESC,
// metric_type ASC. metricType filters when non-empty.
func (p *Postgres) GetFundamentals(ctx context.Context, symbol, metricType string) ([]model.Fundamental, error) {
	query := `
		SELECT f.id, f.symbol_id, f.metric_type, f.period_ending, f.value,
		       f.currency, f.report_date, f.data_source, f.created_at
		FROM fundamentals f
		JOIN symbols s ON s.id = f.symbol_id
		WHERE UPPER(s.symbol) = $1
	`
	args := []interface{}{fingerprint.NormalizeSymbol(symbol)}
	if metricType != "" {
		query += " AND f.metric_type = $2"
		args = append(args, metricType)
	}
	query += " ORDER BY f.period_ending DESC, f.metric_type ASC"

	rows := []model.Fundamental{}
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		p.logger.Error("Failed to get fundamentals", zap.Error(err), zap.String("symbol", symbol))
		return nil, classify(err)
	}
	return rows, nil
}

// UpsertFundamentals replaces rows on the (symbol, metric, period) key.
func (p *Postgres) UpsertFundamentals(ctx context.Context, symbol string, rows []model.Fundamental) error {
	if len(rows) == 0 {
		return nil
	}
	symbolID, err := p.symbolID(ctx, symbol)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO fundamentals (symbol_id, metric_type, period_ending, value, currency, report_date, data_source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol_id, metric_type, period_ending)
		DO UPDATE SET
			value = EXCLUDED.value,
			currency = EXCLUDED.currency,
			report_date = EXCLUDED.report_date,
			data_source = EXCLUDED.data_source
	`)
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
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// GetIndicators retrieves indicator rows ordered by date DESC,
// indicator_type ASC, optionally filtered by type and lower date bound.
func (p *Postgres) GetIndicators(ctx context.Context, symbol, indicatorType string, since *time.Time) ([]model.IndicatorValue, error) {
	query := `
		SELECT i.id, i.symbol_id, i.indicator_type, i.date, i.param_fingerprint,
		       i.value, i.params, i.data_source, i.created_at
		FROM indicators i
		JOIN symbols s ON s.id = i.symbol_id
		WHERE UPPER(s.symbol) = $1
	`
	args := []interface{}{fingerprint.NormalizeSymbol(symbol)}
	if indicatorType != "" {
		args = append(args, indicatorType)
		query += fmt.Sprintf(" AND i.indicator_type = $%d", len(args))
	}
	if since != nil {
		args = append(args, *since)
		query += fmt.Sprintf(" AND i.date >= $%d", len(args))
	}
	query += " ORDER BY i.date DESC, i.indicator_type ASC"

	rows := []model.IndicatorValue{}
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		p.logger.Error("Failed to get indicators", zap.Error(err), zap.String("symbol", symbol))
		return nil, classify(err)
	}
	return rows, nil
}

// UpsertIndicators replaces rows on (symbol, type, date, fingerprint).
func (p *Postgres) UpsertIndicators(ctx context.Context, symbol string, rows []model.IndicatorValue) error {
	if len(rows) == 0 {
		return nil
	}
	symbolID, err := p.symbolID(ctx, symbol)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO indicators (symbol_id, indicator_type, date, param_fingerprint, value, params, data_source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol_id, indicator_type, date, param_fingerprint)
		DO UPDATE SET
			value = EXCLUDED.value,
			params = EXCLUDED.params,
			data_source = EXCLUDED.data_source
	`)
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
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// GetCorporateActions retrieves actions ordered by ascending action_date.
func (p *Postgres) GetCorporateActions(ctx context.Context, symbol string) ([]model.CorporateAction, error) {
	query := `
		SELECT a.id, a.symbol_id, a.action_date, a.action_type, a.split_ratio,
		       a.dividend_amount, a.adjustment_factor, a.created_at
		FROM corporate_actions a
		JOIN symbols s ON s.id = a.symbol_id
		WHERE UPPER(s.symbol) = $1
		ORDER BY a.action_date ASC
	`

	rows := []model.CorporateAction{}
	if err := p.db.SelectContext(ctx, &rows, query, fingerprint.NormalizeSymbol(symbol)); err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

// UpsertCorporateActions replaces actions on (symbol, date, type).
func (p *Postgres) UpsertCorporateActions(ctx context.Context, symbol string, rows []model.CorporateAction) error {
	if len(rows) == 0 {
		return nil
	}
	symbolID, err := p.symbolID(ctx, symbol)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO corporate_actions (symbol_id, action_date, action_type, split_ratio, dividend_amount, adjustment_factor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol_id, action_date, action_type)
		DO UPDATE SET
			split_ratio = EXCLUDED.split_ratio,
			dividend_amount = EXCLUDED.dividend_amount,
			adjustment_factor = EXCLUDED.adjustment_factor
	`)
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
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// GetFxRate returns the pair's rate only while unexpired; (nil, nil)
// otherwise. A rate expiring exactly now counts as expired.
func (p *Postgres) GetFxRate(ctx context.Context, from, to string) (*model.FxRate, error) {
	query := `
		SELECT id, from_currency, to_currency, rate, source_rate, expires_at, data_source, created_at, updated_at
		FROM fx_rates
		WHERE from_currency = $1 AND to_currency = $2 AND expires_at > $3
	`

	var rate model.FxRate
	err := p.db.GetContext(ctx, &rate, query,
		fingerprint.NormalizeSymbol(from), fingerprint.NormalizeSymbol(to), time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &rate, nil
}

// GetFxRateRaw returns the pair's row regardless of expiry.
func (p *Postgres) GetFxRateRaw(ctx context.Context, from, to string) (*model.FxRate, error) {
	query := `
		SELECT id, from_currency, to_currency, rate, source_rate, expires_at, data_source, created_at, updated_at
		FROM fx_rates
		WHERE from_currency = $1 AND to_currency = $2
	`

	var rate model.FxRate
	err := p.db.GetContext(ctx, &rate, query,
		fingerprint.NormalizeSymbol(from), fingerprint.NormalizeSymbol(to))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &rate, nil
}

// UpsertFxRate replaces the pair's active row and archives the observation
// into fx_rate_history, in one transaction.
func (p *Postgres) UpsertFxRate(ctx context.Context, rate *model.FxRate) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	from := fingerprint.NormalizeSymbol(rate.FromCurrency)
	to := fingerprint.NormalizeSymbol(rate.ToCurrency)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fx_rates (from_currency, to_currency, rate, source_rate, expires_at, data_source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (from_currency, to_currency)
		DO UPDATE SET
			rate = EXCLUDED.rate,
			source_rate = EXCLUDED.source_rate,
			expires_at = EXCLUDED.expires_at,
			data_source = EXCLUDED.data_source,
			updated_at = EXCLUDED.updated_at
	`, from, to, rate.Rate, rate.SourceRate, rate.ExpiresAt, rate.DataSource, now)
	if err != nil {
		p.logger.Error("Failed to upsert fx rate", zap.Error(err),
			zap.String("from", from), zap.String("to", to))
		return classify(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fx_rate_history (from_currency, to_currency, rate, data_source, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, from, to, rate.Rate, rate.DataSource, now)
	if err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// FxRateHistory returns all archived observations in the window.
func (p *Postgres) FxRateHistory(ctx context.Context, from, to string, start, end time.Time) ([]model.FxRateHistory, error) {
	query := `
		SELECT id, from_currency, to_currency, rate, data_source, recorded_at
		FROM fx_rate_history
		WHERE from_currency = $1 AND to_currency = $2 AND recorded_at >= $3 AND recorded_at <= $4
		ORDER BY recorded_at ASC
	`

	rows := []model.FxRateHistory{}
	err := p.db.SelectContext(ctx, &rows, query,
		fingerprint.NormalizeSymbol(from), fingerprint.NormalizeSymbol(to), start, end)
	if err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

// IsCacheValid reports whether an unexpired metadata row exists for key.
func (p *Postgres) IsCacheValid(ctx context.Context, key string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM cache_metadata
			WHERE cache_key = $1 AND expires_at > $2
		)
	`

	var valid bool
	if err := p.db.GetContext(ctx, &valid, query, key, time.Now().UTC()); err != nil {
		return false, classify(err)
	}
	return valid, nil
}

// TouchCache upserts the key's metadata row: a fresh insert starts at
// access_count 1; a hit increments it and refreshes last_accessed.
func (p *Postgres) TouchCache(ctx context.Context, key string, dataType model.DataType, ttl time.Duration) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO cache_metadata (cache_key, data_type, expires_at, access_count, last_accessed, created_at)
		VALUES ($1, $2, $3, 1, $4, $4)
		ON CONFLICT (cache_key)
		DO UPDATE SET
			data_type = EXCLUDED.data_type,
			expires_at = EXCLUDED.expires_at,
			access_count = cache_metadata.access_count + 1,
			last_accessed = EXCLUDED.last_accessed
	`

	if _, err := p.db.ExecContext(ctx, query, key, string(dataType), now.Add(ttl), now); err != nil {
		p.logger.Error("Failed to touch cache metadata", zap.Error(err), zap.String("key", key))
		return classify(err)
	}
	return nil
}

// DeleteCache removes the key's metadata row.
func (p *Postgres) DeleteCache(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM cache_metadata WHERE cache_key = $1`, key); err != nil {
		return classify(err)
	}
	return nil
}

// ClearCache truncates the metadata ledger.
func (p *Postgres) ClearCache(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `TRUNCATE cache_metadata`); err != nil {
		return classify(err)
	}
	return nil
}

// ReapExpiredCache deletes every expired metadata row and reports how many.
func (p *Postgres) ReapExpiredCache(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM cache_metadata WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, classify(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// HealthSnapshot reports connectivity and row counts. Failures yield the
// degraded variant rather than an error.
func (p *Postgres) HealthSnapshot(ctx context.Context) *model.HealthSnapshot {
	snap := &model.HealthSnapshot{Timestamp: time.Now().UTC()}

	if err := p.db.PingContext(ctx); err != nil {
		snap.Connection = "error"
		return snap
	}

	var stats model.HealthStats
	if err := p.db.GetContext(ctx, &stats.Symbols, `SELECT COUNT(*) FROM symbols`); err != nil {
		snap.Connection = "error"
		return snap
	}
	if err := p.db.GetContext(ctx, &stats.Bars, `SELECT COUNT(*) FROM bars`); err != nil {
		snap.Connection = "error"
		return snap
	}

	var last sql.NullTime
	_ = p.db.GetContext(ctx, &last, `SELECT MAX(created_at) FROM bars`)
	if last.Valid {
		snap.LastUpdated = &last.Time
	}

	snap.Healthy = true
	snap.Connection = "connected"
	snap.Stats = stats
	return snap
}
