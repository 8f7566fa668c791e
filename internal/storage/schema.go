package storage

// The relational schema is identical in meaning on both variants; only
// dialect details differ (serial keys, timestamp types, placeholder form).
// Six core tables plus three auxiliary tables, with the indexes the read
// paths depend on.

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS symbols (
	id          SERIAL PRIMARY KEY,
	symbol      TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL DEFAULT '',
	currency    TEXT NOT NULL DEFAULT 'USD',
	exchange    TEXT NOT NULL DEFAULT '',
	isin        TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS bars (
	id             SERIAL PRIMARY KEY,
	symbol_id      INTEGER NOT NULL REFERENCES symbols(id),
	date           DATE NOT NULL,
	open           REAL NOT NULL,
	high           REAL NOT NULL,
	low            REAL NOT NULL,
	close          REAL NOT NULL,
	volume         BIGINT NOT NULL DEFAULT 0,
	adjusted_close REAL NOT NULL DEFAULT 0,
	split_ratio    REAL NOT NULL DEFAULT 1.0,
	dividend       REAL NOT NULL DEFAULT 0.0,
	currency       TEXT NOT NULL DEFAULT 'USD',
	data_source    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (symbol_id, date)
);
CREATE INDEX IF NOT EXISTS idx_bars_symbol_date ON bars (symbol_id, date);

CREATE TABLE IF NOT EXISTS fundamentals (
	id            SERIAL PRIMARY KEY,
	symbol_id     INTEGER NOT NULL REFERENCES symbols(id),
	metric_type   TEXT NOT NULL,
	period_ending DATE NOT NULL,
	value         REAL NOT NULL,
	currency      TEXT NOT NULL DEFAULT 'USD',
	report_date   DATE NOT NULL,
	data_source   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (symbol_id, metric_type, period_ending)
);
CREATE INDEX IF NOT EXISTS idx_fundamentals_symbol_metric ON fundamentals (symbol_id, metric_type);

CREATE TABLE IF NOT EXISTS indicators (
	id                SERIAL PRIMARY KEY,
	symbol_id         INTEGER NOT NULL REFERENCES symbols(id),
	indicator_type    TEXT NOT NULL,
	date              DATE NOT NULL,
	param_fingerprint TEXT NOT NULL,
	value             REAL NOT NULL,
	params            TEXT NOT NULL DEFAULT '{}',
	data_source       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (symbol_id, indicator_type, date, param_fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_indicators_symbol_type_date ON indicators (symbol_id, indicator_type, date);

CREATE TABLE IF NOT EXISTS fx_rates (
	id            SERIAL PRIMARY KEY,
	from_currency TEXT NOT NULL,
	to_currency   TEXT NOT NULL,
	rate          REAL NOT NULL,
	source_rate   REAL NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	data_source   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (from_currency, to_currency)
);
CREATE INDEX IF NOT EXISTS idx_fx_rates_pair ON fx_rates (from_currency, to_currency);

CREATE TABLE IF NOT EXISTS cache_metadata (
	cache_key     TEXT PRIMARY KEY,
	data_type     TEXT NOT NULL DEFAULT 'UNKNOWN',
	expires_at    TIMESTAMPTZ NOT NULL,
	access_count  BIGINT NOT NULL DEFAULT 1,
	last_accessed TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_cache_metadata_expires ON cache_metadata (expires_at);

CREATE TABLE IF NOT EXISTS corporate_actions (
	id                SERIAL PRIMARY KEY,
	symbol_id         INTEGER NOT NULL REFERENCES symbols(id),
	action_date       DATE NOT NULL,
	action_type       TEXT NOT NULL,
	split_ratio       REAL NOT NULL DEFAULT 1.0,
	dividend_amount   REAL NOT NULL DEFAULT 0.0,
	adjustment_factor REAL NOT NULL DEFAULT 1.0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (symbol_id, action_date, action_type)
);

CREATE TABLE IF NOT EXISTS fx_rate_history (
	id            SERIAL PRIMARY KEY,
	from_currency TEXT NOT NULL,
	to_currency   TEXT NOT NULL,
	rate          REAL NOT NULL,
	data_source   TEXT NOT NULL DEFAULT '',
	recorded_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_fx_history_pair ON fx_rate_history (from_currency, to_currency, recorded_at);

CREATE TABLE IF NOT EXISTS data_sources (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	kind       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS symbols (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL DEFAULT '',
	currency    TEXT NOT NULL DEFAULT 'USD',
	exchange    TEXT NOT NULL DEFAULT '',
	isin        TEXT,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bars (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol_id      INTEGER NOT NULL REFERENCES symbols(id),
	date           DATE NOT NULL,
	open           REAL NOT NULL,
	high           REAL NOT NULL,
	low            REAL NOT NULL,
	close          REAL NOT NULL,
	volume         INTEGER NOT NULL DEFAULT 0,
	adjusted_close REAL NOT NULL DEFAULT 0,
	split_ratio    REAL NOT NULL DEFAULT 1.0,
	dividend       REAL NOT NULL DEFAULT 0.0,
	currency       TEXT NOT NULL DEFAULT 'USD',
	data_source    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (symbol_id, date)
);
CREATE INDEX IF NOT EXISTS idx_bars_symbol_date ON bars (symbol_id, date);

CREATE TABLE IF NOT EXISTS fundamentals (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol_id     INTEGER NOT NULL REFERENCES symbols(id),
	metric_type   TEXT NOT NULL,
	period_ending DATE NOT NULL,
	value         REAL NOT NULL,
	currency      TEXT NOT NULL DEFAULT 'USD',
	report_date   DATE NOT NULL,
	data_source   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (symbol_id, metric_type, period_ending)
);
CREATE INDEX IF NOT EXISTS idx_fundamentals_symbol_metric ON fundamentals (symbol_id, metric_type);

CREATE TABLE IF NOT EXISTS indicators (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol_id         INTEGER NOT NULL REFERENCES symbols(id),
	indicator_type    TEXT NOT NULL,
	date              DATE NOT NULL,
	param_fingerprint TEXT NOT NULL,
	value             REAL NOT NULL,
	params            TEXT NOT NULL DEFAULT '{}',
	data_source       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (symbol_id, indicator_type, date, param_fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_indicators_symbol_type_date ON indicators (symbol_id, indicator_type, date);

CREATE TABLE IF NOT EXISTS fx_rates (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	from_currency TEXT NOT NULL,
	to_currency   TEXT NOT NULL,
	rate          REAL NOT NULL,
	source_rate   REAL NOT NULL,
	expires_at    TIMESTAMP NOT NULL,
	data_source   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (from_currency, to_currency)
);
CREATE INDEX IF NOT EXISTS idx_fx_rates_pair ON fx_rates (from_currency, to_currency);

CREATE TABLE IF NOT EXISTS cache_metadata (
	cache_key     TEXT PRIMARY KEY,
	data_type     TEXT NOT NULL DEFAULT 'UNKNOWN',
	expires_at    TIMESTAMP NOT NULL,
	access_count  INTEGER NOT NULL DEFAULT 1,
	last_accessed TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_cache_metadata_expires ON cache_metadata (expires_at);

CREATE TABLE IF NOT EXISTS corporate_actions (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol_id         INTEGER NOT NULL REFERENCES symbols(id),
	action_date       DATE NOT NULL,
	action_type       TEXT NOT NULL,
	split_ratio       REAL NOT NULL DEFAULT 1.0,
	dividend_amount   REAL NOT NULL DEFAULT 0.0,
	adjustment_factor REAL NOT NULL DEFAULT 1.0,
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (symbol_id, action_date, action_type)
);

CREATE TABLE IF NOT EXISTS fx_rate_history (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	from_currency TEXT NOT NULL,
	to_currency   TEXT NOT NULL,
	rate          REAL NOT NULL,
	data_source   TEXT NOT NULL DEFAULT '',
	recorded_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_fx_history_pair ON fx_rate_history (from_currency, to_currency, recorded_at);

CREATE TABLE IF NOT EXISTS data_sources (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	kind       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
