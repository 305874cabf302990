package store

// schema 全テーブル定義。日付カラムはTEXT（ISO 8601）で保持し、
// SQLiteのdate関数でそのまま比較・集計できるようにしている。
const schema = `
CREATE TABLE IF NOT EXISTS products (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	name            TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	price           REAL NOT NULL DEFAULT 0,
	expiration_date TEXT
);
CREATE INDEX IF NOT EXISTS idx_products_tenant ON products(tenant_id);

CREATE TABLE IF NOT EXISTS inventory (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	product_id    TEXT NOT NULL REFERENCES products(id),
	current_stock INTEGER NOT NULL DEFAULT 0,
	min_stock     INTEGER NOT NULL DEFAULT 0,
	unit_price    REAL NOT NULL DEFAULT 0,
	UNIQUE(tenant_id, product_id)
);
CREATE INDEX IF NOT EXISTS idx_inventory_tenant ON inventory(tenant_id);

CREATE TABLE IF NOT EXISTS sales (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	product_id    TEXT NOT NULL,
	quantity      INTEGER NOT NULL,
	amount        REAL NOT NULL,
	pos_reference TEXT NOT NULL DEFAULT '',
	sale_date     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sales_tenant_date ON sales(tenant_id, sale_date);

CREATE TABLE IF NOT EXISTS donations (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	product_id TEXT NOT NULL,
	ngo        TEXT NOT NULL,
	quantity   INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_donations_tenant ON donations(tenant_id);

CREATE TABLE IF NOT EXISTS legal_documents (
	id        TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	doc_type  TEXT NOT NULL,
	status    TEXT NOT NULL DEFAULT 'generating'
);

CREATE TABLE IF NOT EXISTS demand_forecasts (
	tenant_id        TEXT NOT NULL,
	product_id       TEXT NOT NULL,
	forecast_date    TEXT NOT NULL,
	scenario         TEXT NOT NULL DEFAULT 'base',
	predicted_demand REAL NOT NULL,
	confidence_lower REAL NOT NULL DEFAULT 0,
	confidence_upper REAL NOT NULL DEFAULT 0,
	model_version    TEXT NOT NULL DEFAULT '',
	UNIQUE(product_id, forecast_date, scenario)
);
CREATE INDEX IF NOT EXISTS idx_forecasts_tenant ON demand_forecasts(tenant_id, forecast_date);

CREATE TABLE IF NOT EXISTS weather_cache (
	tenant_id   TEXT NOT NULL,
	date        TEXT NOT NULL,
	temperature REAL NOT NULL,
	humidity    REAL NOT NULL,
	condition   TEXT NOT NULL,
	UNIQUE(tenant_id, date)
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	type       TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_tenant ON alerts(tenant_id, created_at);
`
