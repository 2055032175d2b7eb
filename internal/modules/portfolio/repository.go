package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ukaya/piyasa/internal/domain"
)

// Repository persists portfolios and holdings in SQLite. The contract is
// deliberately a simple document store: list, put, delete. Put replaces an
// existing lot with the same symbol; deleting a portfolio cascades to its
// holdings.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio repository and ensures the schema.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
	if err := r.ensureSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS portfolios (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		currency   TEXT NOT NULL DEFAULT 'TRY',
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS holdings (
		portfolio_id  TEXT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
		symbol        TEXT NOT NULL,
		asset_type    TEXT NOT NULL,
		quantity      REAL NOT NULL,
		unit_cost     REAL NOT NULL,
		currency      TEXT NOT NULL DEFAULT 'TRY',
		purchase_date TIMESTAMP NOT NULL,
		target_price  REAL,
		PRIMARY KEY (portfolio_id, symbol)
	);
	CREATE INDEX IF NOT EXISTS idx_holdings_portfolio ON holdings(portfolio_id);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create portfolio schema: %w", err)
	}
	return nil
}

// CreatePortfolio inserts a new portfolio and returns it with a fresh ID.
func (r *Repository) CreatePortfolio(name, currency string) (domain.Portfolio, error) {
	if currency == "" {
		currency = "TRY"
	}
	p := domain.Portfolio{
		ID:        uuid.New().String(),
		Name:      name,
		Currency:  currency,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.Exec(
		"INSERT INTO portfolios (id, name, currency, created_at) VALUES (?, ?, ?, ?)",
		p.ID, p.Name, p.Currency, p.CreatedAt,
	)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("failed to insert portfolio: %w", err)
	}
	return p, nil
}

// GetPortfolio returns a portfolio without its holdings.
// Returns domain.ErrNotAvailable when the ID does not exist.
func (r *Repository) GetPortfolio(id string) (domain.Portfolio, error) {
	var p domain.Portfolio
	err := r.db.QueryRow(
		"SELECT id, name, currency, created_at FROM portfolios WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Currency, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Portfolio{}, fmt.Errorf("portfolio %s: %w", id, domain.ErrNotAvailable)
	}
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("failed to query portfolio: %w", err)
	}
	return p, nil
}

// ListPortfolios returns all portfolios, newest first, without holdings.
func (r *Repository) ListPortfolios() ([]domain.Portfolio, error) {
	rows, err := r.db.Query("SELECT id, name, currency, created_at FROM portfolios ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		var p domain.Portfolio
		if err := rows.Scan(&p.ID, &p.Name, &p.Currency, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// DeletePortfolio removes a portfolio; its holdings cascade.
func (r *Repository) DeletePortfolio(id string) error {
	res, err := r.db.Exec("DELETE FROM portfolios WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("portfolio %s: %w", id, domain.ErrNotAvailable)
	}
	return nil
}

// ListHoldings returns all holdings of a portfolio.
func (r *Repository) ListHoldings(portfolioID string) ([]domain.Holding, error) {
	rows, err := r.db.Query(`SELECT symbol, asset_type, quantity, unit_cost, currency,
		purchase_date, target_price
		FROM holdings WHERE portfolio_id = ? ORDER BY symbol`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		var target sql.NullFloat64
		if err := rows.Scan(&h.Symbol, &h.Type, &h.Quantity, &h.UnitCost, &h.Currency,
			&h.PurchaseDate, &target); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		if target.Valid {
			h.TargetPrice = &target.Float64
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// PutHolding adds a lot to a portfolio, replacing an existing lot with the
// same symbol. The parent portfolio must exist.
func (r *Repository) PutHolding(portfolioID string, h domain.Holding) error {
	if h.Symbol == "" || !h.Type.Valid() || h.Quantity <= 0 {
		return domain.ErrInvalidParameter
	}
	if _, err := r.GetPortfolio(portfolioID); err != nil {
		return err
	}
	if h.Currency == "" {
		h.Currency = "TRY"
	}

	var target interface{}
	if h.TargetPrice != nil {
		target = *h.TargetPrice
	}
	_, err := r.db.Exec(`INSERT OR REPLACE INTO holdings
		(portfolio_id, symbol, asset_type, quantity, unit_cost, currency, purchase_date, target_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		portfolioID, h.Symbol, string(h.Type), h.Quantity, h.UnitCost, h.Currency, h.PurchaseDate, target)
	if err != nil {
		return fmt.Errorf("failed to put holding: %w", err)
	}
	return nil
}

// DeleteHolding removes one symbol's lot from a portfolio.
func (r *Repository) DeleteHolding(portfolioID, symbol string) error {
	res, err := r.db.Exec("DELETE FROM holdings WHERE portfolio_id = ? AND symbol = ?", portfolioID, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("holding %s: %w", symbol, domain.ErrNotAvailable)
	}
	return nil
}
