package quotations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sisl-bd/eshop/internal/platform/db"
	"github.com/sisl-bd/eshop/internal/shared"
)

// Repository persists quotations and their lines.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	Get(ctx context.Context, id int64) (*Quotation, error)
	List(ctx context.Context, filter ListFilter) ([]Quotation, int, error)
	Lock(ctx context.Context, id int64) error
	Create(ctx context.Context, q *Quotation) error
	UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdateNotes(ctx context.Context, id int64, notes string) error
	SetDocument(ctx context.Context, id int64, name string) error
	MarkNotified(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error

	ListLines(ctx context.Context, quotationID int64) ([]Line, error)
	InsertLine(ctx context.Context, line *Line) error
	UpdateLine(ctx context.Context, line Line) error
	DeleteLine(ctx context.Context, quotationID, lineID int64) error

	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type repository struct {
	pool *pgxpool.Pool
	db   db.DBTX
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool, db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx})
	})
}

const quotationSelect = `SELECT q.id, q.customer_id, COALESCE(u.username, ''), q.created_at, q.notes, q.total_amount,
	q.order_number, q.subject, q.status, COALESCE(q.document_name, ''), q.notified_at
FROM quotations q
LEFT JOIN users u ON u.id = q.customer_id`

func scanQuotation(row pgx.Row) (Quotation, error) {
	var (
		q      Quotation
		status string
	)
	err := row.Scan(&q.ID, &q.CustomerID, &q.CustomerName, &q.CreatedAt, &q.Notes, &q.TotalAmount,
		&q.OrderNumber, &q.Subject, &status, &q.DocumentName, &q.NotifiedAt)
	q.Status = Status(status)
	return q, err
}

func (r *repository) Get(ctx context.Context, id int64) (*Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx, quotationSelect+` WHERE q.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if q.Lines, err = r.ListLines(ctx, id); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	where := ` WHERE 1=1`
	var args []any
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where += ` AND q.status = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (q.order_number ILIKE $` + n + ` OR u.username ILIKE $` + n + ` OR u.email ILIKE $` + n + `)`
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM quotations q LEFT JOIN users u ON u.id = q.customer_id` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := quotationSelect + where + ` ORDER BY q.created_at DESC, q.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func (r *repository) Lock(ctx context.Context, id int64) error {
	var locked int64
	err := r.db.QueryRow(ctx, `SELECT id FROM quotations WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repository) Create(ctx context.Context, q *Quotation) error {
	err := r.db.QueryRow(ctx, `INSERT INTO quotations (customer_id, created_at, notes, total_amount, order_number, subject, status)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		q.CustomerID, q.CreatedAt, q.Notes, decimal.Zero, q.OrderNumber, q.Subject, string(q.Status)).Scan(&q.ID)
	if _, unique := db.UniqueViolation(err); unique {
		return fmt.Errorf("%s: %w", q.OrderNumber, ErrOrderNumberConflict)
	}
	return err
}

func (r *repository) UpdateTotal(ctx context.Context, id int64, total decimal.Decimal) error {
	return r.execOne(ctx, `UPDATE quotations SET total_amount = $1 WHERE id = $2`, total, id)
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	return r.execOne(ctx, `UPDATE quotations SET status = $1 WHERE id = $2`, string(status), id)
}

func (r *repository) UpdateNotes(ctx context.Context, id int64, notes string) error {
	return r.execOne(ctx, `UPDATE quotations SET notes = $1 WHERE id = $2`, notes, id)
}

func (r *repository) SetDocument(ctx context.Context, id int64, name string) error {
	return r.execOne(ctx, `UPDATE quotations SET document_name = $1 WHERE id = $2`, name, id)
}

func (r *repository) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	return r.execOne(ctx, `UPDATE quotations SET notified_at = $1 WHERE id = $2`, at, id)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return r.execOne(ctx, `DELETE FROM quotations WHERE id = $1`, id)
}

func (r *repository) ListLines(ctx context.Context, quotationID int64) ([]Line, error) {
	rows, err := r.db.Query(ctx, `SELECT l.id, l.quotation_id, l.product_id, p.name, p.sku, l.description,
	l.quantity, l.unit_price, l.discount_percent, l.position
FROM quotation_lines l
JOIN products p ON p.id = l.product_id
WHERE l.quotation_id = $1
ORDER BY l.position, l.id`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.QuotationID, &l.ProductID, &l.ProductName, &l.ProductSKU, &l.Description,
			&l.Quantity, &l.UnitPrice, &l.DiscountPercent, &l.Position); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) InsertLine(ctx context.Context, line *Line) error {
	err := r.db.QueryRow(ctx, `INSERT INTO quotation_lines (quotation_id, product_id, description, quantity, unit_price, discount_percent, position)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, 0), (SELECT COALESCE(MAX(position), 0) + 1 FROM quotation_lines WHERE quotation_id = $1)))
RETURNING id, position`,
		line.QuotationID, line.ProductID, line.Description, line.Quantity, line.UnitPrice, line.DiscountPercent, line.Position,
	).Scan(&line.ID, &line.Position)
	if constraint, fk := db.ForeignKeyViolation(err); fk {
		if constraint == "quotation_lines_quotation_id_fkey" {
			return ErrNotFound
		}
		return fmt.Errorf("product %d: %w", line.ProductID, ErrProductNotFound)
	}
	return err
}

func (r *repository) UpdateLine(ctx context.Context, line Line) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotation_lines SET product_id = $1, description = $2, quantity = $3, unit_price = $4, discount_percent = $5
WHERE id = $6 AND quotation_id = $7`,
		line.ProductID, line.Description, line.Quantity, line.UnitPrice, line.DiscountPercent, line.ID, line.QuotationID)
	if _, fk := db.ForeignKeyViolation(err); fk {
		return fmt.Errorf("product %d: %w", line.ProductID, ErrProductNotFound)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteLine(ctx context.Context, quotationID, lineID int64) error {
	return r.execOne(ctx, `DELETE FROM quotation_lines WHERE id = $1 AND quotation_id = $2`, lineID, quotationID)
}

// RecordAudit writes the audit entry on the repository connection so it
// shares the caller's transaction.
func (r *repository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(r.db).Record(ctx, log)
}

func (r *repository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
