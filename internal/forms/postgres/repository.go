// Package postgres reads forms straight from the backend database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/formreports/internal/forms"
)

// Repository implements forms.Source over pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const formColumns = `f.id, f.date, COALESCE(f.particulars,''), f.amount::text,
hc.head_cat_name, sc.sub_cat_name, d.dept_full_name, v.vehicle_name, COALESCE(f.files,'')`

const formJoins = `FROM forms f
LEFT JOIN head_cats hc ON hc.id = f.head_cat_id
LEFT JOIN sub_cats sc ON sc.id = f.sub_cat_id
LEFT JOIN departments d ON d.id = f.department_id
LEFT JOIN vehicles v ON v.id = f.vehicle_id`

// FiscalYears lists fiscal years ordered by name.
func (r *Repository) FiscalYears(ctx context.Context) ([]forms.FiscalYear, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("%w: repository not initialised", forms.ErrUnavailable)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, fy_name FROM fy_years ORDER BY fy_name`)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()
	var out []forms.FiscalYear
	for rows.Next() {
		var fy forms.FiscalYear
		if err := rows.Scan(&fy.ID, &fy.Name); err != nil {
			return nil, err
		}
		out = append(out, fy)
	}
	return out, rows.Err()
}

// Months lists months in calendar order of the fiscal year.
func (r *Repository) Months(ctx context.Context) ([]forms.Month, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("%w: repository not initialised", forms.ErrUnavailable)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, month_name FROM months ORDER BY id`)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()
	var out []forms.Month
	for rows.Next() {
		var m forms.Month
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ByPeriod returns forms booked in the named fiscal year and month.
func (r *Repository) ByPeriod(ctx context.Context, period forms.Period) ([]forms.Form, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("%w: repository not initialised", forms.ErrUnavailable)
	}
	query := `SELECT ` + formColumns + `
` + formJoins + `
JOIN fy_years fy ON fy.id = f.fy_year_id
JOIN months m ON m.id = f.month_id
WHERE fy.fy_name = $1 AND m.month_name = $2
ORDER BY f.date, f.id`
	return r.queryForms(ctx, query, period.FiscalYear, period.Month)
}

// ByDateRange returns forms dated within rng. Zero bounds are open.
func (r *Repository) ByDateRange(ctx context.Context, rng forms.DateRange) ([]forms.Form, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("%w: repository not initialised", forms.ErrUnavailable)
	}
	query := `SELECT ` + formColumns + `
` + formJoins + `
WHERE ($1::date IS NULL OR f.date >= $1::date)
  AND ($2::date IS NULL OR f.date <= $2::date)
ORDER BY f.date, f.id`
	return r.queryForms(ctx, query, nullableDate(rng.From), nullableDate(rng.To))
}

func (r *Repository) queryForms(ctx context.Context, query string, args ...any) ([]forms.Form, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()
	var out []forms.Form
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, form)
	}
	return out, rows.Err()
}

func scanForm(row pgx.Row) (forms.Form, error) {
	var (
		form                          forms.Form
		date                          *time.Time
		amount                        *string
		headCat, subCat, dept, vehicle *string
	)
	if err := row.Scan(&form.ID, &date, &form.Particulars, &amount, &headCat, &subCat, &dept, &vehicle, &form.Files); err != nil {
		return forms.Form{}, err
	}
	if date != nil {
		form.Date = date.Format(forms.DateLayout)
	}
	if amount != nil {
		value, err := decimal.NewFromString(*amount)
		if err != nil {
			return forms.Form{}, fmt.Errorf("forms/postgres: amount of form %d: %w", form.ID, err)
		}
		form.Amount = decimal.NewNullDecimal(value)
	}
	if headCat != nil {
		form.HeadCat = &forms.HeadCategory{Name: *headCat}
	}
	if subCat != nil {
		form.SubCat = &forms.SubCategory{Name: *subCat}
	}
	if dept != nil {
		form.Department = &forms.Department{FullName: *dept}
	}
	if vehicle != nil {
		form.Vehicle = &forms.Vehicle{Name: *vehicle}
	}
	return form, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// wrap marks connection-level failures as backend unavailability while
// leaving SQL errors intact.
func wrap(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("forms/postgres: %s (%s): %w", pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("%w: %v", forms.ErrUnavailable, err)
}
