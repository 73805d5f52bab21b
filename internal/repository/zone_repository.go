package repository // repository holds data access logic for domain entities

import (
	"context"      // context is used to manage deadlines and cancellation
	"database/sql" // sql provides DB primitives
	"errors"
	"fmt"

	"github.com/iliyamo/venue-booking/internal/model"
)

// ErrInvalidLayout is returned when a zone is seeded with an empty or
// oversized seat grid.
var ErrInvalidLayout = errors.New("invalid seat layout")

// maxRows keeps row labels to a single letter.
const maxRows = 26

// ZoneRepo creates zones together with their seats.
type ZoneRepo struct {
	db    *sql.DB
	seats *SeatRepo
}

// NewZoneRepo constructs a ZoneRepo with the given DB handle.
func NewZoneRepo(db *sql.DB) *ZoneRepo {
	return &ZoneRepo{db: db, seats: NewSeatRepo(db)}
}

// CreateWithSeats inserts a zone and rows*perRow AVAILABLE seats numbered
// A1, A2, ... B1, ... in one transaction.  Either the zone and all of its
// seats exist afterwards or nothing does.
func (r *ZoneRepo) CreateWithSeats(ctx context.Context, name string, rows, perRow int) (*model.Zone, error) {
	numbers, err := SeatNumbers(rows, perRow)
	if err != nil {
		return nil, err
	}
	var zone model.Zone
	err = RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO zones (name) VALUES (?)`, name)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, `SELECT id, name, created_at FROM zones WHERE id = ?`, id).
			Scan(&zone.ID, &zone.Name, &zone.CreatedAt); err != nil {
			return err
		}
		return r.seats.CreateBulkTx(ctx, tx, zone.ID, numbers)
	})
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

// ErrZoneNotFound is returned when a zone id does not exist.
var ErrZoneNotFound = errors.New("zone not found")

// GetByID loads one zone.
func (r *ZoneRepo) GetByID(ctx context.Context, id uint64) (*model.Zone, error) {
	var z model.Zone
	err := r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM zones WHERE id = ?`, id).
		Scan(&z.ID, &z.Name, &z.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrZoneNotFound
	}
	if err != nil {
		return nil, err
	}
	return &z, nil
}

// List returns every zone ordered by id.
func (r *ZoneRepo) List(ctx context.Context) ([]model.Zone, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM zones ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.CreatedAt); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// SeatNumbers returns the seat labels of a rows x perRow grid in row-major
// order.
func SeatNumbers(rows, perRow int) ([]string, error) {
	if rows <= 0 || perRow <= 0 || rows > maxRows {
		return nil, fmt.Errorf("%w: %d rows x %d seats", ErrInvalidLayout, rows, perRow)
	}
	out := make([]string, 0, rows*perRow)
	for r := 0; r < rows; r++ {
		for c := 1; c <= perRow; c++ {
			out = append(out, fmt.Sprintf("%c%d", 'A'+r, c))
		}
	}
	return out, nil
}
