package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type InsertHospitalParams struct {
	LoadID        uuid.UUID
	Name          string
	Addresses     []string
	LocationNames []string
	Npis          []string
	LicenseNumber pgtype.Text
	LicenseState  pgtype.Text
	Version       string
	LastUpdatedOn pgtype.Date
	AttesterName  pgtype.Text
}

const insertHospital = `
INSERT INTO hospitals (load_id, name, addresses, location_names, npis,
                       license_number, license_state, version, last_updated_on, attester_name)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`

func (q *Queries) InsertHospital(ctx context.Context, arg InsertHospitalParams) (int32, error) {
	var id int32
	err := q.db.QueryRow(ctx, insertHospital,
		arg.LoadID, arg.Name, arg.Addresses, arg.LocationNames, arg.Npis,
		arg.LicenseNumber, arg.LicenseState, arg.Version, arg.LastUpdatedOn, arg.AttesterName,
	).Scan(&id)
	return id, err
}

type Hospital struct {
	ID            int32
	LoadID        uuid.UUID
	Name          string
	Addresses     []string
	LocationNames []string
	Npis          []string
	LicenseNumber pgtype.Text
	LicenseState  pgtype.Text
	Version       string
	LastUpdatedOn pgtype.Date
	AttesterName  pgtype.Text
}

const getHospitalByName = `
SELECT id, load_id, name, addresses, location_names, npis,
       license_number, license_state, version, last_updated_on, attester_name
FROM hospitals
WHERE name = $1
ORDER BY created_at DESC, id DESC
LIMIT 1`

// GetHospitalByName returns the most recently loaded row for a hospital.
func (q *Queries) GetHospitalByName(ctx context.Context, name string) (Hospital, error) {
	var h Hospital
	err := q.db.QueryRow(ctx, getHospitalByName, name).Scan(
		&h.ID, &h.LoadID, &h.Name, &h.Addresses, &h.LocationNames, &h.Npis,
		&h.LicenseNumber, &h.LicenseState, &h.Version, &h.LastUpdatedOn, &h.AttesterName,
	)
	return h, err
}
