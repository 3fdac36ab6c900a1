package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type InsertStandardChargeItemParams struct {
	HospitalID   int32
	Description  string
	DrugUnit     pgtype.Numeric
	DrugUnitType pgtype.Text
}

const insertStandardChargeItem = `
INSERT INTO standard_charge_items (hospital_id, description, drug_unit, drug_unit_type)
VALUES ($1, $2, $3, $4)
RETURNING id`

func (q *Queries) InsertStandardChargeItem(ctx context.Context, arg InsertStandardChargeItemParams) (int32, error) {
	var id int32
	err := q.db.QueryRow(ctx, insertStandardChargeItem,
		arg.HospitalID, arg.Description, arg.DrugUnit, arg.DrugUnitType,
	).Scan(&id)
	return id, err
}

const insertItemCode = `
INSERT INTO item_codes (item_id, code_id) VALUES ($1, $2)
ON CONFLICT (item_id, code_id) DO NOTHING`

func (q *Queries) InsertItemCode(ctx context.Context, itemID, codeID int32) error {
	_, err := q.db.Exec(ctx, insertItemCode, itemID, codeID)
	return err
}

type InsertStandardChargeParams struct {
	ItemID          int32
	Setting         string
	GrossCharge     pgtype.Numeric
	DiscountedCash  pgtype.Numeric
	Minimum         pgtype.Numeric
	Maximum         pgtype.Numeric
	ModifierCodes   []string
	AdditionalNotes pgtype.Text
}

const insertStandardCharge = `
INSERT INTO standard_charges (item_id, setting, gross_charge, discounted_cash,
                              minimum, maximum, modifier_codes, additional_notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

func (q *Queries) InsertStandardCharge(ctx context.Context, arg InsertStandardChargeParams) (int32, error) {
	var id int32
	err := q.db.QueryRow(ctx, insertStandardCharge,
		arg.ItemID, arg.Setting, arg.GrossCharge, arg.DiscountedCash,
		arg.Minimum, arg.Maximum, arg.ModifierCodes, arg.AdditionalNotes,
	).Scan(&id)
	return id, err
}

type InsertModifierParams struct {
	HospitalID  int32
	Code        string
	Description string
	Setting     pgtype.Text
}

const insertModifier = `
INSERT INTO modifiers (hospital_id, code, description, setting)
VALUES ($1, $2, $3, $4)
RETURNING id`

func (q *Queries) InsertModifier(ctx context.Context, arg InsertModifierParams) (int32, error) {
	var id int32
	err := q.db.QueryRow(ctx, insertModifier,
		arg.HospitalID, arg.Code, arg.Description, arg.Setting,
	).Scan(&id)
	return id, err
}

type StandardChargeItem struct {
	ID           int32
	HospitalID   int32
	Description  string
	DrugUnit     pgtype.Numeric
	DrugUnitType pgtype.Text
}

const listStandardChargeItemsByCode = `
SELECT i.id, i.hospital_id, i.description, i.drug_unit, i.drug_unit_type
FROM standard_charge_items i
JOIN item_codes ic ON ic.item_id = i.id
JOIN codes c ON c.id = ic.code_id
WHERE c.code = $1 AND c.code_type = $2
ORDER BY i.id`

func (q *Queries) ListStandardChargeItemsByCode(ctx context.Context, code, codeType string) ([]StandardChargeItem, error) {
	rows, err := q.db.Query(ctx, listStandardChargeItemsByCode, code, codeType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []StandardChargeItem
	for rows.Next() {
		var it StandardChargeItem
		if err := rows.Scan(&it.ID, &it.HospitalID, &it.Description, &it.DrugUnit, &it.DrugUnitType); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
