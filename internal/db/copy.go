package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// PayerChargeRow is one payer_charges row staged for bulk COPY. The parent
// standard_charge_id must already exist in the surrounding transaction.
type PayerChargeRow struct {
	StandardChargeID         int32
	PayerID                  int32
	PlanID                   int32
	Methodology              pgtype.Text
	StandardChargeDollar     pgtype.Numeric
	StandardChargePercentage pgtype.Numeric
	StandardChargeAlgorithm  pgtype.Text
	EstimatedAmount          pgtype.Numeric
	MedianAmount             pgtype.Numeric
	Percentile10th           pgtype.Numeric
	Percentile90th           pgtype.Numeric
	Count                    pgtype.Text
	AdditionalNotes          pgtype.Text
}

var payerChargeCols = []string{
	"standard_charge_id", "payer_id", "plan_id", "methodology",
	"standard_charge_dollar", "standard_charge_percentage",
	"standard_charge_algorithm", "estimated_amount", "median_amount",
	"percentile_10th", "percentile_90th", "count", "additional_notes",
}

// CopyPayerCharges bulk-inserts staged payer_charges via COPY.
func CopyPayerCharges(ctx context.Context, tx pgx.Tx, rows []PayerChargeRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{
			r.StandardChargeID, r.PayerID, r.PlanID, r.Methodology,
			r.StandardChargeDollar, r.StandardChargePercentage,
			r.StandardChargeAlgorithm, r.EstimatedAmount, r.MedianAmount,
			r.Percentile10th, r.Percentile90th, r.Count, r.AdditionalNotes,
		}
	}
	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"payer_charges"},
		payerChargeCols,
		pgx.CopyFromRows(values),
	)
	if err != nil {
		return 0, fmt.Errorf("copy payer_charges: %w", err)
	}
	return copied, nil
}

// ModifierPayerInfoRow is one modifier_payer_info row staged for bulk COPY.
type ModifierPayerInfoRow struct {
	ModifierID  int32
	PayerID     int32
	PlanID      int32
	Description string
}

var modifierPayerInfoCols = []string{"modifier_id", "payer_id", "plan_id", "description"}

// CopyModifierPayerInfo bulk-inserts staged modifier_payer_info via COPY.
func CopyModifierPayerInfo(ctx context.Context, tx pgx.Tx, rows []ModifierPayerInfoRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{r.ModifierID, r.PayerID, r.PlanID, r.Description}
	}
	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"modifier_payer_info"},
		modifierPayerInfoCols,
		pgx.CopyFromRows(values),
	)
	if err != nil {
		return 0, fmt.Errorf("copy modifier_payer_info: %w", err)
	}
	return copied, nil
}
