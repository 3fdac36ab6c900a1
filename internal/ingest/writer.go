package ingest

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/gyeh/priceload/internal/db"
)

// Writer accumulates dependent fact rows and flushes them as bulk COPYs
// inside the load's transaction. Parent rows (items, charges, modifiers)
// are inserted directly so their ids exist before children are staged;
// only the high-volume child tables go through the buffers.
type Writer struct {
	tx        pgx.Tx
	flushRows int

	payerRows    []db.PayerChargeRow
	modifierRows []db.ModifierPayerInfoRow

	payerCount    int64
	modifierCount int64
}

func NewWriter(tx pgx.Tx, flushRows int) *Writer {
	return &Writer{tx: tx, flushRows: flushRows}
}

// StagePayerCharge buffers one payer_charges row, flushing when the buffer
// reaches the configured threshold so a multi-million-row payer set never
// sits in memory at once.
func (w *Writer) StagePayerCharge(ctx context.Context, row db.PayerChargeRow) error {
	w.payerRows = append(w.payerRows, row)
	if len(w.payerRows) >= w.flushRows {
		return w.flushPayerCharges(ctx)
	}
	return nil
}

// StageModifierPayerInfo buffers one modifier_payer_info row.
func (w *Writer) StageModifierPayerInfo(ctx context.Context, row db.ModifierPayerInfoRow) error {
	w.modifierRows = append(w.modifierRows, row)
	if len(w.modifierRows) >= w.flushRows {
		return w.flushModifierPayerInfo(ctx)
	}
	return nil
}

// Flush drains every buffer. Must be called before commit.
func (w *Writer) Flush(ctx context.Context) error {
	if err := w.flushPayerCharges(ctx); err != nil {
		return err
	}
	return w.flushModifierPayerInfo(ctx)
}

func (w *Writer) flushPayerCharges(ctx context.Context) error {
	if len(w.payerRows) == 0 {
		return nil
	}
	copied, err := db.CopyPayerCharges(ctx, w.tx, w.payerRows)
	if err != nil {
		return &WriteError{Op: "flush payer charges", Err: err}
	}
	w.payerCount += copied
	w.payerRows = w.payerRows[:0]
	return nil
}

func (w *Writer) flushModifierPayerInfo(ctx context.Context) error {
	if len(w.modifierRows) == 0 {
		return nil
	}
	copied, err := db.CopyModifierPayerInfo(ctx, w.tx, w.modifierRows)
	if err != nil {
		return &WriteError{Op: "flush modifier payer info", Err: err}
	}
	w.modifierCount += copied
	w.modifierRows = w.modifierRows[:0]
	return nil
}

// PayerCharges reports rows written through the payer buffer so far.
func (w *Writer) PayerCharges() int64 { return w.payerCount }

// ModifierPayerInfo reports rows written through the modifier buffer so far.
func (w *Writer) ModifierPayerInfo() int64 { return w.modifierCount }
