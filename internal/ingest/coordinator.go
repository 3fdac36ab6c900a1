// Package ingest owns one institution load end-to-end: extract, normalize,
// resolve, write, and commit or roll back.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gyeh/priceload/internal/config"
	"github.com/gyeh/priceload/internal/db"
	"github.com/gyeh/priceload/internal/model"
	"github.com/gyeh/priceload/internal/normalize"
	"github.com/gyeh/priceload/internal/refdata"
	"github.com/gyeh/priceload/internal/source"
)

// State tracks where an institution load is in its lifecycle.
type State string

const (
	StatePending     State = "pending"
	StateExtracting  State = "extracting"
	StateNormalizing State = "normalizing"
	StateWriting     State = "writing"
	StateCommitted   State = "committed"
	StateFailed      State = "failed"
)

// Result is the per-institution outcome handed back to the caller. Err is
// nil exactly when State is committed; a committed load may still report
// skipped rows and soft issues.
type Result struct {
	Path       string
	LoadID     uuid.UUID
	Hospital   string
	HospitalID int32
	State      State

	Items             int64
	Charges           int64
	PayerCharges      int64
	Modifiers         int64
	ModifierPayerInfo int64

	SkippedRows int64
	Issues      int64

	Err error
}

// Coordinator drives institution loads against a shared pool and the
// process-wide reference resolver. Safe for concurrent use; each Load owns
// its own transaction and reader.
type Coordinator struct {
	pool     *pgxpool.Pool
	resolver *refdata.Resolver
	cfg      config.Ingest
	log      *zap.Logger
}

func NewCoordinator(pool *pgxpool.Pool, resolver *refdata.Resolver, cfg config.Ingest, log *zap.Logger) *Coordinator {
	return &Coordinator{pool: pool, resolver: resolver, cfg: cfg, log: log}
}

// Load ingests one institution file. All institution-scoped rows become
// visible atomically on commit; reference entities created along the way
// are global and survive a rollback.
func (c *Coordinator) Load(ctx context.Context, path string) *Result {
	res := &Result{Path: path, LoadID: uuid.New(), State: StatePending}
	log := c.log.With(zap.String("file", path), zap.String("load_id", res.LoadID.String()))

	res.State = StateExtracting
	reader, err := source.Open(path)
	if err != nil {
		return res.fail(log, err)
	}
	defer reader.Close()

	header, err := reader.ReadHeader()
	if err != nil {
		return res.fail(log, err)
	}
	if header.HospitalName == "" {
		return res.fail(log, &source.DecodeError{Path: path, Err: fmt.Errorf("missing hospital name")})
	}
	res.Hospital = header.HospitalName
	log = log.With(zap.String("hospital", header.HospitalName))

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return res.fail(log, &TxError{Op: "begin", Err: err})
	}
	committed := false
	defer func() {
		if !committed {
			// Roll back even when ctx is already cancelled.
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	q := db.New(tx)

	res.HospitalID, err = q.InsertHospital(ctx, db.InsertHospitalParams{
		LoadID:        res.LoadID,
		Name:          header.HospitalName,
		Addresses:     header.Addresses,
		LocationNames: header.LocationNames,
		Npis:          header.NPIs,
		LicenseNumber: db.TextFromString(header.LicenseNumber),
		LicenseState:  db.TextFromString(header.LicenseState),
		Version:       header.Version,
		LastUpdatedOn: db.DateFromString(header.LastUpdatedOn),
		AttesterName:  db.TextFromString(header.AttesterName),
	})
	if err != nil {
		return res.fail(log, &WriteError{Op: "insert hospital", Err: err})
	}

	writer := NewWriter(tx, c.cfg.FlushRows)

	// Pipeline: the reader goroutine stays at most RowBuffer rows ahead of
	// the consumer, which normalizes and writes on this load's transaction.
	res.State = StateNormalizing
	rows := make(chan *model.Row, c.cfg.RowBuffer)
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(rows)
		for {
			row, err := reader.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read row %d: %w", reader.RowNum(), err)
			}
			select {
			case rows <- row:
			case <-egCtx.Done():
				return egCtx.Err()
			}
		}
	})

	eg.Go(func() error {
		for row := range rows {
			if err := c.processRow(egCtx, q, writer, res, row, log); err != nil {
				return err
			}
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return res.fail(log, err)
	}

	res.State = StateWriting
	if err := c.writeModifiers(ctx, q, writer, res, reader.Modifiers(), log); err != nil {
		return res.fail(log, err)
	}
	if err := writer.Flush(ctx); err != nil {
		return res.fail(log, err)
	}
	res.PayerCharges = writer.PayerCharges()
	res.ModifierPayerInfo = writer.ModifierPayerInfo()

	if err := tx.Commit(ctx); err != nil {
		return res.fail(log, &TxError{Op: "commit", Err: err})
	}
	committed = true
	res.State = StateCommitted

	log.Info("load committed",
		zap.Int64("items", res.Items),
		zap.Int64("charges", res.Charges),
		zap.Int64("payer_charges", res.PayerCharges),
		zap.Int64("modifiers", res.Modifiers),
		zap.Int64("modifier_payer_info", res.ModifierPayerInfo),
		zap.Int64("skipped_rows", res.SkippedRows),
		zap.Int64("issues", res.Issues),
	)
	return res
}

func (r *Result) fail(log *zap.Logger, err error) *Result {
	r.State = StateFailed
	r.Err = err
	log.Error("load failed", zap.Error(err), zap.Int64("skipped_rows", r.SkippedRows))
	return r
}

// processRow handles one raw row: normalize, resolve every reference, then
// write in dependency order. Validation and resolution failures skip the
// row; write failures abort the load.
func (c *Coordinator) processRow(ctx context.Context, q *db.Queries, writer *Writer, res *Result, row *model.Row, log *zap.Logger) error {
	n, issues, err := normalize.Normalize(row)
	res.Issues += int64(len(issues))
	for _, issue := range issues {
		log.Debug("row issue",
			zap.Int64("row", issue.SourceRow),
			zap.String("kind", string(issue.Kind)),
			zap.String("payer", issue.PayerName),
			zap.String("detail", issue.Detail),
		)
	}
	if err != nil {
		var vErr *normalize.ValidationError
		if errors.As(err, &vErr) {
			log.Warn("skipping row",
				zap.Int64("row", vErr.SourceRow),
				zap.String("reason", vErr.Reason),
				zap.String("description", row.Description),
			)
			return c.recordSkip(res)
		}
		return err
	}

	// Resolve all references before touching the transaction, so a
	// resolution failure skips the row without leaving a partial item.
	codeIDs := make([]int32, len(n.Codes))
	for i, cr := range n.Codes {
		codeIDs[i], err = c.resolver.ResolveCode(ctx, cr.Code, cr.Type)
		if err != nil {
			log.Warn("skipping row: code resolution failed",
				zap.Int64("row", row.SourceRow), zap.Error(err))
			return c.recordSkip(res)
		}
	}

	type payerRef struct{ payerID, planID int32 }
	refs := make([][]payerRef, len(n.Charges))
	for i := range n.Charges {
		refs[i] = make([]payerRef, len(n.Charges[i].Payers))
		for j := range n.Charges[i].Payers {
			pc := &n.Charges[i].Payers[j]
			payerID, err := c.resolver.ResolvePayer(ctx, pc.PayerName)
			if err != nil {
				log.Warn("skipping row: payer resolution failed",
					zap.Int64("row", row.SourceRow), zap.Error(err))
				return c.recordSkip(res)
			}
			planID, err := c.resolver.ResolvePlan(ctx, pc.PlanName)
			if err != nil {
				log.Warn("skipping row: plan resolution failed",
					zap.Int64("row", row.SourceRow), zap.Error(err))
				return c.recordSkip(res)
			}
			refs[i][j] = payerRef{payerID: payerID, planID: planID}
		}
	}

	itemID, err := q.InsertStandardChargeItem(ctx, db.InsertStandardChargeItemParams{
		HospitalID:   res.HospitalID,
		Description:  n.Item.Description,
		DrugUnit:     db.NumericFromDecimal(n.Item.DrugUnit),
		DrugUnitType: db.TextFromString(n.Item.DrugUnitType),
	})
	if err != nil {
		return &WriteError{Op: "insert item", Err: err}
	}
	res.Items++

	for _, codeID := range codeIDs {
		if err := q.InsertItemCode(ctx, itemID, codeID); err != nil {
			return &WriteError{Op: "link item code", Err: err}
		}
	}

	for i := range n.Charges {
		ch := &n.Charges[i]
		chargeID, err := q.InsertStandardCharge(ctx, db.InsertStandardChargeParams{
			ItemID:          itemID,
			Setting:         ch.Setting,
			GrossCharge:     db.NumericFromDecimal(ch.GrossCharge),
			DiscountedCash:  db.NumericFromDecimal(ch.DiscountedCash),
			Minimum:         db.NumericFromDecimal(ch.Minimum),
			Maximum:         db.NumericFromDecimal(ch.Maximum),
			ModifierCodes:   ch.ModifierCodes,
			AdditionalNotes: db.TextFromString(ch.Notes),
		})
		if err != nil {
			return &WriteError{Op: "insert charge", Err: err}
		}
		res.Charges++

		for j := range ch.Payers {
			pcRow := payerChargeRow(chargeID, refs[i][j].payerID, refs[i][j].planID, &ch.Payers[j])
			if err := writer.StagePayerCharge(ctx, pcRow); err != nil {
				return err
			}
		}
	}

	return nil
}

// recordSkip counts a skipped row and aborts once the failure share crosses
// the configured threshold.
func (c *Coordinator) recordSkip(res *Result) error {
	res.SkippedRows++
	seen := res.Items + res.SkippedRows
	if seen >= c.cfg.MinRowsBeforeAbort && c.cfg.MaxRowFailureRatio > 0 {
		if float64(res.SkippedRows)/float64(seen) > c.cfg.MaxRowFailureRatio {
			return &TooManyFailuresError{Skipped: res.SkippedRows, Seen: seen}
		}
	}
	return nil
}

func (c *Coordinator) writeModifiers(ctx context.Context, q *db.Queries, writer *Writer, res *Result, mods []model.ModifierRow, log *zap.Logger) error {
	for i := range mods {
		m := &mods[i]
		modifierID, err := q.InsertModifier(ctx, db.InsertModifierParams{
			HospitalID:  res.HospitalID,
			Code:        m.Code,
			Description: m.Description,
			Setting:     db.TextFromString(m.Setting),
		})
		if err != nil {
			return &WriteError{Op: "insert modifier", Err: err}
		}
		res.Modifiers++

		for _, p := range m.Payers {
			payerID, err := c.resolver.ResolvePayer(ctx, p.PayerName)
			if err != nil {
				log.Warn("skipping modifier payer info: payer resolution failed",
					zap.String("modifier", m.Code), zap.Error(err))
				continue
			}
			planID, err := c.resolver.ResolvePlan(ctx, p.PlanName)
			if err != nil {
				log.Warn("skipping modifier payer info: plan resolution failed",
					zap.String("modifier", m.Code), zap.Error(err))
				continue
			}
			err = writer.StageModifierPayerInfo(ctx, db.ModifierPayerInfoRow{
				ModifierID:  modifierID,
				PayerID:     payerID,
				PlanID:      planID,
				Description: p.Description,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func payerChargeRow(chargeID, payerID, planID int32, pc *normalize.PayerCharge) db.PayerChargeRow {
	return db.PayerChargeRow{
		StandardChargeID:         chargeID,
		PayerID:                  payerID,
		PlanID:                   planID,
		Methodology:              db.TextFromString(pc.Methodology),
		StandardChargeDollar:     db.NumericFromDecimal(pc.Dollar),
		StandardChargePercentage: db.NumericFromDecimal(pc.Percentage),
		StandardChargeAlgorithm:  db.TextFromString(pc.Algorithm),
		EstimatedAmount:          db.NumericFromDecimal(pc.Estimated),
		MedianAmount:             db.NumericFromDecimal(pc.Median),
		Percentile10th:           db.NumericFromDecimal(pc.Percentile10th),
		Percentile90th:           db.NumericFromDecimal(pc.Percentile90th),
		Count:                    db.TextFromString(pc.Count),
		AdditionalNotes:          db.TextFromString(pc.Notes),
	}
}
