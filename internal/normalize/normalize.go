// Package normalize maps raw rows onto the canonical entity set: one item,
// its codes, one charge per care setting, and one payer charge per usable
// payer/plan group.
package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gyeh/priceload/internal/model"
)

// Item is the canonical billable item extracted from a row.
type Item struct {
	Description  string
	DrugUnit     *decimal.Decimal
	DrugUnitType string
}

// PayerCharge is a payer/plan-specific negotiated rate. Exactly one of
// Dollar, Percentage, Algorithm is populated.
type PayerCharge struct {
	PayerName   string
	PlanName    string
	Methodology string

	Dollar     *decimal.Decimal
	Percentage *decimal.Decimal
	Algorithm  string

	Estimated      *decimal.Decimal
	Median         *decimal.Decimal
	Percentile10th *decimal.Decimal
	Percentile90th *decimal.Decimal
	Count          string
	Notes          string
}

// Charge is a price record for one care setting.
type Charge struct {
	Setting        string
	GrossCharge    *decimal.Decimal
	DiscountedCash *decimal.Decimal
	Minimum        *decimal.Decimal
	Maximum        *decimal.Decimal
	ModifierCodes  []string
	Notes          string

	Payers []PayerCharge
}

// Normalized is the full canonical output for one raw row.
type Normalized struct {
	Item    Item
	Codes   []model.CodeRef
	Charges []Charge
}

// IssueKind classifies soft validation findings that do not fail the row.
type IssueKind string

const (
	// IssueDroppedGroup: a payer group carried no usable rate under any
	// methodology and was not emitted.
	IssueDroppedGroup IssueKind = "dropped_group"
	// IssueDowngraded: text found where an amount was expected; the group
	// was emitted under the algorithm methodology instead.
	IssueDowngraded IssueKind = "downgraded_to_algorithm"
	// IssueBadAuxAmount: a non-rate amount (estimate, percentile, drug
	// unit) was unparseable and stored as NULL.
	IssueBadAuxAmount IssueKind = "bad_aux_amount"
)

// Issue is one soft finding, with enough context to locate the source.
type Issue struct {
	Kind      IssueKind
	SourceRow int64
	PayerName string
	PlanName  string
	Detail    string
}

// ValidationError marks a row missing mandatory fields. The row is skipped;
// the load continues.
type ValidationError struct {
	SourceRow int64
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s", e.SourceRow, e.Reason)
}

// Normalize converts one raw row. A ValidationError means the row must be
// skipped entirely; issues report payer groups that were dropped or
// downgraded while the row itself remains usable.
func Normalize(row *model.Row) (*Normalized, []Issue, error) {
	desc := strings.TrimSpace(row.Description)
	if desc == "" {
		return nil, nil, &ValidationError{SourceRow: row.SourceRow, Reason: "missing description"}
	}

	var codes []model.CodeRef
	for _, c := range row.Codes {
		code := strings.TrimSpace(c.Code)
		if code == "" {
			continue
		}
		codes = append(codes, model.CodeRef{Code: code, Type: strings.TrimSpace(c.Type)})
	}
	if len(codes) == 0 {
		return nil, nil, &ValidationError{SourceRow: row.SourceRow, Reason: "no billing codes"}
	}

	var issues []Issue
	n := &Normalized{
		Item: Item{
			Description:  desc,
			DrugUnitType: strings.TrimSpace(row.DrugUnitType),
		},
		Codes: codes,
	}

	if unit, ok := parseAmount(row.DrugUnit); ok {
		n.Item.DrugUnit = unit
	} else {
		issues = append(issues, Issue{
			Kind:      IssueBadAuxAmount,
			SourceRow: row.SourceRow,
			Detail:    fmt.Sprintf("drug unit %q", row.DrugUnit),
		})
	}

	for i := range row.Charges {
		charge, chargeIssues := normalizeCharge(&row.Charges[i], row.SourceRow)
		issues = append(issues, chargeIssues...)
		n.Charges = append(n.Charges, charge)
	}

	return n, issues, nil
}

func normalizeCharge(raw *model.Charge, sourceRow int64) (Charge, []Issue) {
	var issues []Issue

	charge := Charge{
		Setting:       strings.TrimSpace(raw.Setting),
		ModifierCodes: raw.ModifierCodes,
		Notes:         strings.TrimSpace(raw.AdditionalNotes),
	}

	aux := func(field, value string) *decimal.Decimal {
		d, ok := parseAmount(value)
		if !ok {
			issues = append(issues, Issue{
				Kind:      IssueBadAuxAmount,
				SourceRow: sourceRow,
				Detail:    fmt.Sprintf("%s %q", field, value),
			})
			return nil
		}
		return d
	}

	charge.GrossCharge = aux("gross charge", raw.GrossCharge)
	charge.DiscountedCash = aux("discounted cash", raw.DiscountedCash)
	charge.Minimum = aux("minimum", raw.Minimum)
	charge.Maximum = aux("maximum", raw.Maximum)

	for i := range raw.PayerGroups {
		pc, groupIssues, ok := normalizePayerGroup(&raw.PayerGroups[i], sourceRow)
		issues = append(issues, groupIssues...)
		if ok {
			charge.Payers = append(charge.Payers, pc)
		}
	}

	return charge, issues
}

// normalizePayerGroup resolves the mutually exclusive rate fields for one
// payer group. Precedence is dollar, then percentage, then algorithm; text
// found in a numeric field downgrades the group to algorithm. A group with
// no usable rate at all is dropped.
func normalizePayerGroup(g *model.PayerGroup, sourceRow int64) (PayerCharge, []Issue, bool) {
	var issues []Issue

	payer := strings.TrimSpace(g.PayerName)
	plan := strings.TrimSpace(g.PlanName)
	if payer == "" {
		issues = append(issues, Issue{
			Kind:      IssueDroppedGroup,
			SourceRow: sourceRow,
			PlanName:  plan,
			Detail:    "missing payer name",
		})
		return PayerCharge{}, issues, false
	}

	pc := PayerCharge{
		PayerName:   payer,
		PlanName:    plan,
		Methodology: strings.TrimSpace(g.Methodology),
		Count:       strings.TrimSpace(g.Count),
		Notes:       strings.TrimSpace(g.AdditionalNotes),
	}

	auxIssue := func(field, value string) {
		issues = append(issues, Issue{
			Kind:      IssueBadAuxAmount,
			SourceRow: sourceRow,
			PayerName: payer,
			PlanName:  plan,
			Detail:    fmt.Sprintf("%s %q", field, value),
		})
	}
	if d, ok := parseAmount(g.EstimatedAmount); ok {
		pc.Estimated = d
	} else {
		auxIssue("estimated amount", g.EstimatedAmount)
	}
	if d, ok := parseAmount(g.MedianAmount); ok {
		pc.Median = d
	} else {
		auxIssue("median amount", g.MedianAmount)
	}
	if d, ok := parseAmount(g.Percentile10th); ok {
		pc.Percentile10th = d
	} else {
		auxIssue("10th percentile", g.Percentile10th)
	}
	if d, ok := parseAmount(g.Percentile90th); ok {
		pc.Percentile90th = d
	} else {
		auxIssue("90th percentile", g.Percentile90th)
	}

	algorithm := strings.TrimSpace(g.NegotiatedAlgorithm)

	dollar, dollarOK := parseAmount(g.NegotiatedDollar)
	if !dollarOK && algorithm == "" {
		algorithm = strings.TrimSpace(g.NegotiatedDollar)
		issues = append(issues, Issue{
			Kind:      IssueDowngraded,
			SourceRow: sourceRow,
			PayerName: payer,
			PlanName:  plan,
			Detail:    fmt.Sprintf("dollar field %q", g.NegotiatedDollar),
		})
	}

	percentage, pctOK := parseAmount(g.NegotiatedPercentage)
	if !pctOK && algorithm == "" {
		algorithm = strings.TrimSpace(g.NegotiatedPercentage)
		issues = append(issues, Issue{
			Kind:      IssueDowngraded,
			SourceRow: sourceRow,
			PayerName: payer,
			PlanName:  plan,
			Detail:    fmt.Sprintf("percentage field %q", g.NegotiatedPercentage),
		})
	}

	switch {
	case dollarOK && dollar != nil:
		pc.Dollar = dollar
	case pctOK && percentage != nil:
		pc.Percentage = percentage
	case algorithm != "":
		pc.Algorithm = algorithm
	default:
		issues = append(issues, Issue{
			Kind:      IssueDroppedGroup,
			SourceRow: sourceRow,
			PayerName: payer,
			PlanName:  plan,
			Detail:    "no usable rate under any methodology",
		})
		return PayerCharge{}, issues, false
	}

	return pc, issues, true
}

// parseAmount parses a monetary or percentage field. Empty input is valid
// and yields nil; unparseable input reports false so the caller can decide
// between downgrade and drop.
func parseAmount(s string) (*decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, false
	}
	return &d, true
}
