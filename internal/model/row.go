// Package model defines the raw row shapes shared between the file readers
// and the normalizer. Rate-bearing fields stay as the source's verbatim
// strings; parsing them is the normalizer's job.
package model

// CodeRef is a billing code under one coding system.
type CodeRef struct {
	Code string
	Type string
}

// PayerGroup is one discovered payer/plan column group on a raw row.
// Wide CSV files carry one group per `standard_charge|<payer>|<plan>|…`
// column family; tall CSV and JSON files carry one group per payer entry.
type PayerGroup struct {
	PayerName   string
	PlanName    string
	Methodology string

	// Mutually exclusive rate fields, verbatim from the source.
	NegotiatedDollar     string
	NegotiatedPercentage string
	NegotiatedAlgorithm  string

	EstimatedAmount string
	MedianAmount    string
	Percentile10th  string
	Percentile90th  string
	Count           string
	AdditionalNotes string
}

// Charge holds the per-setting price fields of a raw row plus the payer
// groups that reference that setting.
type Charge struct {
	Setting         string
	GrossCharge     string
	DiscountedCash  string
	Minimum         string
	Maximum         string
	ModifierCodes   []string
	AdditionalNotes string

	PayerGroups []PayerGroup
}

// Row is one billable item as decoded from a source file: the fixed item
// fields plus one Charge per care setting present on the row.
type Row struct {
	// SourceRow is the 1-based row (CSV) or array index (JSON) of the first
	// source line contributing to this item, for error reporting.
	SourceRow int64

	Description  string
	Codes        []CodeRef
	DrugUnit     string
	DrugUnitType string

	Charges []Charge
}

// ModifierPayerGroup is the payer-specific description attached to a
// billing modifier.
type ModifierPayerGroup struct {
	PayerName   string
	PlanName    string
	Description string
}

// ModifierRow is one billing modifier declared by an institution.
type ModifierRow struct {
	Code        string
	Description string
	Setting     string
	Payers      []ModifierPayerGroup
}

// Header carries the institution-level fields of a disclosure file.
type Header struct {
	HospitalName  string
	Addresses     []string
	LocationNames []string
	NPIs          []string
	LicenseNumber string
	LicenseState  string
	Version       string
	LastUpdatedOn string
	AttesterName  string
}
