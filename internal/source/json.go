package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gyeh/priceload/internal/model"
)

// rawAmount keeps a JSON number or string verbatim, so the normalizer can
// decide whether a value is an amount or algorithm text. null becomes "".
type rawAmount string

func (a *rawAmount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*a = ""
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*a = rawAmount(strings.TrimSpace(str))
		return nil
	}
	*a = rawAmount(s)
	return nil
}

// Wire shapes for the V2/V3 MRF JSON document.

type jsonCode struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

type jsonDrug struct {
	Unit rawAmount `json:"unit"`
	Type string    `json:"type"`
}

type jsonPayer struct {
	PayerName                string    `json:"payer_name"`
	PlanName                 string    `json:"plan_name"`
	AdditionalPayerNotes     string    `json:"additional_payer_notes"`
	StandardChargeDollar     rawAmount `json:"standard_charge_dollar"`
	StandardChargeAlgorithm  string    `json:"standard_charge_algorithm"`
	StandardChargePercentage rawAmount `json:"standard_charge_percentage"`
	EstimatedAmount          rawAmount `json:"estimated_amount"`
	MedianAmount             rawAmount `json:"median_amount"`
	Percentile10th           rawAmount `json:"10th_percentile"`
	Percentile90th           rawAmount `json:"90th_percentile"`
	Count                    rawAmount `json:"count"`
	Methodology              string    `json:"methodology"`
}

type jsonCharge struct {
	Minimum                rawAmount   `json:"minimum"`
	Maximum                rawAmount   `json:"maximum"`
	GrossCharge            rawAmount   `json:"gross_charge"`
	GrossCharges           rawAmount   `json:"gross_charges"` // V2 name, often a formatted string
	DiscountedCash         rawAmount   `json:"discounted_cash"`
	Setting                string      `json:"setting"`
	ModifierCode           []string    `json:"modifier_code"`
	PayersInformation      []jsonPayer `json:"payers_information"`
	AdditionalGenericNotes string      `json:"additional_generic_notes"`
}

type jsonItem struct {
	Description     string       `json:"description"`
	DrugInformation *jsonDrug    `json:"drug_information"`
	CodeInformation []jsonCode   `json:"code_information"`
	StandardCharges []jsonCharge `json:"standard_charges"`
}

type jsonModifierPayer struct {
	PayerName   string `json:"payer_name"`
	PlanName    string `json:"plan_name"`
	Description string `json:"description"`
}

type jsonModifier struct {
	Description              string              `json:"description"`
	Code                     string              `json:"code"`
	Setting                  string              `json:"setting"`
	ModifierPayerInformation []jsonModifierPayer `json:"modifier_payer_information"`
}

type jsonAttestation struct {
	Attestation  string `json:"attestation"`
	Affirmation  string `json:"affirmation"` // V2 name
	AttesterName string `json:"attester_name"`
}

type jsonLicense struct {
	LicenseNumber string `json:"license_number"`
	State         string `json:"state"`
}

// JSONReader streams an MRF JSON document without holding the
// standard_charge_information array in memory. Header fields may appear in
// any order before the array; the (small) modifier_information array is
// buffered wherever it appears.
type JSONReader struct {
	path string
	file *os.File
	dec  *json.Decoder

	hospitalName  string
	addresses     []string
	lastUpdatedOn string
	version       string
	locationName  []string
	hospitalLoc   []string // V2 name
	type2NPI      []string
	license       jsonLicense
	attestation   jsonAttestation
	affirmation   jsonAttestation // V2 name

	modifiers []model.ModifierRow

	inItems bool
	done    bool
	rowNum  int64
}

func NewJSONReader(path string) (*JSONReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	bufReader := bufio.NewReaderSize(file, 64*1024)
	skipBOM(bufReader)

	return &JSONReader{
		path: path,
		file: file,
		dec:  json.NewDecoder(bufReader),
	}, nil
}

// ReadHeader walks top-level fields until the item array (or document end)
// and assembles the institution header.
func (r *JSONReader) ReadHeader() (*model.Header, error) {
	tok, err := r.dec.Token()
	if err != nil {
		return nil, &DecodeError{Path: r.path, Err: fmt.Errorf("read opening token: %w", err)}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &DecodeError{Path: r.path, Err: fmt.Errorf("expected opening brace, got %v", tok)}
	}

	for !r.inItems && !r.done {
		if err := r.advance(); err != nil {
			return nil, &DecodeError{Path: r.path, Err: err}
		}
	}

	return r.buildHeader(), nil
}

// advance consumes one top-level field, positioning inItems at the start of
// the standard_charge_information array when it is reached.
func (r *JSONReader) advance() error {
	if !r.dec.More() {
		if _, err := r.dec.Token(); err != nil && err != io.EOF { // closing brace
			return fmt.Errorf("read closing token: %w", err)
		}
		r.done = true
		return nil
	}

	tok, err := r.dec.Token()
	if err != nil {
		return fmt.Errorf("read field name: %w", err)
	}
	name, ok := tok.(string)
	if !ok {
		return fmt.Errorf("expected field name, got %v", tok)
	}

	decode := func(v any) error {
		if err := r.dec.Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		return nil
	}

	switch name {
	case "hospital_name":
		return decode(&r.hospitalName)
	case "hospital_address":
		return decode(&r.addresses)
	case "last_updated_on":
		return decode(&r.lastUpdatedOn)
	case "version":
		return decode(&r.version)
	case "location_name":
		return decode(&r.locationName)
	case "hospital_location":
		return decode(&r.hospitalLoc)
	case "type_2_npi":
		return decode(&r.type2NPI)
	case "license_information":
		return decode(&r.license)
	case "attestation":
		return decode(&r.attestation)
	case "affirmation":
		return decode(&r.affirmation)
	case "modifier_information":
		var mods []jsonModifier
		if err := decode(&mods); err != nil {
			return err
		}
		for i := range mods {
			r.modifiers = append(r.modifiers, convertModifier(&mods[i]))
		}
		return nil
	case "standard_charge_information":
		tok, err := r.dec.Token()
		if err != nil {
			return fmt.Errorf("read array start: %w", err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return fmt.Errorf("expected array start, got %v", tok)
		}
		r.inItems = true
		return nil
	default:
		var skip json.RawMessage
		return decode(&skip)
	}
}

func (r *JSONReader) buildHeader() *model.Header {
	locations := r.locationName
	if len(locations) == 0 {
		locations = r.hospitalLoc
	}

	attester := r.attestation.AttesterName
	if attester == "" {
		attester = r.attestation.Attestation
	}
	if attester == "" {
		attester = r.affirmation.Affirmation
	}

	return &model.Header{
		HospitalName:  r.hospitalName,
		Addresses:     r.addresses,
		LocationNames: locations,
		NPIs:          r.type2NPI,
		LicenseNumber: r.license.LicenseNumber,
		LicenseState:  r.license.State,
		Version:       r.version,
		LastUpdatedOn: r.lastUpdatedOn,
		AttesterName:  attester,
	}
}

// Next returns the next item, continuing the top-level walk past the item
// array so a trailing modifier_information section is still collected.
func (r *JSONReader) Next() (*model.Row, error) {
	for {
		if r.inItems {
			if r.dec.More() {
				var it jsonItem
				if err := r.dec.Decode(&it); err != nil {
					return nil, fmt.Errorf("decode item %d: %w", r.rowNum, err)
				}
				r.rowNum++
				return convertItem(&it, r.rowNum), nil
			}
			if _, err := r.dec.Token(); err != nil && err != io.EOF { // closing bracket
				return nil, fmt.Errorf("read array end: %w", err)
			}
			r.inItems = false
			continue
		}
		if r.done {
			return nil, io.EOF
		}
		if err := r.advance(); err != nil {
			return nil, err
		}
	}
}

func (r *JSONReader) Modifiers() []model.ModifierRow { return r.modifiers }

func (r *JSONReader) RowNum() int64 { return r.rowNum }

func (r *JSONReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

func convertItem(it *jsonItem, rowNum int64) *model.Row {
	row := &model.Row{
		SourceRow:   rowNum,
		Description: it.Description,
	}

	for _, c := range it.CodeInformation {
		row.Codes = append(row.Codes, model.CodeRef{Code: c.Code, Type: c.Type})
	}

	if it.DrugInformation != nil {
		row.DrugUnit = string(it.DrugInformation.Unit)
		row.DrugUnitType = it.DrugInformation.Type
	}

	for _, sc := range it.StandardCharges {
		gross := string(sc.GrossCharge)
		if gross == "" {
			gross = string(sc.GrossCharges)
		}

		charge := model.Charge{
			Setting:         sc.Setting,
			GrossCharge:     gross,
			DiscountedCash:  string(sc.DiscountedCash),
			Minimum:         string(sc.Minimum),
			Maximum:         string(sc.Maximum),
			ModifierCodes:   sc.ModifierCode,
			AdditionalNotes: sc.AdditionalGenericNotes,
		}

		for _, pi := range sc.PayersInformation {
			charge.PayerGroups = append(charge.PayerGroups, model.PayerGroup{
				PayerName:            pi.PayerName,
				PlanName:             pi.PlanName,
				Methodology:          pi.Methodology,
				NegotiatedDollar:     string(pi.StandardChargeDollar),
				NegotiatedPercentage: string(pi.StandardChargePercentage),
				NegotiatedAlgorithm:  pi.StandardChargeAlgorithm,
				EstimatedAmount:      string(pi.EstimatedAmount),
				MedianAmount:         string(pi.MedianAmount),
				Percentile10th:       string(pi.Percentile10th),
				Percentile90th:       string(pi.Percentile90th),
				Count:                string(pi.Count),
				AdditionalNotes:      pi.AdditionalPayerNotes,
			})
		}

		row.Charges = append(row.Charges, charge)
	}

	return row
}

func convertModifier(m *jsonModifier) model.ModifierRow {
	mr := model.ModifierRow{
		Code:        m.Code,
		Description: m.Description,
		Setting:     m.Setting,
	}
	for _, p := range m.ModifierPayerInformation {
		mr.Payers = append(mr.Payers, model.ModifierPayerGroup{
			PayerName:   p.PayerName,
			PlanName:    p.PlanName,
			Description: p.Description,
		})
	}
	return mr
}
