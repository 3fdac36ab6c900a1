package source

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/gyeh/priceload/internal/model"
)

// Column patterns for dynamically-named wide-format headers.
var (
	codeColPattern    = regexp.MustCompile(`^code\|(\d+)$`)
	payerColPattern   = regexp.MustCompile(`^standard_charge\|([^|]+)\|([^|]+)\|(.+)$`)
	estimatedPattern  = regexp.MustCompile(`^estimated_amount\|([^|]+)\|([^|]+)$`)
	payerNotesPattern = regexp.MustCompile(`^additional_payer_notes\|([^|]+)\|([^|]+)$`)
)

type Format string

const (
	TallFormat Format = "tall"
	WideFormat Format = "wide"
)

// DetectFormat determines whether row-3 headers describe a tall or wide file.
// Tall files carry payer_name/plan_name columns; wide files encode the payer
// and plan into the column name itself.
func DetectFormat(headers []string) Format {
	for _, h := range headers {
		if h == "payer_name" || h == "plan_name" {
			return TallFormat
		}
		if strings.Contains(h, "|") && strings.Contains(h, "negotiated_dollar") {
			return WideFormat
		}
	}
	return TallFormat
}

type payerPlanKey struct {
	payer string
	plan  string
}

// CSVReader streams a tall or wide CSV disclosure file. The hospital header
// occupies rows 1-2, item column headers row 3.
type CSVReader struct {
	path   string
	file   *os.File
	reader *csv.Reader

	headers    []string
	colIdx     map[string]int
	format     Format
	payerPlans []payerPlanKey
	rowNum     int64

	// Tall-format grouping state: consecutive rows sharing an item key fold
	// into one model.Row with per-setting charges.
	currentKey  string
	currentItem *model.Row
	pendingRow  []string
}

func NewCSVReader(path string) (*CSVReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	bufReader := bufio.NewReaderSize(file, 256*1024)
	skipBOM(bufReader)

	reader := csv.NewReader(bufReader)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	return &CSVReader{
		path:   path,
		file:   file,
		reader: reader,
		colIdx: make(map[string]int),
	}, nil
}

// ReadHeader consumes rows 1-3 and discovers the file's column layout.
func (r *CSVReader) ReadHeader() (*model.Header, error) {
	headerRow, err := r.reader.Read()
	if err != nil {
		return nil, &DecodeError{Path: r.path, Err: fmt.Errorf("read header row 1: %w", err)}
	}
	r.rowNum++

	valueRow, err := r.reader.Read()
	if err != nil {
		return nil, &DecodeError{Path: r.path, Err: fmt.Errorf("read header row 2: %w", err)}
	}
	r.rowNum++

	header := parseCSVHeader(headerRow, valueRow)

	r.headers, err = r.reader.Read()
	if err != nil {
		return nil, &DecodeError{Path: r.path, Err: fmt.Errorf("read item headers row 3: %w", err)}
	}
	r.rowNum++

	for i, h := range r.headers {
		r.colIdx[strings.TrimSpace(h)] = i
	}

	if _, ok := r.colIdx["description"]; !ok {
		return nil, &DecodeError{Path: r.path, Err: fmt.Errorf("no description column in row 3")}
	}

	r.format = DetectFormat(r.headers)
	if r.format == WideFormat {
		r.discoverPayerPlans()
	}

	return header, nil
}

// discoverPayerPlans extracts the unique payer/plan combinations declared by
// wide-format column names, preserving first-seen order.
func (r *CSVReader) discoverPayerPlans() {
	seen := make(map[payerPlanKey]bool)
	add := func(payer, plan string) {
		pp := payerPlanKey{payer: payer, plan: plan}
		if !seen[pp] {
			seen[pp] = true
			r.payerPlans = append(r.payerPlans, pp)
		}
	}
	for _, h := range r.headers {
		if m := payerColPattern.FindStringSubmatch(h); m != nil {
			add(m[1], m[2])
		}
		if m := estimatedPattern.FindStringSubmatch(h); m != nil {
			add(m[1], m[2])
		}
		if m := payerNotesPattern.FindStringSubmatch(h); m != nil {
			add(m[1], m[2])
		}
	}
}

func (r *CSVReader) Format() Format { return r.format }

func (r *CSVReader) RowNum() int64 { return r.rowNum }

// Modifiers returns nil: CSV disclosure files carry no modifier section.
func (r *CSVReader) Modifiers() []model.ModifierRow { return nil }

func (r *CSVReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Next returns the next item. Wide files produce one item per CSV row; tall
// files group consecutive rows sharing an item key.
func (r *CSVReader) Next() (*model.Row, error) {
	if r.format == WideFormat {
		return r.nextWide()
	}
	return r.nextTall()
}

func (r *CSVReader) nextWide() (*model.Row, error) {
	for {
		row, err := r.reader.Read()
		if err != nil {
			return nil, err
		}
		r.rowNum++
		if isEmptyRow(row) {
			continue
		}
		return r.parseWideRow(row), nil
	}
}

func (r *CSVReader) nextTall() (*model.Row, error) {
	// A pending row from the previous call starts the next item.
	if r.pendingRow != nil {
		row := r.pendingRow
		r.pendingRow = nil
		r.currentKey = r.tallItemKey(row)
		r.currentItem = r.parseTallRowBase(row)
		r.addTallRowPayer(r.currentItem, row)
	}

	for {
		row, err := r.reader.Read()
		if err != nil {
			if err == io.EOF && r.currentItem != nil {
				item := r.currentItem
				r.currentItem = nil
				return item, nil
			}
			return nil, err
		}
		r.rowNum++
		if isEmptyRow(row) {
			continue
		}

		key := r.tallItemKey(row)

		if r.currentItem == nil {
			r.currentKey = key
			r.currentItem = r.parseTallRowBase(row)
			r.addTallRowPayer(r.currentItem, row)
			continue
		}

		if key == r.currentKey {
			r.mergeTallRow(r.currentItem, row)
			r.addTallRowPayer(r.currentItem, row)
			continue
		}

		// New item starts here; hand back the finished one.
		r.pendingRow = row
		item := r.currentItem
		r.currentItem = nil
		return item, nil
	}
}

func isEmptyRow(row []string) bool {
	return len(row) == 0 || (len(row) == 1 && row[0] == "")
}

// cell returns one trimmed cell with invalid UTF-8 replaced, so downstream
// writes to text columns never carry bytes Postgres rejects.
func (r *CSVReader) cell(row []string, col string) string {
	if idx, ok := r.colIdx[col]; ok && idx < len(row) {
		return strings.ToValidUTF8(strings.TrimSpace(row[idx]), " ")
	}
	return ""
}

// tallItemKey groups tall rows into items by description, codes and drug
// fields. Setting is deliberately excluded so that one item can carry
// charges for several care settings.
func (r *CSVReader) tallItemKey(row []string) string {
	var b strings.Builder
	b.WriteString(r.cell(row, "description"))
	for _, h := range r.headers {
		if codeColPattern.MatchString(h) {
			b.WriteByte('|')
			b.WriteString(r.cell(row, h))
		}
	}
	b.WriteByte('|')
	b.WriteString(r.cell(row, "drug_unit_of_measurement"))
	b.WriteByte('|')
	b.WriteString(r.cell(row, "drug_type_of_measurement"))
	return b.String()
}

// parseTallRowBase creates a model.Row with the fixed item fields and the
// charge for this row's setting.
func (r *CSVReader) parseTallRowBase(row []string) *model.Row {
	item := &model.Row{
		SourceRow:    r.rowNum,
		Description:  r.cell(row, "description"),
		Codes:        r.parseCodes(row),
		DrugUnit:     r.cell(row, "drug_unit_of_measurement"),
		DrugUnitType: r.cell(row, "drug_type_of_measurement"),
	}
	item.Charges = append(item.Charges, r.parseChargeFields(row))
	return item
}

// mergeTallRow adds this row's setting as a new charge if the item does not
// have it yet.
func (r *CSVReader) mergeTallRow(item *model.Row, row []string) {
	setting := r.cell(row, "setting")
	for i := range item.Charges {
		if item.Charges[i].Setting == setting {
			return
		}
	}
	item.Charges = append(item.Charges, r.parseChargeFields(row))
}

func (r *CSVReader) parseChargeFields(row []string) model.Charge {
	c := model.Charge{
		Setting:         r.cell(row, "setting"),
		GrossCharge:     r.cell(row, "standard_charge|gross"),
		DiscountedCash:  r.cell(row, "standard_charge|discounted_cash"),
		Minimum:         r.cell(row, "standard_charge|min"),
		Maximum:         r.cell(row, "standard_charge|max"),
		AdditionalNotes: r.cell(row, "additional_generic_notes"),
	}
	if mods := r.cell(row, "modifiers"); mods != "" {
		c.ModifierCodes = strings.Split(mods, "|")
	}
	return c
}

func (r *CSVReader) parseCodes(row []string) []model.CodeRef {
	var codes []model.CodeRef
	for _, h := range r.headers {
		m := codeColPattern.FindStringSubmatch(h)
		if m == nil {
			continue
		}
		code := r.cell(row, h)
		if code == "" {
			continue
		}
		typeCol := fmt.Sprintf("code|%s|type", m[1])
		codes = append(codes, model.CodeRef{Code: code, Type: r.cell(row, typeCol)})
	}
	return codes
}

// addTallRowPayer attaches this row's payer columns as a payer group on the
// charge matching the row's setting.
func (r *CSVReader) addTallRowPayer(item *model.Row, row []string) {
	payerName := r.cell(row, "payer_name")
	if payerName == "" {
		return
	}

	group := model.PayerGroup{
		PayerName:            payerName,
		PlanName:             r.cell(row, "plan_name"),
		Methodology:          r.cell(row, "standard_charge|methodology"),
		NegotiatedDollar:     r.cell(row, "standard_charge|negotiated_dollar"),
		NegotiatedPercentage: r.cell(row, "standard_charge|negotiated_percentage"),
		NegotiatedAlgorithm:  r.cell(row, "standard_charge|negotiated_algorithm"),
		EstimatedAmount:      r.cell(row, "estimated_amount"),
		AdditionalNotes:      r.cell(row, "additional_payer_notes"),
	}

	setting := r.cell(row, "setting")
	for i := range item.Charges {
		if item.Charges[i].Setting == setting {
			item.Charges[i].PayerGroups = append(item.Charges[i].PayerGroups, group)
			return
		}
	}
}

// parseWideRow converts one wide CSV row into a model.Row, iterating the
// payer/plan groups discovered from the header.
func (r *CSVReader) parseWideRow(row []string) *model.Row {
	item := &model.Row{
		SourceRow:    r.rowNum,
		Description:  r.cell(row, "description"),
		Codes:        r.parseCodes(row),
		DrugUnit:     r.cell(row, "drug_unit_of_measurement"),
		DrugUnitType: r.cell(row, "drug_type_of_measurement"),
	}

	charge := r.parseChargeFields(row)

	for _, pp := range r.payerPlans {
		group := model.PayerGroup{
			PayerName:            strings.ReplaceAll(pp.payer, "_", " "),
			PlanName:             pp.plan,
			Methodology:          r.cell(row, fmt.Sprintf("standard_charge|%s|%s|methodology", pp.payer, pp.plan)),
			NegotiatedDollar:     r.cell(row, fmt.Sprintf("standard_charge|%s|%s|negotiated_dollar", pp.payer, pp.plan)),
			NegotiatedPercentage: r.cell(row, fmt.Sprintf("standard_charge|%s|%s|negotiated_percentage", pp.payer, pp.plan)),
			NegotiatedAlgorithm:  r.cell(row, fmt.Sprintf("standard_charge|%s|%s|negotiated_algorithm", pp.payer, pp.plan)),
			EstimatedAmount:      r.cell(row, fmt.Sprintf("estimated_amount|%s|%s", pp.payer, pp.plan)),
			AdditionalNotes:      r.cell(row, fmt.Sprintf("additional_payer_notes|%s|%s", pp.payer, pp.plan)),
		}

		// Keep only groups that carry any data for this row.
		if group.NegotiatedDollar != "" || group.NegotiatedPercentage != "" ||
			group.NegotiatedAlgorithm != "" || group.EstimatedAmount != "" ||
			group.Methodology != "" || group.AdditionalNotes != "" {
			charge.PayerGroups = append(charge.PayerGroups, group)
		}
	}

	item.Charges = append(item.Charges, charge)
	return item
}

// parseCSVHeader parses the hospital header from rows 1-2.
func parseCSVHeader(headerRow, valueRow []string) *model.Header {
	header := &model.Header{}

	if len(headerRow) > 0 {
		headerRow[0] = strings.TrimPrefix(headerRow[0], "\ufeff")
	}

	for i, col := range headerRow {
		if i >= len(valueRow) {
			break
		}
		value := strings.ToValidUTF8(strings.TrimSpace(valueRow[i]), " ")

		switch {
		case col == "hospital_name":
			header.HospitalName = value
		case col == "last_updated_on":
			header.LastUpdatedOn = value
		case col == "version":
			header.Version = value
		case col == "hospital_location":
			if value != "" {
				header.LocationNames = strings.Split(value, "|")
			}
		case col == "hospital_address":
			if value != "" {
				header.Addresses = strings.Split(value, "|")
			}
		case strings.HasPrefix(col, "license_number|"):
			if value != "" && header.LicenseNumber == "" {
				header.LicenseNumber = value
				header.LicenseState = strings.TrimPrefix(col, "license_number|")
			}
		}
	}

	return header
}
