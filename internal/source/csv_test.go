package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"
)

func TestCSVReaderTallGrouping(t *testing.T) {
	reader, err := NewCSVReader("testdata/tall.csv")
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	header, err := reader.ReadHeader()
	if err != nil {
		t.Fatalf("failed to read header: %v", err)
	}
	if header.HospitalName != "Example General Hospital" {
		t.Errorf("unexpected hospital name %q", header.HospitalName)
	}
	if header.LicenseNumber != "H-12345" || header.LicenseState != "MD" {
		t.Errorf("unexpected license %q/%q", header.LicenseNumber, header.LicenseState)
	}
	if len(header.Addresses) != 2 || len(header.LocationNames) != 2 {
		t.Errorf("expected 2 addresses and 2 locations, got %d/%d",
			len(header.Addresses), len(header.LocationNames))
	}
	if reader.Format() != TallFormat {
		t.Fatalf("expected tall format, got %s", reader.Format())
	}

	// First item: 3 raw rows folding into one item with two settings.
	item, err := reader.Next()
	if err != nil {
		t.Fatalf("failed to read first item: %v", err)
	}
	if item.Description != "Office visit, established patient" {
		t.Errorf("unexpected description %q", item.Description)
	}
	if len(item.Codes) != 1 || item.Codes[0].Code != "99213" || item.Codes[0].Type != "CPT" {
		t.Errorf("unexpected codes %+v", item.Codes)
	}
	if len(item.Charges) != 2 {
		t.Fatalf("expected 2 charges (outpatient, inpatient), got %d", len(item.Charges))
	}
	out := item.Charges[0]
	if out.Setting != "outpatient" || out.GrossCharge != "125.00" {
		t.Errorf("unexpected outpatient charge %+v", out)
	}
	if len(out.PayerGroups) != 2 {
		t.Fatalf("expected 2 payer groups on outpatient charge, got %d", len(out.PayerGroups))
	}
	if out.PayerGroups[0].PayerName != "Aetna" || out.PayerGroups[0].NegotiatedDollar != "85.50" {
		t.Errorf("unexpected first payer group %+v", out.PayerGroups[0])
	}
	if out.PayerGroups[1].NegotiatedPercentage != "80" || out.PayerGroups[1].EstimatedAmount != "98.00" {
		t.Errorf("unexpected second payer group %+v", out.PayerGroups[1])
	}
	in := item.Charges[1]
	if in.Setting != "inpatient" || len(in.PayerGroups) != 1 {
		t.Errorf("unexpected inpatient charge %+v", in)
	}

	// Second item: two codes of different types, algorithm rate, modifier.
	item, err = reader.Next()
	if err != nil {
		t.Fatalf("failed to read second item: %v", err)
	}
	if len(item.Codes) != 2 || item.Codes[1].Type != "RC" {
		t.Errorf("unexpected codes %+v", item.Codes)
	}
	if len(item.Charges) != 1 {
		t.Fatalf("expected 1 charge, got %d", len(item.Charges))
	}
	g := item.Charges[0].PayerGroups[0]
	if g.NegotiatedAlgorithm != "per diem" || g.EstimatedAmount != "820.00" {
		t.Errorf("unexpected payer group %+v", g)
	}
	if len(item.Charges[0].ModifierCodes) != 1 || item.Charges[0].ModifierCodes[0] != "50" {
		t.Errorf("unexpected modifiers %+v", item.Charges[0].ModifierCodes)
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected EOF after last item, got %v", err)
	}
}

func TestCSVReaderWide(t *testing.T) {
	reader, err := NewCSVReader("testdata/wide.csv")
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	header, err := reader.ReadHeader()
	if err != nil {
		t.Fatalf("failed to read header: %v", err)
	}
	if header.LastUpdatedOn != "07/01/2025" {
		t.Errorf("unexpected last_updated_on %q", header.LastUpdatedOn)
	}
	if reader.Format() != WideFormat {
		t.Fatalf("expected wide format, got %s", reader.Format())
	}

	// First row carries values for both payer/plan column groups.
	item, err := reader.Next()
	if err != nil {
		t.Fatalf("failed to read first item: %v", err)
	}
	if len(item.Charges) != 1 {
		t.Fatalf("expected 1 charge, got %d", len(item.Charges))
	}
	groups := item.Charges[0].PayerGroups
	if len(groups) != 2 {
		t.Fatalf("expected 2 payer groups, got %d", len(groups))
	}
	if groups[0].PayerName != "Aetna" || groups[0].NegotiatedDollar != "150.00" {
		t.Errorf("unexpected first group %+v", groups[0])
	}
	// Underscores in column payer names are spaces in the real payer name.
	if groups[1].PayerName != "Blue Cross" || groups[1].NegotiatedDollar != "98.00" {
		t.Errorf("unexpected second group %+v", groups[1])
	}

	// Second row leaves the Blue_Cross columns empty; only Aetna survives.
	item, err = reader.Next()
	if err != nil {
		t.Fatalf("failed to read second item: %v", err)
	}
	if item.DrugUnit != "1" || item.DrugUnitType != "EA" {
		t.Errorf("unexpected drug fields %q/%q", item.DrugUnit, item.DrugUnitType)
	}
	groups = item.Charges[0].PayerGroups
	if len(groups) != 1 {
		t.Fatalf("expected 1 payer group, got %d", len(groups))
	}
	if groups[0].NegotiatedPercentage != "85" || groups[0].AdditionalNotes != "generic" {
		t.Errorf("unexpected group %+v", groups[0])
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected EOF after last item, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name    string
		headers []string
		want    Format
	}{
		{"tall by payer_name", []string{"description", "payer_name", "plan_name"}, TallFormat},
		{"wide by embedded payer", []string{"description", "standard_charge|Aetna|PPO|negotiated_dollar"}, WideFormat},
		{"defaults to tall", []string{"description", "setting"}, TallFormat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectFormat(tc.headers); got != tc.want {
				t.Errorf("DetectFormat(%v) = %s, want %s", tc.headers, got, tc.want)
			}
		})
	}
}

func TestCSVReaderMissingDescriptionColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	data := "hospital_name,version\nBad Hospital,2.0.0\nsetting,payer_name\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	reader, err := NewCSVReader(path)
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	_, err = reader.ReadHeader()
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestCSVReaderSanitizesInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latin1.csv")
	data := "hospital_name,version\nH\xf4pital General,2.0.0\n" +
		"description,code|1,code|1|type,setting,payer_name,plan_name,standard_charge|negotiated_dollar,standard_charge|methodology\n" +
		"Office \xff\xfe visit,99213,CPT,outpatient,Aetna,PPO,85.50,fee schedule\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	reader, err := NewCSVReader(path)
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	header, err := reader.ReadHeader()
	if err != nil {
		t.Fatalf("failed to read header: %v", err)
	}
	if !utf8.ValidString(header.HospitalName) {
		t.Errorf("hospital name carries invalid UTF-8: %q", header.HospitalName)
	}

	item, err := reader.Next()
	if err != nil {
		t.Fatalf("failed to read item: %v", err)
	}
	if !utf8.ValidString(item.Description) {
		t.Errorf("description carries invalid UTF-8: %q", item.Description)
	}
	if item.Description != "Office   visit" {
		t.Errorf("unexpected sanitized description %q", item.Description)
	}
}

func TestCSVReaderBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bom.csv")
	data := "\xef\xbb\xbfhospital_name,version\nBOM Hospital,2.0.0\ndescription,payer_name\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	reader, err := NewCSVReader(path)
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	header, err := reader.ReadHeader()
	if err != nil {
		t.Fatalf("failed to read header: %v", err)
	}
	if header.HospitalName != "BOM Hospital" {
		t.Errorf("BOM not stripped, got hospital name %q", header.HospitalName)
	}
}
