package source

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const v3Doc = `{
  "hospital_name": "Example JSON Hospital",
  "last_updated_on": "2025-07-01",
  "version": "3.0.0",
  "hospital_address": ["500 Oak Ave Springfield IL"],
  "location_name": ["Main Campus"],
  "type_2_npi": ["1234567890"],
  "license_information": {"license_number": "IL-991", "state": "IL"},
  "attestation": {"attester_name": "Jane Smith"},
  "standard_charge_information": [
    {
      "description": "Office visit, established patient",
      "code_information": [{"code": "99213", "type": "CPT"}],
      "standard_charges": [
        {
          "setting": "outpatient",
          "gross_charge": 125.00,
          "discounted_cash": 100.00,
          "minimum": 62.75,
          "maximum": 125.00,
          "payers_information": [
            {
              "payer_name": "Aetna",
              "plan_name": "PPO",
              "standard_charge_dollar": 85.50,
              "methodology": "fee schedule"
            },
            {
              "payer_name": "Cigna",
              "plan_name": "HMO",
              "standard_charge_percentage": 80,
              "estimated_amount": 98.00,
              "methodology": "percent of total billed charges"
            }
          ]
        }
      ]
    },
    {
      "description": "Amoxicillin 500mg capsule",
      "code_information": [{"code": "00093-4155-73", "type": "NDC"}],
      "drug_information": {"unit": "1", "type": "EA"},
      "standard_charges": [
        {
          "setting": "outpatient",
          "gross_charge": 4.50,
          "modifier_code": ["50"],
          "payers_information": [
            {
              "payer_name": "Aetna",
              "plan_name": "PPO",
              "standard_charge_algorithm": "average wholesale price plus 20%",
              "methodology": "other"
            }
          ]
        }
      ]
    }
  ],
  "modifier_information": [
    {
      "code": "50",
      "description": "Bilateral procedure",
      "modifier_payer_information": [
        {"payer_name": "Aetna", "plan_name": "PPO", "description": "150% of unilateral rate"}
      ]
    }
  ]
}`

func TestJSONReaderV3(t *testing.T) {
	reader, err := NewJSONReader(writeTemp(t, "v3.json", v3Doc))
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	header, err := reader.ReadHeader()
	if err != nil {
		t.Fatalf("failed to read header: %v", err)
	}
	if header.HospitalName != "Example JSON Hospital" {
		t.Errorf("unexpected hospital name %q", header.HospitalName)
	}
	if header.LicenseNumber != "IL-991" || header.LicenseState != "IL" {
		t.Errorf("unexpected license %q/%q", header.LicenseNumber, header.LicenseState)
	}
	if header.AttesterName != "Jane Smith" {
		t.Errorf("unexpected attester %q", header.AttesterName)
	}
	if len(header.NPIs) != 1 || header.NPIs[0] != "1234567890" {
		t.Errorf("unexpected NPIs %+v", header.NPIs)
	}

	item, err := reader.Next()
	if err != nil {
		t.Fatalf("failed to read first item: %v", err)
	}
	if item.Description != "Office visit, established patient" {
		t.Errorf("unexpected description %q", item.Description)
	}
	groups := item.Charges[0].PayerGroups
	if len(groups) != 2 {
		t.Fatalf("expected 2 payer groups, got %d", len(groups))
	}
	// Numbers come through as their literal JSON text.
	if groups[0].NegotiatedDollar != "85.50" {
		t.Errorf("unexpected dollar %q", groups[0].NegotiatedDollar)
	}
	if groups[1].NegotiatedPercentage != "80" || groups[1].EstimatedAmount != "98.00" {
		t.Errorf("unexpected second group %+v", groups[1])
	}

	item, err = reader.Next()
	if err != nil {
		t.Fatalf("failed to read second item: %v", err)
	}
	if item.DrugUnit != "1" || item.DrugUnitType != "EA" {
		t.Errorf("unexpected drug fields %q/%q", item.DrugUnit, item.DrugUnitType)
	}
	if item.Charges[0].PayerGroups[0].NegotiatedAlgorithm != "average wholesale price plus 20%" {
		t.Errorf("unexpected algorithm %q", item.Charges[0].PayerGroups[0].NegotiatedAlgorithm)
	}
	if len(item.Charges[0].ModifierCodes) != 1 {
		t.Errorf("unexpected modifier codes %+v", item.Charges[0].ModifierCodes)
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}

	// modifier_information trails the item array; it is available once the
	// items are drained.
	mods := reader.Modifiers()
	if len(mods) != 1 || mods[0].Code != "50" {
		t.Fatalf("unexpected modifiers %+v", mods)
	}
	if len(mods[0].Payers) != 1 || mods[0].Payers[0].Description != "150% of unilateral rate" {
		t.Errorf("unexpected modifier payer info %+v", mods[0].Payers)
	}
}

const v2Doc = `{
  "hospital_name": "Legacy Hospital",
  "last_updated_on": "07/01/2025",
  "version": "2.0.0",
  "hospital_location": ["Legacy Campus"],
  "affirmation": {"affirmation": "true"},
  "standard_charge_information": [
    {
      "description": "Chest X-ray 2 views",
      "code_information": [{"code": "71046", "type": "CPT"}],
      "standard_charges": [
        {
          "setting": "outpatient",
          "gross_charges": "350.00",
          "payers_information": [
            {"payer_name": "Aetna", "plan_name": "PPO", "standard_charge_dollar": "150.00", "methodology": "fee schedule"}
          ]
        }
      ]
    }
  ]
}`

func TestJSONReaderV2Fallbacks(t *testing.T) {
	reader, err := NewJSONReader(writeTemp(t, "v2.json", v2Doc))
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	header, err := reader.ReadHeader()
	if err != nil {
		t.Fatalf("failed to read header: %v", err)
	}
	if len(header.LocationNames) != 1 || header.LocationNames[0] != "Legacy Campus" {
		t.Errorf("hospital_location not used, got %+v", header.LocationNames)
	}
	if header.AttesterName != "true" {
		t.Errorf("affirmation fallback not applied, got %q", header.AttesterName)
	}

	item, err := reader.Next()
	if err != nil {
		t.Fatalf("failed to read item: %v", err)
	}
	if item.Charges[0].GrossCharge != "350.00" {
		t.Errorf("gross_charges fallback not applied, got %q", item.Charges[0].GrossCharge)
	}
	if item.Charges[0].PayerGroups[0].NegotiatedDollar != "150.00" {
		t.Errorf("unexpected dollar %q", item.Charges[0].PayerGroups[0].NegotiatedDollar)
	}
}

func TestJSONReaderModifiersBeforeItems(t *testing.T) {
	doc := `{
  "hospital_name": "Order Hospital",
  "modifier_information": [{"code": "26", "description": "Professional component"}],
  "standard_charge_information": []
}`
	reader, err := NewJSONReader(writeTemp(t, "order.json", doc))
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	if _, err := reader.ReadHeader(); err != nil {
		t.Fatalf("failed to read header: %v", err)
	}
	if _, err := reader.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	if mods := reader.Modifiers(); len(mods) != 1 || mods[0].Code != "26" {
		t.Errorf("unexpected modifiers %+v", mods)
	}
}

func TestRawAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`12.5`, "12.5"},
		{`"  45 "`, "45"},
		{`null`, ""},
		{`"N/A"`, "N/A"},
		{`"125.00"`, "125.00"},
	}
	for _, tc := range cases {
		var a rawAmount
		if err := json.Unmarshal([]byte(tc.in), &a); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if string(a) != tc.want {
			t.Errorf("rawAmount(%s) = %q, want %q", tc.in, a, tc.want)
		}
	}
}

func TestOpenByExtension(t *testing.T) {
	csvPath := writeTemp(t, "f.csv", "hospital_name\nX\ndescription\n")
	r, err := Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer r.Close()
	if _, ok := r.(*CSVReader); !ok {
		t.Errorf("expected CSVReader for .csv, got %T", r)
	}

	jsonPath := writeTemp(t, "f.json", "{}")
	r2, err := Open(jsonPath)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer r2.Close()
	if _, ok := r2.(*JSONReader); !ok {
		t.Errorf("expected JSONReader for .json, got %T", r2)
	}
}
