package findings

import "testing"

func TestSeverity_Ordering(t *testing.T) {
	if !SeverityLow.Less(SeverityHigh) {
		t.Error("LOW should be less severe than HIGH")
	}
	if SeverityCritical.Less(SeverityInfo) {
		t.Error("CRITICAL should not be less severe than INFO")
	}
	for _, s := range AllSeverities {
		if !s.Valid() {
			t.Errorf("%q should be a valid severity", s)
		}
	}
	if Severity("BOGUS").Valid() {
		t.Error("BOGUS should not be a valid severity")
	}
}

func TestCommonFinding_Validate(t *testing.T) {
	f := CommonFinding{
		Severity: SeverityHigh,
		Message:  "something bad happened",
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("expected valid finding, got %v", err)
	}

	f.Severity = "NOT_A_LEVEL"
	if err := f.Validate(); err == nil {
		t.Fatal("expected error for invalid severity")
	}

	f.Severity = SeverityHigh
	f.Message = ""
	if err := f.Validate(); err == nil {
		t.Fatal("expected error for missing message")
	}

	f.Message = "ok"
	f.Confidence = "NOT_A_LEVEL"
	if err := f.Validate(); err == nil {
		t.Fatal("expected error for invalid confidence")
	}
}

func TestCompliance_IsEmpty(t *testing.T) {
	var c *Compliance
	if !c.IsEmpty() {
		t.Error("nil Compliance should be empty")
	}
	c = &Compliance{}
	if !c.IsEmpty() {
		t.Error("zero-value Compliance should be empty")
	}
	c.OwaspTop10_2021 = []byte(`{"A01":true}`)
	if c.IsEmpty() {
		t.Error("Compliance with a populated field should not be empty")
	}
}
