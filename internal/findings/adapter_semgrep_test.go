package findings

import "testing"

func TestSemgrepAdapter(t *testing.T) {
	input := `{
		"results": [
			{
				"check_id": "python.lang.security.audit.eval-detected",
				"path": "./app/handlers.py",
				"start": {"line": 42, "col": 5},
				"end": {"line": 42, "col": 20},
				"extra": {
					"message": "Detected use of eval()",
					"severity": "ERROR",
					"metadata": {"category": "security", "cwe": ["CWE-95"], "owasp": ["A03:2021"]}
				}
			},
			{"check_id": "empty", "extra": {"message": "", "severity": "WARNING"}}
		],
		"errors": []
	}`
	out := semgrepAdapter("semgrep", "app", []byte(input))
	if len(out) != 1 {
		t.Fatalf("expected 1 finding (empty-message record skipped), got %d", len(out))
	}
	f := out[0]
	if f.Path != "app/handlers.py" || f.StartLine != 42 {
		t.Errorf("unexpected location: %+v", f)
	}
	if f.Severity != SeverityHigh {
		t.Errorf("severity = %q, want HIGH for ERROR", f.Severity)
	}
	if f.Compliance == nil || len(f.Compliance.CweTop25_2024) == 0 {
		t.Error("expected CWE compliance mapping to be populated")
	}
}

func TestSemgrepAdapter_MalformedFailsSoft(t *testing.T) {
	out := semgrepAdapter("semgrep", "app", []byte("not json"))
	if out != nil {
		t.Errorf("expected nil for malformed input, got %v", out)
	}
}

func TestSemgrepSeverityMapping(t *testing.T) {
	cases := map[string]Severity{"ERROR": SeverityHigh, "WARNING": SeverityMedium, "INFO": SeverityLow, "unknown": SeverityInfo}
	for in, want := range cases {
		if got := semgrepSeverity(in); got != want {
			t.Errorf("semgrepSeverity(%q) = %q, want %q", in, got, want)
		}
	}
}
