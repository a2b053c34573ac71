package findings

import "testing"

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("semgrep", "rule.id", "src/app.go", 12, "unsafe use of exec.Command")
	b := Fingerprint("semgrep", "rule.id", "src/app.go", 12, "unsafe use of exec.Command")
	if a != b {
		t.Fatalf("fingerprint not deterministic: %q != %q", a, b)
	}
	if len(a) != FingerprintLength {
		t.Fatalf("fingerprint length = %d, want %d", len(a), FingerprintLength)
	}
}

func TestFingerprint_DiffersOnIdentityField(t *testing.T) {
	base := Fingerprint("semgrep", "rule.id", "src/app.go", 12, "message")
	cases := []string{
		Fingerprint("trivy", "rule.id", "src/app.go", 12, "message"),
		Fingerprint("semgrep", "other.rule", "src/app.go", 12, "message"),
		Fingerprint("semgrep", "rule.id", "src/other.go", 12, "message"),
		Fingerprint("semgrep", "rule.id", "src/app.go", 13, "message"),
	}
	for _, c := range cases {
		if c == base {
			t.Errorf("expected differing fingerprint, got collision with base %q", base)
		}
	}
}

func TestFingerprint_MessageWhitespaceNormalized(t *testing.T) {
	a := Fingerprint("semgrep", "rule.id", "src/app.go", 1, "hello   world\n\tfoo")
	b := Fingerprint("semgrep", "rule.id", "src/app.go", 1, "hello world foo")
	if a != b {
		t.Fatalf("whitespace-only difference should not change fingerprint: %q != %q", a, b)
	}
}

func TestFingerprint_MessageTruncated(t *testing.T) {
	long := ""
	for i := 0; i < MessageSnippetLength+50; i++ {
		long += "a"
	}
	short := long[:MessageSnippetLength]
	a := Fingerprint("semgrep", "rule.id", "src/app.go", 1, long)
	b := Fingerprint("semgrep", "rule.id", "src/app.go", 1, short)
	if a != b {
		t.Fatalf("messages agreeing on the first %d chars should fingerprint identically", MessageSnippetLength)
	}
}
