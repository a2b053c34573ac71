package findings

import (
	"fmt"

	"github.com/jmo-security/jmo/internal/errs"
)

var errMessageRequired = errs.New("message is required")

func invalidSeverity(s Severity) error {
	return fmt.Errorf("severity %q: %w", s, errs.ErrInvalid)
}

func invalidRiskLevel() error {
	return fmt.Errorf("confidence/likelihood/impact: %w", errs.ErrInvalid)
}
