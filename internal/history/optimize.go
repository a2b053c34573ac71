package history

import "context"

// Optimize reclaims free pages and refreshes the query planner's statistics.
// Safe to run at any time; takes no locks beyond what VACUUM itself requires.
func (s *Store) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return err
	}
	return nil
}
