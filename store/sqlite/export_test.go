package sqlite

import "context"

// ExecLegacySchema runs raw SQL so tests can fake databases from older releases.
func (s *Store) ExecLegacySchema(ctx context.Context, stmts string) error {
	_, err := s.db.ExecContext(ctx, stmts)
	return err
}
