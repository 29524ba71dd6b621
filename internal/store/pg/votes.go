package pg

import (
	"context"

	"pollhub.org/internal/votes"
)

var _ votes.Store = (*Store)(nil)

func (s *Store) HasVoted(ctx context.Context, pollID, identityID string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from votes where poll_id = $1 and user_id = $2)`, pollID, identityID).Scan(&ok)
	return ok, err
}

func (s *Store) OptionInPoll(ctx context.Context, pollID, optionID string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from poll_options where id = $1 and poll_id = $2)`, optionID, pollID).Scan(&ok)
	return ok, err
}

// InsertVote relies on the (poll_id, user_id) unique constraint to close the
// window left by HasVoted.
func (s *Store) InsertVote(ctx context.Context, v votes.Vote) (votes.Vote, error) {
	if s.db == nil {
		return votes.Vote{}, errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into votes (id, poll_id, option_id, user_id, created_at)
		values ($1, $2, $3, $4, $5)`, v.ID, v.PollID, v.OptionID, v.IdentityID, v.CreatedAt)
	switch {
	case err == nil:
		return v, nil
	case hasCode(err, pgErrUniqueViolation):
		return votes.Vote{}, votes.ErrAlreadyVoted
	case hasCode(err, pgErrForeignKeyViolation):
		return votes.Vote{}, votes.ErrOptionNotInPoll
	default:
		return votes.Vote{}, err
	}
}
