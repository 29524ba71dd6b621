package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pollhub.org/internal/comments"
)

var _ comments.Store = (*Store)(nil)

const commentColumns = `id, poll_id, parent_id, depth, content, author_kind, user_id, author_name, author_email,
	is_approved, is_hidden, moderated_by, moderated_at, moderation_reason, created_at, updated_at`

func (s *Store) FetchComment(ctx context.Context, id string) (comments.Comment, error) {
	if s.db == nil {
		return comments.Comment{}, errNoDB
	}
	c, err := scanComment(s.db.QueryRowContext(ctx,
		`select `+commentColumns+` from comments where id = $1 and deleted_at is null`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return comments.Comment{}, comments.ErrNotFound
	}
	return c, err
}

func (s *Store) FetchCommentsForPoll(ctx context.Context, pollID string) ([]comments.Comment, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+commentColumns+`
		from comments
		where poll_id = $1 and deleted_at is null
		order by created_at asc, id asc`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []comments.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) InsertComment(ctx context.Context, c comments.Comment) (comments.Comment, error) {
	if s.db == nil {
		return comments.Comment{}, errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into comments (id, poll_id, parent_id, depth, content, author_kind, user_id, author_name, author_email,
		                      is_approved, is_hidden, created_at)
		values ($1, $2, $3, $4, $5, $6, nullif($7, ''), $8, nullif($9, ''), $10, $11, $12)`,
		c.ID, c.PollID, nullString(c.ParentID), c.Depth, c.Content, string(c.Kind), c.IdentityID,
		c.DisplayName, c.Contact, c.Approved, c.Hidden, c.CreatedAt)
	if err != nil {
		if hasCode(err, pgErrForeignKeyViolation) {
			return comments.Comment{}, comments.ErrPollUnavailable
		}
		return comments.Comment{}, err
	}
	return c, nil
}

func (s *Store) UpdateContent(ctx context.Context, id, content string, at time.Time) (comments.Comment, error) {
	if s.db == nil {
		return comments.Comment{}, errNoDB
	}
	c, err := scanComment(s.db.QueryRowContext(ctx, `
		update comments set content = $2, updated_at = $3
		where id = $1 and deleted_at is null
		returning `+commentColumns, id, content, at))
	if errors.Is(err, sql.ErrNoRows) {
		return comments.Comment{}, comments.ErrNotFound
	}
	return c, err
}

// DeleteComment sets the tombstone; replies keep their parent_id.
func (s *Store) DeleteComment(ctx context.Context, id string, at time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `update comments set deleted_at = $2 where id = $1 and deleted_at is null`, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return comments.ErrNotFound
	}
	return nil
}

func scanComment(row rowScanner) (comments.Comment, error) {
	var (
		c         comments.Comment
		parentID  sql.NullString
		kind      string
		userID    sql.NullString
		email     sql.NullString
		modBy     sql.NullString
		modAt     sql.NullTime
		reason    sql.NullString
		updatedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.PollID, &parentID, &c.Depth, &c.Content, &kind, &userID, &c.DisplayName, &email,
		&c.Approved, &c.Hidden, &modBy, &modAt, &reason, &c.CreatedAt, &updatedAt); err != nil {
		return comments.Comment{}, err
	}
	c.ParentID = stringPtr(parentID)
	c.Kind = comments.AuthorKind(kind)
	c.IdentityID = userID.String
	c.Contact = email.String
	c.ModeratedBy = stringPtr(modBy)
	c.ModeratedAt = timePtr(modAt)
	c.Reason = stringPtr(reason)
	c.UpdatedAt = timePtr(updatedAt)
	return c, nil
}
