// Package pgstore implements timebank.Store on Postgres via pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timebankhq/timebank/internal/timebank"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs against the pool directly, or against one transaction inside
// Atomic. Row reads that guard transitions take FOR UPDATE locks while in a
// transaction, which serializes concurrent actions per interaction and per
// settlement card.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

// New wraps a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

// Atomic runs fn inside one database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(timebank.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(&Store{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetUser(ctx context.Context, id string) (*timebank.User, error) {
	var u timebank.User
	err := s.q.QueryRow(ctx,
		`SELECT id, username, email, NOT is_active FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Suspended)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, timebank.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetListing(ctx context.Context, ref timebank.ListingRef) (*timebank.Listing, error) {
	var l timebank.Listing
	err := s.q.QueryRow(ctx, `
		SELECT id, kind, user_id, title, description, category, duration,
		       capacity, is_visible, is_online, address, lat, lng, created_at
		FROM listings WHERE id = $1 AND kind = $2`, ref.ID, string(ref.Kind),
	).Scan(&l.ID, &l.Kind, &l.OwnerID, &l.Title, &l.Description, &l.Category,
		&l.Duration, &l.Capacity, &l.Visible, &l.Online, &l.Address, &l.Lat, &l.Lng, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("listing %s: %w", ref.ID, timebank.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return &l, nil
}

func (s *Store) GetBalance(ctx context.Context, userID string) (float64, error) {
	if err := s.ensureProfile(ctx, userID); err != nil {
		return 0, err
	}
	var balance float64
	err := s.q.QueryRow(ctx,
		`SELECT balance FROM profiles WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (s *Store) AdjustBalance(ctx context.Context, userID string, delta float64) error {
	if err := s.ensureProfile(ctx, userID); err != nil {
		return err
	}
	_, err := s.q.Exec(ctx,
		`UPDATE profiles SET balance = balance + $1 WHERE user_id = $2`, delta, userID)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	return nil
}

func (s *Store) ensureProfile(ctx context.Context, userID string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO profiles (user_id, balance, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO NOTHING`, userID, timebank.InitialBalance)
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

const interactionCols = `id, listing_id, listing_kind, sender_id, receiver_id, message,
	status, appointment_date, date_proposed_by, date_rejected_by,
	completed_by_provider, confirmed_by_receiver,
	deleted_by_sender, deleted_by_receiver, created_at`

func scanInteraction(row pgx.Row) (*timebank.Interaction, error) {
	var i timebank.Interaction
	var kind string
	var appt *time.Time
	err := row.Scan(&i.ID, &i.Listing.ID, &kind, &i.SenderID, &i.ReceiverID, &i.Message,
		&i.Status, &appt, &i.DateProposedBy, &i.DateRejectedBy,
		&i.CompletedByProvider, &i.ConfirmedByReceiver,
		&i.DeletedBySender, &i.DeletedByReceiver, &i.CreatedAt)
	if err != nil {
		return nil, err
	}
	i.Listing.Kind = timebank.ListingKind(kind)
	i.AppointmentDate = appt
	return &i, nil
}

func (s *Store) GetInteraction(ctx context.Context, id string) (*timebank.Interaction, error) {
	q := `SELECT ` + interactionCols + ` FROM interactions WHERE id = $1`
	if s.inTx {
		q += ` FOR UPDATE`
	}
	i, err := scanInteraction(s.q.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("interaction %s: %w", id, timebank.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get interaction: %w", err)
	}
	return i, nil
}

func (s *Store) ListingInteractions(ctx context.Context, ref timebank.ListingRef) ([]*timebank.Interaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+interactionCols+` FROM interactions
		 WHERE listing_id = $1 AND listing_kind = $2 ORDER BY created_at ASC`,
		ref.ID, string(ref.Kind))
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	return collectInteractions(rows)
}

func (s *Store) UserInteractions(ctx context.Context, userID string) ([]*timebank.Interaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+interactionCols+` FROM interactions
		 WHERE sender_id = $1 OR receiver_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("user interactions: %w", err)
	}
	return collectInteractions(rows)
}

func collectInteractions(rows pgx.Rows) ([]*timebank.Interaction, error) {
	defer rows.Close()
	var out []*timebank.Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *Store) SenderHasOpenInteraction(ctx context.Context, senderID string, ref timebank.ListingRef) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM interactions
			WHERE sender_id = $1 AND listing_id = $2 AND listing_kind = $3
			  AND status <> 'declined'
		)`, senderID, ref.ID, string(ref.Kind)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("open interaction check: %w", err)
	}
	return exists, nil
}

func (s *Store) CreateInteraction(ctx context.Context, i *timebank.Interaction) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO interactions (`+interactionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		i.ID, i.Listing.ID, string(i.Listing.Kind), i.SenderID, i.ReceiverID, i.Message,
		string(i.Status), i.AppointmentDate, i.DateProposedBy, i.DateRejectedBy,
		i.CompletedByProvider, i.ConfirmedByReceiver,
		i.DeletedBySender, i.DeletedByReceiver, i.CreatedAt)
	if err != nil {
		return fmt.Errorf("create interaction: %w", err)
	}
	return nil
}

func (s *Store) UpdateInteraction(ctx context.Context, i *timebank.Interaction) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE interactions SET
			status = $2, appointment_date = $3, date_proposed_by = $4,
			date_rejected_by = $5, completed_by_provider = $6,
			confirmed_by_receiver = $7, deleted_by_sender = $8,
			deleted_by_receiver = $9
		WHERE id = $1`,
		i.ID, string(i.Status), i.AppointmentDate, i.DateProposedBy, i.DateRejectedBy,
		i.CompletedByProvider, i.ConfirmedByReceiver, i.DeletedBySender, i.DeletedByReceiver)
	if err != nil {
		return fmt.Errorf("update interaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("interaction %s: %w", i.ID, timebank.ErrNotFound)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*timebank.ChatMessage, error) {
	var m timebank.ChatMessage
	err := s.q.QueryRow(ctx, `
		SELECT id, interaction_id, sender_id, content, settlement_id,
		       deleted_by_sender, deleted_by_recipient, created_at
		FROM messages WHERE id = $1`, id,
	).Scan(&m.ID, &m.InteractionID, &m.SenderID, &m.Content, &m.SettlementID,
		&m.DeletedBySender, &m.DeletedByRecipient, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, timebank.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &m, nil
}

func (s *Store) CreateMessage(ctx context.Context, m *timebank.ChatMessage) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO messages (id, interaction_id, sender_id, content, settlement_id,
			deleted_by_sender, deleted_by_recipient, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.InteractionID, m.SenderID, m.Content, m.SettlementID,
		m.DeletedBySender, m.DeletedByRecipient, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *Store) UpdateMessage(ctx context.Context, m *timebank.ChatMessage) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE messages SET deleted_by_sender = $2, deleted_by_recipient = $3
		WHERE id = $1`, m.ID, m.DeletedBySender, m.DeletedByRecipient)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", m.ID, timebank.ErrNotFound)
	}
	return nil
}

func (s *Store) Messages(ctx context.Context, interactionIDs []string) ([]*timebank.ChatMessage, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, interaction_id, sender_id, content, settlement_id,
		       deleted_by_sender, deleted_by_recipient, created_at
		FROM messages WHERE interaction_id = ANY($1) ORDER BY created_at ASC`,
		interactionIDs)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []*timebank.ChatMessage
	for rows.Next() {
		var m timebank.ChatMessage
		if err := rows.Scan(&m.ID, &m.InteractionID, &m.SenderID, &m.Content, &m.SettlementID,
			&m.DeletedBySender, &m.DeletedByRecipient, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) CreateTransaction(ctx context.Context, t *timebank.TimeTransaction) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO transactions (id, listing_id, listing_kind, from_user_id, to_user_id, amount, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.Listing.ID, string(t.Listing.Kind), t.FromUserID, t.ToUserID, t.Amount, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *Store) GroupSettlementForOffer(ctx context.Context, offerID string) (*timebank.GroupSettlement, error) {
	q := `SELECT id, offer_id, participants, confirmed, settled, created_at
	      FROM group_settlements WHERE offer_id = $1`
	if s.inTx {
		q += ` FOR UPDATE`
	}
	var g timebank.GroupSettlement
	err := s.q.QueryRow(ctx, q, offerID).Scan(
		&g.ID, &g.OfferID, &g.Participants, &g.Confirmed, &g.Settled, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("settlement for offer %s: %w", offerID, timebank.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement: %w", err)
	}
	return &g, nil
}

func (s *Store) CreateGroupSettlement(ctx context.Context, g *timebank.GroupSettlement) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO group_settlements (id, offer_id, participants, confirmed, settled, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		g.ID, g.OfferID, g.Participants, g.Confirmed, g.Settled, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("create settlement: %w", err)
	}
	return nil
}

func (s *Store) UpdateGroupSettlement(ctx context.Context, g *timebank.GroupSettlement) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE group_settlements SET confirmed = $2, settled = $3 WHERE id = $1`,
		g.ID, g.Confirmed, g.Settled)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("settlement %s: %w", g.ID, timebank.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateNotification(ctx context.Context, n *timebank.Notification) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, message, interaction_id, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		n.ID, n.UserID, string(n.Type), n.Message, nullable(n.InteractionID), n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *Store) Blocked(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM blocks
			WHERE (blocker_id = $1 AND blocked_id = $2)
			   OR (blocker_id = $2 AND blocked_id = $1)
		)`, a, b).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("block check: %w", err)
	}
	return exists, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
