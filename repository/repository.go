package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"torchverso/models"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrPlotClaimed = errors.New("plot already claimed")
)

type dialect struct {
	name      string
	forUpdate string
	schema    []string
	rebind    func(string) string
}

var placeholder = regexp.MustCompile(`\$\d+`)

var postgres = dialect{
	name:      "postgres",
	forUpdate: " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS identities (
			id TEXT PRIMARY KEY,
			secret_hash TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cities (
			user_id TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			last_saved TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			text TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plot_claims (
			plot_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			rent_expires TIMESTAMPTZ
		)`,
	},
	rebind: func(q string) string { return q },
}

var sqlite = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS identities (
			id TEXT PRIMARY KEY,
			secret_hash TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cities (
			user_id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			last_saved TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plot_claims (
			plot_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			rent_expires TIMESTAMP
		)`,
	},
	rebind: func(q string) string { return placeholder.ReplaceAllString(q, "?") },
}

// SQLRepository stores identities, city saves, chat messages and plot
// claims. Queries use each placeholder once and in order so that they can
// be rebound for SQLite.
type SQLRepository struct {
	db *sql.DB
	d  dialect
}

func NewPostgresRepository(db *sql.DB) SQLRepository {
	return SQLRepository{db: db, d: postgres}
}

func NewSQLiteRepository(db *sql.DB) SQLRepository {
	return SQLRepository{db: db, d: sqlite}
}

func New(driver string, db *sql.DB) (SQLRepository, error) {
	switch driver {
	case "postgres":
		return NewPostgresRepository(db), nil
	case "sqlite":
		return NewSQLiteRepository(db), nil
	}
	return SQLRepository{}, fmt.Errorf("unknown store driver %q", driver)
}

func (r SQLRepository) q(query string) string {
	return r.d.rebind(query)
}

func (r SQLRepository) Migrate(ctx context.Context) error {
	for _, stmt := range r.d.schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", r.d.name, err)
		}
	}
	return nil
}

func (r SQLRepository) CreateIdentity(
	ctx context.Context,
	ident models.Identity,
) error {
	_, err := r.db.ExecContext(
		ctx,
		r.q("INSERT INTO identities (id, secret_hash, name, created_at) VALUES ($1, $2, $3, $4)"),
		ident.ID, ident.SecretHash, ident.Name, ident.CreatedAt,
	)
	return err
}

func (r SQLRepository) GetIdentity(
	ctx context.Context,
	id string,
) (models.Identity, error) {
	row := r.db.QueryRowContext(
		ctx,
		r.q("SELECT id, secret_hash, name, created_at FROM identities WHERE id=$1"),
		id,
	)
	var ident models.Identity
	err := row.Scan(&ident.ID, &ident.SecretHash, &ident.Name, &ident.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Identity{}, ErrNotFound
		}
		return models.Identity{}, err
	}
	return ident, nil
}

func (r SQLRepository) SaveCity(
	ctx context.Context,
	userID string,
	doc models.SaveDocument,
) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(
		ctx,
		r.q(`INSERT INTO cities (user_id, data, last_saved) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET data = excluded.data, last_saved = excluded.last_saved`),
		userID, string(data), doc.LastSaved.UTC(),
	)
	return err
}

// LoadCity returns the raw save document of userID.
func (r SQLRepository) LoadCity(
	ctx context.Context,
	userID string,
) ([]byte, error) {
	var data []byte
	err := r.db.QueryRowContext(
		ctx,
		r.q("SELECT data FROM cities WHERE user_id=$1"),
		userID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (r SQLRepository) AppendMessage(
	ctx context.Context,
	msg models.ChatMessage,
) (models.ChatMessage, error) {
	err := r.db.QueryRowContext(
		ctx,
		r.q("INSERT INTO messages (text, sender_id, sender_name, created_at) VALUES ($1, $2, $3, $4) RETURNING id"),
		msg.Text, msg.SenderID, msg.SenderName, msg.Timestamp.UTC(),
	).Scan(&msg.ID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

func (r SQLRepository) RecentMessages(
	ctx context.Context,
	limit int,
) ([]models.ChatMessage, error) {
	rows, err := r.db.QueryContext(
		ctx,
		r.q(`SELECT id, text, sender_id, sender_name, created_at
		 FROM messages
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(
			&m.ID,
			&m.Text,
			&m.SenderID,
			&m.SenderName,
			&m.Timestamp,
		); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClaimPlot records claim.Owner as the holder of the plot unless another
// owner holds an unexpired claim on it.
func (r SQLRepository) ClaimPlot(
	ctx context.Context,
	claim models.PlotClaim,
	now time.Time,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		owner   string
		expires sql.NullTime
	)
	err = tx.QueryRowContext(
		ctx,
		r.q("SELECT owner, rent_expires FROM plot_claims WHERE plot_id=$1"+r.d.forUpdate),
		claim.PlotID,
	).Scan(&owner, &expires)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		live := !expires.Valid || expires.Time.After(now)
		if owner != claim.Owner && live {
			return fmt.Errorf("%w: %s", ErrPlotClaimed, claim.PlotID)
		}
	}

	var rentExpires sql.NullTime
	if claim.RentExpires != nil {
		rentExpires = sql.NullTime{Time: claim.RentExpires.UTC(), Valid: true}
	}
	_, err = tx.ExecContext(
		ctx,
		r.q(`INSERT INTO plot_claims (plot_id, owner, rent_expires) VALUES ($1, $2, $3)
		 ON CONFLICT (plot_id) DO UPDATE SET owner = excluded.owner, rent_expires = excluded.rent_expires`),
		claim.PlotID, claim.Owner, rentExpires,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r SQLRepository) ReleasePlot(
	ctx context.Context,
	plotID, owner string,
) error {
	_, err := r.db.ExecContext(
		ctx,
		r.q("DELETE FROM plot_claims WHERE plot_id=$1 AND owner=$2"),
		plotID, owner,
	)
	return err
}

// ListClaims returns every claim still in force at now. Lease ends are
// stored in UTC; SQLite compares them as text.
func (r SQLRepository) ListClaims(
	ctx context.Context,
	now time.Time,
) ([]models.PlotClaim, error) {
	rows, err := r.db.QueryContext(
		ctx,
		r.q(`SELECT plot_id, owner, rent_expires FROM plot_claims
		 WHERE rent_expires IS NULL OR rent_expires > $1
		 ORDER BY plot_id`),
		now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []models.PlotClaim
	for rows.Next() {
		var (
			c       models.PlotClaim
			expires sql.NullTime
		)
		if err := rows.Scan(&c.PlotID, &c.Owner, &expires); err != nil {
			return nil, err
		}
		if expires.Valid {
			t := expires.Time
			c.RentExpires = &t
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}
