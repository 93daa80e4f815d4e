package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain"
	"github.com/MareskoY/tutor-ai/domain/entities"
	"github.com/MareskoY/tutor-ai/domain/repositories"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const uniqueViolation = "23505"

// Store implements repositories.Store on PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Open connects to connStr and applies pending migrations
func Open(ctx context.Context, connStr string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL")
	return &Store{pool: pool, logger: logger}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), -1) FROM schema_version`).Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, err := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if err != nil {
			return fmt.Errorf("read migration %d: %w", i, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
		if _, err := pool.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, i); err != nil {
			return fmt.Errorf("migration %d record: %w", i, err)
		}
	}
	return nil
}

func (s *Store) Users() repositories.UserRepository { return userRepository{pool: s.pool} }

func (s *Store) Chats() repositories.ChatRepository { return chatRepository{pool: s.pool} }

func (s *Store) Messages() repositories.MessageRepository { return messageRepository{pool: s.pool} }

func (s *Store) Transcriptions() repositories.TranscriptionRepository {
	return transcriptionRepository{pool: s.pool}
}

// Close releases the pool
func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type userRepository struct {
	pool *pgxpool.Pool
}

func (r userRepository) Create(ctx context.Context, user *entities.User) error {
	if user == nil {
		return errors.New("user cannot be nil")
	}
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, student_preference, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Email, user.StudentPreference, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r userRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	var user entities.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, student_preference, created_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.StudentPreference, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r userRepository) UpdatePreference(ctx context.Context, id string, pref entities.StudentPreference) error {
	if id == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, student_preference, created_at) VALUES ($1, '', $2, $3)
		 ON CONFLICT (id) DO UPDATE SET student_preference = EXCLUDED.student_preference`,
		id, pref, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update student preference: %w", err)
	}
	return nil
}

type chatRepository struct {
	pool *pgxpool.Pool
}

func (r chatRepository) Create(ctx context.Context, chat *entities.Chat) error {
	if chat == nil {
		return errors.New("chat cannot be nil")
	}
	if err := chat.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	if chat.Visibility == "" {
		chat.Visibility = entities.VisibilityPrivate
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO chats (id, created_at, title, user_id, visibility, type) VALUES ($1, $2, $3, $4, $5, $6)`,
		chat.ID, chat.CreatedAt, chat.Title, chat.UserID, string(chat.Visibility), string(chat.Type),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: chat %s already exists", domain.ErrInvalidInput, chat.ID)
		}
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (r chatRepository) GetByID(ctx context.Context, id string) (*entities.Chat, error) {
	var (
		chat       entities.Chat
		visibility string
		chatType   string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, created_at, title, user_id, visibility, type FROM chats WHERE id = $1`, id,
	).Scan(&chat.ID, &chat.CreatedAt, &chat.Title, &chat.UserID, &visibility, &chatType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	chat.Visibility = entities.Visibility(visibility)
	chat.Type = entities.ChatType(chatType)
	return &chat, nil
}

type messageRepository struct {
	pool *pgxpool.Pool
}

func (r messageRepository) Create(ctx context.Context, message *entities.Message) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, chat_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		message.ID, message.ChatID, message.Role, []byte(message.Content), message.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: message %s already exists", domain.ErrInvalidInput, message.ID)
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r messageRepository) GetByID(ctx context.Context, id string) (*entities.Message, error) {
	var (
		message entities.Message
		content []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, chat_id, role, content, created_at FROM messages WHERE id = $1`, id,
	).Scan(&message.ID, &message.ChatID, &message.Role, &content, &message.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	message.Content = content
	return &message, nil
}

func (r messageRepository) UpdateContent(ctx context.Context, id string, content []byte) error {
	tag, err := r.pool.Exec(ctx, `UPDATE messages SET content = $1 WHERE id = $2`, content, id)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type transcriptionRepository struct {
	pool *pgxpool.Pool
}

func (r transcriptionRepository) Upsert(ctx context.Context, rows []entities.CallTranscription) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		if row.ID == "" {
			return fmt.Errorf("%w: transcription id is required", domain.ErrInvalidInput)
		}
		batch.Queue(
			`INSERT INTO call_transcriptions (id, chat_id, call_message_id, role, text, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, text = EXCLUDED.text, created_at = EXCLUDED.created_at`,
			row.ID, row.ChatID, row.CallMessageID, string(row.Role), row.Text, row.CreatedAt.UTC(),
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert transcriptions: %w", err)
	}
	return nil
}

func (r transcriptionRepository) ListByCallMessage(ctx context.Context, callMessageID string) ([]entities.CallTranscription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, chat_id, call_message_id, role, text, created_at
		 FROM call_transcriptions WHERE call_message_id = $1 ORDER BY created_at ASC`,
		callMessageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcriptions: %w", err)
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entities.CallTranscription, error) {
		var (
			t    entities.CallTranscription
			role string
		)
		err := row.Scan(&t.ID, &t.ChatID, &t.CallMessageID, &role, &t.Text, &t.CreatedAt)
		t.Role = entities.Role(role)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan transcriptions: %w", err)
	}
	return result, nil
}
