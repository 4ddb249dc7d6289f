package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// User is a row of users joined with its level name. The password hash is
// never serialized.
type User struct {
	ID        int64      `json:"id"`
	LevelID   int64      `json:"level_id"`
	LevelName string     `json:"level_name,omitempty"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Password  string     `json:"-"`
	Name      string     `json:"name"`
	Picture   *string    `json:"picture"`
	LastLogin *time.Time `json:"last_login"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewUser is the input for Create. Password must already be hashed.
type NewUser struct {
	LevelID  int64
	Username string
	Email    string
	Password string
	Name     string
	Picture  *string
}

// UserPatch holds the columns to change; nil fields are left untouched.
type UserPatch struct {
	LevelID  *int64
	Username *string
	Email    *string
	Password *string
	Name     *string
	Picture  *string
}

// UniqueConflict reports which unique columns are already taken.
type UniqueConflict struct {
	Username bool
	Email    bool
}

// UserStore defines persistence operations for users.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Count(ctx context.Context, q UserQuery) (int, error)
	List(ctx context.Context, q UserQuery) ([]User, error)
	Create(ctx context.Context, in NewUser) (int64, error)
	Update(ctx context.Context, id int64, patch UserPatch) error
	Delete(ctx context.Context, id int64) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	LevelName(ctx context.Context, levelID int64) (string, error)
	LevelExists(ctx context.Context, levelID int64) (bool, error)
	Conflicts(ctx context.Context, username, email string, excludeID int64) (UniqueConflict, error)
	HasAdmin(ctx context.Context) (bool, error)
	Ping(ctx context.Context) error
}

// ErrDuplicateUser is returned when an insert or update hits a unique index.
var ErrDuplicateUser = errors.New("username or email already exists")

// PgUserStore implements UserStore on a pgx pool.
type PgUserStore struct {
	db DB
}

func NewPgUserStore(db DB) *PgUserStore {
	return &PgUserStore{db: db}
}

const userColumns = `users.id, users.level_id, user_levels.name, users.username, users.email, users.password,
users.name, users.picture, users.last_login, users.created_at, users.updated_at`

const userFrom = `FROM users JOIN user_levels ON users.level_id = user_levels.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.LevelID, &u.LevelName, &u.Username, &u.Email, &u.Password,
		&u.Name, &u.Picture, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PgUserStore) findOne(ctx context.Context, where string, arg any) (*User, error) {
	q := `SELECT ` + userColumns + ` ` + userFrom + ` WHERE ` + where
	u, err := scanUser(s.db.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *PgUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, `users.username = $1`, username)
}

func (s *PgUserStore) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.findOne(ctx, `users.id = $1`, id)
}

// Count returns the number of rows matching q, ignoring pagination.
func (s *PgUserStore) Count(ctx context.Context, q UserQuery) (int, error) {
	where, args, err := q.whereSQL()
	if err != nil {
		return 0, err
	}
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(users.id) `+userFrom+` WHERE `+where, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// List returns one page of rows matching q.
func (s *PgUserStore) List(ctx context.Context, q UserQuery) ([]User, error) {
	if q.Limit <= 0 || q.Offset < 0 {
		return nil, errors.New("invalid pagination")
	}
	where, args, err := q.whereSQL()
	if err != nil {
		return nil, err
	}
	order, err := q.orderSQL()
	if err != nil {
		return nil, err
	}
	args = append(args, q.Limit, q.Offset)
	stmt := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		userColumns, userFrom, where, order, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]User, 0, q.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *u)
	}
	return items, rows.Err()
}

func (s *PgUserStore) Create(ctx context.Context, in NewUser) (int64, error) {
	if in.LevelID == 0 {
		in.LevelID = RoleUser
	}
	const q = `INSERT INTO users (level_id, username, email, password, name, picture)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`
	var id int64
	if err := s.db.QueryRow(ctx, q, in.LevelID, in.Username, in.Email, in.Password, in.Name, in.Picture).Scan(&id); err != nil {
		return 0, wrapUniqueViolation(err)
	}
	return id, nil
}

// Update applies patch and bumps updated_at. ErrUserNotFound when id is unknown.
func (s *PgUserStore) Update(ctx context.Context, id int64, patch UserPatch) error {
	sets := []string{"updated_at = now()"}
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.LevelID != nil {
		set("level_id", *patch.LevelID)
	}
	if patch.Username != nil {
		set("username", *patch.Username)
	}
	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.Password != nil {
		set("password", *patch.Password)
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Picture != nil {
		set("picture", *patch.Picture)
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	tag, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return wrapUniqueViolation(err)
	}
	return requireAffected(tag)
}

func (s *PgUserStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(tag)
}

func (s *PgUserStore) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET last_login = $1, updated_at = now() WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	return requireAffected(tag)
}

func (s *PgUserStore) LevelName(ctx context.Context, levelID int64) (string, error) {
	var name string
	if err := s.db.QueryRow(ctx, `SELECT name FROM user_levels WHERE id = $1`, levelID).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("user level %d not found", levelID)
		}
		return "", err
	}
	return name, nil
}

func (s *PgUserStore) LevelExists(ctx context.Context, levelID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM user_levels WHERE id = $1)`, levelID).Scan(&exists)
	return exists, err
}

// Conflicts checks username/email uniqueness, ignoring the row excludeID.
func (s *PgUserStore) Conflicts(ctx context.Context, username, email string, excludeID int64) (UniqueConflict, error) {
	const q = `
SELECT
    EXISTS(SELECT 1 FROM users WHERE username = $1 AND id <> $3) AS username_exists,
    EXISTS(SELECT 1 FROM users WHERE email = $2 AND id <> $3) AS email_exists`
	var c UniqueConflict
	if err := s.db.QueryRow(ctx, q, username, email, excludeID).Scan(&c.Username, &c.Email); err != nil {
		return UniqueConflict{}, err
	}
	return c, nil
}

func (s *PgUserStore) HasAdmin(ctx context.Context) (bool, error) {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1 FROM users WHERE level_id = $1 LIMIT 1`, RoleAdmin).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PgUserStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func requireAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func wrapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateUser, pgErr.ConstraintName)
	}
	return err
}
