package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Role values stored on User.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrForbidden is returned by RequireRole when the user lacks the role.
var ErrForbidden = errors.New("model: forbidden")

// User is an account that can authenticate.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" json:"-" msgpack:"-"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id" msgpack:"id"`
	Username     string    `bun:"username,notnull,unique" json:"username" msgpack:"username"`
	Email        string    `bun:"email,notnull,unique" json:"email" msgpack:"email"`
	PasswordHash string    `bun:"password_hash,notnull" json:"password_hash" msgpack:"password_hash"`
	Role         string    `bun:"role,notnull" json:"role" msgpack:"role"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at" msgpack:"created_at"`
}

// RequireRole returns ErrForbidden unless u has role.
func (u *User) RequireRole(role string) error {
	if u == nil || u.Role != role {
		return fmt.Errorf("%w: role %q required", ErrForbidden, role)
	}
	return nil
}

var _ bun.BeforeAppendModelHook = (*User)(nil)

// BeforeAppendModel fills server-assigned columns on insert.
func (u *User) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		if u.Role == "" {
			u.Role = RoleUser
		}
	}
	return nil
}

// Author writes books.
type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a" json:"-" msgpack:"-"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id" msgpack:"id"`
	FullName  string    `bun:"full_name,notnull,type:varchar(255)" json:"full_name" msgpack:"full_name"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at" msgpack:"created_at"`
}

var _ bun.BeforeAppendModelHook = (*Author)(nil)

func (a *Author) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Book belongs to an Author and is removed with it.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:b" json:"-" msgpack:"-"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id" msgpack:"id"`
	AuthorID  int64     `bun:"author_id,notnull" json:"author_id" msgpack:"author_id"`
	Name      string    `bun:"name,notnull,unique,type:varchar(150)" json:"name" msgpack:"name"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at" msgpack:"created_at"`
}

var _ bun.BeforeAppendModelHook = (*Book)(nil)

func (b *Book) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok && b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}

// CreateSchema creates the tables in dependency order. Existing tables are
// left untouched.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().Model((*User)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("model: create users: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Author)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("model: create authors: %w", err)
	}
	_, err := db.NewCreateTable().
		Model((*Book)(nil)).
		IfNotExists().
		ForeignKey("(?) REFERENCES ? (?) ON DELETE CASCADE",
			bun.Ident("author_id"), bun.Ident("authors"), bun.Ident("id")).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("model: create books: %w", err)
	}
	return nil
}
