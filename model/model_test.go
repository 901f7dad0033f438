package model_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-crudcore/model"
	"github.com/goliatone/go-crudcore/pkg/testsupport"
)

func TestUser_RequireRole(t *testing.T) {
	tests := []struct {
		name    string
		user    *model.User
		role    string
		wantErr bool
	}{
		{"admin as admin", &model.User{Role: model.RoleAdmin}, model.RoleAdmin, false},
		{"user as user", &model.User{Role: model.RoleUser}, model.RoleUser, false},
		{"user as admin", &model.User{Role: model.RoleUser}, model.RoleAdmin, true},
		{"empty role", &model.User{}, model.RoleUser, true},
		{"nil user", nil, model.RoleUser, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.RequireRole(tt.role)
			if tt.wantErr {
				if !errors.Is(err, model.ErrForbidden) {
					t.Errorf("Expected ErrForbidden, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestCreateSchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenSQLite(t)

	for i := range 2 {
		if err := model.CreateSchema(ctx, db); err != nil {
			t.Fatalf("CreateSchema() run %d failed: %v", i+1, err)
		}
	}

	for _, table := range []string{"users", "authors", "books"} {
		var n int
		err := db.NewSelect().
			ColumnExpr("count(*)").
			TableExpr("sqlite_master").
			Where("type = 'table' AND name = ?", table).
			Scan(ctx, &n)
		if err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestInsertHooksFillDefaults(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenSQLite(t)
	if err := model.CreateSchema(ctx, db); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	before := time.Now().Add(-time.Second)

	u := &model.User{Username: "ada", Email: "ada@example.com", PasswordHash: "x"}
	if _, err := db.NewInsert().Model(u).Exec(ctx); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if u.Role != model.RoleUser {
		t.Errorf("Expected default role %q, got %q", model.RoleUser, u.Role)
	}
	if u.CreatedAt.Before(before) {
		t.Errorf("Expected CreatedAt to be set, got %v", u.CreatedAt)
	}

	admin := &model.User{Username: "root", Email: "root@example.com", PasswordHash: "x", Role: model.RoleAdmin}
	if _, err := db.NewInsert().Model(admin).Exec(ctx); err != nil {
		t.Fatalf("insert admin: %v", err)
	}
	if admin.Role != model.RoleAdmin {
		t.Errorf("Explicit role overwritten: %q", admin.Role)
	}

	a := &model.Author{FullName: "Ursula K. Le Guin"}
	if _, err := db.NewInsert().Model(a).Exec(ctx); err != nil {
		t.Fatalf("insert author: %v", err)
	}
	if a.CreatedAt.IsZero() {
		t.Error("Expected author CreatedAt to be set")
	}

	b := &model.Book{AuthorID: a.ID, Name: "The Dispossessed"}
	if _, err := db.NewInsert().Model(b).Exec(ctx); err != nil {
		t.Fatalf("insert book: %v", err)
	}
	if b.CreatedAt.IsZero() {
		t.Error("Expected book CreatedAt to be set")
	}
}

func TestBooks_ForeignKeyEnforced(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenSQLite(t)
	if err := model.CreateSchema(ctx, db); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	orphan := &model.Book{AuthorID: 999, Name: "Nobody's Book"}
	if _, err := db.NewInsert().Model(orphan).Exec(ctx); err == nil {
		t.Error("Expected foreign key violation for unknown author")
	}
}
