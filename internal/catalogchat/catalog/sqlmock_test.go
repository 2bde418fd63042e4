package catalog_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/bdobrica/catalogchat/internal/catalogchat/action"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalog"
)

func TestSQLRepository_CountPropagatesDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	boom := errors.New("disk I/O error")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM products WHERE status = 'publish' AND parent_id IS NULL AND price IS NULL")).
		WillReturnError(boom)

	repo := catalog.NewSQLRepository(db)
	_, err = repo.Count(context.Background(), catalog.NoPrice)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLRepository_LowStockPassesThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("stock_quantity <= ?")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	repo := catalog.NewSQLRepository(db, catalog.WithLowStockThreshold(func(context.Context) int { return 7 }))
	n, err := repo.Count(context.Background(), catalog.LowStock)
	if err != nil || n != 2 {
		t.Fatalf("Count: %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLRepository_ListSkipsQueryWhenEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	repo := catalog.NewSQLRepository(db)
	res, err := repo.List(context.Background(), catalog.OutOfStock, 5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 0 || res.Items == nil || len(res.Items) != 0 {
		t.Errorf("empty result: %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLRepository_ApplyRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM products WHERE id = ?")).
		WithArgs(int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(12, "Camiseta"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET price = ?")).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	repo := catalog.NewSQLRepository(db)
	_, err = repo.Apply(context.Background(), action.Proposal{
		Kind: action.KindUpdateProduct, HumanSummary: "precio",
		Target: action.Target{ProductID: 12}, Changes: map[string]any{"price": 10.0},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
