// Package store persists scraped products and reviews in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

//go:embed schema.sql
var Schema string

const (
	insertProductSQL = `INSERT INTO products (name) VALUES (?)`
	insertReviewSQL  = `INSERT INTO reviews (Product_id, User, Date, Message, Sentiment) VALUES (?, ?, ?, ?, ?)`
)

// SQLiteStore writes each product and its reviews in one transaction. A
// database handle is opened per write and closed before it returns.
type SQLiteStore struct {
	path string
}

// NewSQLiteStore returns a store backed by the database file at path.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Path returns the database location.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", models.ErrStorage, s.path, err)
	}
	// One connection keeps the foreign_keys pragma on the handle we use.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable foreign keys: %w", models.ErrStorage, err)
	}
	return db, nil
}

// EnsureSchema creates the products and reviews tables when absent.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	return ensureSchema(ctx, db)
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%w: create schema: %w", models.ErrStorage, err)
	}
	return nil
}

// Write inserts the product, then its reviews referencing the generated
// Product_id, and commits both together. On success the ids are set on pr.
// Every call inserts a new product row, even for a name already stored.
func (s *SQLiteStore) Write(ctx context.Context, pr *models.ProductReviews) (err error) {
	if pr == nil {
		return fmt.Errorf("%w: nothing to write", models.ErrStorage)
	}

	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close: %w", models.ErrStorage, cerr)
		}
	}()

	if err := ensureSchema(ctx, db); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", models.ErrStorage, err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("%w: rollback: %w", models.ErrStorage, rerr))
			}
		}
	}()

	productID, err := insertProduct(ctx, tx, pr.Product.Name)
	if err != nil {
		return err
	}
	reviewIDs, err := insertReviews(ctx, tx, productID, pr.Reviews)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", models.ErrStorage, err)
	}

	pr.Product.ID = productID
	for i := range pr.Reviews {
		pr.Reviews[i].ID = reviewIDs[i]
		pr.Reviews[i].ProductID = productID
	}
	return nil
}

func insertProduct(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	res, err := tx.ExecContext(ctx, insertProductSQL, name)
	if err != nil {
		return 0, fmt.Errorf("%w: insert product %q: %w", models.ErrStorage, name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: product id: %w", models.ErrStorage, err)
	}
	return id, nil
}

func insertReviews(ctx context.Context, tx *sql.Tx, productID int64, reviews []models.Review) ([]int64, error) {
	ids := make([]int64, 0, len(reviews))
	if len(reviews) == 0 {
		return ids, nil
	}

	stmt, err := tx.PrepareContext(ctx, insertReviewSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare review insert: %w", models.ErrStorage, err)
	}
	defer stmt.Close()

	for _, review := range reviews {
		res, err := stmt.ExecContext(ctx, productID, review.User, review.Date, review.Message, nullString(review.Sentiment))
		if err != nil {
			return nil, fmt.Errorf("%w: insert review for product %d: %w", models.ErrStorage, productID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("%w: review id: %w", models.ErrStorage, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Stats reports the number of stored products and reviews.
func (s *SQLiteStore) Stats(ctx context.Context) (products, reviews int, err error) {
	db, err := s.open(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer db.Close()

	if err := ensureSchema(ctx, db); err != nil {
		return 0, 0, err
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&products); err != nil {
		return 0, 0, fmt.Errorf("%w: count products: %w", models.ErrStorage, err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews`).Scan(&reviews); err != nil {
		return 0, 0, fmt.Errorf("%w: count reviews: %w", models.ErrStorage, err)
	}
	return products, reviews, nil
}

// Close is a no-op; handles never outlive a single call.
func (s *SQLiteStore) Close() error {
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
