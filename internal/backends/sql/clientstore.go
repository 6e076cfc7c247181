// Package sql stores clients in a relational table. The CNPJ column is the primary key,
// which is what makes duplicate registration detectable under concurrency.
package sql

import (
	"clientreg/internal/types"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	DriverName = "pgx"

	uniqueViolation = "23505"

	createTableSQL = `CREATE TABLE IF NOT EXISTS clientes_api (
	cnpj       TEXT PRIMARY KEY,
	nome       TEXT NOT NULL,
	secret_enc TEXT NOT NULL
)`
	existsSQL    = `SELECT 1 FROM clientes_api WHERE cnpj = $1`
	insertSQL    = `INSERT INTO clientes_api (cnpj, nome, secret_enc) VALUES ($1, $2, $3)`
	listSQL      = `SELECT cnpj, nome FROM clientes_api ORDER BY nome, cnpj`
	getSQL       = `SELECT cnpj, nome FROM clientes_api WHERE cnpj = $1`
	secretForSQL = `SELECT secret_enc FROM clientes_api WHERE cnpj = $1`
	deleteSQL    = `DELETE FROM clientes_api WHERE cnpj = $1`
	secretsSQL   = `SELECT secret_enc, nome FROM clientes_api`
	clearSQL     = `DELETE FROM clientes_api`
)

type ClientStore struct {
	db *sql.DB
}

func NewClientStore(db *sql.DB) *ClientStore {
	return &ClientStore{db: db}
}

// Open connects to dsn with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (s *ClientStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createTableSQL)
	return err
}

// withConn scopes one pooled connection to fn and releases it on every path.
func (s *ClientStore) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()
	return fn(conn)
}

// inTx runs fn inside a transaction on a scoped connection and commits it.
func (s *ClientStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func (s *ClientStore) Exists(ctx context.Context, cnpj string) (bool, error) {
	var found bool
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var one int
		err := conn.QueryRowContext(ctx, existsSQL, cnpj).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

func (s *ClientStore) Insert(ctx context.Context, client types.Client) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertSQL, client.CNPJ, client.Nome, client.SecretEncrypted)
		return err
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return types.ErrConflict
	}
	return err
}

func (s *ClientStore) List(ctx context.Context) ([]types.ClientView, error) {
	var views []types.ClientView
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, listSQL)
		if err != nil {
			return err
		}
		defer func() {
			_ = rows.Close()
		}()
		views = make([]types.ClientView, 0)
		for rows.Next() {
			var v types.ClientView
			if err := rows.Scan(&v.CNPJ, &v.Nome); err != nil {
				return err
			}
			views = append(views, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

func (s *ClientStore) Get(ctx context.Context, cnpj string) (types.ClientView, error) {
	var v types.ClientView
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, getSQL, cnpj).Scan(&v.CNPJ, &v.Nome)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return types.ClientView{}, types.ErrNotFound
	}
	if err != nil {
		return types.ClientView{}, err
	}
	return v, nil
}

func (s *ClientStore) SecretFor(ctx context.Context, cnpj string) (string, error) {
	var enc string
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, secretForSQL, cnpj).Scan(&enc)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.ErrNotFound
	}
	return enc, err
}

func (s *ClientStore) Delete(ctx context.Context, cnpj string) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, deleteSQL, cnpj)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *ClientStore) Secrets(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, secretsSQL)
		if err != nil {
			return err
		}
		defer func() {
			_ = rows.Close()
		}()
		for rows.Next() {
			var enc, nome string
			if err := rows.Scan(&enc, &nome); err != nil {
				return err
			}
			out[enc] = nome
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ClientStore) ClearAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, clearSQL)
	return err
}
