package backend

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	duckdb "github.com/duckdb/duckdb-go/v2"
)

func motherDuckDSN(database, token string) string {
	return "md:" + database + "?motherduck_token=" + url.QueryEscape(token)
}

// OpenMotherDuck is the default RemoteOpener. It creates the database on
// first use, then opens it. database must already satisfy
// ValidateDatabaseName since it is spliced into DDL.
func OpenMotherDuck(ctx context.Context, database, token string) (*sql.DB, error) {
	if err := ValidateDatabaseName(database); err != nil {
		return nil, err
	}

	root, err := openDuckDB(ctx, motherDuckDSN("", token))
	if err != nil {
		return nil, fmt.Errorf("connect to motherduck: %w", err)
	}
	_, err = root.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+database)
	root.Close()
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", database, err)
	}

	db, err := openDuckDB(ctx, motherDuckDSN(database, token))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", database, err)
	}
	return db, nil
}

func openDuckDB(ctx context.Context, dsn string) (*sql.DB, error) {
	connector, err := duckdb.NewConnector(dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("create duckdb connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
