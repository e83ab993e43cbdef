package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/geosampa/censo-cli/internal/ibge"
)

// dbPool creates a pgxpool.Pool from cfg.Store.DatabaseURL and verifies the
// connection.
func dbPool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := cfg.Validate("db"); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "db: create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "db: ping database")
	}

	fmt.Println("Connected to database")
	return pool, nil
}

// ibgeClient builds the Agregados API client from configuration.
func ibgeClient() *ibge.Client {
	return ibge.NewClient(ibge.Options{
		BaseURL:     cfg.IBGE.BaseURL,
		Timeout:     time.Duration(cfg.IBGE.TimeoutSecs) * time.Second,
		MaxRetries:  cfg.IBGE.MaxRetries,
		ChunkSize:   cfg.IBGE.ChunkSize,
		Concurrency: cfg.IBGE.Concurrency,
		RateLimit:   rate.Limit(cfg.IBGE.RequestsPerSec),
	})
}
