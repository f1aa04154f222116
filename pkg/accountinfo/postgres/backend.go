package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	gomigratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // initialises postgres
	"github.com/rs/zerolog/log"
	"github.com/terrycain/backblaze-b2-storage/pkg/e"
	"github.com/terrycain/backblaze-b2-storage/pkg/s"
)

//go:embed migrations/*.sql
var fs embed.FS

type Backend struct {
	db *sql.DB
}

func NewPostgresBackend(connectionString string) (*Backend, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return &Backend{}, err
	}

	backend := Backend{
		db: db,
	}

	if err = backend.Migrate(); err != nil {
		return &Backend{}, err
	}

	return &backend, nil
}

func (b *Backend) Type() string { return "postgres" }

func (b *Backend) Migrate() error {
	driver, err := gomigratepostgres.WithInstance(b.db, &gomigratepostgres.Config{})
	if err != nil {
		return err
	}

	d, err := iofs.New(fs, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", d, "postgres", driver)
	if err != nil {
		return err
	}

	log.Info().Msg("Starting account info migrations")
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Info().Msg("Finished account info migrations")

	return nil
}

func (b *Backend) Get(ctx context.Context) (s.AccountInfo, error) {
	r := s.AccountInfo{}
	var allowed string

	err := b.db.QueryRowContext(ctx, GetAccountInfo).Scan(&r.Realm, &r.ApplicationKeyID, &r.AccountID, &r.AuthToken, &r.APIURL, &r.DownloadURL, &r.S3APIURL, &r.RecommendedPartSize, &r.AbsoluteMinimumPartSize, &allowed)
	if errors.Is(err, sql.ErrNoRows) {
		return s.AccountInfo{}, e.ErrMissingAccountData
	} else if err != nil {
		return s.AccountInfo{}, err
	}

	if err = json.Unmarshal([]byte(allowed), &r.Allowed); err != nil {
		return s.AccountInfo{}, err
	}
	return r, nil
}

func (b *Backend) Set(ctx context.Context, info s.AccountInfo) error {
	allowed, err := json.Marshal(info.Allowed)
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx, UpsertAccountInfo, info.Realm, info.ApplicationKeyID, info.AccountID, info.AuthToken, info.APIURL, info.DownloadURL, info.S3APIURL, info.RecommendedPartSize, info.AbsoluteMinimumPartSize, string(allowed))
	return err
}

func (b *Backend) Clear(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, ClearAccountInfo); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err = tx.ExecContext(ctx, ClearBuckets); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (b *Backend) BucketID(ctx context.Context, name string) (string, error) {
	var id string
	err := b.db.QueryRowContext(ctx, GetBucketID, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug().Str("bucket", name).Msg("Bucket id cache miss")
		return "", e.ErrNotFound
	}
	return id, err
}

func (b *Backend) SaveBucket(ctx context.Context, bucket s.Bucket) error {
	_, err := b.db.ExecContext(ctx, UpsertBucket, bucket.Name, bucket.ID)
	return err
}

func (b *Backend) RemoveBucket(ctx context.Context, name string) error {
	result, err := b.db.ExecContext(ctx, DeleteBucket, name)
	if err != nil {
		return err
	}
	rowsAffected, _ := result.RowsAffected()
	log.Debug().Int64("rows", rowsAffected).Msg("Rows affected")

	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}
