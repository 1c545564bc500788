// Package backup takes encrypted snapshots of the volunteerd database and
// keeps them in S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"
)

// objectStore is the subset of the S3 client the archiver needs.
type objectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Object is one stored snapshot.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

const keyTimeFormat = "2006-01-02T150405Z"

type Archiver struct {
	client     objectStore
	bucket     string
	prefix     string
	passphrase string
	logger     *slog.Logger
	now        func() time.Time
}

// New returns an Archiver writing to the configured bucket.
func New(cfg S3Config, passphrase string, logger *slog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("backup: bucket and credentials are required")
	}
	if passphrase == "" {
		return nil, errors.New("backup: passphrase is required")
	}

	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return newArchiver(s3.New(opts), cfg.Bucket, cfg.Prefix, passphrase, logger), nil
}

func newArchiver(client objectStore, bucket, prefix, passphrase string, logger *slog.Logger) *Archiver {
	return &Archiver{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		passphrase: passphrase,
		logger:     logger,
		now:        time.Now,
	}
}

// Snapshot writes a consistent copy of db to path. path must not exist.
func Snapshot(ctx context.Context, db *sql.DB, path string) error {
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}
	return nil
}

// Run snapshots db, encrypts the snapshot and uploads it.
func (a *Archiver) Run(ctx context.Context, db *sql.DB) (Object, error) {
	tmp, err := os.MkdirTemp("", "volunteerd-backup-")
	if err != nil {
		return Object{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	snapshot := filepath.Join(tmp, "snapshot.db")
	if err := Snapshot(ctx, db, snapshot); err != nil {
		return Object{}, err
	}
	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return Object{}, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := seal(plaintext, a.passphrase)
	if err != nil {
		return Object{}, err
	}

	now := a.now().UTC()
	obj := Object{
		Key:          fmt.Sprintf("%sbackup-%s.db.enc", a.prefix, now.Format(keyTimeFormat)),
		Size:         int64(len(sealed)),
		LastModified: now,
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(obj.Key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(obj.Size),
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", obj.Key, err)
	}

	a.logger.Info("backup uploaded", "key", obj.Key, "bytes", obj.Size)
	return obj, nil
}

// List returns stored snapshots, newest first.
func (a *Archiver) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	p := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list backups: %w", err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if !strings.HasSuffix(key, ".db.enc") {
				continue
			}
			objects = append(objects, Object{
				Key:          key,
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key > objects[j].Key })
	return objects, nil
}

// Prune deletes snapshots older than retention. The newest snapshot is
// always kept.
func (a *Archiver) Prune(ctx context.Context, retention time.Duration) (int, error) {
	objects, err := a.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := a.now().Add(-retention)

	deleted := 0
	for i, o := range objects {
		if i == 0 || !o.LastModified.Before(cutoff) {
			continue
		}
		if _, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(o.Key),
		}); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", o.Key, err)
		}
		deleted++
	}
	if deleted > 0 {
		a.logger.Info("pruned old backups", "count", deleted)
	}
	return deleted, nil
}

// Restore downloads and decrypts the snapshot at key, checks its integrity
// and writes it to dest. dest must not exist; restore into a fresh path with
// the server stopped, then swap files.
func (a *Archiver) Restore(ctx context.Context, key, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("restore: %s already exists", dest)
	}

	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	plaintext, err := open(sealed, a.passphrase)
	if err != nil {
		return err
	}

	tmp := dest + ".partial"
	if err := os.WriteFile(tmp, plaintext, 0o600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	if err := checkIntegrity(ctx, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move restored db: %w", err)
	}

	a.logger.Info("backup restored", "key", key, "dest", dest)
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
