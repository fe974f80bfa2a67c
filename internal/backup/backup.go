// Package backup snapshots the SQLite database, encrypts it with a
// passphrase and keeps it in S3-compatible storage.
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
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/store"
	_ "modernc.org/sqlite"
)

var (
	ErrDisabled = errors.New("backups are not configured")
	ErrNotFound = errors.New("backup not found")
)

// objectStore is the subset of the S3 API the manager uses.
type objectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

type Config struct {
	S3         S3Config
	Passphrase string
	Interval   time.Duration
	Retention  time.Duration
}

// Enabled reports whether storage credentials and a passphrase are set.
func (c Config) Enabled() bool {
	return c.S3.Bucket != "" && c.S3.AccessKey != "" && c.S3.SecretKey != "" && c.Passphrase != ""
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	status Status

	db      *sql.DB
	records *store.BackupStore
	client  objectStore
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, records *store.BackupStore, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		db:      db,
		records: records,
		logger:  logger,
		status:  Status{State: StateDisabled},
	}
	if cfg.Enabled() {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Start runs a backup and retention pass every Interval until Stop.
func (m *Manager) Start(ctx context.Context) {
	if m.client == nil || m.cfg.Interval <= 0 {
		m.logger.Info("backups disabled")
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.RunNow(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
					continue
				}
				if n, err := m.Cleanup(ctx); err != nil {
					m.logger.Error("backup retention failed", "error", err)
				} else if n > 0 {
					m.logger.Info("expired backups removed", "count", n)
				}
			}
		}
	}()
	m.logger.Info("backup manager started", "interval", m.cfg.Interval, "retention", m.cfg.Retention)
}

func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if s.LastBackup == nil {
		s.LastBackup = m.status.LastBackup
	}
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) List(limit int) ([]model.Backup, error) {
	return m.records.List(limit)
}

// RunNow snapshots the database with VACUUM INTO, encrypts the snapshot and
// uploads it. The record tracks progress and any failure.
func (m *Manager) RunNow(ctx context.Context) (*model.Backup, error) {
	if m.client == nil {
		return nil, ErrDisabled
	}
	m.setStatus(Status{State: StateRunning})

	now := time.Now().UTC()
	filename := fmt.Sprintf("remind-%s.db.enc", now.Format("20060102T150405Z"))
	record, err := m.records.Create(filename, "backups/"+filename)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	size, err := m.upload(ctx, record)
	if err != nil {
		if uerr := m.records.UpdateStatus(record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("mark backup failed", "id", record.ID, "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}
	if err := m.records.UpdateCompleted(record.ID, size); err != nil {
		return nil, err
	}
	m.setStatus(Status{State: StateIdle, LastBackup: &now})
	m.logger.Info("backup completed", "id", record.ID, "key", record.S3Key, "size", size)
	return m.records.GetByID(record.ID)
}

func (m *Manager) upload(ctx context.Context, record *model.Backup) (int64, error) {
	dir, err := os.MkdirTemp("", "remind-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return 0, fmt.Errorf("snapshot database: %w", err)
	}
	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := Seal(plaintext, m.cfg.Passphrase)
	if err != nil {
		return 0, err
	}

	if err := m.records.UpdateStatus(record.ID, model.BackupStatusUploading, ""); err != nil {
		return 0, err
	}
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(record.S3Key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload backup: %w", err)
	}
	return int64(len(sealed)), nil
}

// Restore downloads and decrypts backup id, checks its integrity and writes
// it to dst. The live database is never touched; swapping files is left to
// the operator while the server is stopped.
func (m *Manager) Restore(ctx context.Context, id int64, dst string) error {
	if m.client == nil {
		return ErrDisabled
	}
	record, err := m.records.GetByID(id)
	if err != nil {
		return err
	}
	if record == nil || record.Status != model.BackupStatusCompleted {
		return ErrNotFound
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(record.S3Key),
	})
	if err != nil {
		return fmt.Errorf("download backup: %w", err)
	}
	defer out.Body.Close()
	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	plaintext, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return err
	}

	tmp := dst + ".restore"
	if err := os.WriteFile(tmp, plaintext, 0o600); err != nil {
		return fmt.Errorf("write restored database: %w", err)
	}
	if err := integrityCheck(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("move restored database: %w", err)
	}
	m.logger.Info("backup restored", "id", id, "path", dst)
	return nil
}

func integrityCheck(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored database: %w", err)
	}
	defer db.Close()
	var result string
	if err := db.QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Cleanup removes backups older than the retention period, both the record
// and the stored object. It returns how many were removed.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	if m.client == nil || m.cfg.Retention <= 0 {
		return 0, nil
	}
	keys, err := m.records.DeleteOlderThan(time.Now().Add(-m.cfg.Retention))
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete expired backup object", "key", key, "error", err)
		}
	}
	return len(keys), nil
}
