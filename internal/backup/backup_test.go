package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/remind/internal/database"
	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/store"
)

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectStore) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjectStore) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

var testConfig = Config{
	S3:         S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s", Region: "us-east-1"},
	Passphrase: "correct horse",
	Retention:  time.Millisecond,
}

func setupManager(t *testing.T) (*Manager, *fakeObjectStore, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager(testConfig, db, store.NewBackupStore(db), slog.New(slog.NewTextHandler(io.Discard, nil)))
	fake := newFakeObjectStore()
	m.client = fake
	return m, fake, db
}

func TestManagerDisabledWithoutConfig(t *testing.T) {
	m := NewManager(Config{S3: S3Config{Bucket: "b", AccessKey: "k", SecretKey: "s"}}, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want disabled without passphrase", m.Status().State)
	}
	if _, err := m.RunNow(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("RunNow err = %v, want ErrDisabled", err)
	}
}

func TestRunNowUploadsEncryptedSnapshot(t *testing.T) {
	m, fake, _ := setupManager(t)

	rec, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}
	if rec.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want completed", rec.Status)
	}
	data, ok := fake.objects[rec.S3Key]
	if !ok {
		t.Fatalf("object %q not uploaded", rec.S3Key)
	}
	if rec.SizeBytes != int64(len(data)) {
		t.Errorf("size = %d, want %d", rec.SizeBytes, len(data))
	}
	if bytes.HasPrefix(data, []byte("SQLite format 3")) {
		t.Error("uploaded object is not encrypted")
	}
	plain, err := Open(data, testConfig.Passphrase)
	if err != nil {
		t.Fatalf("decrypt upload: %v", err)
	}
	if !bytes.HasPrefix(plain, []byte("SQLite format 3")) {
		t.Error("decrypted object is not a SQLite database")
	}
	if st := m.Status(); st.State != StateIdle || st.LastBackup == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestRunNowRecordsFailure(t *testing.T) {
	m, fake, _ := setupManager(t)
	fake.putErr = errors.New("bucket gone")

	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	list, err := m.List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Status != model.BackupStatusFailed {
		t.Fatalf("records = %+v, want one failed", list)
	}
	if m.Status().State != StateError {
		t.Errorf("state = %q, want error", m.Status().State)
	}
}

func TestRestoreWritesVerifiedCopy(t *testing.T) {
	m, _, db := setupManager(t)
	if _, err := db.Exec(`INSERT INTO users (email, name, password_hash) VALUES ('a@example.com', 'A', 'x')`); err != nil {
		t.Fatal(err)
	}
	rec, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(context.Background(), rec.ID, dst); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, err := sql.Open("sqlite", dst)
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()
	var email string
	if err := restored.QueryRow(`SELECT email FROM users`).Scan(&email); err != nil {
		t.Fatalf("query restored db: %v", err)
	}
	if email != "a@example.com" {
		t.Errorf("email = %q", email)
	}
}

func TestRestoreUnknownBackup(t *testing.T) {
	m, _, _ := setupManager(t)
	if err := m.Restore(context.Background(), 42, filepath.Join(t.TempDir(), "x.db")); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	m, fake, _ := setupManager(t)
	rec, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	n, err := m.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, ok := fake.objects[rec.S3Key]; ok {
		t.Error("object still present after cleanup")
	}
}
