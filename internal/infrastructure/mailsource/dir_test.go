package mailsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func message(id, date, subject string) string {
	s := "From: DBS <alerts@dbs.com>\n"
	if id != "" {
		s += "Message-ID: " + id + "\n"
	}
	if date != "" {
		s += "Date: " + date + "\n"
	}
	return s + "Subject: " + subject + "\n\nSGD 1.00\n"
}

func TestFetch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.eml"), message("<b@dbs>", "Wed, 04 Feb 2026 10:00:00 +0000", "second"))
	writeFile(t, filepath.Join(root, "nested", "a.EML"), message("<a@dbs>", "Tue, 03 Feb 2026 10:00:00 +0000", "=?UTF-8?Q?first_=E2=9C=93?="))
	writeFile(t, filepath.Join(root, "Maildir", "cur", "1700000000.M1P1.host:2,S"), message("", "Thu, 05 Feb 2026 10:00:00 +0000", "third"))
	writeFile(t, filepath.Join(root, "notes.txt"), "not a message")
	writeFile(t, filepath.Join(root, "broken.eml"), "no header separator")

	msgs, err := NewDir(root).Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}

	if msgs[0].Subject != "first ✓" {
		t.Errorf("msgs[0].Subject = %q, want decoded subject", msgs[0].Subject)
	}
	if msgs[0].UID != "nested/a.EML" {
		t.Errorf("msgs[0].UID = %q", msgs[0].UID)
	}
	if msgs[0].MessageID == nil || *msgs[0].MessageID != "<a@dbs>" {
		t.Errorf("msgs[0].MessageID = %v", msgs[0].MessageID)
	}
	if msgs[0].FromAddress != "DBS <alerts@dbs.com>" {
		t.Errorf("msgs[0].FromAddress = %q", msgs[0].FromAddress)
	}
	if len(msgs[0].Raw) == 0 {
		t.Error("msgs[0].Raw should carry the file bytes")
	}
	if msgs[1].Subject != "second" || msgs[2].Subject != "third" {
		t.Errorf("order = %q, %q", msgs[1].Subject, msgs[2].Subject)
	}
	if msgs[2].MessageID != nil {
		t.Errorf("msgs[2].MessageID = %v, want nil", *msgs[2].MessageID)
	}
}

func TestFetch_Since(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "old.eml"), message("<old@x>", "Mon, 02 Feb 2026 10:00:00 +0000", "old"))
	writeFile(t, filepath.Join(root, "edge.eml"), message("<edge@x>", "Tue, 03 Feb 2026 10:00:00 +0000", "edge"))
	writeFile(t, filepath.Join(root, "new.eml"), message("<new@x>", "Wed, 04 Feb 2026 10:00:00 +0000", "new"))

	since := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	msgs, err := NewDir(root).Fetch(context.Background(), &since)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Subject != "edge" || msgs[1].Subject != "new" {
		t.Errorf("Fetch(since) returned %d messages", len(msgs))
	}
}

func TestFetch_DateFallsBackToModTime(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "nodate.eml")
	writeFile(t, path, message("<n@x>", "", "no date"))

	mtime := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	msgs, err := NewDir(root).Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(msgs) != 1 || !msgs[0].ReceivedAt.Equal(mtime) {
		t.Errorf("ReceivedAt = %v, want %v", msgs[0].ReceivedAt, mtime)
	}
}

func TestFetch_MissingRoot(t *testing.T) {
	_, err := NewDir(filepath.Join(t.TempDir(), "absent")).Fetch(context.Background(), nil)
	if err == nil {
		t.Error("Fetch() expected error for missing directory, got nil")
	}
}

func TestFetch_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.eml"), message("<a@x>", "", "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDir(root).Fetch(ctx, nil); err == nil {
		t.Error("Fetch() expected context error, got nil")
	}
}
