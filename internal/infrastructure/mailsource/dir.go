package mailsource

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailledger/internal/domain/ingest"
	"mailledger/internal/infrastructure/emailparse"
	"mailledger/internal/shared/logger"
)

// Dir reads messages from a directory tree. Files ending in .eml are
// read anywhere; Maildir cur/ and new/ entries are read regardless of
// name.
type Dir struct {
	root string
	log  zerolog.Logger
}

var _ ingest.Source = (*Dir)(nil)

// NewDir creates a source rooted at root
func NewDir(root string) *Dir {
	return &Dir{root: root, log: logger.Nop()}
}

// WithLogger returns the source with structured logging enabled
func (d *Dir) WithLogger(log zerolog.Logger) *Dir {
	d.log = log.With().Str("component", "mailsource").Logger()
	return d
}

// Fetch returns messages received at or after since, oldest first. The
// received time is the Date header, or the file's modification time when
// that is missing or unparseable. Files whose headers cannot be read are
// skipped with a warning.
func (d *Dir) Fetch(ctx context.Context, since *time.Time) ([]ingest.Message, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to open mail directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mail source %s is not a directory", d.root)
	}

	var msgs []ingest.Message
	err = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !isMessageFile(path) {
			return nil
		}

		msg, err := d.read(path)
		if err != nil {
			d.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable message")
			return nil
		}
		if since != nil && msg.ReceivedAt.Before(*since) {
			return nil
		}
		msgs = append(msgs, *msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mail directory: %w", err)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].ReceivedAt.Equal(msgs[j].ReceivedAt) {
			return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
		}
		return msgs[i].UID < msgs[j].UID
	})

	d.log.Debug().Int("count", len(msgs)).Str("root", d.root).Msg("mail directory scanned")
	return msgs, nil
}

func isMessageFile(path string) bool {
	if strings.EqualFold(filepath.Ext(path), ".eml") {
		return true
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	parent := filepath.Base(filepath.Dir(path))
	return parent == "cur" || parent == "new"
}

func (d *Dir) read(path string) (*ingest.Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}

	uid, err := filepath.Rel(d.root, path)
	if err != nil {
		uid = path
	}

	msg := &ingest.Message{
		UID:         filepath.ToSlash(uid),
		Subject:     emailparse.DecodeHeader(parsed.Header.Get("Subject")),
		FromAddress: emailparse.DecodeHeader(parsed.Header.Get("From")),
		Raw:         raw,
	}
	if id := strings.TrimSpace(parsed.Header.Get("Message-ID")); id != "" {
		msg.MessageID = &id
	}

	if t, err := parsed.Header.Date(); err == nil {
		msg.ReceivedAt = t.UTC()
	} else {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		msg.ReceivedAt = info.ModTime().UTC()
	}
	return msg, nil
}
