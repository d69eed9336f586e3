package mailer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/webasthetic/leadflow/internal/model"
)

// FileArchiver writes a JSON copy of every sent message under a date
// directory, one file per lead.
type FileArchiver struct {
	dir string
}

// NewFileArchiver creates a FileArchiver rooted at dir.
func NewFileArchiver(dir string) *FileArchiver {
	return &FileArchiver{dir: dir}
}

type archivedMessage struct {
	LeadID   string    `json:"lead_id"`
	Email    string    `json:"email"`
	LeadDate string    `json:"lead_date"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

func (a *FileArchiver) Archive(_ context.Context, lead model.Lead, msg Message) error {
	dayDir := filepath.Join(a.dir, lead.LeadDate)
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return eris.Wrap(err, "mailer: create archive dir")
	}

	data, err := json.MarshalIndent(archivedMessage{
		LeadID:   lead.ID,
		Email:    lead.Email,
		LeadDate: lead.LeadDate,
		Subject:  msg.Subject,
		Body:     msg.TextBody,
		SentAt:   time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "mailer: marshal archived message")
	}

	path := filepath.Join(dayDir, lead.ID+".json")
	return eris.Wrap(os.WriteFile(path, data, 0o644), "mailer: write archived message")
}
