package mailer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webasthetic/leadflow/internal/model"
)

func TestFileArchiver_WritesOneFilePerLead(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	lead := model.Lead{ID: "lead-1", Email: "jane@acme.com", LeadDate: "2026-09-01"}
	msg := Message{To: "jane@acme.com", Subject: "Quick question", TextBody: "Hi Jane,\n\nWorth a chat?"}

	require.NoError(t, NewFileArchiver(dir).Archive(context.Background(), lead, msg))

	data, err := os.ReadFile(filepath.Join(dir, "2026-09-01", "lead-1.json"))
	require.NoError(t, err)

	var archived struct {
		LeadID  string `json:"lead_id"`
		Email   string `json:"email"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	require.NoError(t, json.Unmarshal(data, &archived))
	assert.Equal(t, "lead-1", archived.LeadID)
	assert.Equal(t, "jane@acme.com", archived.Email)
	assert.Equal(t, "Quick question", archived.Subject)
	assert.Equal(t, msg.TextBody, archived.Body)
}

func TestFileArchiver_Rearchive(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	lead := model.Lead{ID: "lead-1", Email: "jane@acme.com", LeadDate: "2026-09-01"}
	a := NewFileArchiver(dir)

	require.NoError(t, a.Archive(context.Background(), lead, Message{Subject: "first"}))
	require.NoError(t, a.Archive(context.Background(), lead, Message{Subject: "second"}))

	data, err := os.ReadFile(filepath.Join(dir, "2026-09-01", "lead-1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "second")
}
