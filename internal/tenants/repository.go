// Package tenants reads tenant identity, credentials and client URLs.
// Tenant management itself lives elsewhere; the pipeline only reads.
package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

// Repository handles tenant reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tenants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const tenantColumns = `id, name, COALESCE(zoom_account_id,''), COALESCE(webhook_secret,''), COALESCE(transcription_key,''),
	COALESCE(summarization_key,''), COALESCE(youtube_refresh_token,''), COALESCE(sheet_id,''), COALESCE(notion_key,''),
	COALESCE(notion_database_id,''), COALESCE(notes_secret,''), notes_enabled, wait_for_notes,
	COALESCE(summary_style,''), COALESCE(language,''), created_at, updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.ZoomAccountID, &t.WebhookSecret, &t.TranscriptionKey,
		&t.SummarizationKey, &t.YouTubeRefreshToken, &t.SheetID, &t.NotionKey,
		&t.NotionDatabaseID, &t.NotesSecret, &t.NotesEnabled, &t.WaitForNotes,
		&t.SummaryStyle, &t.Language, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetByID returns a tenant or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	q := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	t, err := scanTenant(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// GetByZoomAccount returns the tenant owning a Zoom account id, or nil.
func (r *Repository) GetByZoomAccount(ctx context.Context, accountID string) (*models.Tenant, error) {
	if accountID == "" {
		return nil, nil
	}
	q := `SELECT ` + tenantColumns + ` FROM tenants WHERE zoom_account_id = $1`
	t, err := scanTenant(r.pool.QueryRow(ctx, q, accountID))
	if err != nil {
		return nil, fmt.Errorf("get tenant by zoom account: %w", err)
	}
	return t, nil
}

// ClientURLs returns the registered client meeting URLs of a tenant.
func (r *Repository) ClientURLs(ctx context.Context, tenantID uuid.UUID) ([]models.ClientURL, error) {
	const q = `SELECT tenant_id, client_name, url FROM client_urls WHERE tenant_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list client urls: %w", err)
	}
	defer rows.Close()
	var list []models.ClientURL
	for rows.Next() {
		var c models.ClientURL
		if err := rows.Scan(&c.TenantID, &c.ClientName, &c.URL); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
