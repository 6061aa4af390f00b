package destinations

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

// notionTextLimit is the maximum length of one rich text object.
const notionTextLimit = 2000

// NotionClients returns a Notion client for an integration token.
type NotionClients interface {
	Notion(token string) (*notionapi.Client, error)
}

// Notion creates one page per recording in the tenant's database.
type Notion struct {
	clients NotionClients
	excerpt int
}

// NewNotion creates the destination. excerpt bounds the transcript text placed on the page.
func NewNotion(clients NotionClients, excerpt int) *Notion {
	if excerpt <= 0 {
		excerpt = notionTextLimit
	}
	return &Notion{clients: clients, excerpt: excerpt}
}

func (n *Notion) Name() string { return NameNotion }

func (n *Notion) Configured(creds credentials.Credentials) bool {
	return n.clients != nil && creds.NotionConfigured()
}

func (n *Notion) Write(ctx context.Context, creds credentials.Credentials, rec *models.Recording) (string, error) {
	client, err := n.clients.Notion(creds.NotionKey)
	if err != nil {
		return "", err
	}
	page, err := client.Page.Create(ctx, PageRequest(notionapi.DatabaseID(creds.NotionDatabaseID), rec, n.excerpt))
	if err != nil {
		return "", fmt.Errorf("create notion page: %w", err)
	}
	return page.ID.String(), nil
}

// PageRequest builds the page for a recording: title, date and URL properties, then summary,
// decisions, action items, notes and a transcript excerpt as blocks.
func PageRequest(db notionapi.DatabaseID, rec *models.Recording, excerpt int) *notionapi.PageCreateRequest {
	start := notionapi.Date(rec.StartTime)
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{Title: richText(rec.Title)},
		"Date": notionapi.DateProperty{Date: &notionapi.DateObject{Start: &start}},
	}
	if rec.YouTubeURL != nil {
		props["YouTube URL"] = notionapi.URLProperty{URL: *rec.YouTubeURL}
	}
	if rec.SourceURL != "" {
		props["Recording URL"] = notionapi.URLProperty{URL: rec.SourceURL}
	}

	c := contentOf(rec)
	var blocks []notionapi.Block
	if c.Summary != "" {
		blocks = append(blocks, heading("Summary"))
		blocks = append(blocks, paragraphs(c.Summary)...)
	}
	if len(c.Decisions) > 0 {
		blocks = append(blocks, heading("Decisions"))
		blocks = append(blocks, bulletBlocks(c.Decisions)...)
	}
	if len(c.ActionItems) > 0 {
		blocks = append(blocks, heading("Action items"))
		blocks = append(blocks, bulletBlocks(c.ActionItems)...)
	}
	if c.Notes != "" {
		blocks = append(blocks, heading("Notes"))
		blocks = append(blocks, paragraphs(c.Notes)...)
	}
	if rec.HasTranscript() {
		blocks = append(blocks, heading("Transcript"))
		blocks = append(blocks, paragraphs(excerptOf(*rec.Transcript, excerpt))...)
	}
	return &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: db},
		Properties: props,
		Children:   blocks,
	}
}

func excerptOf(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "…"
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

func heading(s string) notionapi.Block {
	return &notionapi.Heading2Block{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading2},
		Heading2:   notionapi.Heading{RichText: richText(s)},
	}
}

// paragraphs splits text into paragraph blocks within the rich text limit.
func paragraphs(text string) []notionapi.Block {
	var out []notionapi.Block
	for _, part := range splitRunes(strings.TrimSpace(text), notionTextLimit) {
		out = append(out, &notionapi.ParagraphBlock{
			BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
			Paragraph:  notionapi.Paragraph{RichText: richText(part)},
		})
	}
	return out
}

func bulletBlocks(items []string) []notionapi.Block {
	out := make([]notionapi.Block, 0, len(items))
	for _, it := range items {
		out = append(out, &notionapi.BulletedListItemBlock{
			BasicBlock:       notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeBulletedListItem},
			BulletedListItem: notionapi.ListItem{RichText: richText(excerptOf(it, notionTextLimit-1))},
		})
	}
	return out
}

func splitRunes(s string, n int) []string {
	r := []rune(s)
	var out []string
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

