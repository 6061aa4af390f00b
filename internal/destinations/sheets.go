package destinations

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
	"github.com/aura-webinar/meeting-pipeline/internal/models"
)

// SheetHeader is the first row written to an empty sheet.
var SheetHeader = []interface{}{
	"Date", "Meeting ID", "Title", "Duration (min)", "Client", "YouTube URL", "Source URL",
	"Summary", "Decisions", "Action items", "Recording ID",
}

// maxCell is the spreadsheet cell character limit.
const maxCell = 50000

// Sheets appends one row per recording to a spreadsheet, using a service account.
type Sheets struct {
	sheetName string
	opts      []option.ClientOption

	once sync.Once
	svc  *sheets.Service
	err  error
}

// NewSheets creates the destination. Without client options it is never configured.
func NewSheets(sheetName string, opts ...option.ClientOption) *Sheets {
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	return &Sheets{sheetName: sheetName, opts: opts}
}

// NewSheetsFromCredentialsFile uses a service account JSON key file; an empty path disables the destination.
func NewSheetsFromCredentialsFile(sheetName, file string) *Sheets {
	if file == "" {
		return NewSheets(sheetName)
	}
	return NewSheets(sheetName, option.WithCredentialsFile(file), option.WithScopes(sheets.SpreadsheetsScope))
}

func (s *Sheets) Name() string { return NameSheets }

func (s *Sheets) Configured(creds credentials.Credentials) bool {
	return len(s.opts) > 0 && creds.SheetsConfigured()
}

func (s *Sheets) service(ctx context.Context) (*sheets.Service, error) {
	s.once.Do(func() {
		s.svc, s.err = sheets.NewService(context.WithoutCancel(ctx), s.opts...)
	})
	return s.svc, s.err
}

// Write appends the recording to the master tab and, for recordings tagged with a client, to that
// client's tab. The ref lists every range written. A client tab failure fails the write; its
// error names the master range that was already appended.
func (s *Sheets) Write(ctx context.Context, creds credentials.Credentials, rec *models.Recording) (string, error) {
	svc, err := s.service(ctx)
	if err != nil {
		return "", fmt.Errorf("create sheets service: %w", err)
	}
	row := Row(rec)
	ref, err := s.appendTo(ctx, svc, creds.SheetID, s.sheetName, row)
	if err != nil {
		return "", err
	}
	if rec.ClientTag == nil {
		return ref, nil
	}
	tab := ClientTab(*rec.ClientTag)
	if tab == "" || tab == s.sheetName {
		return ref, nil
	}
	if err := ensureTab(ctx, svc, creds.SheetID, tab); err != nil {
		return "", fmt.Errorf("client tab %q (master row %s written): %w", tab, ref, err)
	}
	clientRef, err := s.appendTo(ctx, svc, creds.SheetID, tab, row)
	if err != nil {
		return "", fmt.Errorf("client tab %q (master row %s written): %w", tab, ref, err)
	}
	return ref + "; " + clientRef, nil
}

// appendTo writes the header to an empty tab, then appends row. Values are sent RAW: a meeting
// title starting with "=" stays text.
func (s *Sheets) appendTo(ctx context.Context, svc *sheets.Service, sheetID, tab string, row []interface{}) (string, error) {
	if err := ensureHeader(ctx, svc, sheetID, tab); err != nil {
		return "", err
	}
	resp, err := svc.Spreadsheets.Values.Append(sheetID, a1(tab, "A1"),
		&sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append row to %s: %w", tab, err)
	}
	if resp.Updates != nil {
		return resp.Updates.UpdatedRange, nil
	}
	return "", nil
}

func ensureHeader(ctx context.Context, svc *sheets.Service, sheetID, tab string) error {
	got, err := svc.Spreadsheets.Values.Get(sheetID, a1(tab, "A1:A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", tab, err)
	}
	if len(got.Values) > 0 && len(got.Values[0]) > 0 && fmt.Sprint(got.Values[0][0]) != "" {
		return nil
	}
	_, err = svc.Spreadsheets.Values.Update(sheetID, a1(tab, "A1"),
		&sheets.ValueRange{Values: [][]interface{}{SheetHeader}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write header of %s: %w", tab, err)
	}
	return nil
}

// ensureTab adds the tab to the spreadsheet unless a tab with that title exists.
func ensureTab(ctx context.Context, svc *sheets.Service, sheetID, tab string) error {
	doc, err := svc.Spreadsheets.Get(sheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return nil
		}
	}
	_, err = svc.Spreadsheets.BatchUpdate(sheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: tab}}}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add tab: %w", err)
	}
	return nil
}

// maxTabTitle is the longest tab title the Sheets API accepts.
const maxTabTitle = 100

// ClientTab turns a client tag into a tab title: characters the API rejects become spaces and
// the result is trimmed to maxTabTitle runes.
func ClientTab(tag string) string {
	title := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]*?/\:`, r) {
			return ' '
		}
		return r
	}, tag)
	title = strings.Join(strings.Fields(title), " ")
	if r := []rune(title); len(r) > maxTabTitle {
		title = strings.TrimSpace(string(r[:maxTabTitle]))
	}
	return title
}

// a1 builds an A1 range on tab, quoting the title so names with spaces or quotes resolve.
func a1(tab, cells string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'!" + cells
}

// Row renders a recording as one spreadsheet row, aligned with SheetHeader.
func Row(rec *models.Recording) []interface{} {
	c := contentOf(rec)
	duration := ""
	if rec.DurationSeconds != nil {
		duration = fmt.Sprint((*rec.DurationSeconds + 59) / 60)
	}
	return []interface{}{
		rec.StartTime.Format("2006-01-02 15:04"),
		rec.MeetingNumber,
		rec.Title,
		duration,
		deref(rec.ClientTag),
		deref(rec.YouTubeURL),
		rec.SourceURL,
		cell(c.Summary),
		cell(bullets(c.Decisions)),
		cell(bullets(c.ActionItems)),
		rec.ID.String(),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func bullets(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}

func cell(s string) string {
	r := []rune(s)
	if len(r) <= maxCell {
		return s
	}
	return string(r[:maxCell])
}
