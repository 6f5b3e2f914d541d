package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/churchdesk/internal/api"
	"github.com/kalambet/churchdesk/internal/config"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			if resp == "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// use routes command-level tests to ts and restores the real client factory.
func (ts *testServer) use(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

var ctx = context.Background()

func TestFormsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /admin/forms": `[{"id":"f1","titulo":"Retiro","descricao":"","criado_em":"01/03/2025 09:00:00","ativo":true,"num_campos":3,"respostas":7,"link":"http://x/?id=f1"}]`,
	})

	resp, err := ts.client().get(ctx, "/admin/forms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var list []api.FormSummary
	if err := decodeJSON(resp, &list); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(list) != 1 {
		t.Fatalf("expected 1 form, got %d", len(list))
	}
	if list[0].Title != "Retiro" || list[0].Fields != 3 || list[0].Responses != 7 || !list[0].Active {
		t.Errorf("unexpected summary: %+v", list[0])
	}
	if got := list[0].CreatedAt.String(); got != "01/03/2025 09:00:00" {
		t.Errorf("created = %q, want 01/03/2025 09:00:00", got)
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", ts.requests[0].Auth)
	}
}

func TestFormsListCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /admin/forms": `[]`,
	})
	ts.use(t)

	if err := execute(t, "forms", "list"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/admin/forms" {
		t.Errorf("requests = %+v, want one GET /admin/forms", ts.requests)
	}
}

func TestFormsImportCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /admin/forms": `{"id":"f1","link":"http://x/?id=f1"}`,
	})
	ts.use(t)

	path := filepath.Join(t.TempDir(), "retiro.yaml")
	def := "title: Retiro\nfields:\n  - kind: texto\n    label: Nome\n    required: true\n"
	if err := os.WriteFile(path, []byte(def), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "forms", "import", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.ContentType != "application/yaml" {
		t.Errorf("content type = %q, want application/yaml", r.ContentType)
	}
	if r.Body != def {
		t.Errorf("body = %q, want the definition unchanged", r.Body)
	}
}

func TestFormsImportCommand_InvalidDefinition(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.use(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	def := "title: Retiro\nfields:\n  - kind: assinatura\n    label: Nome\n"
	if err := os.WriteFile(path, []byte(def), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := execute(t, "forms", "import", path); err == nil {
		t.Fatal("expected error for unknown field kind")
	}
	if len(ts.requests) != 0 {
		t.Errorf("invalid definition reached the server: %+v", ts.requests)
	}
}

func TestFormsDeleteCommand_RequiresConfirm(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /admin/forms/f1": "",
	})
	ts.use(t)

	if err := execute(t, "forms", "delete", "f1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 0 {
		t.Fatalf("delete without --confirm sent %d requests", len(ts.requests))
	}

	t.Cleanup(func() { formsDeleteCmd.Flags().Set("confirm", "false") })
	if err := execute(t, "forms", "delete", "f1", "--confirm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Method != http.MethodDelete {
		t.Errorf("requests = %+v, want one DELETE", ts.requests)
	}
}

func TestFormsDeactivateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /admin/forms/f1/deactivate": "",
	})
	ts.use(t)

	if err := execute(t, "forms", "deactivate", "f1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/admin/forms/f1/deactivate" {
		t.Errorf("requests = %+v, want POST /admin/forms/f1/deactivate", ts.requests)
	}
}

func TestResponsesExportCommand(t *testing.T) {
	csv := "Enviado em\tNome\n01/03/2025 09:00:00\tAna\n"
	ts := newTestServer(t, map[string]string{
		"GET /admin/forms/f1/export": csv,
	})
	ts.use(t)

	out := filepath.Join(t.TempDir(), "respostas.tsv")
	t.Cleanup(func() {
		responsesExportCmd.Flags().Set("format", "csv")
		responsesExportCmd.Flags().Set("output", "")
	})
	if err := execute(t, "responses", "export", "f1", "--format", "tsv", "--output", out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := ts.requests[0].Path; got != "/admin/forms/f1/export?format=tsv" {
		t.Errorf("path = %q, want /admin/forms/f1/export?format=tsv", got)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != csv {
		t.Errorf("export file = %q, want %q", data, csv)
	}
}

func TestMissingArgs(t *testing.T) {
	err := execute(t, "forms", "show")
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "accepts 1 arg") {
		t.Errorf("error = %q, want it to mention the argument count", err.Error())
	}
}

func TestClientStopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ValidationProblems(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"message":"invalid submission","type":"validation_error","problems":["Nome is required","Idade must be a number"]}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}
	resp, err := client.post(ctx, "/admin/forms", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	for _, want := range []string{"422", "invalid submission", "- Nome is required", "- Idade must be a number"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want it to contain %q", err.Error(), want)
		}
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}
	resp, err := client.get(ctx, "/admin/forms")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	err = expectNoContent(resp)
	if err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("error = %v, want it to carry the raw body", err)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestPrintTable(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	var buf bytes.Buffer
	printTable(&buf, []string{"ID", "Title"}, [][]string{{"f1", "Retiro"}, {"f2", "Batismo"}})
	out := buf.String()

	for _, want := range []string{"ID", "Title", "f1", "Retiro", "Batismo", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[1m") {
		t.Errorf("table with noColor should not be bold:\n%s", out)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Storage.Backend = "sqlite"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := map[string]bool{}
	for _, k := range keys {
		if (k.Key == "server.port" && k.Value == "4000") || (k.Key == "storage.backend" && k.Value == "sqlite") {
			found[k.Key] = true
		}
	}
	if len(found) != 2 {
		t.Errorf("expected server.port=4000 and storage.backend=sqlite in ShowAll output, found %v", found)
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(t.TempDir())
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removePIDFile")
	}
}
