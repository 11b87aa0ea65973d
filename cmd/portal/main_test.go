package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/greg-hellings/portal/pkg/backend"
	"github.com/greg-hellings/portal/pkg/config"
	"github.com/greg-hellings/portal/pkg/export"
	"github.com/greg-hellings/portal/pkg/ingest"
	"github.com/greg-hellings/portal/pkg/repository"
)

const assessBody = `{"repoDetails":[
  {"repoUrl":"https://github.com/org/shop","responseDetails":{
    "checkout":{"serviceName":"checkout","language":"Java","enabled":true,"cloudInfrastructure":[],"repoStructure":["src/","pom.xml"]},
    "billing":{"serviceName":"billing","language":"Go"}
  }}
]}`

// fakeService mimics the assessment service.
type fakeService struct {
	mu     sync.Mutex
	clones []string
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+backend.ClonePath, func(w http.ResponseWriter, r *http.Request) {
		repo := r.URL.Query().Get("repoUrl")
		f.mu.Lock()
		f.clones = append(f.clones, repo)
		f.mu.Unlock()
		if strings.HasSuffix(repo, "/broken") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST "+backend.AssessmentPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(assessBody))
	})
	return mux
}

func setup(t *testing.T) (*fakeService, string) {
	t.Helper()
	fs := &fakeService{}
	ts := httptest.NewServer(fs.handler())
	t.Cleanup(ts.Close)
	t.Setenv(config.EnvBackendURL, ts.URL)
	t.Setenv(config.EnvExportLayout, "")

	csv := filepath.Join(t.TempDir(), "repos.csv")
	content := "repo_url,access_token\nhttps://github.com/org/shop,t1\n,t2\nhttps://github.com/org/broken,t3\n"
	if err := os.WriteFile(csv, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write CSV: %v", err)
	}
	return fs, csv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "Portal version: dev") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSampleCmd(t *testing.T) {
	out, err := execute(t, "sample")
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}
	if out != "repo_url,access_token\n,\n" {
		t.Errorf("unexpected sample %q", out)
	}

	path := filepath.Join(t.TempDir(), ingest.SampleFilename)
	if _, err := execute(t, "sample", "-o", path); err != nil {
		t.Fatalf("sample -o failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("sample file missing: %v", err)
	}
	if string(data) != string(ingest.SampleCSV()) {
		t.Errorf("unexpected sample file %q", data)
	}
}

func TestImportCmd(t *testing.T) {
	fs, csv := setup(t)

	out, err := execute(t, "import", csv, "--no-color")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if len(fs.clones) != 2 {
		t.Errorf("expected 2 clone requests, got %v", fs.clones)
	}
	for _, want := range []string{
		"Processing the CSV file...",
		"Successfully cloned: https://github.com/org/shop",
		"Failed to clone: https://github.com/org/broken",
		"File repos.csv imported successfully!",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q\nFull output:\n%s", want, out)
		}
	}
}

func TestImportCmd_MissingFile(t *testing.T) {
	setup(t)
	if _, err := execute(t, "import", filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("expected error for missing CSV")
	}
}

func TestAssessCmd_Console(t *testing.T) {
	_, csv := setup(t)

	out, err := execute(t, "assess", csv, "--no-color")
	if err != nil {
		t.Fatalf("assess failed: %v", err)
	}
	for _, want := range []string{"Language", "Java", "Yes", "2 path(s)", "Folder structure:", "pom.xml"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q\nFull output:\n%s", want, out)
		}
	}

	out, err = execute(t, "assess", csv, "--no-color", "--service", "billing")
	if err != nil {
		t.Fatalf("assess --service failed: %v", err)
	}
	if !strings.Contains(out, "Go") || strings.Contains(out, "Java") {
		t.Errorf("expected billing table\nFull output:\n%s", out)
	}
}

func TestAssessCmd_Export(t *testing.T) {
	_, csv := setup(t)
	xlsx := filepath.Join(t.TempDir(), "out", export.Filename)

	if _, err := execute(t, "assess", csv, "--out", xlsx, "--layout", "basic"); err != nil {
		t.Fatalf("assess --out failed: %v", err)
	}

	f, err := excelize.OpenFile(xlsx)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()
	if sheets := f.GetSheetList(); len(sheets) != 1 {
		t.Errorf("expected basic layout, got sheets %v", sheets)
	}
	v, _ := f.GetCellValue(export.SheetAssessment, "B3")
	if v != "checkout" {
		t.Errorf("expected first service in B3, got %q", v)
	}
}

func TestAssessCmd_JSON(t *testing.T) {
	_, csv := setup(t)
	out, err := execute(t, "assess", csv, "--format", "json")
	if err != nil {
		t.Fatalf("assess --format json failed: %v", err)
	}
	if !strings.Contains(out, `"repoDetails"`) || !strings.Contains(out, `"billing"`) {
		t.Errorf("unexpected JSON output:\n%s", out)
	}
}

func TestAssessCmd_Errors(t *testing.T) {
	_, csv := setup(t)
	tests := [][]string{
		{"assess", csv, "--repo", "https://github.com/org/other"},
		{"assess", csv, "--service", "missing"},
		{"assess", csv, "--format", "yaml"},
		{"assess", csv, "--out", filepath.Join(t.TempDir(), "x.xlsx"), "--layout", "pdf"},
	}
	for _, args := range tests {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("expected error for %v", args[2:])
		}
	}
}

type fakeResolver struct{}

func (fakeResolver) Lookup(_ context.Context, rawURL, _ string) (repository.Ref, *repository.Info, error) {
	ref := repository.Ref{Provider: repository.ProviderGitHub}
	if strings.HasSuffix(rawURL, "/broken") {
		return ref, nil, errors.New("404 Not Found")
	}
	return ref, &repository.Info{FullName: "org/shop", DefaultBranch: "main"}, nil
}

func TestRunVerify(t *testing.T) {
	_, csv := setup(t)
	results, err := runVerify(context.Background(), fakeResolver{}, csv)
	if err != nil {
		t.Fatalf("runVerify failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].OK() || results[1].OK() {
		t.Errorf("unexpected results %+v", results)
	}

	var buf bytes.Buffer
	if err := renderVerifyJSON(results, &buf); err != nil {
		t.Fatalf("renderVerifyJSON failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"defaultBranch": "main"`) || !strings.Contains(buf.String(), `"error": "404 Not Found"`) {
		t.Errorf("unexpected JSON:\n%s", buf.String())
	}
}

func TestVerifyCmd_UnknownProvider(t *testing.T) {
	setup(t)
	csv := filepath.Join(t.TempDir(), "repos.csv")
	if err := os.WriteFile(csv, []byte("repo_url,access_token\nhttps://bitbucket.org/x/y,t\n"), 0o644); err != nil {
		t.Fatalf("Failed to write CSV: %v", err)
	}

	out, err := execute(t, "verify", csv, "--no-color")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !strings.Contains(out, "Repositories verified: 0/1 successful") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, err := execute(t, "verify", csv, "--fail-on-error"); err == nil {
		t.Error("expected --fail-on-error to fail")
	}
}
