package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greg-hellings/portal/pkg/assessment"
	"github.com/greg-hellings/portal/pkg/backend"
	"github.com/greg-hellings/portal/pkg/export"
	"github.com/greg-hellings/portal/pkg/view"
)

const twoRepos = `{"repoDetails":[
  {"repoUrl":"https://x/a","responseDetails":{
    "svc1":{"serviceName":"svc1","enabled":true,"repoStructure":["src/","README.md"],
            "artifacts":[{"artifactName":"a.jar","artifactPath":"target/a.jar","category":"binary","artifactLocation":"nexus"}]},
    "svc2":{"serviceName":"svc2","language":"Go"}
  }},
  {"repoUrl":"https://x/b","responseDetails":{
    "web":{"serviceName":"web","cloudInfrastructure":[]}
  }}
]}`

type fakeBackend struct {
	mu       sync.Mutex
	clones   []string
	cloneErr map[string]error

	assessCalls int
	assessBody  []byte
	assessSet   assessment.Set
	assessErr   error
	onAssess    func()
}

func (f *fakeBackend) Clone(_ context.Context, repoURL, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clones = append(f.clones, repoURL)
	return f.cloneErr[repoURL]
}

func (f *fakeBackend) Assess(_ context.Context, _ string, content []byte) (assessment.Set, error) {
	f.mu.Lock()
	f.assessCalls++
	f.assessBody = content
	f.mu.Unlock()
	if f.onAssess != nil {
		f.onAssess()
	}
	return f.assessSet, f.assessErr
}

func decodeSet(t *testing.T, body string) assessment.Set {
	t.Helper()
	set, err := assessment.Decode([]byte(body))
	require.NoError(t, err)
	return set
}

func newLoaded(t *testing.T, autoSelect bool) *Controller {
	t.Helper()
	fb := &fakeBackend{assessSet: decodeSet(t, twoRepos)}
	c := New(fb, Options{AutoSelectFirstService: autoSelect})
	c.SelectFile("input.csv", []byte("repo_url,access_token\nhttps://x/a,t\n"))
	require.NoError(t, c.Generate(context.Background()))
	return c
}

func TestImport_NoFileIsNoop(t *testing.T) {
	fb := &fakeBackend{}
	c := New(fb, Options{})

	_, err := c.Import(context.Background())
	assert.ErrorIs(t, err, ErrNoFile)
	assert.Empty(t, fb.clones)
	assert.Empty(t, c.Snapshot().Status)
}

func TestImport_StatusLines(t *testing.T) {
	fb := &fakeBackend{cloneErr: map[string]error{
		"https://x/b": fmt.Errorf("%w: 500", backend.ErrUnexpectedStatus),
		"https://x/c": errors.New("dial tcp: connection refused"),
	}}
	c := New(fb, Options{})
	c.SelectFile("repos.csv", []byte("repo_url,access_token\nhttps://x/a,t1\n,t2\nhttps://x/b,t3\nhttps://x/c,t4\n"))

	sum, err := c.Import(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/a", "https://x/b", "https://x/c"}, fb.clones)
	assert.Equal(t, 1, sum.Skipped)

	want := strings.Join([]string{
		StatusProcessing,
		"Successfully cloned: https://x/a",
		"Failed to clone: https://x/b",
		"Error cloning: https://x/c",
		"File repos.csv imported successfully!",
	}, "\n")
	assert.Equal(t, want, c.Snapshot().Status)
}

func TestImport_ParseFailure(t *testing.T) {
	fb := &fakeBackend{}
	c := New(fb, Options{})
	c.SelectFile("bad.csv", []byte("repo_url,access_token\n\"unterminated,t\n"))

	_, err := c.Import(context.Background())
	require.Error(t, err)
	assert.Empty(t, fb.clones)

	status := c.Snapshot().Status
	assert.True(t, strings.HasPrefix(status, StatusProcessing+"\nFailed to parse bad.csv: "), status)
}

func TestGenerate_NoFile(t *testing.T) {
	fb := &fakeBackend{}
	c := New(fb, Options{})
	assert.ErrorIs(t, c.Generate(context.Background()), ErrNoFile)
	assert.Zero(t, fb.assessCalls)
}

func TestGenerate_Success(t *testing.T) {
	fb := &fakeBackend{assessSet: decodeSet(t, twoRepos)}
	c := New(fb, Options{})
	content := []byte("repo_url,access_token\nhttps://x/a,t\n")
	c.SelectFile("input.csv", content)

	var sawLoading bool
	fb.onAssess = func() {
		v := c.Snapshot()
		sawLoading = v.Loading && v.Status == StatusGenerating
	}

	require.NoError(t, c.Generate(context.Background()))
	assert.True(t, sawLoading, "loading flag and status should be set during the request")
	assert.Equal(t, content, fb.assessBody)

	v := c.Snapshot()
	assert.False(t, v.Loading)
	assert.True(t, v.Popup)
	assert.True(t, v.HasData)
	assert.Equal(t, []string{"https://x/a", "https://x/b"}, v.Repos)
	assert.Empty(t, v.SelectedRepo)
	assert.Nil(t, v.Table)
}

func TestGenerate_FailureKeepsPreviousData(t *testing.T) {
	c := newLoaded(t, true)
	c.SelectRepo("https://x/a")
	before := c.Data()

	fb := c.backend.(*fakeBackend)
	fb.assessErr = fmt.Errorf("%w: 500", backend.ErrUnexpectedStatus)
	fb.assessSet = nil

	err := c.Generate(context.Background())
	assert.ErrorIs(t, err, backend.ErrUnexpectedStatus)

	v := c.Snapshot()
	assert.False(t, v.Loading, "loading must be cleared after a failure")
	assert.Equal(t, before, c.Data())
	assert.Equal(t, "https://x/a", v.SelectedRepo)
	assert.Equal(t, "svc1", v.SelectedService)
}

func TestGenerate_EmptyResultsKeepsPreviousData(t *testing.T) {
	c := newLoaded(t, false)
	fb := c.backend.(*fakeBackend)
	fb.assessErr = assessment.ErrNoResults
	fb.assessSet = nil

	assert.ErrorIs(t, c.Generate(context.Background()), assessment.ErrNoResults)
	assert.Len(t, c.Data(), 2)
}

func TestGenerate_RevalidatesSelection(t *testing.T) {
	c := newLoaded(t, true)
	c.SelectRepo("https://x/b")
	require.Equal(t, "web", c.Snapshot().SelectedService)

	fb := c.backend.(*fakeBackend)
	fb.assessSet = decodeSet(t, `{"repoDetails":[{"repoUrl":"https://x/a","responseDetails":{"svc1":{}}}]}`)
	require.NoError(t, c.Generate(context.Background()))

	v := c.Snapshot()
	assert.Empty(t, v.SelectedRepo)
	assert.Empty(t, v.SelectedService)
}

func TestSelectRepo_AutoSelectsFirstService(t *testing.T) {
	c := newLoaded(t, true)

	c.SelectRepo("https://x/a")
	v := c.Snapshot()
	assert.Equal(t, []string{"svc1", "svc2"}, v.Services)
	assert.Equal(t, "svc1", v.SelectedService)
	require.NotNil(t, v.Table)
	assert.Equal(t, "svc1", v.Table.Service)

	c.SelectService("svc2")
	c.SelectRepo("https://x/b")
	assert.Equal(t, "web", c.Snapshot().SelectedService)
}

func TestSelectRepo_WithoutAutoSelect(t *testing.T) {
	c := newLoaded(t, false)

	c.SelectRepo("https://x/a")
	v := c.Snapshot()
	assert.Empty(t, v.SelectedService)
	assert.Nil(t, v.Table)

	c.SelectService("svc2")
	table := c.Table()
	require.NotNil(t, table)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "Language", table.Rows[0].Label)
	assert.Equal(t, "Go", table.Rows[0].Value)
}

func TestSelectRepo_ClearResetsService(t *testing.T) {
	c := newLoaded(t, true)
	c.SelectRepo("https://x/a")
	c.SelectRepo("")

	v := c.Snapshot()
	assert.Empty(t, v.SelectedService)
	assert.Empty(t, v.Services)
	assert.Nil(t, v.Table)
}

func TestTable_UnknownServiceIsEmpty(t *testing.T) {
	c := newLoaded(t, false)
	c.SelectRepo("https://x/a")
	c.SelectService("nope")
	assert.Nil(t, c.Table())
}

func TestTable_PageRendering(t *testing.T) {
	c := newLoaded(t, true)
	c.SelectRepo("https://x/a")

	table := c.Table()
	require.NotNil(t, table)
	keys := make([]string, 0, len(table.Rows))
	for _, r := range table.Rows {
		keys = append(keys, r.Key)
	}
	assert.Equal(t, []string{"enabled", "repoStructure", "artifacts"}, keys)
	assert.Equal(t, "Yes", table.Rows[0].Value)
	assert.Equal(t, view.CellFolder, table.Rows[1].Cell)
	assert.Equal(t, view.CellArtifacts, table.Rows[2].Cell)
}

func TestArtifactModal(t *testing.T) {
	c := newLoaded(t, true)
	assert.ErrorIs(t, c.OpenArtifact(0), ErrNoSelection)

	c.SelectRepo("https://x/a")
	assert.ErrorIs(t, c.OpenArtifact(3), ErrNoArtifact)

	require.NoError(t, c.OpenArtifact(0))
	v := c.Snapshot()
	require.NotNil(t, v.Artifact)
	assert.Equal(t, "a.jar", v.Artifact.Name)
	assert.Equal(t, "nexus", v.Artifact.Location)

	c.CloseArtifact()
	assert.Nil(t, c.Snapshot().Artifact)
}

func TestFolderModal(t *testing.T) {
	c := newLoaded(t, true)
	assert.ErrorIs(t, c.OpenFolderStructure(), ErrNoSelection)

	c.SelectRepo("https://x/a")
	require.NoError(t, c.OpenFolderStructure())
	v := c.Snapshot()
	assert.True(t, v.FolderOpen)
	assert.Equal(t, []string{"src/", "README.md"}, v.FolderPaths)

	c.CloseFolderStructure()
	v = c.Snapshot()
	assert.False(t, v.FolderOpen)
	assert.Equal(t, []string{"src/", "README.md"}, v.FolderPaths, "paths are kept until replaced")
}

func TestClosePopup_ClearsStatus(t *testing.T) {
	c := newLoaded(t, true)
	require.True(t, c.Snapshot().Popup)

	c.ClosePopup()
	v := c.Snapshot()
	assert.False(t, v.Popup)
	assert.Empty(t, v.Status)
	assert.True(t, v.HasData)
}

func TestExport(t *testing.T) {
	c := newLoaded(t, true)

	var buf bytes.Buffer
	assert.False(t, c.Snapshot().CanExport())
	assert.ErrorIs(t, c.Export(&buf), export.ErrNoSelection)
	assert.Zero(t, buf.Len())

	c.SelectRepo("https://x/b")
	assert.True(t, c.Snapshot().CanExport())
	require.NoError(t, c.Export(&buf))
	assert.NotZero(t, buf.Len())
	assert.Equal(t, export.LayoutExtended, c.Layout())
}

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	fb := &fakeBackend{}
	c := New(fb, Options{})

	var got []View
	c.Subscribe(func(v View) { got = append(got, v) })
	c.SelectFile("input.csv", nil)
	c.SelectRepo("https://x/a")

	require.Len(t, got, 2)
	assert.Equal(t, "input.csv", got[0].FileName)
	assert.Equal(t, "https://x/a", got[1].SelectedRepo)
}

func TestSnapshot_ConcurrentReaders(t *testing.T) {
	c := newLoaded(t, true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				c.SelectRepo("https://x/a")
			} else {
				_ = c.Snapshot()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, "svc1", c.Snapshot().SelectedService)
}
