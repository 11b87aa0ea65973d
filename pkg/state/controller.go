// Package state owns everything the onboarding page shows: the uploaded file,
// the status log, the stored assessment result set, the repository/service
// selection and the modal flags.
//
// The parameter table is never stored. It is derived from
// (selectedRepo, selectedService, data) on every read, so there is nothing to
// invalidate when any of the three changes.
//
// Thread Safety
// -------------
// HTTP handlers share one Controller. All fields are guarded by mu, and mu is
// never held across a backend call. Import and Generate are not mutually
// exclusive; the loading flag only tells the page to disable its buttons.
package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/greg-hellings/portal/pkg/assessment"
	"github.com/greg-hellings/portal/pkg/export"
	"github.com/greg-hellings/portal/pkg/ingest"
	"github.com/greg-hellings/portal/pkg/view"
)

// Status log messages.
const (
	StatusProcessing = "Processing the CSV file..."
	StatusGenerating = "Generating assessment data..."
)

var (
	// ErrNoFile is returned when an operation needs an uploaded file.
	ErrNoFile = errors.New("state: no file selected")
	// ErrNoSelection is returned when no service table is active.
	ErrNoSelection = errors.New("state: no repository/service selected")
	// ErrNoArtifact is returned for an artifact index outside the list.
	ErrNoArtifact = errors.New("state: artifact not found")
)

// Backend is the subset of the assessment service the controller drives.
type Backend interface {
	ingest.Cloner
	Assess(ctx context.Context, filename string, content []byte) (assessment.Set, error)
}

// Options tune the controller.
type Options struct {
	// AutoSelectFirstService selects the first service when a repository is
	// chosen. When false the service selection is left empty.
	AutoSelectFirstService bool
	// Layout is the workbook layout used by Export.
	Layout export.Layout
}

// Upload is the file chosen by the user.
type Upload struct {
	Name    string
	Content []byte
}

// Listener is called after every state change with a fresh snapshot.
type Listener func(View)

// Controller is the single owner of page state.
type Controller struct {
	backend Backend
	opts    Options

	mu              sync.RWMutex
	file            *Upload
	status          string
	loading         bool
	popup           bool
	data            assessment.Set
	selectedRepo    string
	selectedService string
	artifact        *assessment.Artifact
	folderOpen      bool
	folderPaths     []string

	lmu       sync.Mutex
	listeners []Listener
}

// New creates a controller with empty state.
func New(backend Backend, opts Options) *Controller {
	if opts.Layout == "" {
		opts.Layout = export.LayoutExtended
	}
	return &Controller{backend: backend, opts: opts}
}

// Subscribe registers fn for change notifications.
func (c *Controller) Subscribe(fn Listener) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) changed() {
	c.lmu.Lock()
	ls := append([]Listener(nil), c.listeners...)
	c.lmu.Unlock()
	if len(ls) == 0 {
		return
	}
	v := c.Snapshot()
	for _, fn := range ls {
		fn(v)
	}
}

// update runs fn under the write lock and then notifies listeners.
func (c *Controller) update(fn func()) {
	c.mu.Lock()
	fn()
	c.mu.Unlock()
	c.changed()
}

// SelectFile stores the uploaded file. Content is copied.
func (c *Controller) SelectFile(name string, content []byte) {
	up := &Upload{Name: name, Content: append([]byte(nil), content...)}
	c.update(func() { c.file = up })
	slog.Info("File selected", "name", name, "bytes", len(content))
}

func (c *Controller) upload() *Upload {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file
}

func (c *Controller) appendStatus(line string) {
	c.update(func() {
		if c.status == "" {
			c.status = line
			return
		}
		c.status += "\n" + line
	})
}

// Import parses the uploaded CSV and clones every valid row, one request at a
// time, appending one status line per row and a final completion line.
func (c *Controller) Import(ctx context.Context) (ingest.Summary, error) {
	up := c.upload()
	if up == nil {
		return ingest.Summary{}, ErrNoFile
	}
	runID := uuid.NewString()
	log := slog.With("runID", runID, "file", up.Name)
	log.Info("Starting CSV import")

	c.update(func() { c.status = StatusProcessing })

	rows, err := ingest.ParseRows(bytes.NewReader(up.Content))
	if err != nil {
		log.Error("CSV parse failed", "error", err)
		c.appendStatus(fmt.Sprintf("Failed to parse %s: %v", up.Name, err))
		return ingest.Summary{}, err
	}

	sum, err := ingest.NewImporter(c.backend).Run(ctx, rows, func(st ingest.Status) {
		c.appendStatus(st.Line())
	})
	if err != nil {
		log.Warn("CSV import interrupted", "error", err)
		return sum, err
	}

	c.appendStatus(fmt.Sprintf("File %s imported successfully!", up.Name))
	log.Info("CSV import complete",
		"cloned", sum.Cloned, "failed", sum.Failed, "errors", sum.Errored, "skipped", sum.Skipped)
	return sum, nil
}

// Generate uploads the file to the assessment endpoint. A non-empty result
// replaces the stored set and raises the completion popup; every failure
// leaves the stored set untouched. The loading flag is cleared on all paths.
func (c *Controller) Generate(ctx context.Context) error {
	up := c.upload()
	if up == nil {
		return ErrNoFile
	}
	runID := uuid.NewString()
	log := slog.With("runID", runID, "file", up.Name)

	c.update(func() {
		c.loading = true
		c.status = StatusGenerating
	})
	defer c.update(func() { c.loading = false })

	set, err := c.backend.Assess(ctx, up.Name, up.Content)
	if err != nil {
		log.Error("Error generating assessment data", "error", err)
		return fmt.Errorf("generate assessment: %w", err)
	}

	c.update(func() {
		c.data = set
		c.popup = true
		c.revalidateSelection()
	})
	log.Info("Assessment data stored", "repositories", len(set))
	return nil
}

// revalidateSelection keeps the selection pointing at keys that exist in the
// new data. Caller holds mu.
func (c *Controller) revalidateSelection() {
	repo := c.data.Find(c.selectedRepo)
	if repo == nil {
		c.selectedRepo = ""
		c.selectedService = ""
		return
	}
	if repo.Service(c.selectedService) == nil {
		c.selectedService = c.defaultService(repo)
	}
}

func (c *Controller) defaultService(repo *assessment.Result) string {
	if !c.opts.AutoSelectFirstService || repo == nil || len(repo.Services) == 0 {
		return ""
	}
	return repo.Services[0].Name
}

// SelectRepo changes the repository and resets the service selection.
func (c *Controller) SelectRepo(repoURL string) {
	c.update(func() {
		c.selectedRepo = repoURL
		c.selectedService = ""
		if repoURL != "" {
			c.selectedService = c.defaultService(c.data.Find(repoURL))
		}
	})
}

// SelectService changes the active service key only.
func (c *Controller) SelectService(name string) {
	c.update(func() { c.selectedService = name })
}

// Table derives the parameter table for the current selection, or nil.
func (c *Controller) Table() *view.Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return view.Derive(c.data, c.selectedRepo, c.selectedService, view.PageRules)
}

// Data returns the stored result set. It is never mutated after storing.
func (c *Controller) Data() assessment.Set {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

func (c *Controller) activeService() *assessment.ServiceAssessment {
	return c.data.Lookup(c.selectedRepo, c.selectedService)
}

// OpenArtifact shows the artifact at index of the active service.
func (c *Controller) OpenArtifact(index int) error {
	c.mu.Lock()
	svc := c.activeService()
	if svc == nil {
		c.mu.Unlock()
		return ErrNoSelection
	}
	arts := svc.Artifacts()
	if index < 0 || index >= len(arts) {
		c.mu.Unlock()
		return fmt.Errorf("%w: index %d of %d", ErrNoArtifact, index, len(arts))
	}
	a := arts[index]
	c.artifact = &a
	c.mu.Unlock()
	c.changed()
	return nil
}

// CloseArtifact hides the artifact modal and clears the viewed artifact.
func (c *Controller) CloseArtifact() {
	c.update(func() { c.artifact = nil })
}

// OpenFolderStructure shows the repoStructure paths of the active service.
func (c *Controller) OpenFolderStructure() error {
	c.mu.Lock()
	svc := c.activeService()
	if svc == nil {
		c.mu.Unlock()
		return ErrNoSelection
	}
	c.folderPaths = svc.RepoStructure()
	c.folderOpen = true
	c.mu.Unlock()
	c.changed()
	return nil
}

// CloseFolderStructure hides the modal; the list is kept until replaced.
func (c *Controller) CloseFolderStructure() {
	c.update(func() { c.folderOpen = false })
}

// ClosePopup dismisses the completion popup and clears the status log.
func (c *Controller) ClosePopup() {
	c.update(func() {
		c.popup = false
		c.status = ""
	})
}

// Export writes the workbook for the current selection to w. An unresolved
// selection returns export.ErrNoSelection without writing anything.
func (c *Controller) Export(w io.Writer) error {
	c.mu.RLock()
	data, repo, svc := c.data, c.selectedRepo, c.selectedService
	c.mu.RUnlock()
	return export.Write(w, data, repo, svc, c.opts.Layout)
}

// Layout returns the workbook layout used by Export.
func (c *Controller) Layout() export.Layout {
	return c.opts.Layout
}
