package state

import (
	"github.com/greg-hellings/portal/pkg/assessment"
	"github.com/greg-hellings/portal/pkg/view"
)

// View is a point-in-time copy of the page state. It is safe to render or
// serialize without holding the controller lock.
type View struct {
	FileName        string               `json:"fileName,omitempty"`
	Status          string               `json:"status"`
	Loading         bool                 `json:"loading"`
	Popup           bool                 `json:"popup"`
	HasData         bool                 `json:"hasData"`
	Repos           []string             `json:"repos"`
	SelectedRepo    string               `json:"selectedRepo"`
	Services        []string             `json:"services"`
	SelectedService string               `json:"selectedService"`
	Table           *view.Table          `json:"table,omitempty"`
	Artifact        *assessment.Artifact `json:"artifact,omitempty"`
	FolderOpen      bool                 `json:"folderOpen"`
	FolderPaths     []string             `json:"folderPaths,omitempty"`
}

// CanExport reports whether the export button has something to write.
func (v View) CanExport() bool {
	return v.Table != nil
}

// Snapshot copies the current state.
func (c *Controller) Snapshot() View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v := View{
		Status:          c.status,
		Loading:         c.loading,
		Popup:           c.popup,
		HasData:         len(c.data) > 0,
		Repos:           c.data.RepoURLs(),
		SelectedRepo:    c.selectedRepo,
		SelectedService: c.selectedService,
		Table:           view.Derive(c.data, c.selectedRepo, c.selectedService, view.PageRules),
		FolderOpen:      c.folderOpen,
		FolderPaths:     append([]string(nil), c.folderPaths...),
	}
	if c.file != nil {
		v.FileName = c.file.Name
	}
	if r := c.data.Find(c.selectedRepo); r != nil {
		v.Services = r.ServiceNames()
	}
	if c.artifact != nil {
		a := *c.artifact
		v.Artifact = &a
	}
	return v
}
