package bulk

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
)

// User-facing messages
const (
	MsgInvalidFile    = "Please select a CSV or Excel file."
	MsgTemplateFailed = "Failed to download template. Please try again."
	MsgExportFailed   = "Failed to export data. Please try again."
	MsgImportFailed   = "Failed to import data. Please check your file format."
)

var (
	NowFunc = time.Now // mockable

	// ImportExts are the accepted upload file extensions (case-sensitive).
	ImportExts = []string{".csv", ".xlsx", ".xls"}

	ErrInvalidFile      = errors.New("invalid file type")
	ErrImportInProgress = errors.New("an import is already in progress")
)

type (
	// Client is the backend "bulk" API family.
	Client interface {
		Template(ctx context.Context, entity EntityType, format Format) ([]byte, error)
		Export(ctx context.Context, entity EntityType, format Format) ([]byte, error)
		Import(ctx context.Context, entity EntityType, filename string, r io.Reader) (ImportResult, error)
	}

	// Download is a file handed to the user.
	Download struct {
		Filename    string
		ContentType string
		Data        []byte
	}

	// Downloader delivers downloads to the user (browser response, local file...).
	Downloader interface {
		Save(ctx context.Context, dl Download) error
	}

	// Alerter shows a blocking message to the user.
	Alerter interface {
		Alert(msg string)
	}

	AlertFunc func(msg string)

	// File is a user-selected file.
	File struct {
		Name   string
		Reader io.Reader
	}

	// State is the transient UI state of a Widget.
	State struct {
		ImportModalOpen bool
		ExportModalOpen bool
		Uploading       bool
		ImportResult    *ImportResult
		SelectedFile    string // value of the file input
	}

	// Widget drives the template download, import and export of one entity type.
	Widget struct {
		entity          EntityType
		client          Client
		downloader      Downloader
		alerter         Alerter
		onImportSuccess func()

		mutex sync.Mutex
		state State
	}
)

func (f AlertFunc) Alert(msg string) { f(msg) }

// New returns a widget for entity. onImportSuccess (optional) is called after every import that added at least one record.
func New(entity EntityType, client Client, downloader Downloader, alerter Alerter, onImportSuccess func()) *Widget {
	return &Widget{
		entity:          entity,
		client:          client,
		downloader:      downloader,
		alerter:         alerter,
		onImportSuccess: onImportSuccess,
	}
}

// TemplateFilename is the name of the downloaded import template.
func TemplateFilename(entity EntityType, format Format) string {
	return string(entity) + "_import_template" + format.Ext()
}

// ExportFilename is the name of a data export made today (UTC).
func ExportFilename(entity EntityType, format Format) string {
	return string(entity) + "_" + NowFunc().UTC().Format("2006-01-02") + format.Ext()
}

// ValidFileName reports whether name has one of the ImportExts.
func ValidFileName(name string) bool {
	return core.HasAnySuffix(name, ImportExts...)
}

func (w *Widget) Entity() EntityType { return w.entity }

// State returns a copy of the current state.
func (w *Widget) State() State {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	st := w.state
	if st.ImportResult != nil {
		res := copyResult(*st.ImportResult)
		st.ImportResult = &res
	}
	return st
}

func (w *Widget) update(fn func(st *State)) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	fn(&w.state)
}

func (w *Widget) OpenImport() {
	w.update(func(st *State) { st.ImportModalOpen = true })
}

// CloseImport closes the import modal and forgets the last import result.
func (w *Widget) CloseImport() {
	w.update(func(st *State) {
		st.ImportModalOpen = false
		st.ImportResult = nil
	})
}

func (w *Widget) OpenExport() {
	w.update(func(st *State) { st.ExportModalOpen = true })
}

func (w *Widget) CloseExport() {
	w.update(func(st *State) { st.ExportModalOpen = false })
}

// ResetInput clears the file input, so that the same file may be selected again.
func (w *Widget) ResetInput() {
	w.update(func(st *State) { st.SelectedFile = "" })
}

func (w *Widget) alert(msg string) {
	if w.alerter != nil {
		w.alerter.Alert(msg)
	}
}

func (w *Widget) download(ctx context.Context, fetch func() ([]byte, error), filename string, format Format) error {
	data, err := fetch()
	if err != nil {
		return err
	}
	return w.downloader.Save(ctx, Download{Filename: filename, ContentType: format.ContentType(), Data: data})
}

// DownloadTemplate hands the import template to the user. Failures are alerted and leave the modals untouched.
func (w *Widget) DownloadTemplate(ctx context.Context, format Format) error {
	if format.ContentType() == "" {
		return errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	fetch := func() ([]byte, error) { return w.client.Template(ctx, w.entity, format) }
	if err := w.download(ctx, fetch, TemplateFilename(w.entity, format), format); err != nil {
		w.alert(MsgTemplateFailed)
		return errors.Wrap(err, "downloading template")
	}
	return nil
}

// ExportAll hands every record to the user and closes the export modal. On failure the modal stays open.
func (w *Widget) ExportAll(ctx context.Context, format Format) error {
	if format.ContentType() == "" {
		return errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	fetch := func() ([]byte, error) { return w.client.Export(ctx, w.entity, format) }
	if err := w.download(ctx, fetch, ExportFilename(w.entity, format), format); err != nil {
		w.alert(MsgExportFailed)
		return errors.Wrap(err, "exporting data")
	}
	w.CloseExport()
	return nil
}

// SelectFile behaves like the file input's change event: re-selecting the file the input already holds is a no-op.
// Returns nil, nil when nothing happened.
func (w *Widget) SelectFile(ctx context.Context, f File) (*ImportResult, error) {
	w.mutex.Lock()
	if w.state.Uploading {
		w.mutex.Unlock()
		return nil, ErrImportInProgress
	}
	if f.Name == w.state.SelectedFile {
		w.mutex.Unlock()
		return nil, nil
	}
	w.state.SelectedFile = f.Name
	w.mutex.Unlock()

	if f.Name == "" { // selection cancelled
		return nil, nil
	}
	return w.ImportFile(ctx, f)
}

// ImportFile uploads f and stores the outcome as the new import result.
// Invalid file names are alerted and rejected without any request. Transport and server failures
// become a single failed row; only ErrInvalidFile and ErrImportInProgress are returned as errors.
func (w *Widget) ImportFile(ctx context.Context, f File) (*ImportResult, error) {
	if !ValidFileName(f.Name) {
		w.alert(MsgInvalidFile)
		return nil, ErrInvalidFile
	}

	w.mutex.Lock()
	if w.state.Uploading {
		w.mutex.Unlock()
		return nil, ErrImportInProgress
	}
	w.state.Uploading = true
	w.state.ImportResult = nil
	w.mutex.Unlock()

	defer w.update(func(st *State) {
		st.Uploading = false
		st.SelectedFile = ""
	})

	res, err := w.client.Import(ctx, w.entity, f.Name, f.Reader)
	if err != nil {
		res = failedImport(err)
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	stored := copyResult(res)
	w.update(func(st *State) { st.ImportResult = &stored })

	if err == nil && res.Success > 0 && w.onImportSuccess != nil {
		w.onImportSuccess()
	}
	return &res, nil
}

// failedImport reports a failed upload as one failed row, with the backend's message when it sent one.
func failedImport(err error) ImportResult {
	msg := MsgImportFailed
	var detailed interface{ ErrorDetail() string }
	if errors.As(err, &detailed) && detailed.ErrorDetail() != "" {
		msg = detailed.ErrorDetail()
	}
	return ImportResult{Success: 0, Failed: 1, Errors: []string{msg}}
}

func copyResult(res ImportResult) ImportResult {
	if res.Errors != nil {
		res.Errors = append([]string{}, res.Errors...)
	}
	return res
}
