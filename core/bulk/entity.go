package bulk

import (
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
)

// EntityType is the domain object a bulk operation targets.
type EntityType string

// Entity types
const (
	Students   EntityType = "students"
	Teachers   EntityType = "teachers"
	Fees       EntityType = "fees"
	Attendance EntityType = "attendance"
)

var (
	// AllEntityTypes lists every entity type, in display order.
	AllEntityTypes = []EntityType{Students, Teachers, Fees, Attendance}

	entityLabels = map[EntityType]string{
		Students:   "Students",
		Teachers:   "Teachers",
		Fees:       "Fees",
		Attendance: "Attendance",
	}

	ErrUnknownEntity = errors.New("unknown entity type")
	ErrUnknownFormat = errors.New("unknown file format")
)

func ParseEntityType(s string) (EntityType, error) {
	et := EntityType(core.CleanString(s, true /* lower */))
	if _, ok := entityLabels[et]; !ok {
		return "", errors.Wrapf(ErrUnknownEntity, "%q", s)
	}
	return et, nil
}

// Label is the human readable (plural) name of the entity type.
func (et EntityType) Label() string {
	if label, ok := entityLabels[et]; ok {
		return label
	}
	return string(et)
}

// SupportsImport reports whether the backend offers templates and imports for the entity type.
// Attendance is export-only.
func (et EntityType) SupportsImport() bool {
	return et == Students || et == Teachers || et == Fees
}

// Format is the file format of templates and exports.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

var formatContentTypes = map[Format]string{
	CSV:  "text/csv",
	XLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func ParseFormat(s string) (Format, error) {
	f := Format(core.CleanString(s, true /* lower */))
	if _, ok := formatContentTypes[f]; !ok {
		return "", errors.Wrapf(ErrUnknownFormat, "%q", s)
	}
	return f, nil
}

// ContentType is the MIME type of files in this format.
func (f Format) ContentType() string {
	return formatContentTypes[f]
}

// Ext is the file extension, with its leading dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ImportResult is the outcome of one upload. It is never merged with the outcome of another attempt.
type ImportResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}
