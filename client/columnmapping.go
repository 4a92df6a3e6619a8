package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// FileType is the format of an uploaded event log.
type FileType string

const (
	FileCSV  FileType = "csv"
	FileXLS  FileType = "xls"
	FileXLSX FileType = "xlsx"
)

// FileStructure describes how the platform should read uploaded files.
type FileStructure struct {
	FileType    FileType `json:"fileType"`
	Charset     string   `json:"charset"`
	Delimiter   string   `json:"delimiter"`
	QuoteChar   string   `json:"quoteChar"`
	EscapeChar  string   `json:"escapeChar"`
	EOLChar     string   `json:"eolChar"`
	Header      bool     `json:"header"`
	CommentChar string   `json:"commentChar"`
	SheetName   string   `json:"sheetName,omitempty"`
}

// NewFileStructure returns the platform defaults for a file type: UTF-8,
// comma separated, double-quoted, with a header row.
func NewFileStructure(ft FileType) FileStructure {
	return FileStructure{
		FileType:    ft,
		Charset:     "UTF-8",
		Delimiter:   ",",
		QuoteChar:   `"`,
		EscapeChar:  `\`,
		EOLChar:     `\r\n`,
		Header:      true,
		CommentChar: "#",
	}
}

// ColumnType is the role of a column in an event log.
type ColumnType string

const (
	ColumnCaseID    ColumnType = "case_id"
	ColumnTaskName  ColumnType = "task_name"
	ColumnTime      ColumnType = "time"
	ColumnMetric    ColumnType = "metric"
	ColumnDimension ColumnType = "dimension"
)

// Aggregation folds the values of a metric or dimension column.
type Aggregation string

const (
	AggFirst    Aggregation = "FIRST"
	AggLast     Aggregation = "LAST"
	AggDistinct Aggregation = "DISTINCT"
	AggMin      Aggregation = "MIN"
	AggMax      Aggregation = "MAX"
	AggSum      Aggregation = "SUM"
	AggAvg      Aggregation = "AVG"
	AggMedian   Aggregation = "MEDIAN"
)

var (
	metricAggregations    = []Aggregation{AggFirst, AggLast, AggMin, AggMax, AggSum, AggAvg, AggMedian}
	dimensionAggregations = []Aggregation{AggFirst, AggLast, AggDistinct}
)

// Column maps one file column to its role.
type Column struct {
	Name        string
	Index       int
	Type        ColumnType
	IsCaseScope bool
	Aggregation Aggregation
	Unit        string
	TimeFormat  string

	// GroupedTasksColumns is only valid on the task name column.
	GroupedTasksColumns []int
	// GroupedTasksAggregation is only valid on metric and dimension columns.
	GroupedTasksAggregation Aggregation
}

// Validate checks the column on its own.
func (c Column) Validate() error {
	switch c.Type {
	case ColumnCaseID, ColumnTaskName, ColumnTime, ColumnMetric, ColumnDimension:
	default:
		return fmt.Errorf("%w %q: unknown column type %q", ErrInvalidColumn, c.Name, c.Type)
	}
	if c.Index < 0 {
		return fmt.Errorf("%w %q: negative index %d", ErrInvalidColumn, c.Name, c.Index)
	}

	if c.Type == ColumnTime {
		if c.TimeFormat == "" {
			return fmt.Errorf("%w %q: time format is required for time columns", ErrInvalidColumn, c.Name)
		}
	} else if c.TimeFormat != "" {
		return fmt.Errorf("%w %q: time format is only allowed on time columns", ErrInvalidColumn, c.Name)
	}

	measured := c.Type == ColumnMetric || c.Type == ColumnDimension
	if !measured && (c.Aggregation != "" || c.Unit != "") {
		return fmt.Errorf("%w %q: aggregation and unit are not allowed for %s columns", ErrInvalidColumn, c.Name, c.Type)
	}
	if !measured && c.GroupedTasksAggregation != "" {
		return fmt.Errorf("%w %q: grouped tasks aggregation is not allowed for %s columns", ErrInvalidColumn, c.Name, c.Type)
	}
	if c.Type != ColumnTaskName && len(c.GroupedTasksColumns) > 0 {
		return fmt.Errorf("%w %q: grouped tasks columns are only allowed on the task name column", ErrInvalidColumn, c.Name)
	}

	allowed := metricAggregations
	if c.Type == ColumnDimension {
		allowed = dimensionAggregations
	}
	for _, agg := range []Aggregation{c.Aggregation, c.GroupedTasksAggregation} {
		if measured && agg != "" && !slices.Contains(allowed, agg) {
			return fmt.Errorf("%w %q: %s is not a %s aggregation", ErrInvalidColumn, c.Name, agg, c.Type)
		}
	}
	return nil
}

// ColumnMapping is a validated set of columns: exactly one case id and one
// task name column, one or two time columns, any number of metrics and dimensions.
type ColumnMapping struct {
	CaseID     Column
	TaskName   Column
	Times      []Column
	Metrics    []Column
	Dimensions []Column
}

// NewColumnMapping validates columns and groups them by type.
func NewColumnMapping(columns []Column) (*ColumnMapping, error) {
	seen := make(map[int]bool, len(columns))
	for _, c := range columns {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if seen[c.Index] {
			return nil, fmt.Errorf("%w: duplicate column index %d", ErrInvalidMapping, c.Index)
		}
		seen[c.Index] = true
	}

	byType := make(map[ColumnType][]Column)
	for _, c := range columns {
		byType[c.Type] = append(byType[c.Type], c)
	}

	if n := len(byType[ColumnCaseID]); n != 1 {
		return nil, fmt.Errorf("%w: number of case_id columns should be 1, got %d", ErrInvalidMapping, n)
	}
	if n := len(byType[ColumnTaskName]); n != 1 {
		return nil, fmt.Errorf("%w: number of task_name columns should be 1, got %d", ErrInvalidMapping, n)
	}
	if n := len(byType[ColumnTime]); n != 1 && n != 2 {
		return nil, fmt.Errorf("%w: number of time columns should be 1 or 2, got %d", ErrInvalidMapping, n)
	}

	m := &ColumnMapping{
		CaseID:     byType[ColumnCaseID][0],
		TaskName:   byType[ColumnTaskName][0],
		Times:      byType[ColumnTime],
		Metrics:    byType[ColumnMetric],
		Dimensions: byType[ColumnDimension],
	}
	if err := m.validateGroupedTasks(seen); err != nil {
		return nil, err
	}
	return m, nil
}

// validateGroupedTasks requires grouped task columns to exist in the mapping,
// and every metric and dimension to carry a grouped aggregation exactly when
// tasks are grouped.
func (m *ColumnMapping) validateGroupedTasks(indices map[int]bool) error {
	grouped := len(m.TaskName.GroupedTasksColumns) > 0
	for _, idx := range m.TaskName.GroupedTasksColumns {
		if !indices[idx] {
			return fmt.Errorf("%w: grouped tasks column %d is not mapped", ErrInvalidMapping, idx)
		}
	}

	for _, c := range slices.Concat(m.Metrics, m.Dimensions) {
		has := c.GroupedTasksAggregation != ""
		if grouped && !has {
			return fmt.Errorf("%w: column %q needs a grouped tasks aggregation", ErrInvalidMapping, c.Name)
		}
		if !grouped && has {
			return fmt.Errorf("%w: column %q has a grouped tasks aggregation but tasks are not grouped", ErrInvalidMapping, c.Name)
		}
	}
	return nil
}

// Columns returns every column of the mapping, ordered by index.
func (m *ColumnMapping) Columns() []Column {
	all := slices.Concat([]Column{m.CaseID, m.TaskName}, m.Times, m.Metrics, m.Dimensions)
	sort.Slice(all, func(i, j int) bool { return all[i].Index < all[j].Index })
	return all
}

type columnWire struct {
	ColumnIndex             int         `json:"columnIndex"`
	Name                    *string     `json:"name,omitempty"`
	IsCaseScope             *bool       `json:"isCaseScope,omitempty"`
	Aggregation             Aggregation `json:"aggregation,omitempty"`
	Unit                    string      `json:"unit,omitempty"`
	Format                  string      `json:"format,omitempty"`
	GroupedTasksColumns     []int       `json:"groupedTasksColumns,omitempty"`
	GroupedTasksAggregation Aggregation `json:"groupedTasksAggregation,omitempty"`
}

func (c Column) wire() columnWire {
	w := columnWire{
		ColumnIndex:             c.Index,
		Aggregation:             c.Aggregation,
		Unit:                    c.Unit,
		GroupedTasksColumns:     c.GroupedTasksColumns,
		GroupedTasksAggregation: c.GroupedTasksAggregation,
	}
	switch c.Type {
	case ColumnTime:
		w.Format = c.TimeFormat
	case ColumnMetric, ColumnDimension:
		name, scope := c.Name, c.IsCaseScope
		w.Name, w.IsCaseScope = &name, &scope
	}
	return w
}

func wireAll(cols []Column) []columnWire {
	out := make([]columnWire, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.wire())
	}
	return out
}

// MarshalJSON emits the mapping in the form the column-mapping endpoint accepts.
func (m *ColumnMapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CaseID     columnWire   `json:"caseIdMapping"`
		Activity   columnWire   `json:"activityMapping"`
		Times      []columnWire `json:"timeMappings"`
		Dimensions []columnWire `json:"dimensionsMappings"`
		Metrics    []columnWire `json:"metricsMappings"`
	}{
		CaseID:     m.CaseID.wire(),
		Activity:   m.TaskName.wire(),
		Times:      wireAll(m.Times),
		Dimensions: wireAll(m.Dimensions),
		Metrics:    wireAll(m.Metrics),
	})
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("column index %s: %w", data, err)
	}
	*f = flexInt(n)
	return nil
}

type keyedColumn struct {
	Name                    string      `json:"name"`
	ColumnIndex             *flexInt    `json:"columnIndex"`
	ColumnType              string      `json:"columnType"`
	Format                  string      `json:"format"`
	IsCaseScope             bool        `json:"isCaseScope"`
	Aggregation             Aggregation `json:"aggregation"`
	Unit                    string      `json:"unit"`
	GroupedTasksColumns     []flexInt   `json:"groupedTasksColumns"`
	GroupedTasksAggregation Aggregation `json:"groupedTasksAggregation"`
}

// ParseColumnMapping reads the keyed form returned by the platform, e.g.
//
//	{"col1": {"name": "Case ID", "columnIndex": "0", "columnType": "CASE_ID"}, ...}
//
// Column indices may be numbers or numeric strings; column types are case-insensitive.
func ParseColumnMapping(data []byte) (*ColumnMapping, error) {
	var keyed map[string]keyedColumn
	if err := json.Unmarshal(data, &keyed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}

	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	columns := make([]Column, 0, len(keyed))
	for _, k := range keys {
		kc := keyed[k]
		if kc.ColumnIndex == nil {
			return nil, fmt.Errorf("%w: %s has no columnIndex", ErrInvalidMapping, k)
		}
		col := Column{
			Name:                    kc.Name,
			Index:                   int(*kc.ColumnIndex),
			Type:                    ColumnType(strings.ToLower(kc.ColumnType)),
			IsCaseScope:             kc.IsCaseScope,
			Aggregation:             Aggregation(strings.ToUpper(string(kc.Aggregation))),
			Unit:                    kc.Unit,
			TimeFormat:              kc.Format,
			GroupedTasksAggregation: Aggregation(strings.ToUpper(string(kc.GroupedTasksAggregation))),
		}
		for _, idx := range kc.GroupedTasksColumns {
			col.GroupedTasksColumns = append(col.GroupedTasksColumns, int(idx))
		}
		columns = append(columns, col)
	}
	return NewColumnMapping(columns)
}
