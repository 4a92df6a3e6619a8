package client

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const groupedMappingJSON = `{
	"col1": {"name": "Case ID", "columnIndex": "0", "columnType": "CASE_ID"},
	"col2": {"name": "Activity", "columnIndex": "1", "columnType": "TASK_NAME", "groupedTasksColumns": [1, 2, 3]},
	"col3": {"name": "Start Date", "columnIndex": "2", "columnType": "TIME", "format": "dd/MM/yyyy HH:mm"},
	"col4": {"name": "End Date", "columnIndex": "3", "columnType": "TIME", "format": "dd/MM/yyyy HH:mm"},
	"col5": {"name": "Price", "columnIndex": "4", "columnType": "METRIC", "isCaseScope": false,
		"groupedTasksAggregation": "SUM", "aggregation": "SUM", "unit": "EUR"},
	"col6": {"name": "Forme", "columnIndex": 5, "columnType": "DIMENSION", "isCaseScope": false,
		"groupedTasksAggregation": "LAST", "aggregation": "DISTINCT"}
}`

func basicColumns() []Column {
	return []Column{
		{Name: "Case ID", Index: 0, Type: ColumnCaseID},
		{Name: "Activity", Index: 1, Type: ColumnTaskName},
		{Name: "Start", Index: 2, Type: ColumnTime, TimeFormat: "yyyy-MM-dd'T'HH:mm"},
		{Name: "End", Index: 3, Type: ColumnTime, TimeFormat: "yyyy-MM-dd'T'HH:mm"},
		{Name: "Cost", Index: 4, Type: ColumnMetric, Aggregation: AggSum, Unit: "EUR"},
		{Name: "Country", Index: 5, Type: ColumnDimension, IsCaseScope: true, Aggregation: AggDistinct},
	}
}

func TestColumnValidate(t *testing.T) {
	tests := []struct {
		name    string
		col     Column
		wantErr string
	}{
		{"time without format", Column{Name: "t", Type: ColumnTime}, "time format is required"},
		{"format on metric", Column{Name: "m", Type: ColumnMetric, TimeFormat: "yyyy"}, "only allowed on time columns"},
		{"aggregation on case id", Column{Name: "c", Type: ColumnCaseID, Aggregation: AggFirst}, "not allowed for case_id"},
		{"unit on task", Column{Name: "a", Type: ColumnTaskName, Unit: "s"}, "not allowed for task_name"},
		{"distinct on metric", Column{Name: "m", Type: ColumnMetric, Aggregation: AggDistinct}, "DISTINCT is not a metric aggregation"},
		{"sum on dimension", Column{Name: "d", Type: ColumnDimension, Aggregation: AggSum}, "SUM is not a dimension aggregation"},
		{"grouped agg on dimension", Column{Name: "d", Type: ColumnDimension, GroupedTasksAggregation: AggMedian}, "MEDIAN is not a dimension aggregation"},
		{"grouped columns on metric", Column{Name: "m", Type: ColumnMetric, GroupedTasksColumns: []int{1}}, "only allowed on the task name column"},
		{"grouped agg on time", Column{Name: "t", Type: ColumnTime, TimeFormat: "x", GroupedTasksAggregation: AggFirst}, "not allowed for time"},
		{"unknown type", Column{Name: "x", Type: "weird"}, "unknown column type"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.col.Validate()
			if !errors.Is(err, ErrInvalidColumn) {
				t.Fatalf("expected ErrInvalidColumn, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}

	for _, c := range basicColumns() {
		if err := c.Validate(); err != nil {
			t.Errorf("column %q: unexpected error %v", c.Name, err)
		}
	}
}

func TestNewColumnMapping(t *testing.T) {
	m, err := NewColumnMapping(basicColumns())
	if err != nil {
		t.Fatalf("NewColumnMapping() error: %v", err)
	}
	if m.CaseID.Index != 0 || m.TaskName.Index != 1 || len(m.Times) != 2 || len(m.Metrics) != 1 || len(m.Dimensions) != 1 {
		t.Errorf("unexpected grouping %+v", m)
	}
	if len(m.Columns()) != 6 {
		t.Errorf("Columns() returned %d columns", len(m.Columns()))
	}
}

func TestNewColumnMappingErrors(t *testing.T) {
	without := func(idx int) []Column {
		var out []Column
		for _, c := range basicColumns() {
			if c.Index != idx {
				out = append(out, c)
			}
		}
		return out
	}

	tests := []struct {
		name    string
		cols    []Column
		wantErr string
	}{
		{"duplicate index", append(basicColumns(), Column{Name: "x", Index: 4, Type: ColumnDimension}), "duplicate column index 4"},
		{"no case id", without(0), "case_id columns should be 1"},
		{"two task columns", append(basicColumns(), Column{Name: "b", Index: 9, Type: ColumnTaskName}), "task_name columns should be 1"},
		{"empty", nil, "case_id columns should be 1"},
		{"no time", basicColumns()[:2], "time columns should be 1 or 2"},
		{"three times", append(basicColumns(), Column{Name: "t3", Index: 9, Type: ColumnTime, TimeFormat: "x"}), "time columns should be 1 or 2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewColumnMapping(tc.cols)
			if !errors.Is(err, ErrInvalidMapping) {
				t.Fatalf("expected ErrInvalidMapping, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}

	if _, err := NewColumnMapping(without(3)); err != nil {
		t.Errorf("a single time column is valid, got %v", err)
	}
}

func TestGroupedTasksConsistency(t *testing.T) {
	cols := basicColumns()
	cols[1].GroupedTasksColumns = []int{1, 2, 3}
	if _, err := NewColumnMapping(cols); !errors.Is(err, ErrInvalidMapping) {
		t.Fatalf("grouped tasks without grouped aggregations: expected ErrInvalidMapping, got %v", err)
	}

	cols[4].GroupedTasksAggregation = AggSum
	cols[5].GroupedTasksAggregation = AggLast
	if _, err := NewColumnMapping(cols); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	cols[1].GroupedTasksColumns = []int{1, 42}
	if _, err := NewColumnMapping(cols); err == nil || !strings.Contains(err.Error(), "grouped tasks column 42") {
		t.Fatalf("expected unmapped grouped column error, got %v", err)
	}

	cols[1].GroupedTasksColumns = nil
	if _, err := NewColumnMapping(cols); err == nil || !strings.Contains(err.Error(), "tasks are not grouped") {
		t.Fatalf("expected ungrouped aggregation error, got %v", err)
	}
}

func TestColumnMappingMarshalJSON(t *testing.T) {
	m, err := NewColumnMapping(basicColumns())
	if err != nil {
		t.Fatalf("NewColumnMapping() error: %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var wire map[string]json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"caseIdMapping", "activityMapping", "timeMappings", "dimensionsMappings", "metricsMappings"} {
		if _, ok := wire[key]; !ok {
			t.Errorf("missing %s in %s", key, data)
		}
	}
	if string(wire["caseIdMapping"]) != `{"columnIndex":0}` {
		t.Errorf("case id mapping = %s", wire["caseIdMapping"])
	}
	if string(wire["metricsMappings"]) != `[{"columnIndex":4,"name":"Cost","isCaseScope":false,"aggregation":"SUM","unit":"EUR"}]` {
		t.Errorf("metrics mapping = %s", wire["metricsMappings"])
	}
	if !strings.Contains(string(wire["timeMappings"]), `"format":"yyyy-MM-dd'T'HH:mm"`) {
		t.Errorf("time mapping = %s", wire["timeMappings"])
	}
}

func TestParseColumnMapping(t *testing.T) {
	m, err := ParseColumnMapping([]byte(groupedMappingJSON))
	if err != nil {
		t.Fatalf("ParseColumnMapping() error: %v", err)
	}
	if m.CaseID.Name != "Case ID" || m.TaskName.Index != 1 {
		t.Errorf("unexpected mapping %+v", m)
	}
	if len(m.Times) != 2 || m.Times[0].TimeFormat != "dd/MM/yyyy HH:mm" {
		t.Errorf("unexpected time columns %+v", m.Times)
	}
	if m.Metrics[0].Unit != "EUR" || m.Metrics[0].GroupedTasksAggregation != AggSum {
		t.Errorf("unexpected metric %+v", m.Metrics[0])
	}
	if m.Dimensions[0].Index != 5 || m.Dimensions[0].Aggregation != AggDistinct {
		t.Errorf("unexpected dimension %+v", m.Dimensions[0])
	}

	if _, err := ParseColumnMapping([]byte(`{"c": {"name": "x", "columnType": "CASE_ID"}}`)); !errors.Is(err, ErrInvalidMapping) {
		t.Errorf("missing columnIndex: expected ErrInvalidMapping, got %v", err)
	}
	if _, err := ParseColumnMapping([]byte(`[1,2]`)); !errors.Is(err, ErrInvalidMapping) {
		t.Errorf("not an object: expected ErrInvalidMapping, got %v", err)
	}
}

func TestNewFileStructureDefaults(t *testing.T) {
	fs := NewFileStructure(FileXLSX)
	fs.SheetName = "Events"
	data, err := json.Marshal(fs)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"fileType":"xlsx","charset":"UTF-8","delimiter":",","quoteChar":"\"","escapeChar":"\\","eolChar":"\\r\\n","header":true,"commentChar":"#","sheetName":"Events"}`
	if string(data) != want {
		t.Errorf("got %s\nwant %s", data, want)
	}
}
