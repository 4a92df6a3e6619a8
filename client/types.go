package client

import (
	"encoding/json"
	"fmt"
)

// Document is a loosely typed JSON object returned by endpoints whose shape
// depends on the project (variants, cases, file metadata).
type Document map[string]any

// String returns the value at key formatted as a string, or "" when absent.
func (d Document) String(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// FilesPage is one page of a project's uploaded files.
type FilesPage struct {
	Files []Document `json:"files"`
	Total int        `json:"total,omitempty"`
}

// DatasourceInfo describes a project datasource as listed by the platform.
type DatasourceInfo struct {
	Name string      `json:"name"`
	Host string      `json:"host"`
	Port json.Number `json:"port"`
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	WorkgroupID string `json:"workgroupId"`
}

type createProjectResponse struct {
	ID string `json:"id"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

type nameResponse struct {
	Name string `json:"name"`
}

type trainStatusResponse struct {
	IsTrainRunning bool `json:"isTrainRunning"`
}

type columnMappingRequest struct {
	FileStructure FileStructure  `json:"fileStructure"`
	ColumnMapping *ColumnMapping `json:"columnMapping"`
}
