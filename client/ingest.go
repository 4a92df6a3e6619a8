package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var fileMIMETypes = map[string]string{
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".zip":  "application/zip",
}

// AddColumnMapping declares how the project's files are laid out. It must be
// set before the first file is added.
func (p *Project) AddColumnMapping(ctx context.Context, fs FileStructure, m *ColumnMapping) error {
	if m == nil {
		return fmt.Errorf("project %s column mapping: %w", p.ID, ErrInvalidMapping)
	}
	req := columnMappingRequest{FileStructure: fs, ColumnMapping: m}
	status, err := p.doJSON(ctx, http.MethodPost, p.path("column-mapping"), req)
	if err != nil {
		return fmt.Errorf("project %s column mapping: %w", p.ID, err)
	}
	return expectStatus(status, http.StatusNoContent, "column mapping")
}

// ColumnMappingExists reports whether a column mapping has been set.
func (p *Project) ColumnMappingExists(ctx context.Context) (bool, error) {
	var resp existsResponse
	if err := p.c.get(ctx, p.path("column-mapping-exists"), nil, &resp); err != nil {
		return false, fmt.Errorf("project %s column mapping exists: %w", p.ID, err)
	}
	return resp.Exists, nil
}

// ColumnMapping returns the project's current column mapping.
func (p *Project) ColumnMapping(ctx context.Context) (*ColumnMapping, error) {
	var raw []byte
	if err := p.c.get(ctx, p.path("column-mapping"), nil, &raw); err != nil {
		return nil, fmt.Errorf("project %s column mapping: %w", p.ID, err)
	}
	return ParseColumnMapping(raw)
}

// MappingInfos returns mapping details such as the column names.
func (p *Project) MappingInfos(ctx context.Context) (json.RawMessage, error) {
	var raw []byte
	if err := p.c.get(ctx, p.path("mappingInfos"), nil, &raw); err != nil {
		return nil, fmt.Errorf("project %s mapping infos: %w", p.ID, err)
	}
	return json.RawMessage(raw), nil
}

// Reset drops the project's data and column mapping.
func (p *Project) Reset(ctx context.Context) error {
	status, err := p.doJSON(ctx, http.MethodPost, p.path("reset"), nil)
	if err != nil {
		return fmt.Errorf("reset project %s: %w", p.ID, err)
	}
	if err := expectStatus(status, http.StatusNoContent, "reset"); err != nil {
		return err
	}
	p.Refresh()
	return nil
}

// AddFile uploads an event log from disk. Only csv, xlsx, xls and zip files are accepted.
func (p *Project) AddFile(ctx context.Context, path string) error {
	if _, err := mimeTypeOf(path); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("add file: %w", err)
	}
	defer f.Close()
	return p.UploadFile(ctx, filepath.Base(path), f)
}

// UploadFile uploads an event log read from r; name decides its type.
func (p *Project) UploadFile(ctx context.Context, name string, r io.Reader) error {
	mimeType, err := mimeTypeOf(name)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("add file: %w", err)
	}
	n, err := io.Copy(part, r)
	if err != nil {
		return fmt.Errorf("add file: read %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("add file: %w", err)
	}

	path := p.path("file") + "?" + url.Values{"teamId": {p.c.workgroupID}}.Encode()
	status, err := p.c.doRaw(ctx, http.MethodPost, path, mw.FormDataContentType(), buf.Bytes(), nil)
	if err != nil {
		return fmt.Errorf("project %s add file %s: %w", p.ID, name, err)
	}
	if err := expectStatus(status, http.StatusCreated, "add file"); err != nil {
		return err
	}

	p.logger().WithFields(logrus.Fields{"file": name, "bytes": n}).Info("file uploaded")
	return nil
}

// FilesMetadata returns one page of the project's uploaded files.
func (p *Project) FilesMetadata(ctx context.Context, pageIndex, limit int) (*FilesPage, error) {
	var page FilesPage
	if err := p.c.get(ctx, p.path("files"), p.pageParams(pageIndex, limit), &page); err != nil {
		return nil, fmt.Errorf("project %s files: %w", p.ID, err)
	}
	if page.Files == nil {
		page.Files = []Document{}
	}
	return &page, nil
}

// FileMetadata returns the metadata of one uploaded file.
func (p *Project) FileMetadata(ctx context.Context, fileID string) (Document, error) {
	var doc Document
	if err := p.c.get(ctx, p.path("file", url.PathEscape(fileID)), nil, &doc); err != nil {
		return nil, fmt.Errorf("project %s file %s: %w", p.ID, fileID, err)
	}
	return doc, nil
}

// FileIngestionStatus returns the ingestion progress of one uploaded file.
func (p *Project) FileIngestionStatus(ctx context.Context, fileID string) (Document, error) {
	var doc Document
	if err := p.c.get(ctx, p.path("file", url.PathEscape(fileID), "ingestion-status"), nil, &doc); err != nil {
		return nil, fmt.Errorf("project %s file %s ingestion status: %w", p.ID, fileID, err)
	}
	return doc, nil
}

// doJSON is do for endpoints whose success status matters.
func (p *Project) doJSON(ctx context.Context, method, path string, body any) (int, error) {
	payload, contentType, err := encodeJSON(body)
	if err != nil {
		return 0, err
	}
	return p.c.doRaw(ctx, method, path, contentType, payload, nil)
}

func mimeTypeOf(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	mt, ok := fileMIMETypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}
	return mt, nil
}

func expectStatus(got, want int, op string) error {
	if got != want {
		return fmt.Errorf("%s: unexpected status %d, want %d", op, got, want)
	}
	return nil
}
