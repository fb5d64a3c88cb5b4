package handler_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/acme/dataroom/internal/handler"
	"github.com/acme/dataroom/internal/model"
	"github.com/acme/dataroom/internal/store/memory"
)

func idRequest(method string, id string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod:     method,
		Path:           "/files/" + id,
		PathParameters: map[string]string{"id": id},
	}
}

func seedFile(t *testing.T, st *memory.Store, name, content string) *model.ImportedFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing seed content: %v", err)
	}
	f := &model.ImportedFile{
		Name:      name,
		MIMEType:  "application/pdf",
		Size:      int64(len(content)),
		DriveID:   "drive-" + name,
		LocalPath: path,
	}
	if err := st.Insert(context.Background(), f); err != nil {
		t.Fatalf("seeding store: %v", err)
	}
	return f
}

func TestFileHandler_List(t *testing.T) {
	st := memory.New()
	seedFile(t, st, "a.pdf", "aaa")
	seedFile(t, st, "b.pdf", "bbb")
	h := handler.NewFileHandler(st)

	resp, err := h.List(context.Background(), events.APIGatewayProxyRequest{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}

	var body struct {
		Files []model.ImportedFile `json:"files"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("Failed to unmarshal body: %v", err)
	}
	if len(body.Files) != 2 {
		t.Errorf("Expected 2 files, got %d", len(body.Files))
	}
}

func TestFileHandler_Search(t *testing.T) {
	st := memory.New()
	seedFile(t, st, "Invoice.pdf", "x")
	seedFile(t, st, "report.pdf", "y")
	h := handler.NewFileHandler(st)

	req := events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"q": "invoice"},
	}
	resp, err := h.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}

	var body struct {
		Files []model.ImportedFile `json:"files"`
	}
	json.Unmarshal([]byte(resp.Body), &body)
	if len(body.Files) != 1 || body.Files[0].Name != "Invoice.pdf" {
		t.Errorf("Expected [Invoice.pdf], got %v", body.Files)
	}
}

func TestFileHandler_View(t *testing.T) {
	st := memory.New()
	f := seedFile(t, st, "doc.pdf", "pdf content here")
	h := handler.NewFileHandler(st)

	resp, err := h.View(context.Background(), idRequest("GET", strconv.FormatInt(f.ID, 10)))
	if err != nil {
		t.Fatalf("View returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	if !resp.IsBase64Encoded {
		t.Error("Expected a base64-encoded body")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Body)
	if err != nil {
		t.Fatalf("Body is not valid base64: %v", err)
	}
	if string(raw) != "pdf content here" {
		t.Errorf("Content mismatch: got %q", raw)
	}
	if resp.Headers["Content-Type"] != "application/pdf" {
		t.Errorf("Expected Content-Type application/pdf, got %s", resp.Headers["Content-Type"])
	}
	if resp.Headers["Content-Disposition"] != `inline; filename="doc.pdf"` {
		t.Errorf("Unexpected Content-Disposition: %s", resp.Headers["Content-Disposition"])
	}
}

func TestFileHandler_View_NotFound(t *testing.T) {
	h := handler.NewFileHandler(memory.New())

	resp, _ := h.View(context.Background(), idRequest("GET", "42"))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	var body map[string]string
	json.Unmarshal([]byte(resp.Body), &body)
	if body["error"] != "file not found" {
		t.Errorf("Expected 'file not found', got %q", body["error"])
	}
}

func TestFileHandler_View_ContentMissing(t *testing.T) {
	st := memory.New()
	f := seedFile(t, st, "gone.pdf", "x")
	os.Remove(f.LocalPath)
	h := handler.NewFileHandler(st)

	resp, _ := h.View(context.Background(), idRequest("GET", strconv.FormatInt(f.ID, 10)))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	var body map[string]string
	json.Unmarshal([]byte(resp.Body), &body)
	if body["error"] != "file content missing from storage" {
		t.Errorf("Expected the content-missing message, got %q", body["error"])
	}
}

func TestFileHandler_View_InvalidID(t *testing.T) {
	h := handler.NewFileHandler(memory.New())

	for _, raw := range []string{"abc", "-1", "0", ""} {
		resp, _ := h.View(context.Background(), idRequest("GET", raw))
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("id %q: expected 400, got %d", raw, resp.StatusCode)
		}
	}
}

func TestFileHandler_Delete(t *testing.T) {
	st := memory.New()
	f := seedFile(t, st, "doc.pdf", "bytes")
	h := handler.NewFileHandler(st)
	ctx := context.Background()

	resp, err := h.Delete(ctx, idRequest("DELETE", strconv.FormatInt(f.ID, 10)))
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
	}

	if _, err := os.Stat(f.LocalPath); !os.IsNotExist(err) {
		t.Error("Expected content removed from disk")
	}
	if _, err := st.Get(ctx, f.ID); err == nil {
		t.Error("Expected metadata row removed")
	}

	// Deleting again is a 404.
	resp, _ = h.Delete(ctx, idRequest("DELETE", strconv.FormatInt(f.ID, 10)))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 on repeat delete, got %d", resp.StatusCode)
	}
}

func TestFileHandler_Delete_ContentAlreadyGone(t *testing.T) {
	st := memory.New()
	f := seedFile(t, st, "gone.pdf", "x")
	os.Remove(f.LocalPath)
	h := handler.NewFileHandler(st)

	resp, _ := h.Delete(context.Background(), idRequest("DELETE", strconv.FormatInt(f.ID, 10)))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 when content is already gone, got %d", resp.StatusCode)
	}
}
