package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docflow/internal/llm"
	"github.com/joseph-ayodele/docflow/internal/pipeline"
	"github.com/joseph-ayodele/docflow/internal/raster"
	"github.com/joseph-ayodele/docflow/internal/repository"
)

type fakeOCR struct {
	mu    sync.Mutex
	texts []string // returned in call order; the last repeats
	err   error
	calls int
}

func (f *fakeOCR) ExtractFile(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	i := min(f.calls-1, len(f.texts)-1)
	return f.texts[i], nil
}

func (f *fakeOCR) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type onePageRaster struct{}

func (onePageRaster) Rasterize(context.Context, string) (raster.Pages, error) {
	dir, err := os.MkdirTemp("", "docflow-test-pages-*")
	if err != nil {
		return raster.Pages{}, err
	}
	p := filepath.Join(dir, "page-1.jpg")
	if err := os.WriteFile(p, []byte("jpg"), 0o644); err != nil {
		return raster.Pages{}, err
	}
	return raster.Pages{Dir: dir, Paths: []string{p}}, nil
}

type fixedCompleter struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (c *fixedCompleter) Complete(context.Context, string, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	i := min(c.calls-1, len(c.replies)-1)
	return c.replies[i], nil
}

func (c *fixedCompleter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type harness struct {
	srv       *httptest.Server
	ocr       *fakeOCR
	llm       *fixedCompleter
	staging   *repository.DocumentTable
	verified  *repository.DocumentTable
	uploadDir string
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newHarness(t *testing.T, texts []string, replies []string) *harness {
	t.Helper()
	ctx := context.Background()
	log := discard()

	stagingDB, err := repository.OpenSQLite(ctx, "staging", ":memory:", log)
	require.NoError(t, err)
	verifiedDB, err := repository.OpenSQLite(ctx, "verified", ":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = stagingDB.SQL().Close()
		_ = verifiedDB.SQL().Close()
	})

	h := &harness{
		ocr:       &fakeOCR{texts: texts},
		llm:       &fixedCompleter{replies: replies},
		staging:   repository.NewDocumentTable(stagingDB, "documents", log),
		verified:  repository.NewDocumentTable(verifiedDB, "documents", log),
		uploadDir: t.TempDir(),
	}
	proc := pipeline.NewProcessor(log, h.ocr, onePageRaster{}, llm.NewClient(h.llm, log))

	s := New(Config{
		UploadDir:      h.uploadDir,
		MaxUploadBytes: 1 << 20,
		CORSOrigins:    []string{"http://localhost:5173"},
	}, Deps{
		Processor: proc,
		Staging:   h.staging,
		Verified:  h.verified,
		Pingers: map[string]Pinger{
			"staging":  func(ctx context.Context) error { return stagingDB.SQL().PingContext(ctx) },
			"verified": func(ctx context.Context) error { return verifiedDB.SQL().PingContext(ctx) },
		},
		UI: fstest.MapFS{"index.html": {Data: []byte("<!doctype html><title>docflow</title>")}},
	}, log)

	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(h.srv.Close)
	return h
}

type part struct {
	field, name, contentType string
	data                     []byte
}

func postFiles(t *testing.T, url string, parts ...part) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.name+`"`)
		if p.contentType != "" {
			hdr.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type listBody struct {
	Data    []map[string]any      `json:"data"`
	Results []pipeline.FileResult `json:"results"`
	Error   string                `json:"error"`
	Details json.RawMessage       `json:"details"`
}

func decode(t *testing.T, resp *http.Response) listBody {
	t.Helper()
	var b listBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	return b
}

func (h *harness) uploadsLeft(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(h.uploadDir)
	require.NoError(t, err)
	return entries
}

var pdfBytes = []byte("%PDF-1.4\n%fake\n")

func TestUploadScannedPDF_ExampleScenario(t *testing.T) {
	h := newHarness(t, []string{"Name: John\nAge: 30"}, []string{`{"Name":"John","Age":"30"}`})

	resp := postFiles(t, h.srv.URL+"/api/upload-scanned-pdf",
		part{field: "file", name: "form.pdf", contentType: "application/pdf", data: pdfBytes})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "John", body.Data[0]["Name"])
	assert.Equal(t, "30", body.Data[0]["Age"])
	assert.Empty(t, body.Results)
	assert.Empty(t, h.uploadsLeft(t), "temp upload removed after processing")

	list, err := http.Get(h.srv.URL + "/api/all-documents")
	require.NoError(t, err)
	defer list.Body.Close()
	require.Equal(t, http.StatusOK, list.StatusCode)
	assert.Equal(t, body.Data, decode(t, list).Data)
}

func TestUploadImage_RowCountMatchesStore(t *testing.T) {
	h := newHarness(t, []string{"a"}, []string{`{"k":"v"}`})

	for i := 1; i <= 3; i++ {
		resp := postFiles(t, h.srv.URL+"/api/upload-image",
			part{field: "file", name: "scan.png", contentType: "image/png", data: []byte("png")})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		rows, err := h.staging.ListAll(context.Background())
		require.NoError(t, err)
		assert.Len(t, decode(t, resp).Data, len(rows))
		assert.Len(t, rows, i)
	}
}

func TestUploadImage_SniffsOctetStream(t *testing.T) {
	h := newHarness(t, []string{"a"}, []string{`{"k":"v"}`})
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	resp := postFiles(t, h.srv.URL+"/api/upload-image",
		part{field: "file", name: "blob", contentType: "application/octet-stream", data: png})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, h.ocr.Calls())
}

func TestUploadScannedPDF_RejectsNonPDF(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{`{}`})

	resp := postFiles(t, h.srv.URL+"/api/upload-scanned-pdf",
		part{field: "file", name: "photo.png", contentType: "image/png", data: []byte("png")})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "Invalid file type. Only PDF files are allowed.", body.Error)
	assert.Zero(t, h.ocr.Calls(), "extractor never invoked")
	assert.Empty(t, h.uploadsLeft(t), "rejected upload deleted")
}

func TestUploadImage_RejectsPDF(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{`{}`})

	resp := postFiles(t, h.srv.URL+"/api/upload-image",
		part{field: "file", name: "doc.pdf", contentType: "application/pdf", data: pdfBytes})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Only image files are allowed for this endpoint.", decode(t, resp).Error)
	assert.Empty(t, h.uploadsLeft(t))
}

func TestUpload_MissingFile(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{`{}`})

	resp := postFiles(t, h.srv.URL+"/api/upload-image",
		part{field: "other", name: "a.png", contentType: "image/png", data: []byte("png")})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No file uploaded", decode(t, resp).Error)

	resp = postFiles(t, h.srv.URL+"/api/upload-images")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No files uploaded", decode(t, resp).Error)

	plain, err := http.Post(h.srv.URL+"/api/upload-scanned-pdf", "text/plain", bytes.NewBufferString("hi"))
	require.NoError(t, err)
	defer plain.Body.Close()
	assert.Equal(t, http.StatusBadRequest, plain.StatusCode)
}

func TestUploadImage_SoftFallback(t *testing.T) {
	h := newHarness(t, []string{"garbled"}, []string{"I cannot help with that."})

	resp := postFiles(t, h.srv.URL+"/api/upload-image",
		part{field: "file", name: "a.png", contentType: "image/png", data: []byte("png")})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, llm.NotJSONMarker, body.Error)
	assert.JSONEq(t, `{"raw_text":"garbled","structured_data":"I cannot help with that."}`, string(body.Details))
	assert.Equal(t, 2, h.llm.Calls())

	rows, err := h.staging.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows, "nothing persisted")
}

func TestUploadImage_NestedResult(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{`{"Name":"John","Items":[{"a":1}]}`})

	resp := postFiles(t, h.srv.URL+"/api/upload-image",
		part{field: "file", name: "a.png", contentType: "image/png", data: []byte("png")})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, pipeline.NotFlatMessage, body.Error)
	assert.JSONEq(t, `{"Name":"John","Items":[{"a":1}]}`, string(body.Details))
}

func TestUploadImage_OCRFailure(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{`{}`})
	h.ocr.err = errors.New("ocr: operation failed")

	resp := postFiles(t, h.srv.URL+"/api/upload-image",
		part{field: "file", name: "a.png", contentType: "image/png", data: []byte("png")})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "Image processing failed", body.Error)
	assert.Contains(t, string(body.Details), "operation failed")
	assert.Zero(t, h.llm.Calls())
}

func TestUploadImages_BatchRecordsPerFileOutcomes(t *testing.T) {
	h := newHarness(t, []string{"a"}, []string{`{"Name":"A"}`, `{"Name":"B","City":"Paris"}`})

	resp := postFiles(t, h.srv.URL+"/api/upload-images",
		part{field: "files", name: "a.png", contentType: "image/png", data: []byte("png")},
		part{field: "files", name: "notes.txt", contentType: "text/plain", data: []byte("hello")},
		part{field: "files", name: "b.jpg", contentType: "image/jpeg", data: []byte("jpg")},
	)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	require.Len(t, body.Results, 3)
	assert.Equal(t, "ok", string(body.Results[0].Status))
	assert.Equal(t, "error", string(body.Results[1].Status))
	assert.Equal(t, "Only image files are allowed for this endpoint.", body.Results[1].Error)
	assert.Equal(t, "ok", string(body.Results[2].Status))

	require.Len(t, body.Data, 2)
	assert.Nil(t, body.Data[0]["City"])
	assert.Equal(t, "Paris", body.Data[1]["City"])
	assert.Equal(t, 2, h.ocr.Calls())
	assert.Empty(t, h.uploadsLeft(t))
}

func TestUploadImages_NestedReplyIsStored(t *testing.T) {
	h := newHarness(t, []string{"a"}, []string{`{"Name":"John","Address":{"city":"X"}}`})

	resp := postFiles(t, h.srv.URL+"/api/upload-images",
		part{field: "files", name: "a.png", contentType: "image/png", data: []byte("png")})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "ok", string(body.Results[0].Status))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "John", body.Data[0]["Name"])
	assert.Equal(t, `{"city":"X"}`, body.Data[0]["Address"])
}

func TestUploadScannedPDFs_AllFailStillLists(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{"nope"})

	resp := postFiles(t, h.srv.URL+"/api/upload-scanned-pdfs",
		part{field: "files", name: "a.pdf", contentType: "application/pdf", data: pdfBytes})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	require.Len(t, body.Results, 1)
	assert.Equal(t, llm.NotJSONMarker, body.Results[0].Error)
	assert.NotNil(t, body.Data)
	assert.Empty(t, body.Data)
}

func TestUploadImages_TooMany(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{`{}`})
	var parts []part
	for i := 0; i < 11; i++ {
		parts = append(parts, part{field: "files", name: "a.png", contentType: "image/png", data: []byte("png")})
	}
	resp := postFiles(t, h.srv.URL+"/api/upload-images", parts...)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, h.ocr.Calls())
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSaveVerified_UnionOfColumns(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{`{}`})

	resp := postJSON(t, h.srv.URL+"/api/save-verified",
		`{"data":[{"Name":"John","Age":"30"},{"Name":"Jane","City":"Paris","Tags":["a","b"]}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
	assert.True(t, ok["success"])

	cols, err := h.verified.Columns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Age", "City", "Tags"}, cols)

	list, err := http.Get(h.srv.URL + "/api/verified-documents")
	require.NoError(t, err)
	defer list.Body.Close()
	rows := decode(t, list).Data
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0]["City"])
	assert.Nil(t, rows[1]["Age"])
	assert.Equal(t, `["a","b"]`, rows[1]["Tags"])
}

func TestSaveVerified_Rejects(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{`{}`})

	for name, payload := range map[string]string{
		"empty array":  `{"data":[]}`,
		"missing data": `{}`,
		"not json":     `data=1`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := postJSON(t, h.srv.URL+"/api/save-verified", payload)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "No data provided", decode(t, resp).Error)
		})
	}

	resp := postJSON(t, h.srv.URL+"/api/save-verified", `{"data":[{"a":"b"}, 42]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	rows, err := h.verified.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExportEndpoints(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{`{"Name":"John"}`})
	postFiles(t, h.srv.URL+"/api/upload-image",
		part{field: "file", name: "a.png", contentType: "image/png", data: []byte("png")})

	for _, path := range []string{"/api/all-documents/export", "/api/verified-documents/export"} {
		resp, err := http.Get(h.srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	}
}

func TestHealthAndIndex(t *testing.T) {
	h := newHarness(t, []string{"x"}, []string{`{}`})

	resp, err := http.Get(h.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	idx, err := http.Get(h.srv.URL + "/")
	require.NoError(t, err)
	defer idx.Body.Close()
	assert.Equal(t, http.StatusOK, idx.StatusCode)
	assert.Contains(t, idx.Header.Get("Content-Type"), "text/html")
}

func TestHealth_StoreDown(t *testing.T) {
	s := New(Config{}, Deps{Pingers: map[string]Pinger{
		"staging": func(context.Context) error { return errors.New("connection refused") },
	}}, discard())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","stores":{"staging":"connection refused"}}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s := New(Config{CORSOrigins: []string{"http://localhost:5173"}}, Deps{}, discard())

	req := httptest.NewRequest(http.MethodOptions, "/api/upload-image", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/upload-image", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
