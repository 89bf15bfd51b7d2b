package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/m3l0x42/flipply/internal/ebay"
	"github.com/m3l0x42/flipply/internal/ledger"
	"github.com/m3l0x42/flipply/internal/llm"
	"github.com/m3l0x42/flipply/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	result      *pipeline.Result
	err         error
	calls       int
	gotMIMEType string
}

func (f *fakePipeline) Run(ctx context.Context, imageData []byte, mimeType string) (*pipeline.Result, error) {
	f.calls++
	f.gotMIMEType = mimeType
	return f.result, f.err
}

type fakeLister struct {
	result   *ebay.ListingResult
	err      error
	endFound bool
	endErr   error
	calls    int
	gotReq   *ebay.ListingRequest
	gotEndID string
}

func (f *fakeLister) CreateListing(ctx context.Context, req *ebay.ListingRequest) (*ebay.ListingResult, error) {
	f.calls++
	f.gotReq = req
	return f.result, f.err
}

func (f *fakeLister) EndListing(ctx context.Context, itemID string) (bool, error) {
	f.gotEndID = itemID
	return f.endFound, f.endErr
}

type fakeLedger struct {
	records []ledger.ListingRecord
	err     error
}

func (f *fakeLedger) List() ([]ledger.ListingRecord, error) {
	return f.records, f.err
}

func newTestHandler(p *fakePipeline, l *fakeLister, lr *fakeLedger) http.Handler {
	if p == nil {
		p = &fakePipeline{}
	}
	if l == nil {
		l = &fakeLister{}
	}
	if lr == nil {
		lr = &fakeLedger{}
	}
	return New(p, l, lr).Handler()
}

// multipartBody builds a multipart form with one file part named fieldName
// of the given content type plus optional text fields.
func multipartBody(t *testing.T, fieldName, contentType string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="item.jpg"`, fieldName))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-image-bytes"))
	require.NoError(t, err)

	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeBody(t *testing.T, res *http.Response) map[string]any {
	t.Helper()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	return decoded
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(nil, nil, nil).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")
}

func TestAnalyzeImage(t *testing.T) {
	p := &fakePipeline{result: &pipeline.Result{
		ItemAnalysis:   llm.ItemAnalysis{Item: "Headphones", SearchKeywords: []string{"Sony"}},
		EstimatedPrice: llm.PriceEstimate{Min: 120, Max: 220, Suggested: 175},
	}}
	handler := newTestHandler(p, nil, nil)

	body, contentType := multipartBody(t, "image", "image/jpeg", nil)
	req := httptest.NewRequest("POST", "/analyze-image/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", p.gotMIMEType)

	decoded := decodeBody(t, rec.Result())
	assert.Equal(t, "Headphones", decoded["item"])
	price, ok := decoded["estimatedPrice"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 175.0, price["suggested"])
}

func TestAnalyzeImageRejectsNonImage(t *testing.T) {
	p := &fakePipeline{}
	handler := newTestHandler(p, nil, nil)

	body, contentType := multipartBody(t, "image", "application/pdf", nil)
	req := httptest.NewRequest("POST", "/analyze-image/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// Rejected before the pipeline runs
	assert.Equal(t, 0, p.calls)
}

func TestAnalyzeImageFileFieldFallback(t *testing.T) {
	p := &fakePipeline{result: &pipeline.Result{
		ItemAnalysis:   llm.ItemAnalysis{Item: "Mug"},
		EstimatedPrice: llm.PriceEstimate{Min: 1, Max: 3, Suggested: 2},
	}}
	handler := newTestHandler(p, nil, nil)

	body, contentType := multipartBody(t, "file", "image/jpeg", nil)
	req := httptest.NewRequest("POST", "/analyze-image/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, p.calls)
}

func TestAnalyzeImageMissingFile(t *testing.T) {
	p := &fakePipeline{}
	handler := newTestHandler(p, nil, nil)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("note", "no file here"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/analyze-image/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, p.calls)
}

func TestAnalyzeImageExhaustedRetries(t *testing.T) {
	p := &fakePipeline{err: &pipeline.StageError{
		Stage:            pipeline.StageAnalysis,
		Err:              errors.New("malformed json"),
		RetriesExhausted: true,
	}}
	handler := newTestHandler(p, nil, nil)

	body, contentType := multipartBody(t, "image", "image/jpeg", nil)
	req := httptest.NewRequest("POST", "/analyze-image/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAnalyzeImageNoKeywords(t *testing.T) {
	p := &fakePipeline{err: pipeline.ErrNoKeywords}
	handler := newTestHandler(p, nil, nil)

	body, contentType := multipartBody(t, "image", "image/jpeg", nil)
	req := httptest.NewRequest("POST", "/analyze-image/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyzeImageRemoteFailure(t *testing.T) {
	p := &fakePipeline{err: &pipeline.StageError{
		Stage: pipeline.StageSearch,
		Err:   errors.New("search unavailable"),
	}}
	handler := newTestHandler(p, nil, nil)

	body, contentType := multipartBody(t, "image", "image/jpeg", nil)
	req := httptest.NewRequest("POST", "/analyze-image/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "search unavailable")
}

func listingFields() map[string]string {
	return map[string]string{
		"title":       "Sony Headphones",
		"description": "Lightly used.",
		"price":       "175.00",
		"condition":   "Used - Good",
	}
}

func TestCreateListing(t *testing.T) {
	l := &fakeLister{result: &ebay.ListingResult{
		ItemID:     "110588914268",
		ListingURL: "https://sandbox.ebay.com/itm/110588914268",
		Status:     ebay.AckSuccess,
	}}
	handler := newTestHandler(nil, l, nil)

	body, contentType := multipartBody(t, "image", "image/jpeg", listingFields())
	req := httptest.NewRequest("POST", "/listings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotNil(t, l.gotReq)
	assert.Equal(t, "Sony Headphones", l.gotReq.Title)
	assert.Equal(t, 175.0, l.gotReq.Price)
	assert.Equal(t, []byte("fake-image-bytes"), l.gotReq.ImageData)

	decoded := decodeBody(t, rec.Result())
	assert.Equal(t, "110588914268", decoded["itemId"])
	assert.Equal(t, "Success", decoded["status"])
}

func TestCreateListingMissingFields(t *testing.T) {
	l := &fakeLister{}
	handler := newTestHandler(nil, l, nil)

	fields := listingFields()
	delete(fields, "title")
	body, contentType := multipartBody(t, "image", "image/jpeg", fields)
	req := httptest.NewRequest("POST", "/listings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, l.calls)
}

func TestCreateListingBadPrice(t *testing.T) {
	l := &fakeLister{}
	handler := newTestHandler(nil, l, nil)

	fields := listingFields()
	fields["price"] = "free"
	body, contentType := multipartBody(t, "image", "image/jpeg", fields)
	req := httptest.NewRequest("POST", "/listings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, l.calls)
}

func TestCreateListingAckFailure(t *testing.T) {
	l := &fakeLister{err: &ebay.AckError{
		Call: "AddItem",
		Errors: []ebay.APIError{
			{ShortMessage: "Invalid category", LongMessage: "The category 999 is not valid."},
		},
	}}
	handler := newTestHandler(nil, l, nil)

	body, contentType := multipartBody(t, "image", "image/jpeg", listingFields())
	req := httptest.NewRequest("POST", "/listings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "The category 999 is not valid.")
}

func TestListListings(t *testing.T) {
	lr := &fakeLedger{records: []ledger.ListingRecord{
		{ItemID: "1", Title: "Headphones", CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}}
	rec := httptest.NewRecorder()
	newTestHandler(nil, nil, lr).ServeHTTP(rec, httptest.NewRequest("GET", "/listings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	decoded := decodeBody(t, rec.Result())
	listings, ok := decoded["listings"].([]any)
	require.True(t, ok)
	require.Len(t, listings, 1)
}

func TestListListingsEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(nil, nil, &fakeLedger{}).ServeHTTP(rec, httptest.NewRequest("GET", "/listings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	// Empty array, not null
	assert.Contains(t, rec.Body.String(), `"listings":[]`)
}

func TestEndListing(t *testing.T) {
	l := &fakeLister{endFound: true}
	rec := httptest.NewRecorder()
	newTestHandler(nil, l, nil).ServeHTTP(rec, httptest.NewRequest("DELETE", "/listings/110588914268", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "110588914268", l.gotEndID)
}

func TestEndListingUnknownID(t *testing.T) {
	l := &fakeLister{endFound: false}
	rec := httptest.NewRecorder()
	newTestHandler(nil, l, nil).ServeHTTP(rec, httptest.NewRequest("DELETE", "/listings/999", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEndListingTradingFailure(t *testing.T) {
	l := &fakeLister{endErr: &ebay.AckError{Call: "EndItem"}}
	rec := httptest.NewRecorder()
	newTestHandler(nil, l, nil).ServeHTTP(rec, httptest.NewRequest("DELETE", "/listings/1", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
