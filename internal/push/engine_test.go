package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parseledger/document-pipeline-service/internal/models"
)

type fakeStore struct {
	created     *models.PushJob
	started     []uuid.UUID
	startErr    error
	completed   []uuid.UUID
	response    json.RawMessage
	failed      []uuid.UUID
	failMessage string
	approved    []uuid.UUID
	docStatuses map[uuid.UUID]models.DocStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{docStatuses: make(map[uuid.UUID]models.DocStatus)}
}

func (s *fakeStore) CreateJob(ctx context.Context, job *models.PushJob) error {
	s.created = job
	return nil
}

func (s *fakeStore) StartJob(ctx context.Context, id uuid.UUID) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = append(s.started, id)
	return nil
}

func (s *fakeStore) CompleteJob(ctx context.Context, id uuid.UUID, response json.RawMessage) error {
	s.completed = append(s.completed, id)
	s.response = response
	return nil
}

func (s *fakeStore) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	s.failed = append(s.failed, id)
	s.failMessage = message
	return nil
}

func (s *fakeStore) ApproveRecord(ctx context.Context, recordID uuid.UUID, reviewedBy string) error {
	s.approved = append(s.approved, recordID)
	return nil
}

func (s *fakeStore) SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status models.DocStatus) error {
	s.docStatuses[documentID] = status
	return nil
}

type fakeFiles struct {
	filename string
	data     []byte
}

func (f *fakeFiles) UploadExport(ctx context.Context, filename string, data []byte) (string, error) {
	f.filename = filename
	f.data = data
	return "exports/2026/08/" + filename, nil
}

func testRecord() *models.Record {
	return &models.Record{
		ID:         uuid.New(),
		DocumentID: uuid.New(),
		RecordType: models.DocTypeReceipt,
		Status:     models.RecordStatusPendingReview,
		NormalizedData: map[string]any{
			"merchant_name": "METRO",
			"total":         12.5,
		},
	}
}

func webhookConnection(url, secret string) *models.Connection {
	meta, _ := json.Marshal(models.WebhookMeta{URL: url, Secret: secret})
	return &models.Connection{
		ID:      uuid.New(),
		Adapter: models.AdapterWebhook,
		Status:  models.ConnectionStatusActive,
		Meta:    meta,
	}
}

func TestSignKnownDigest(t *testing.T) {
	// Fixed body and secret with a known digest, so a wrong hash, a
	// swapped key/message, or a changed serialization cannot slip through
	body := []byte(`{"merchant_name":"METRO","total":12.5}`)

	assert.Equal(t,
		"159bdeef07b99d2d5f813622f7ef7d8470ae8d4dc107e06b4cfd27b6cf45ea41",
		Sign(body, "s3cr3t123"))
	assert.Equal(t,
		"73e8b2141d545bc0ce66f5f8983c0044bae11f6712e53dcb397fb2d275ca109c",
		Sign(body, "abc"))
}

func TestDispatchWebhookSuccess(t *testing.T) {
	var receivedBody []byte
	var receivedSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		receivedSig = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	store := newFakeStore()
	engine := NewEngine(store, nil)
	record := testRecord()
	conn := webhookConnection(server.URL, "sekrit")

	job, err := engine.Dispatch(context.Background(), record, conn, nil, "user-1")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusSuccess, job.Status)
	assert.Equal(t, Sign(receivedBody, "sekrit"), receivedSig)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(receivedBody, &sent))
	assert.Equal(t, "METRO", sent["merchant_name"])

	assert.Equal(t, []uuid.UUID{job.ID}, store.started)
	assert.Equal(t, []uuid.UUID{job.ID}, store.completed)
	assert.Equal(t, []uuid.UUID{record.ID}, store.approved)
	assert.Equal(t, models.DocStatusPushed, store.docStatuses[record.DocumentID])
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
}

func TestDispatchWebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newFakeStore()
	engine := NewEngine(store, nil)
	record := testRecord()

	job, err := engine.Dispatch(context.Background(), record, webhookConnection(server.URL, ""), nil, "user-1")
	require.Error(t, err)
	require.NotNil(t, job)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "webhook returned 500")

	assert.Equal(t, []uuid.UUID{job.ID}, store.failed)
	assert.Empty(t, store.completed)
	assert.Empty(t, store.approved)
	assert.NotContains(t, store.docStatuses, record.DocumentID)
}

func TestDispatchWebhookNoSecretNoSignature(t *testing.T) {
	var sig string
	var hasSig bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get("X-Signature")
		_, hasSig = r.Header["X-Signature"]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine := NewEngine(newFakeStore(), nil)
	_, err := engine.Dispatch(context.Background(), testRecord(), webhookConnection(server.URL, ""), nil, "user-1")
	require.NoError(t, err)
	assert.False(t, hasSig, "unexpected signature header %q", sig)
}

func TestDispatchStopsWhenStartTransitionLost(t *testing.T) {
	// A concurrent duplicate dispatch can win the queued to running
	// transition first; this dispatch must then stop before the adapter runs
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newFakeStore()
	store.startErr = pgx.ErrNoRows
	engine := NewEngine(store, nil)
	record := testRecord()

	_, err := engine.Dispatch(context.Background(), record, webhookConnection(server.URL, ""), nil, "user-1")
	require.Error(t, err)

	assert.Zero(t, hits, "adapter must not run after a lost transition")
	assert.Empty(t, store.completed)
	assert.Empty(t, store.approved)
	assert.NotContains(t, store.docStatuses, record.DocumentID)
}

func TestDispatchRejectsInactiveConnection(t *testing.T) {
	engine := NewEngine(newFakeStore(), nil)
	conn := webhookConnection("http://example.invalid", "")
	conn.Status = models.ConnectionStatusDisconnected

	_, err := engine.Dispatch(context.Background(), testRecord(), conn, nil, "user-1")
	assert.Error(t, err)
}

func TestDispatchCSV(t *testing.T) {
	meta, _ := json.Marshal(models.CSVMeta{Delimiter: ";", DecimalSeparator: ","})
	conn := &models.Connection{
		ID:      uuid.New(),
		Adapter: models.AdapterCSV,
		Status:  models.ConnectionStatusActive,
		Meta:    meta,
	}

	store := newFakeStore()
	files := &fakeFiles{}
	engine := NewEngine(store, files)

	job, err := engine.Dispatch(context.Background(), testRecord(), conn, nil, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, job.Status)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(job.ResponsePayload, &resp))

	// sorted header row, then values with the configured separators
	assert.Equal(t, "merchant_name;total\nMETRO;12,5\n", resp["content"])
	assert.True(t, strings.HasPrefix(resp["filename"].(string), "record_"))
	assert.Equal(t, "exports/2026/08/"+resp["filename"].(string), resp["storage_path"])
	assert.Equal(t, []byte(resp["content"].(string)), files.data)
}

func TestCSVCellQuoting(t *testing.T) {
	assert.Equal(t, "plain", csvCell("plain", ",", "."))
	assert.Equal(t, "\"a,b\"", csvCell("a,b", ",", "."))
	assert.Equal(t, "\"say \"\"hi\"\"\"", csvCell(`say "hi"`, ",", "."))
	assert.Equal(t, "12.5", csvCell(12.5, ";", "."))
	assert.Equal(t, "\"12,5\"", csvCell(12.5, ",", ","))
	assert.Equal(t, "", csvCell(nil, ",", "."))
	assert.Equal(t, "true", csvCell(true, ",", "."))
}

func TestDispatchMockERP(t *testing.T) {
	meta, _ := json.Marshal(models.TokenMeta{AccountID: "123"})
	conn := &models.Connection{
		ID:      uuid.New(),
		Adapter: models.AdapterQuickBooks,
		Status:  models.ConnectionStatusActive,
		Meta:    meta,
	}

	engine := NewEngine(newFakeStore(), nil)
	job, err := engine.Dispatch(context.Background(), testRecord(), conn, nil, "user-1")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(job.ResponsePayload, &resp))
	assert.True(t, strings.HasPrefix(resp["ack_id"].(string), "MOCK-QUICKBOOKS-"))
	assert.Equal(t, "quickbooks", resp["adapter"])
	assert.Equal(t, "accepted", resp["status"])

	// the ack echoes the pushed payload
	assert.Equal(t, map[string]any{"merchant_name": "METRO", "total": 12.5}, resp["payload"])
}

func TestDispatchAppliesFieldMap(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine := NewEngine(newFakeStore(), nil)
	fm := &models.FieldMap{Map: map[string]string{"Vendor": "merchant_name"}}

	job, err := engine.Dispatch(context.Background(), testRecord(), webhookConnection(server.URL, ""), fm, "user-1")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"Vendor": "METRO"}, received)
	assert.Equal(t, map[string]any{"Vendor": "METRO"}, job.RequestPayload)
}

func TestTestWebhook(t *testing.T) {
	var received map[string]any
	var sig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		sig = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newFakeStore()
	engine := NewEngine(store, nil)
	conn := webhookConnection(server.URL, "sekrit")

	require.NoError(t, engine.TestWebhook(context.Background(), conn))

	assert.Equal(t, "connection.test", received["event"])
	assert.Equal(t, conn.ID.String(), received["connection_id"])
	_, err := time.Parse(time.RFC3339, received["sent_at"].(string))
	assert.NoError(t, err)
	assert.NotEmpty(t, sig)

	// a test ping creates no jobs and changes no state
	assert.Nil(t, store.created)
	assert.Empty(t, store.started)
}

func TestTestWebhookRejectsOtherAdapters(t *testing.T) {
	engine := NewEngine(newFakeStore(), nil)
	conn := &models.Connection{ID: uuid.New(), Adapter: models.AdapterCSV, Status: models.ConnectionStatusActive}
	assert.Error(t, engine.TestWebhook(context.Background(), conn))
}
