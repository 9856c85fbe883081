package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"lumifax/internal/dto"
	"lumifax/internal/models"
	"lumifax/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEngine completes each file after a fixed number of polls; file names
// listed in failing are reported as failed analyses.
type fakeEngine struct {
	mu      sync.Mutex
	polls   int
	failing map[string]bool
	begun   []string
}

type fakeOperation struct {
	engine    *fakeEngine
	fileName  string
	remaining int
}

func (e *fakeEngine) BeginAnalysis(_ context.Context, _ string, fileName string, _ []byte) (AnalysisOperation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.begun = append(e.begun, fileName)
	return &fakeOperation{engine: e, fileName: fileName, remaining: e.polls}, nil
}

func (o *fakeOperation) Poll(context.Context) (*OperationStatus, error) {
	if o.remaining > 0 {
		o.remaining--
		return &OperationStatus{State: OperationRunning}, nil
	}
	if o.engine.failing[o.fileName] {
		return &OperationStatus{State: OperationFailed, Error: "unreadable document"}, nil
	}
	return &OperationStatus{
		State: OperationSucceeded,
		Fields: map[string]models.ExtractedField{
			"InvoiceTotal": {Content: "123.45", Confidence: 0.97, Type: "currency"},
		},
	}, nil
}

type fakeDocStore struct {
	mu   sync.Mutex
	docs []*models.Document
}

func (s *fakeDocStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return nil
}

func (s *fakeDocStore) ListBySessionID(_ context.Context, sessionID string) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Document
	for _, doc := range s.docs {
		if doc.SessionID == sessionID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *fakeDocStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func testConfig() config.Config {
	return config.Config{
		Analysis: config.AnalysisConfig{
			PollInterval: time.Millisecond,
			PollTimeout:  time.Second,
		},
		Stream: config.StreamConfig{
			AttachWait:         5 * time.Millisecond,
			AttachPollInterval: time.Millisecond,
			MessageDelay:       0,
			MaxAttempts:        2,
			RetryBackoff:       time.Millisecond,
		},
		Batch: config.BatchConfig{MaxFiles: 20},
	}
}

func newTestBatchService(engine AnalysisEngine, docs DocumentStore) (*BatchService, *SessionStore, *ProgressEmitter) {
	cfg := testConfig()
	store := NewSessionStore()
	emitter := NewProgressEmitter(cfg.Stream, zap.NewNop())
	return NewBatchService(store, emitter, engine, docs, cfg, zap.NewNop()), store, emitter
}

func waitForTerminal(t *testing.T, store *SessionStore, sessionID string) *models.Session {
	t.Helper()
	require.Eventually(t, func() bool {
		sess, ok := store.Get(sessionID)
		return ok && sess.Status.Terminal()
	}, 5*time.Second, 2*time.Millisecond)
	sess, _ := store.Get(sessionID)
	return sess
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _ := newTestBatchService(&fakeEngine{}, nil)

	tests := []struct {
		name    string
		files   []UploadedFile
		modelID string
		wantErr error
	}{
		{"no files", nil, "m1", ErrNoFiles},
		{"no model", []UploadedFile{{Name: "a.png"}}, "", ErrNoModel},
		{"too many files", make([]UploadedFile, 21), "m1", ErrTooManyFiles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(tt.files, tt.modelID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubmitReturnsImmediately(t *testing.T) {
	engine := &fakeEngine{polls: 50}
	svc, store, _ := newTestBatchService(engine, nil)

	start := time.Now()
	sessionID, err := svc.Submit([]UploadedFile{{Name: "a.png", Content: []byte("x")}}, "m1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	sess, ok := store.Get(sessionID)
	require.True(t, ok)
	assert.Equal(t, models.StatusProcessing, sess.Status)

	waitForTerminal(t, store, sessionID)
}

func TestBatchCompletesAllFiles(t *testing.T) {
	engine := &fakeEngine{polls: 2}
	docs := &fakeDocStore{}
	svc, store, _ := newTestBatchService(engine, docs)

	files := []UploadedFile{
		{Name: "a.png", Content: []byte("a")},
		{Name: "b.png", Content: []byte("b")},
		{Name: "c.png", Content: []byte("c")},
	}
	sessionID, err := svc.Submit(files, "prebuilt-invoice")
	require.NoError(t, err)

	sess := waitForTerminal(t, store, sessionID)
	assert.Equal(t, models.StatusSuccess, sess.Status)
	assert.Equal(t, 100, sess.Progress)
	require.Len(t, sess.Results, 3)

	// Submission order is preserved.
	assert.Equal(t, "a.png", sess.Results[0].FileName)
	assert.Equal(t, "c.png", sess.Results[2].FileName)
	assert.Equal(t, "prebuilt-invoice", sess.Results[0].ModelID)
	assert.Equal(t, "123.45", sess.Results[0].Fields["InvoiceTotal"].Content)

	assert.Equal(t, 3, docs.count())
}

func TestFailedFileIsSkipped(t *testing.T) {
	engine := &fakeEngine{failing: map[string]bool{"b.png": true}}
	svc, store, _ := newTestBatchService(engine, nil)

	files := []UploadedFile{
		{Name: "a.png", Content: []byte("a")},
		{Name: "b.png", Content: []byte("b")},
		{Name: "c.png", Content: []byte("c")},
	}
	sessionID, err := svc.Submit(files, "m1")
	require.NoError(t, err)

	sess := waitForTerminal(t, store, sessionID)
	assert.Equal(t, models.StatusSuccess, sess.Status)
	require.Len(t, sess.Results, 2)
	assert.Equal(t, "a.png", sess.Results[0].FileName)
	assert.Equal(t, "c.png", sess.Results[1].FileName)

	// The failed file was still attempted.
	assert.Contains(t, engine.begun, "b.png")
}

func TestAllFilesFailing(t *testing.T) {
	engine := &fakeEngine{failing: map[string]bool{"a.png": true, "b.png": true}}
	svc, store, _ := newTestBatchService(engine, nil)

	sessionID, err := svc.Submit([]UploadedFile{
		{Name: "a.png", Content: []byte("a")},
		{Name: "b.png", Content: []byte("b")},
	}, "m1")
	require.NoError(t, err)

	sess := waitForTerminal(t, store, sessionID)
	assert.Equal(t, models.StatusSuccess, sess.Status)
	assert.Empty(t, sess.Results)
}

func TestSingleFileEventSequence(t *testing.T) {
	engine := &fakeEngine{polls: 1}
	svc, store, emitter := newTestBatchService(engine, nil)

	ch := &fakeChannel{}
	sessionID, err := svc.Submit([]UploadedFile{{Name: "a.png", Content: []byte("a")}}, "m1")
	require.NoError(t, err)
	emitter.Attach(sessionID, ch)

	waitForTerminal(t, store, sessionID)
	require.Eventually(t, func() bool {
		return len(ch.payloads()) >= 3
	}, 5*time.Second, 2*time.Millisecond)

	var events []dto.ProgressEvent
	for _, payload := range ch.payloads() {
		var event dto.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &event))
		events = append(events, event)
	}

	// Progress 0 before the file, then the accumulated snapshot, then the
	// terminal event.
	assert.Equal(t, 0, events[0].Progress)
	assert.Equal(t, "processing", events[0].Status)

	last := events[len(events)-1]
	assert.Equal(t, "success", last.Status)
	assert.Equal(t, 100, last.Progress)
	require.Len(t, last.Results, 1)
	assert.Equal(t, "a.png", last.Results[0].FileName)

	// Progress never decreases across the stream.
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Progress, events[i-1].Progress)
	}
}

func TestProgressPublishedPerFile(t *testing.T) {
	engine := &fakeEngine{}
	svc, store, emitter := newTestBatchService(engine, nil)

	ch := &fakeChannel{}
	files := []UploadedFile{
		{Name: "a.png", Content: []byte("a")},
		{Name: "b.png", Content: []byte("b")},
		{Name: "c.png", Content: []byte("c")},
		{Name: "d.png", Content: []byte("d")},
	}
	sessionID, err := svc.Submit(files, "m1")
	require.NoError(t, err)
	emitter.Attach(sessionID, ch)

	waitForTerminal(t, store, sessionID)
	require.Eventually(t, func() bool {
		payloads := ch.payloads()
		if len(payloads) == 0 {
			return false
		}
		var last dto.ProgressEvent
		if err := json.Unmarshal([]byte(payloads[len(payloads)-1]), &last); err != nil {
			return false
		}
		return last.Status == "success"
	}, 5*time.Second, 2*time.Millisecond)

	seen := map[int]bool{}
	for _, payload := range ch.payloads() {
		var event dto.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &event))
		seen[event.Progress] = true
	}
	// (index/total)*100 rounded: 0, 25, 50, 75, then the terminal 100.
	for _, want := range []int{25, 50, 75, 100} {
		assert.Truef(t, seen[want], "missing progress value %d", want)
	}
}
