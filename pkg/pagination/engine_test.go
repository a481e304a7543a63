package pagination_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/sherpa-tap/internal/testutil"
	"github.com/Sternrassler/sherpa-tap/pkg/pagination"
	"github.com/Sternrassler/sherpa-tap/pkg/retry"
	"github.com/Sternrassler/sherpa-tap/pkg/state"
)

const (
	testStream  = "changed_items"
	testItemKey = "ItemCodeToken"
)

func fastRetry() *retry.Policy {
	return retry.New(retry.Config{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
	})
}

func itemMapper() pagination.RecordMapper {
	return pagination.MapperFunc(func(item pagination.RawItem) (pagination.Record, bool) {
		code, _ := item["ItemCode"].(string)
		if code == "" {
			return nil, false
		}
		return pagination.Record{
			"item_code":   code,
			"item_status": item["ItemStatus"],
		}, true
	})
}

func testJob() pagination.Job {
	return pagination.Job{
		Stream:   testStream,
		Service:  "ChangedItems",
		ItemPath: "ResponseValue." + testItemKey,
		Mapper:   itemMapper(),
	}
}

func openStore(t *testing.T, backend state.Backend) *state.Store {
	t.Helper()
	store, err := state.Open(context.Background(), backend, zerolog.Nop())
	if err != nil {
		t.Fatalf("state.Open() error = %v", err)
	}
	return store
}

func seeded(stream, cursor string) *state.Document {
	doc := state.NewDocument()
	doc.Bookmarks[stream] = state.Bookmark{
		ReplicationKey:      state.DefaultReplicationKey,
		ReplicationKeyValue: cursor,
	}
	return doc
}

func newEngine(t *testing.T, fetcher pagination.Fetcher, store pagination.StateStore, sink pagination.Sink) *pagination.Engine {
	t.Helper()
	logger := zerolog.Nop()
	engine, err := pagination.New(pagination.Config{
		Fetcher: fetcher,
		Retry:   fastRetry(),
		Store:   store,
		Sink:    sink,
		Logger:  &logger,
	})
	if err != nil {
		t.Fatalf("pagination.New() error = %v", err)
	}
	return engine
}

func TestNew_Validation(t *testing.T) {
	store := openStore(t, state.NewMemoryBackend(nil))
	sink := testutil.NewRecordSink()
	feed := testutil.NewFeed(testItemKey, 0)

	tests := []struct {
		name string
		cfg  pagination.Config
	}{
		{name: "missing fetcher", cfg: pagination.Config{Store: store, Sink: sink}},
		{name: "missing store", cfg: pagination.Config{Fetcher: feed, Sink: sink}},
		{name: "missing sink", cfg: pagination.Config{Fetcher: feed, Store: store}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := pagination.New(tt.cfg); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestRun_InvalidJob(t *testing.T) {
	store := openStore(t, state.NewMemoryBackend(nil))
	feed := testutil.NewFeed(testItemKey, 0, 5)
	engine := newEngine(t, feed, store, testutil.NewRecordSink())

	tests := []struct {
		name string
		job  pagination.Job
	}{
		{name: "missing stream", job: pagination.Job{Service: "ChangedItems", Mapper: itemMapper()}},
		{name: "missing service", job: pagination.Job{Stream: testStream, Mapper: itemMapper()}},
		{name: "missing mapper", job: pagination.Job{Stream: testStream, Service: "ChangedItems"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Run(context.Background(), tt.job)
			if !errors.Is(err, pagination.ErrInvalidJob) {
				t.Errorf("Run() error = %v, want ErrInvalidJob", err)
			}
		})
	}

	if feed.Calls() != 0 {
		t.Errorf("fetch calls = %d, want 0", feed.Calls())
	}
}

func TestRun_ExampleScenario(t *testing.T) {
	fetcher := &testutil.ScriptedFetcher{
		Pages: []pagination.Envelope{
			testutil.Envelope(12, testItemKey, testutil.Items(5, 7, 3)),
			testutil.Envelope(12, testItemKey, nil),
		},
	}
	store := openStore(t, state.NewMemoryBackend(nil))
	sink := testutil.NewRecordSink()
	engine := newEngine(t, fetcher, store, sink)

	res, err := engine.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := sink.Count(testStream); got != 3 {
		t.Errorf("records = %d, want 3", got)
	}
	if fetcher.Calls() != 2 {
		t.Fatalf("fetch calls = %d, want 2", fetcher.Calls())
	}
	if fetcher.Requests[0].Cursor != 1 {
		t.Errorf("first cursor = %d, want 1", fetcher.Requests[0].Cursor)
	}
	if fetcher.Requests[1].Cursor != 7 {
		t.Errorf("second cursor = %d, want 7", fetcher.Requests[1].Cursor)
	}

	st, ok := store.State(testStream)
	if !ok {
		t.Fatal("State() missing after run")
	}
	if st.Cursor != 7 {
		t.Errorf("Cursor = %d, want 7", st.Cursor)
	}
	if st.TotalRecordsProcessed != 3 {
		t.Errorf("TotalRecordsProcessed = %d, want 3", st.TotalRecordsProcessed)
	}
	if st.LastSync.IsZero() {
		t.Error("LastSync not stamped")
	}

	if res.Stop != pagination.StopEmptyPage {
		t.Errorf("Stop = %q, want %q", res.Stop, pagination.StopEmptyPage)
	}
	if res.StartCursor != 1 || res.FinalCursor != 7 {
		t.Errorf("cursors = %d -> %d, want 1 -> 7", res.StartCursor, res.FinalCursor)
	}
	if res.Pages != 2 || res.Emitted != 3 {
		t.Errorf("Pages = %d, Emitted = %d, want 2, 3", res.Pages, res.Emitted)
	}
}

func TestRun_RecordShape(t *testing.T) {
	fetcher := &testutil.ScriptedFetcher{
		Pages: []pagination.Envelope{
			testutil.Envelope(15, testItemKey, testutil.Items(5)),
		},
	}
	store := openStore(t, state.NewMemoryBackend(nil))
	sink := testutil.NewRecordSink()
	engine := newEngine(t, fetcher, store, sink)

	if _, err := engine.Run(context.Background(), testJob()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	recs := sink.Records[testStream]
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec["item_code"] != "ITEM-5" {
		t.Errorf("item_code = %v, want ITEM-5", rec["item_code"])
	}
	if rec["token"] != uint64(5) {
		t.Errorf("token = %v (%T), want 5", rec["token"], rec["token"])
	}
	if rec[pagination.ResponseTimeKey] != 15.0 {
		t.Errorf("response_time = %v, want 15", rec[pagination.ResponseTimeKey])
	}
}

func TestRun_FractionalResponseTime(t *testing.T) {
	env := testutil.Envelope(0, testItemKey, testutil.Items(5))
	env["ResponseTime"] = "12.75"
	fetcher := &testutil.ScriptedFetcher{Pages: []pagination.Envelope{env}}
	store := openStore(t, state.NewMemoryBackend(nil))
	sink := testutil.NewRecordSink()
	engine := newEngine(t, fetcher, store, sink)

	if _, err := engine.Run(context.Background(), testJob()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	recs := sink.Records[testStream]
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if got := recs[0][pagination.ResponseTimeKey]; got != 12.75 {
		t.Errorf("response_time = %v, want 12.75", got)
	}
}

func TestRun_MapperTokenWins(t *testing.T) {
	job := testJob()
	job.Mapper = pagination.MapperFunc(func(item pagination.RawItem) (pagination.Record, bool) {
		return pagination.Record{"token": "mapped"}, true
	})

	fetcher := &testutil.ScriptedFetcher{
		Pages: []pagination.Envelope{testutil.Envelope(1, testItemKey, testutil.Items(5))},
	}
	sink := testutil.NewRecordSink()
	engine := newEngine(t, fetcher, openStore(t, state.NewMemoryBackend(nil)), sink)

	if _, err := engine.Run(context.Background(), job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := sink.Records[testStream][0]["token"]; got != "mapped" {
		t.Errorf("token = %v, want mapped", got)
	}
}

func TestRun_EmptyFirstPage(t *testing.T) {
	backend := state.NewMemoryBackend(nil)
	store := openStore(t, backend)
	feed := testutil.NewFeed(testItemKey, 500)
	sink := testutil.NewRecordSink()
	engine := newEngine(t, feed, store, sink)

	res, err := engine.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if feed.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", feed.Calls())
	}
	if sink.Count(testStream) != 0 {
		t.Errorf("records = %d, want 0", sink.Count(testStream))
	}
	if backend.Writes() != 0 {
		t.Errorf("state writes = %d, want 0", backend.Writes())
	}
	if res.Stop != pagination.StopEmptyPage {
		t.Errorf("Stop = %q, want %q", res.Stop, pagination.StopEmptyPage)
	}
	if res.FinalCursor != state.DefaultCursor {
		t.Errorf("FinalCursor = %d, want %d", res.FinalCursor, state.DefaultCursor)
	}
}

func TestRun_NoProgressStops(t *testing.T) {
	backend := state.NewMemoryBackend(seeded(testStream, "10"))
	store := openStore(t, backend)
	fetcher := &testutil.ScriptedFetcher{
		Pages: []pagination.Envelope{
			testutil.Envelope(1, testItemKey, testutil.Items(4, 10)),
			testutil.Envelope(1, testItemKey, testutil.Items(11)),
		},
	}
	sink := testutil.NewRecordSink()
	engine := newEngine(t, fetcher, store, sink)

	res, err := engine.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if fetcher.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.Calls())
	}
	if res.Stop != pagination.StopNoProgress {
		t.Errorf("Stop = %q, want %q", res.Stop, pagination.StopNoProgress)
	}
	if res.StaleTokens != 2 {
		t.Errorf("StaleTokens = %d, want 2", res.StaleTokens)
	}
	if sink.Count(testStream) != 2 {
		t.Errorf("records = %d, want 2", sink.Count(testStream))
	}
	if store.Load(testStream) != 10 {
		t.Errorf("cursor = %d, want 10", store.Load(testStream))
	}
	if backend.Writes() != 0 {
		t.Errorf("state writes = %d, want 0", backend.Writes())
	}
}

func TestRun_StaleTokensNeverRegress(t *testing.T) {
	store := openStore(t, state.NewMemoryBackend(seeded(testStream, "20")))
	fetcher := &testutil.ScriptedFetcher{
		Pages: []pagination.Envelope{
			testutil.Envelope(1, testItemKey, testutil.Items(25, 3, 30, 19)),
		},
	}
	engine := newEngine(t, fetcher, store, testutil.NewRecordSink())

	res, err := engine.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.StaleTokens != 2 {
		t.Errorf("StaleTokens = %d, want 2", res.StaleTokens)
	}
	if got := store.Load(testStream); got != 30 {
		t.Errorf("cursor = %d, want 30", got)
	}
	if fetcher.Requests[1].Cursor != 30 {
		t.Errorf("second cursor = %d, want 30", fetcher.Requests[1].Cursor)
	}
}

func TestRun_RetryThenSuccess(t *testing.T) {
	transient := errors.New("connection reset")
	fetcher := &testutil.ScriptedFetcher{
		Errors: []error{transient, transient},
		Pages: []pagination.Envelope{
			nil,
			nil,
			testutil.Envelope(1, testItemKey, testutil.Items(5, 6)),
		},
	}
	store := openStore(t, state.NewMemoryBackend(nil))
	sink := testutil.NewRecordSink()
	engine := newEngine(t, fetcher, store, sink)

	if _, err := engine.Run(context.Background(), testJob()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// three attempts for the first page plus the terminating empty page
	if fetcher.Calls() != 4 {
		t.Errorf("fetch calls = %d, want 4", fetcher.Calls())
	}
	for i := 0; i < 3; i++ {
		if fetcher.Requests[i].Cursor != 1 {
			t.Errorf("attempt %d cursor = %d, want 1", i+1, fetcher.Requests[i].Cursor)
		}
	}
	if sink.Count(testStream) != 2 {
		t.Errorf("records = %d, want 2", sink.Count(testStream))
	}
	if store.Load(testStream) != 6 {
		t.Errorf("cursor = %d, want 6", store.Load(testStream))
	}
}

func TestRun_RetryExhausted(t *testing.T) {
	transient := errors.New("service unavailable")
	backend := state.NewMemoryBackend(seeded(testStream, "40"))
	store := openStore(t, backend)
	fetcher := &testutil.ScriptedFetcher{
		Errors: []error{transient, transient, transient, transient},
	}
	sink := testutil.NewRecordSink()
	engine := newEngine(t, fetcher, store, sink)

	_, err := engine.Run(context.Background(), testJob())
	if !errors.Is(err, retry.ErrRetryExhausted) {
		t.Fatalf("Run() error = %v, want ErrRetryExhausted", err)
	}
	if !errors.Is(err, transient) {
		t.Errorf("Run() error = %v, want wrapped transient error", err)
	}
	if fetcher.Calls() != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.Calls())
	}
	if sink.Count(testStream) != 0 {
		t.Errorf("records = %d, want 0", sink.Count(testStream))
	}
	if store.Load(testStream) != 40 {
		t.Errorf("cursor = %d, want 40", store.Load(testStream))
	}
	if backend.Writes() != 0 {
		t.Errorf("state writes = %d, want 0", backend.Writes())
	}
}

func TestRun_PermanentErrorNotRetried(t *testing.T) {
	denied := retry.Permanent(errors.New("invalid security code"))
	fetcher := &testutil.ScriptedFetcher{Errors: []error{denied}}
	engine := newEngine(t, fetcher, openStore(t, state.NewMemoryBackend(nil)), testutil.NewRecordSink())

	_, err := engine.Run(context.Background(), testJob())
	if err == nil {
		t.Fatal("Run() expected error")
	}
	if !retry.IsPermanent(err) {
		t.Errorf("Run() error = %v, want permanent", err)
	}
	if fetcher.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.Calls())
	}
}

func TestRun_FailureMidStreamKeepsPriorProgress(t *testing.T) {
	transient := errors.New("timeout")
	fetcher := &testutil.ScriptedFetcher{
		Pages: []pagination.Envelope{
			testutil.Envelope(1, testItemKey, testutil.Items(2, 3)),
		},
		Errors: []error{nil, transient, transient, transient},
	}
	backend := state.NewMemoryBackend(nil)
	store := openStore(t, backend)
	engine := newEngine(t, fetcher, store, testutil.NewRecordSink())

	if _, err := engine.Run(context.Background(), testJob()); err == nil {
		t.Fatal("Run() expected error")
	}

	reopened := openStore(t, backend)
	if got := reopened.Load(testStream); got != 3 {
		t.Errorf("persisted cursor = %d, want 3", got)
	}
}

func TestRun_PageSizeIndependence(t *testing.T) {
	const n = 120

	run := func(pageSize int) (uint64, int, int64) {
		feed := testutil.Sequential(testItemKey, pageSize, n)
		store := openStore(t, state.NewMemoryBackend(nil))
		sink := testutil.NewRecordSink()
		engine := newEngine(t, feed, store, sink)

		if _, err := engine.Run(context.Background(), testJob()); err != nil {
			t.Fatalf("Run(pageSize=%d) error = %v", pageSize, err)
		}
		st, _ := store.State(testStream)
		return st.Cursor, sink.Count(testStream), st.TotalRecordsProcessed
	}

	bigCursor, bigRecords, bigTotal := run(500)
	smallCursor, smallRecords, smallTotal := run(50)

	if bigCursor != smallCursor {
		t.Errorf("final cursor: page 500 = %d, page 50 = %d", bigCursor, smallCursor)
	}
	if bigCursor != n+1 {
		t.Errorf("final cursor = %d, want %d", bigCursor, n+1)
	}
	if bigRecords != n || smallRecords != n {
		t.Errorf("records = %d / %d, want %d", bigRecords, smallRecords, n)
	}
	if bigTotal != n || smallTotal != n {
		t.Errorf("total processed = %d / %d, want %d", bigTotal, smallTotal, n)
	}
}

func TestRun_IdempotentResume(t *testing.T) {
	backend := state.NewMemoryBackend(nil)
	feed := testutil.Sequential(testItemKey, 10, 25)

	first := testutil.NewRecordSink()
	engine := newEngine(t, feed, openStore(t, backend), first)
	if _, err := engine.Run(context.Background(), testJob()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if first.Count(testStream) != 25 {
		t.Fatalf("first run records = %d, want 25", first.Count(testStream))
	}

	calls := feed.Calls()
	second := testutil.NewRecordSink()
	store := openStore(t, backend)
	engine = newEngine(t, feed, store, second)
	res, err := engine.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if second.Count(testStream) != 0 {
		t.Errorf("second run records = %d, want 0", second.Count(testStream))
	}
	if feed.Calls()-calls != 1 {
		t.Errorf("second run fetch calls = %d, want 1", feed.Calls()-calls)
	}
	if res.StartCursor != 26 || res.FinalCursor != 26 {
		t.Errorf("cursors = %d -> %d, want 26 -> 26", res.StartCursor, res.FinalCursor)
	}
	st, _ := store.State(testStream)
	if st.TotalRecordsProcessed != 25 {
		t.Errorf("TotalRecordsProcessed = %d, want 25", st.TotalRecordsProcessed)
	}
}

func TestRun_FlushBeforeNextFetch(t *testing.T) {
	backend := state.NewMemoryBackend(nil)
	store := openStore(t, backend)
	feed := testutil.Sequential(testItemKey, 5, 15)

	writesAtFetch := []int{}
	fetcher := fetcherFunc(func(ctx context.Context, req pagination.FetchRequest) (pagination.Envelope, error) {
		writesAtFetch = append(writesAtFetch, backend.Writes())
		return feed.FetchPage(ctx, req)
	})
	engine := newEngine(t, fetcher, store, testutil.NewRecordSink())

	if _, err := engine.Run(context.Background(), testJob()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []int{0, 1, 2, 3}
	if len(writesAtFetch) != len(want) {
		t.Fatalf("fetches = %d, want %d", len(writesAtFetch), len(want))
	}
	for i := range want {
		if writesAtFetch[i] != want[i] {
			t.Errorf("fetch %d saw %d state writes, want %d", i+1, writesAtFetch[i], want[i])
		}
	}
}

func TestRun_FlushFailure(t *testing.T) {
	backend := state.NewMemoryBackend(nil)
	store := openStore(t, backend)
	backend.FailWrites(errors.New("disk full"))
	feed := testutil.Sequential(testItemKey, 5, 15)
	engine := newEngine(t, feed, store, testutil.NewRecordSink())

	_, err := engine.Run(context.Background(), testJob())
	if !errors.Is(err, state.ErrPersist) {
		t.Fatalf("Run() error = %v, want ErrPersist", err)
	}
	if feed.Calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", feed.Calls())
	}

	backend.FailWrites(nil)
	if got := openStore(t, backend).Load(testStream); got != state.DefaultCursor {
		t.Errorf("persisted cursor = %d, want %d", got, state.DefaultCursor)
	}
}

func TestRun_SinkFailure(t *testing.T) {
	backend := state.NewMemoryBackend(nil)
	sink := testutil.NewRecordSink()
	sink.Err = errors.New("broken pipe")
	feed := testutil.Sequential(testItemKey, 5, 5)
	engine := newEngine(t, feed, openStore(t, backend), sink)

	_, err := engine.Run(context.Background(), testJob())
	if !errors.Is(err, sink.Err) {
		t.Fatalf("Run() error = %v, want sink error", err)
	}
	if backend.Writes() != 0 {
		t.Errorf("state writes = %d, want 0", backend.Writes())
	}
}

func TestRun_MapperDropsStillAdvance(t *testing.T) {
	job := testJob()
	job.Mapper = pagination.MapperFunc(func(item pagination.RawItem) (pagination.Record, bool) {
		if item["ItemCode"] == "ITEM-3" {
			return nil, false
		}
		return pagination.Record{"item_code": item["ItemCode"]}, true
	})

	fetcher := &testutil.ScriptedFetcher{
		Pages: []pagination.Envelope{testutil.Envelope(1, testItemKey, testutil.Items(2, 3))},
	}
	store := openStore(t, state.NewMemoryBackend(nil))
	sink := testutil.NewRecordSink()
	engine := newEngine(t, fetcher, store, sink)

	res, err := engine.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Dropped != 1 || res.Emitted != 1 {
		t.Errorf("Dropped = %d, Emitted = %d, want 1, 1", res.Dropped, res.Emitted)
	}
	st, _ := store.State(testStream)
	if st.Cursor != 3 {
		t.Errorf("cursor = %d, want 3", st.Cursor)
	}
	if st.TotalRecordsProcessed != 2 {
		t.Errorf("TotalRecordsProcessed = %d, want 2", st.TotalRecordsProcessed)
	}
}

func TestRun_StateMessages(t *testing.T) {
	feed := testutil.Sequential(testItemKey, 10, 20)
	sink := testutil.NewRecordSink()
	engine := newEngine(t, feed, openStore(t, state.NewMemoryBackend(nil)), sink)

	if _, err := engine.Run(context.Background(), testJob()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sink.States) != 2 {
		t.Fatalf("state messages = %d, want 2", len(sink.States))
	}
	last := sink.States[len(sink.States)-1].Bookmarks[testStream]
	if last.ReplicationKeyValue != "21" {
		t.Errorf("last bookmark = %q, want 21", last.ReplicationKeyValue)
	}
}

func TestRun_RequestParams(t *testing.T) {
	job := testJob()
	job.Params = map[string]string{"count": "50"}

	var seen []pagination.FetchRequest
	fetcher := fetcherFunc(func(_ context.Context, req pagination.FetchRequest) (pagination.Envelope, error) {
		req.Params["count"] = "tampered"
		seen = append(seen, req)
		return testutil.Envelope(1, testItemKey, nil), nil
	})
	engine := newEngine(t, fetcher, openStore(t, state.NewMemoryBackend(nil)), testutil.NewRecordSink())

	if _, err := engine.Run(context.Background(), job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if job.Params["count"] != "50" {
		t.Errorf("job params mutated: count = %q", job.Params["count"])
	}
	if len(seen) != 1 {
		t.Fatalf("fetch calls = %d, want 1", len(seen))
	}
	if seen[0].Service != "ChangedItems" {
		t.Errorf("Service = %q, want ChangedItems", seen[0].Service)
	}
	if seen[0].CursorParam != pagination.DefaultCursorParam {
		t.Errorf("CursorParam = %q, want %q", seen[0].CursorParam, pagination.DefaultCursorParam)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	feed := testutil.Sequential(testItemKey, 5, 5)
	engine := newEngine(t, feed, openStore(t, state.NewMemoryBackend(nil)), testutil.NewRecordSink())

	_, err := engine.Run(ctx, testJob())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if feed.Calls() != 0 {
		t.Errorf("fetch calls = %d, want 0", feed.Calls())
	}
}

type fetcherFunc func(ctx context.Context, req pagination.FetchRequest) (pagination.Envelope, error)

func (f fetcherFunc) FetchPage(ctx context.Context, req pagination.FetchRequest) (pagination.Envelope, error) {
	return f(ctx, req)
}
