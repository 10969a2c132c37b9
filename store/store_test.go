package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/simpleiot/sensorstore/data"
)

// newTestStore starts a store on a temp file and waits for it to open. The
// returned function stops the store and waits for Run to exit.
func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	st, err := NewStore(Params{File: filepath.Join(t.TempDir(), "sensorDatabase.sqlite")})
	if err != nil {
		t.Fatal("Error creating store: ", err)
	}

	stop := runStore(t, st)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := st.WaitReady(ctx); err != nil {
		stop()
		t.Fatal("Error waiting for store: ", err)
	}

	return st, stop
}

func runStore(t *testing.T, st *Store) func() {
	t.Helper()

	chRunErr := make(chan error, 1)
	go func() {
		chRunErr <- st.Run()
	}()

	return func() {
		st.Stop(nil)
		select {
		case err := <-chRunErr:
			if err != nil {
				t.Error("store run returned error: ", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("timeout waiting for store to stop")
		}
	}
}

func wait(t *testing.T, r *Result) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("timeout waiting for store operation")
	}
	return err
}

func mustWait(t *testing.T, r *Result) {
	t.Helper()
	if err := wait(t, r); err != nil {
		t.Fatal("store operation failed: ", err)
	}
}

func count(t *testing.T, st *Store) int {
	t.Helper()
	c, err := st.Count(context.Background())
	if err != nil {
		t.Fatal("Error counting entries: ", err)
	}
	return c
}

func entries(t *testing.T, st *Store) []data.Entry {
	t.Helper()
	e, err := st.Entries(context.Background())
	if err != nil {
		t.Fatal("Error reading entries: ", err)
	}
	return e
}

func TestStoreOpens(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	if st.State() != StateReady {
		t.Fatal("expected ready state, got: ", st.State())
	}

	if st.ID() == "" {
		t.Fatal("expected a generated ID")
	}

	if c := count(t, st); c != 0 {
		t.Fatal("new store should be empty, got: ", c)
	}
}

func TestStoreIngestAddsOneEntry(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	for i, sensor := range data.SensorTypes {
		mustWait(t, st.Ingest(sensor, json.RawMessage(`{"v":1}`)))

		if c := count(t, st); c != i+1 {
			t.Fatalf("after %v ingests expected %v entries, got %v", i+1, i+1, c)
		}
	}

	es := entries(t, st)
	for i := 1; i < len(es); i++ {
		if es[i].ID <= es[i-1].ID {
			t.Fatalf("keys not increasing: %v then %v", es[i-1].ID, es[i].ID)
		}
	}
}

func TestStoreUnknownMessagesIgnored(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	mustWait(t, st.Ingest(data.SensorGravity, json.RawMessage(`{"x":0}`)))

	tests := []struct {
		msg string
		err error
	}{
		{`{"type":"magnetometer","data":{"x":1}}`, data.ErrUnknownSensorType},
		{`{"action":"compact"}`, data.ErrUnknownAction},
		{`{"foo":"bar"}`, data.ErrUnknownFormat},
		{`not json`, data.ErrUnknownFormat},
	}

	for _, test := range tests {
		err := wait(t, st.HandleMessage([]byte(test.msg)))
		if !errors.Is(err, test.err) {
			t.Errorf("%v: expected %v, got %v", test.msg, test.err, err)
		}
	}

	if c := count(t, st); c != 1 {
		t.Fatal("ignored messages changed the store, count: ", c)
	}
}

func TestStoreClear(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	for i := 0; i < 3; i++ {
		mustWait(t, st.Ingest(data.SensorOrientation, json.RawMessage(`[1,2,3]`)))
	}

	mustWait(t, st.HandleMessage([]byte(`{"action":"clearData"}`)))

	if c := count(t, st); c != 0 {
		t.Fatal("expected empty store after clear, got: ", c)
	}

	if st.State() != StateReady {
		t.Fatal("clear should not change state, got: ", st.State())
	}

	// clearing an empty store is fine
	mustWait(t, st.Clear())

	if c := count(t, st); c != 0 {
		t.Fatal("expected empty store after second clear, got: ", c)
	}

	// keys are not reused after a clear
	mustWait(t, st.Ingest(data.SensorOrientation, json.RawMessage(`[4,5,6]`)))

	es := entries(t, st)
	if len(es) != 1 || es[0].ID != 4 {
		t.Fatalf("unexpected entries after clear: %+v", es)
	}
}

func TestStoreDeleteDatabase(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	for i := 0; i < 3; i++ {
		mustWait(t, st.Ingest(data.SensorInclinometer, json.RawMessage(`{"pitch":1}`)))
	}

	mustWait(t, st.HandleMessage([]byte(`{"action":"deleteDatabase"}`)))

	if st.State() != StateClosed {
		t.Fatal("expected closed state, got: ", st.State())
	}

	// data operations are no-ops while closed
	if err := wait(t, st.Ingest(data.SensorInclinometer, nil)); !errors.Is(err, data.ErrNotReady) {
		t.Fatal("expected not ready error for ingest, got: ", err)
	}

	if err := wait(t, st.Clear()); !errors.Is(err, data.ErrNotReady) {
		t.Fatal("expected not ready error for clear, got: ", err)
	}

	if _, err := st.Count(context.Background()); !errors.Is(err, data.ErrNotReady) {
		t.Fatal("expected not ready error for count, got: ", err)
	}

	mustWait(t, st.Open())

	if st.State() != StateReady {
		t.Fatal("expected ready state after open, got: ", st.State())
	}

	if c := count(t, st); c != 0 {
		t.Fatal("expected empty store after delete, got: ", c)
	}

	mustWait(t, st.Ingest(data.SensorInclinometer, json.RawMessage(`{"pitch":2}`)))

	es := entries(t, st)
	if len(es) != 1 || es[0].ID != 1 {
		t.Fatalf("expected key numbering to restart at 1: %+v", es)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	payload := map[string]any{"x": 0.25, "y": -1.5, "z": 9.81, "label": "wrist"}
	b, err := data.EncodeIngest(data.SensorGyroscope, payload)
	if err != nil {
		t.Fatal("Error encoding: ", err)
	}

	issued := time.Now()
	mustWait(t, st.HandleMessage(b))

	es := entries(t, st)
	if len(es) != 1 {
		t.Fatal("expected one entry, got: ", len(es))
	}

	e := es[0]

	if e.Type != data.SensorGyroscope {
		t.Error("wrong type: ", e.Type)
	}

	var got map[string]any
	if err := json.Unmarshal(e.Data, &got); err != nil {
		t.Fatal("Error decoding stored data: ", err)
	}

	if diff := cmp.Diff(payload, got); diff != "" {
		t.Errorf("stored data mismatch (-want +got):\n%s", diff)
	}

	if e.Timestamp.Before(issued.Truncate(time.Microsecond)) {
		t.Errorf("timestamp %v is before the request was issued %v", e.Timestamp, issued)
	}

	if e.Timestamp.After(time.Now()) {
		t.Errorf("timestamp %v is in the future", e.Timestamp)
	}
}

func TestStoreIngestClearIngest(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	// sent back to back, the writes still commit in arrival order
	results := []*Result{
		st.HandleMessage([]byte(`{"type":"accelerometer","data":{"x":1}}`)),
		st.HandleMessage([]byte(`{"action":"clearData"}`)),
		st.HandleMessage([]byte(`{"type":"accelerometer","data":{"x":2}}`)),
	}

	for _, r := range results {
		mustWait(t, r)
	}

	es := entries(t, st)
	if len(es) != 1 {
		t.Fatal("expected one entry, got: ", len(es))
	}

	if string(es[0].Data) != `{"x":2}` {
		t.Fatal("expected the second reading, got: ", string(es[0].Data))
	}
}

func TestStoreMissingData(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	mustWait(t, st.HandleMessage([]byte(`{"type":"gravity"}`)))

	es := entries(t, st)
	if len(es) != 1 || string(es[0].Data) != "null" {
		t.Fatalf("expected one entry with null data: %+v", es)
	}
}

func TestStoreIngestArrivalOrder(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	const n = 50
	results := make([]*Result, n)

	for i := range results {
		results[i] = st.Ingest(data.SensorAccelerometer, json.RawMessage(strconv.Itoa(i)))
	}

	for _, r := range results {
		mustWait(t, r)
	}

	es := entries(t, st)
	if len(es) != n {
		t.Fatalf("expected %v entries, got %v", n, len(es))
	}

	for i, e := range es {
		if e.ID != int64(i+1) {
			t.Fatalf("entry %v has key %v", i, e.ID)
		}
		if string(e.Data) != strconv.Itoa(i) {
			t.Fatalf("entry %v holds reading %s, keys not in arrival order", i, e.Data)
		}
	}
}

func TestStoreRecreate(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	for i := 0; i < 3; i++ {
		mustWait(t, st.Ingest(data.SensorGravity, json.RawMessage(`{"g":9.8}`)))
	}

	mustWait(t, st.Recreate())

	if st.State() != StateReady {
		t.Fatal("expected ready state after recreate, got: ", st.State())
	}

	if c := count(t, st); c != 0 {
		t.Fatal("expected empty store after recreate, got: ", c)
	}

	mustWait(t, st.Ingest(data.SensorGravity, json.RawMessage(`{"g":9.8}`)))

	es := entries(t, st)
	if len(es) != 1 || es[0].ID != 1 {
		t.Fatalf("expected key numbering to restart at 1: %+v", es)
	}
}

func TestStoreRecreateAfterDelete(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	// both requests are queued before either completes
	rDelete := st.DeleteDatabase()
	rRecreate := st.Recreate()

	mustWait(t, rDelete)
	mustWait(t, rRecreate)

	if st.State() != StateReady {
		t.Fatal("expected ready state, got: ", st.State())
	}
}

func TestStoreDeleteSupersedesOpen(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	mustWait(t, st.DeleteDatabase())

	rOpen := st.Open()
	rDelete := st.DeleteDatabase()

	// the open either finished before the delete or was superseded by it
	if err := wait(t, rOpen); err != nil && !errors.Is(err, errSuperseded) {
		t.Fatal("unexpected open error: ", err)
	}

	mustWait(t, rDelete)

	if st.State() != StateClosed {
		t.Fatal("expected closed state, got: ", st.State())
	}
}

func TestStoreOpenFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "missing", "dir", "sensorDatabase.sqlite")

	st, err := NewStore(Params{File: file})
	if err != nil {
		t.Fatal("Error creating store: ", err)
	}

	stop := runStore(t, st)
	defer stop()

	if err := wait(t, st.Open()); err == nil {
		t.Fatal("expected open to fail")
	}

	if st.State() != StateUninitialized {
		t.Fatal("expected uninitialized state, got: ", st.State())
	}

	if err := wait(t, st.Ingest(data.SensorGyroscope, nil)); !errors.Is(err, data.ErrNotReady) {
		t.Fatal("expected not ready error, got: ", err)
	}
}

func TestStoreStopped(t *testing.T) {
	st, stop := newTestStore(t)
	stop()

	if err := wait(t, st.Ingest(data.SensorGyroscope, nil)); !errors.Is(err, data.ErrStopped) {
		t.Fatal("expected stopped error, got: ", err)
	}

	if _, err := st.Count(context.Background()); !errors.Is(err, data.ErrStopped) {
		t.Fatal("expected stopped error, got: ", err)
	}
}

func TestStoreReset(t *testing.T) {
	file := filepath.Join(t.TempDir(), "sensorDatabase.sqlite")

	st, err := NewStore(Params{File: file})
	if err != nil {
		t.Fatal("Error creating store: ", err)
	}
	stop := runStore(t, st)
	mustWait(t, st.Open())
	mustWait(t, st.Ingest(data.SensorGravity, nil))
	stop()

	st, err = NewStore(Params{File: file})
	if err != nil {
		t.Fatal("Error creating store: ", err)
	}

	if err := st.Reset(); err != nil {
		t.Fatal("Error resetting store: ", err)
	}

	stop = runStore(t, st)
	defer stop()
	mustWait(t, st.Open())

	if c := count(t, st); c != 0 {
		t.Fatal("expected empty store after reset, got: ", c)
	}
}

func TestStoreMetricsStop(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	chErr := make(chan error, 1)
	go func() {
		chErr <- st.StartMetrics()
	}()

	// let the first sample run
	time.Sleep(50 * time.Millisecond)
	st.StopMetrics(nil)

	select {
	case err := <-chErr:
		if err == nil {
			t.Fatal("expected stop error from metrics")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for metrics to stop")
	}
}

// blockDelete leaves a non-empty directory where the store keeps its rollback
// journal so deleting the store fails. The store runs in WAL mode so the
// journal path is otherwise unused.
func blockDelete(t *testing.T, st *Store) {
	t.Helper()
	dir := st.params.File + "-journal"
	if err := os.MkdirAll(filepath.Join(dir, "keep"), 0755); err != nil {
		t.Fatal("Error creating journal dir: ", err)
	}
}

func TestStoreDeleteFailure(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	mustWait(t, st.Ingest(data.SensorGravity, json.RawMessage(`{"z":9.8}`)))

	blockDelete(t, st)

	if err := wait(t, st.DeleteDatabase()); err == nil {
		t.Fatal("expected delete to fail")
	}

	if st.State() != StateClosed {
		t.Fatal("expected closed state after failed delete, got: ", st.State())
	}

	if err := wait(t, st.Ingest(data.SensorGravity, nil)); !errors.Is(err, data.ErrNotReady) {
		t.Fatal("expected not ready error for ingest, got: ", err)
	}

	if err := wait(t, st.Clear()); !errors.Is(err, data.ErrNotReady) {
		t.Fatal("expected not ready error for clear, got: ", err)
	}
}

func TestStoreRecreateDeleteFailure(t *testing.T) {
	st, stop := newTestStore(t)
	defer stop()

	blockDelete(t, st)

	if err := wait(t, st.Recreate()); err == nil {
		t.Fatal("expected recreate to fail")
	}

	if st.State() != StateUninitialized {
		t.Fatal("expected uninitialized state, got: ", st.State())
	}

	if err := wait(t, st.Ingest(data.SensorGravity, nil)); !errors.Is(err, data.ErrNotReady) {
		t.Fatal("expected not ready error for ingest, got: ", err)
	}
}

func TestStoreRecreateOpenFailure(t *testing.T) {
	st, err := NewStore(Params{File: filepath.Join(t.TempDir(), "sensorDatabase.sqlite")})
	if err != nil {
		t.Fatal("Error creating store: ", err)
	}

	// the first open works, every later one fails
	var opens atomic.Int32
	errOpen := errors.New("open failed")
	st.openDb = func(ctx context.Context, file string) (*DbSqlite, error) {
		if opens.Add(1) > 1 {
			return nil, errOpen
		}
		return openSqliteDb(ctx, file)
	}

	stop := runStore(t, st)
	defer stop()

	mustWait(t, st.Open())
	mustWait(t, st.Ingest(data.SensorGyroscope, nil))

	if err := wait(t, st.Recreate()); !errors.Is(err, errOpen) {
		t.Fatal("expected open error from recreate, got: ", err)
	}

	if st.State() != StateUninitialized {
		t.Fatal("expected uninitialized state, got: ", st.State())
	}

	if opens.Load() != 2 {
		t.Fatal("recreate must not retry, opens: ", opens.Load())
	}

	if _, err := st.Count(context.Background()); !errors.Is(err, data.ErrNotReady) {
		t.Fatal("expected not ready error for count, got: ", err)
	}
}
