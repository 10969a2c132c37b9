package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/simpleiot/sensorstore/client"
	"github.com/simpleiot/sensorstore/data"
)

var reportMetricsPeriod = time.Minute

// how long admin requests wait for the storage effect before replying
var adminTimeout = 20 * time.Second

// errSuperseded completes an open that was overtaken by a later delete or
// recreate before it finished
var errSuperseded = errors.New("open superseded by a later request")

var _ client.RunStop = (*Store)(nil)

// Store owns the connection to the sensor database and serves ingest,
// clear, delete and recreate requests. Requests are dispatched in arrival
// order by a single loop. Their storage effects are queued to one writer
// goroutine, so they commit in dispatch order while the loop keeps
// accepting requests, and complete the Result returned to the caller.
type Store struct {
	params        Params
	nc            *nats.Conn
	subscriptions map[string]*nats.Subscription

	// the following are only touched by the run loop
	db           *DbSqlite
	gen          int
	queue        []func()
	openWaiters  []*Result
	readyWaiters []chan struct{}

	state  atomic.Int32
	msgSub atomic.Pointer[nats.Subscription]

	openDb func(context.Context, string) (*DbSqlite, error)

	metricCycleIngest *client.Metric
	metricPending     *client.Metric
	metricProcCPU     *client.Metric
	metricProcRSS     *client.Metric

	chRequest     chan request
	chOpened      chan openResult
	chStop        chan struct{}
	stopOnce      sync.Once
	chStopMetrics chan struct{}
	metricsOnce   sync.Once
	chWaitStart   chan struct{}
}

// Params are used to configure a store
type Params struct {
	// File is the path of the sqlite file backing the store
	File string
	// Nc is optional. When set the store serves the sensor message and
	// admin subjects and publishes metrics.
	Nc *nats.Conn
	// ID for the instance, used in the metrics subject. If ID is not set,
	// then a UUID is generated.
	ID string
}

type operation int

const (
	opIngest operation = iota
	opClear
	opDelete
	opRecreate
	opOpen
	opWaitReady
	opHandle
)

type request struct {
	op      operation
	sensor  data.SensorType
	payload json.RawMessage
	result  *Result
	chReady chan struct{}
	chDb    chan *DbSqlite
}

type openResult struct {
	gen    int
	what   string
	db     *DbSqlite
	err    error
	result *Result
}

// NewStore creates a new sensor store. The database is not opened until
// Run is called.
func NewStore(p Params) (*Store, error) {
	if p.File == "" {
		return nil, errors.New("store file must be set")
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	metricsSubject := client.SubjectMetrics(p.ID)

	return &Store{
		params:        p,
		nc:            p.Nc,
		subscriptions: make(map[string]*nats.Subscription),
		openDb:        openSqliteDb,
		chRequest:     make(chan request),
		chOpened:      make(chan openResult),
		chStop:        make(chan struct{}),
		chStopMetrics: make(chan struct{}),
		chWaitStart:   make(chan struct{}),
		metricCycleIngest: client.NewMetric(p.Nc, metricsSubject,
			data.PointTypeMetricIngestCycle, reportMetricsPeriod),
		metricPending: client.NewMetric(p.Nc, metricsSubject,
			data.PointTypeMetricPendingMsgs, reportMetricsPeriod),
		metricProcCPU: client.NewMetric(p.Nc, metricsSubject,
			data.PointTypeMetricProcCPU, reportMetricsPeriod),
		metricProcRSS: client.NewMetric(p.Nc, metricsSubject,
			data.PointTypeMetricProcRSS, reportMetricsPeriod),
	}, nil
}

// ID returns the instance ID of the store
func (st *Store) ID() string {
	return st.params.ID
}

// State returns the current lifecycle state
func (st *Store) State() State {
	return State(st.state.Load())
}

func (st *Store) setState(s State) {
	old := State(st.state.Swap(int32(s)))
	if old != s {
		log.Printf("SensorStore: state %v -> %v", old, s)
	}
}

// Run opens the database in the background, subscribes to the NATS subjects
// and serves requests until Stop is called.
func (st *Store) Run() error {
	if st.nc != nil {
		var err error
		st.subscriptions["msg"], err = st.nc.Subscribe(client.SubjectSensorMsg, st.handleMsg)
		if err != nil {
			return fmt.Errorf("subscribe sensor messages error: %w", err)
		}
		st.msgSub.Store(st.subscriptions["msg"])

		admin := map[string]nats.MsgHandler{
			client.SubjectAdminRecreate: st.handleAdminRecreate,
			client.SubjectAdminOpen:     st.handleAdminOpen,
			client.SubjectAdminCount:    st.handleAdminCount,
			client.SubjectAdminEntries:  st.handleAdminEntries,
		}

		for sub, h := range admin {
			st.subscriptions[sub], err = st.nc.Subscribe(sub, h)
			if err != nil {
				st.unsubscribe()
				return fmt.Errorf("subscribe %v error: %w", sub, err)
			}
		}
	}

	chWrite := make(chan func())
	writerDone := make(chan struct{})
	go st.writer(chWrite, writerDone)

	// initial open, runs once per process
	st.open(request{op: opOpen, result: newResult()})

done:
	for {
		// only offer the head of the queue when there is one, a nil
		// channel never sends
		var chNext chan func()
		var next func()
		if len(st.queue) > 0 {
			chNext = chWrite
			next = st.queue[0]
		}

		select {
		case chNext <- next:
			st.queue[0] = nil
			st.queue = st.queue[1:]
		case req := <-st.chRequest:
			st.dispatch(req)
		case r := <-st.chOpened:
			st.opened(r)
		case <-st.chWaitStart:
			// don't need to do anything as simply reading this
			// channel will unblock the caller
		case <-st.chStop:
			log.Println("SensorStore: stopped")
			break done
		}
	}

	st.unsubscribe()

	// accepted work is never dropped, drain the queue before closing
	for _, f := range st.queue {
		chWrite <- f
	}
	st.queue = nil
	close(chWrite)
	<-writerDone

	for _, r := range st.openWaiters {
		r.complete(data.ErrStopped)
	}

	if st.db != nil {
		if err := st.db.Close(); err != nil {
			log.Println("SensorStore: error closing database:", err)
		}
		st.db = nil
	}

	return nil
}

func (st *Store) unsubscribe() {
	for k, sub := range st.subscriptions {
		err := sub.Unsubscribe()
		if err != nil {
			log.Printf("SensorStore: error unsubscribing from %v: %v\n", k, err)
		}
		delete(st.subscriptions, k)
	}
}

// Reset permanently wipes the store file. It must be called before Run.
func (st *Store) Reset() error {
	return deleteSqliteDb(st.params.File)
}

// Stop the store
func (st *Store) Stop(_ error) {
	st.stopOnce.Do(func() { close(st.chStop) })
}

// WaitStart waits for the store loop to start
func (st *Store) WaitStart(ctx context.Context) error {
	waitDone := make(chan struct{})

	go func() {
		// the following will block until the main store select
		// loop starts
		select {
		case st.chWaitStart <- struct{}{}:
			close(waitDone)
		case <-ctx.Done():
		}
	}()

	select {
	case <-ctx.Done():
		return errors.New("Store wait timeout or canceled")
	case <-waitDone:
		// all is well
		return nil
	}
}

// WaitReady waits until the database is open
func (st *Store) WaitReady(ctx context.Context) error {
	ch := make(chan struct{})
	if err := st.submit(ctx, request{op: opWaitReady, chReady: ch}); err != nil {
		return err
	}

	select {
	case <-ch:
		return nil
	case <-st.chStop:
		return data.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (st *Store) submit(ctx context.Context, req request) error {
	select {
	case st.chRequest <- req:
		return nil
	case <-st.chStop:
		return data.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submitAsync queues req and returns its result. Requests made after Stop
// complete with ErrStopped.
func (st *Store) submitAsync(req request) *Result {
	req.result = newResult()
	if err := st.submit(context.Background(), req); err != nil {
		req.result.complete(err)
	}
	return req.result
}

// HandleMessage decodes a raw producer message and dispatches it. Malformed
// or unrecognized messages are logged and dropped.
func (st *Store) HandleMessage(b []byte) *Result {
	m, err := data.DecodeMessage(b)
	if err != nil {
		log.Println("SensorStore: dropping message:", err)
		return completedResult(err)
	}

	return st.Dispatch(m)
}

// Dispatch sends a decoded message to the matching operation
func (st *Store) Dispatch(m data.Message) *Result {
	switch m.Kind {
	case data.MessageIngest:
		return st.Ingest(m.Type, m.Data)
	case data.MessageControl:
		switch m.Action {
		case data.ActionClearData:
			return st.Clear()
		case data.ActionDeleteDatabase:
			return st.DeleteDatabase()
		}
		log.Println("SensorStore: unknown action:", m.Action)
		return completedResult(fmt.Errorf("%w: %v", data.ErrUnknownAction, m.Action))
	}

	log.Println("SensorStore: unknown message format:", m)
	return completedResult(data.ErrUnknownFormat)
}

// Ingest appends one reading to the collection. The timestamp is taken by
// the store when the write runs.
func (st *Store) Ingest(t data.SensorType, payload json.RawMessage) *Result {
	if !t.Valid() {
		log.Println("SensorStore: unknown sensor type:", t)
		return completedResult(fmt.Errorf("%w: %v", data.ErrUnknownSensorType, t))
	}

	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	return st.submitAsync(request{op: opIngest, sensor: t, payload: payload})
}

// Clear removes all entries from the collection
func (st *Store) Clear() *Result {
	return st.submitAsync(request{op: opClear})
}

// DeleteDatabase closes the database and deletes it. The store stays closed
// until Open or Recreate is called.
func (st *Store) DeleteDatabase() *Result {
	return st.submitAsync(request{op: opDelete})
}

// Recreate deletes the database and, if that worked, opens a fresh one
func (st *Store) Recreate() *Result {
	return st.submitAsync(request{op: opRecreate})
}

// Open opens the database if it is not open or opening already
func (st *Store) Open() *Result {
	return st.submitAsync(request{op: opOpen})
}

// current returns the handle of a ready store
func (st *Store) current(ctx context.Context) (*DbSqlite, error) {
	ch := make(chan *DbSqlite, 1)
	if err := st.submit(ctx, request{op: opHandle, chDb: ch}); err != nil {
		return nil, err
	}

	select {
	case db := <-ch:
		if db == nil {
			return nil, data.ErrNotReady
		}
		return db, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Entries returns all entries in key order
func (st *Store) Entries(ctx context.Context) ([]data.Entry, error) {
	db, err := st.current(ctx)
	if err != nil {
		return nil, err
	}
	return db.entries(ctx)
}

// Count returns the number of entries in the collection
func (st *Store) Count(ctx context.Context) (int, error) {
	db, err := st.current(ctx)
	if err != nil {
		return 0, err
	}
	return db.count(ctx)
}

func (st *Store) dispatch(req request) {
	switch req.op {
	case opIngest:
		st.ingest(req)
	case opClear:
		st.clear(req)
	case opDelete:
		st.deleteDatabase(req)
	case opRecreate:
		st.recreate(req)
	case opOpen:
		st.open(req)
	case opWaitReady:
		if st.State() == StateReady {
			close(req.chReady)
		} else {
			st.readyWaiters = append(st.readyWaiters, req.chReady)
		}
	case opHandle:
		if st.State() == StateReady {
			req.chDb <- st.db
		} else {
			req.chDb <- nil
		}
	}
}

func (st *Store) ingest(req request) {
	if st.State() != StateReady {
		log.Printf("SensorStore: %v data not stored: %v", req.sensor, data.ErrNotReady)
		req.result.complete(data.ErrNotReady)
		return
	}

	db := st.db
	st.enqueue(func() {
		start := time.Now()
		id, err := db.add(context.Background(), req.sensor, req.payload, time.Now())
		if err != nil {
			log.Printf("SensorStore: %v data storage error: %v", req.sensor, err)
		} else {
			log.Printf("SensorStore: %v data stored successfully, key: %v", req.sensor, id)
		}

		st.addSample(st.metricCycleIngest, float64(time.Since(start).Milliseconds()))

		req.result.complete(err)
	})
}

func (st *Store) clear(req request) {
	if st.State() != StateReady {
		log.Println("SensorStore: clear not done:", data.ErrNotReady)
		req.result.complete(data.ErrNotReady)
		return
	}

	db := st.db
	st.enqueue(func() {
		err := db.clear(context.Background())
		if err != nil {
			log.Println("SensorStore: error clearing sensor data:", err)
		} else {
			log.Println("SensorStore: sensor data cleared")
		}
		req.result.complete(err)
	})
}

// enqueue schedules f on the writer after everything queued before it
func (st *Store) enqueue(f func()) {
	st.queue = append(st.queue, f)
}

// writer runs queued storage effects one at a time, in queue order
func (st *Store) writer(ch <-chan func(), done chan<- struct{}) {
	defer close(done)
	for f := range ch {
		f()
	}
}

// release drops the current handle and returns it so it can be closed
// outside the loop. Any open still in flight becomes stale.
func (st *Store) release() *DbSqlite {
	old := st.db
	st.db = nil
	st.gen++
	return old
}

func closeDb(db *DbSqlite) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.Println("SensorStore: error closing database:", err)
	}
}

func (st *Store) deleteDatabase(req request) {
	old := st.release()
	st.setState(StateClosed)
	st.failOpenWaiters(errSuperseded)

	file := st.params.File
	st.enqueue(func() {
		closeDb(old)
		err := deleteSqliteDb(file)
		if err != nil {
			log.Println("SensorStore: error deleting database:", err)
		} else {
			log.Println("SensorStore: database deleted successfully")
		}
		req.result.complete(err)
	})
}

func (st *Store) recreate(req request) {
	old := st.release()
	st.setState(StateOpening)
	st.failOpenWaiters(errSuperseded)

	gen := st.gen
	file := st.params.File
	st.enqueue(func() {
		closeDb(old)
		if err := deleteSqliteDb(file); err != nil {
			st.sendOpened(openResult{gen: gen, what: "deletion", err: err, result: req.result})
			return
		}
		log.Println("SensorStore: database deleted successfully")

		db, err := st.openDb(context.Background(), file)
		st.sendOpened(openResult{gen: gen, what: "recreation", db: db, err: err,
			result: req.result})
	})
}

func (st *Store) open(req request) {
	switch st.State() {
	case StateReady:
		req.result.complete(nil)
		return
	case StateOpening:
		st.openWaiters = append(st.openWaiters, req.result)
		return
	}

	st.gen++
	st.setState(StateOpening)

	gen := st.gen
	file := st.params.File
	st.enqueue(func() {
		db, err := st.openDb(context.Background(), file)
		st.sendOpened(openResult{gen: gen, what: "open", db: db, err: err, result: req.result})
	})
}

func (st *Store) sendOpened(r openResult) {
	select {
	case st.chOpened <- r:
	case <-st.chStop:
		closeDb(r.db)
		r.result.complete(data.ErrStopped)
	}
}

func (st *Store) failOpenWaiters(err error) {
	for _, r := range st.openWaiters {
		r.complete(err)
	}
	st.openWaiters = nil
}

func (st *Store) opened(r openResult) {
	if r.gen != st.gen {
		log.Printf("SensorStore: discarding database %v, superseded", r.what)
		closeDb(r.db)
		r.result.complete(errSuperseded)
		return
	}

	if r.err != nil {
		log.Printf("SensorStore: database %v failed: %v", r.what, r.err)
		st.setState(StateUninitialized)
		r.result.complete(r.err)
		st.failOpenWaiters(r.err)
		return
	}

	st.db = r.db
	st.setState(StateReady)

	if r.what == "recreation" {
		log.Println("SensorStore: database recreated successfully")
	} else {
		log.Println("SensorStore: database opened successfully")
	}

	for _, ch := range st.readyWaiters {
		close(ch)
	}
	st.readyWaiters = nil

	r.result.complete(nil)
	st.failOpenWaiters(nil)
}

// StartMetrics periodically reports how many sensor messages the NATS client
// has buffered and the CPU and memory used by this process. It returns when
// StopMetrics is called.
func (st *Store) StartMetrics() error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Println("SensorStore: process metrics disabled:", err)
		proc = nil
	}

	t := time.NewTimer(time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-st.chStopMetrics:
			return errors.New("Store stopping metrics")

		case <-t.C:
			if sub := st.msgSub.Load(); sub != nil {
				pending, _, err := sub.Pending()
				if err != nil {
					log.Println("SensorStore: error getting pending messages:", err)
				}

				st.addSample(st.metricPending, float64(pending))
			}

			if proc != nil {
				st.procMetrics(proc)
			}

			t.Reset(time.Second * 10)
		}
	}
}

func (st *Store) procMetrics(proc *process.Process) {
	cpuPerc, err := proc.CPUPercent()
	if err != nil {
		log.Println("SensorStore: error getting CPU percent:", err)
	} else {
		st.addSample(st.metricProcCPU, cpuPerc)
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		log.Println("SensorStore: error getting mem info:", err)
	} else {
		st.addSample(st.metricProcRSS, float64(memInfo.RSS))
	}
}

func (st *Store) addSample(m *client.Metric, v float64) {
	if err := m.AddSample(v); err != nil {
		log.Println("SensorStore: error handling metric:", err)
	}
}

// StopMetrics stops StartMetrics
func (st *Store) StopMetrics(_ error) {
	st.metricsOnce.Do(func() { close(st.chStopMetrics) })
}

func (st *Store) handleMsg(msg *nats.Msg) {
	// the message channel has no return path, outcomes are only logged
	st.HandleMessage(msg.Data)
}

func (st *Store) waitAdmin(r *Result) error {
	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()
	return r.Wait(ctx)
}

func (st *Store) handleAdminRecreate(msg *nats.Msg) {
	st.reply(msg.Reply, []byte(errString(st.waitAdmin(st.Recreate()))))
}

func (st *Store) handleAdminOpen(msg *nats.Msg) {
	st.reply(msg.Reply, []byte(errString(st.waitAdmin(st.Open()))))
}

func (st *Store) handleAdminCount(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	count, err := st.Count(ctx)
	if err != nil {
		st.reply(msg.Reply, []byte(err.Error()))
		return
	}

	st.reply(msg.Reply, []byte(strconv.Itoa(count)))
}

func (st *Store) handleAdminEntries(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	var resp client.EntriesResponse
	entries, err := st.Entries(ctx)
	if err != nil {
		resp.Error = err.Error()
	}
	resp.Entries = entries

	b, err := json.Marshal(resp)
	if err != nil {
		log.Println("SensorStore: marshal entries error:", err)
		return
	}

	st.reply(msg.Reply, b)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// used for admin requests that want a response
func (st *Store) reply(subject string, b []byte) {
	if subject == "" {
		// requester is not expecting a reply
		return
	}

	err := st.nc.Publish(subject, b)
	if err != nil {
		log.Println("SensorStore: error publishing reply:", err)
	}
}
