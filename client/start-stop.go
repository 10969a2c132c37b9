package client

// RunStop is implemented by the long running actors of a sensor store
// process: the store's request loop and the server that groups it with the
// embedded NATS server and the metrics reporter. Run blocks until Stop is
// called. Stop must not block, run.Group may call it after Run has already
// returned.
type RunStop interface {
	Run() error
	Stop(error)
}
