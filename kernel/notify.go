package kernel

// NotifyEvent is one non-permission open notification recorded by
// statistic mode.
type NotifyEvent struct {
	TimestampNs int64
	Path        string
	SizeBytes   uint64
}

// NotifySource arms non-permission open notifications on the watched
// mount for statistic mode (§4.6), distinct from the permission-event
// Source the live decision path uses.
type NotifySource interface {
	ReadBatch() ([]NotifyEvent, error)
	Close() error
}
