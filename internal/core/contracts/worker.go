package contracts

import "context"

// ChannelWorker consumes one channel's broadcast stream. The registry
// starts a worker when a channel gains its first subscriber and cancels
// its context when the last one leaves.
type ChannelWorker interface {
	Run(ctx context.Context, channel string) error
	ProcessJob(ctx context.Context, entryID string, raw []byte) error
}

// TxRunner executes fn inside a database transaction carried through the
// context. Implemented by the postgres plugin.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
