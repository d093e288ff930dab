package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"venuelive/internal/core/contracts"
	"venuelive/internal/core/domain"
	"venuelive/internal/core/services"
)

// ChannelWorker consumes one channel's broadcast stream and hands each
// committed message to the dispatcher. The registry starts one per
// conversation/group channel while it has subscribers.
type ChannelWorker struct {
	log        *slog.Logger
	queue      contracts.BroadcastQueue
	dispatcher *services.Dispatcher
	group      string
}

func NewChannelWorker(
	log *slog.Logger,
	queue contracts.BroadcastQueue,
	dispatcher *services.Dispatcher,
	group string,
) *ChannelWorker {
	return &ChannelWorker{
		log:        log,
		queue:      queue,
		dispatcher: dispatcher,
		group:      group,
	}
}

func (w *ChannelWorker) Run(ctx context.Context, channel string) error {
	if err := w.queue.Subscribe(ctx, channel, w.group, w.ProcessJob); err != nil {
		w.log.ErrorContext(ctx, "worker - run - subscribe failed", "channel", channel, "group", w.group, "err", err)
		return err
	}
	w.log.InfoContext(ctx, "worker - run - subscribed", "channel", channel, "group", w.group)
	return nil
}

func (w *ChannelWorker) ProcessJob(ctx context.Context, entryID string, raw []byte) error {
	var job domain.BroadcastJob
	if err := json.Unmarshal(raw, &job); err != nil {
		w.log.Error("worker - process job - malformed payload", "entry_id", entryID)
		return err
	}
	var err error
	switch job.Tag {
	case domain.TypeCreate:
		err = w.dispatcher.NotifyMessageCreated(ctx, job.Channel, job.Message)
	case domain.TypeUpdate:
		err = w.dispatcher.NotifyMessageUpdated(ctx, job.Channel, job.Message)
	case domain.TypeDelete:
		err = w.dispatcher.NotifyMessageDeleted(ctx, job.Channel, job.Message)
	default:
		w.log.Error("worker - process job - unknown tag", "tag", job.Tag, "entry_id", entryID)
	}
	if err != nil {
		w.log.ErrorContext(ctx, "worker - process job - dispatch failed", "entry_id", entryID, "err", err)
		return err
	}
	if err := w.queue.Ack(ctx, job.Channel, w.group, entryID); err != nil {
		w.log.ErrorContext(ctx, "worker - process job - ack failed", "entry_id", entryID, "err", err)
		return err
	}
	if err := w.queue.DeleteEntry(ctx, job.Channel, entryID); err != nil {
		// Already dispatched and acked; trimming is best-effort.
		w.log.ErrorContext(ctx, "worker - process job - delete entry failed", "entry_id", entryID, "err", err)
	}
	return nil
}
