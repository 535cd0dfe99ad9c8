package app

import (
	"context"

	"flowstate/internal/nativemsg"
	"flowstate/internal/platform"
)

// nativeBrowser sends host commands to the extension over the native
// messaging port. Answers come back as inbound messages.
type nativeBrowser struct {
	conn *nativemsg.Conn
}

var _ platform.Browser = (*nativeBrowser)(nil)

func (b *nativeBrowser) QueryActiveTab(ctx context.Context, requestID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.conn.Send(nativemsg.Command{
		Command: nativemsg.CommandQueryActiveTab,
		Data:    nativemsg.QueryActiveTabData{RequestID: requestID},
	})
}

func (b *nativeBrowser) SetIdleDetectionInterval(ctx context.Context, seconds int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.conn.Send(nativemsg.Command{
		Command: nativemsg.CommandSetIdleDetectionInterval,
		Data:    nativemsg.IdleIntervalData{Seconds: seconds},
	})
}
