package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"flowstate/internal/infrastructure/logging"
	"flowstate/internal/nativemsg"
	"flowstate/internal/platform"
	"flowstate/internal/services"
	"flowstate/internal/types"
)

// Host is the extension's background process. Browser events feed the
// session tracker; query and update requests are answered from the
// ledger service on the same port.
type Host struct {
	rt      *Runtime
	conn    *nativemsg.Conn
	browser *nativeBrowser
	tracker *services.Tracker
	logger  logging.Logger
}

// NewHost wires a tracker to rt that talks to the extension over conn
func NewHost(rt *Runtime, conn *nativemsg.Conn) *Host {
	browser := &nativeBrowser{conn: conn}
	return &Host{
		rt:      rt,
		conn:    conn,
		browser: browser,
		tracker: services.NewTracker(rt.TrackerConfig(), rt.NewAggregator(), browser, rt.Clock, rt.Logger),
		logger:  rt.Logger,
	}
}

// Tracker exposes the session tracker for status displays
func (h *Host) Tracker() *services.Tracker {
	return h.tracker
}

// Run serves the port until the browser closes it or ctx is cancelled.
// It holds the instance lock for its whole lifetime and returns after
// the tracker's final flush.
func (h *Host) Run(ctx context.Context) error {
	lock, err := platform.AcquireInstanceLock(h.rt.Config.InstanceLockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := h.rt.Ledger.EnsureToday(ctx); err != nil {
		logging.LogError(h.logger, err, "Host.EnsureToday", nil)
	}
	if err := h.browser.SetIdleDetectionInterval(ctx, h.rt.Config.Tracking.IdleDetectionInterval); err != nil {
		return fmt.Errorf("configure idle detection: %w", err)
	}

	go h.tracker.Run(ctx)

	requests := make(chan nativemsg.Request)
	readErr := make(chan error, 1)
	go h.readLoop(ctx, requests, readErr)

	h.logger.Info("Native messaging host started", "lock", lock.Path())

	var result error
serve:
	for {
		select {
		case <-ctx.Done():
			break serve
		case req := <-requests:
			h.dispatch(ctx, req)
		case err := <-readErr:
			if !errors.Is(err, io.EOF) {
				result = fmt.Errorf("native messaging port: %w", err)
			}
			break serve
		}
	}

	cancel()
	<-h.tracker.Done()
	h.logger.Info("Native messaging host stopped", "stats", h.tracker.Status().Stats)
	return result
}

// readLoop blocks on the port. Malformed messages are skipped; any other
// read error ends the loop.
func (h *Host) readLoop(ctx context.Context, requests chan<- nativemsg.Request, readErr chan<- error) {
	for {
		req, err := h.conn.Receive()
		if errors.Is(err, nativemsg.ErrMalformedMessage) {
			h.logger.Warn("Skipping malformed message", "error", err)
			continue
		}
		if err != nil {
			readErr <- err
			return
		}

		select {
		case requests <- req:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Host) dispatch(ctx context.Context, req nativemsg.Request) {
	switch req.Action {
	case nativemsg.ActionTabActivated:
		var data nativemsg.TabActivatedData
		if h.decodeEvent(req, &data) {
			h.post(ctx, services.TabActivated(data.URL))
		}

	case nativemsg.ActionTabUpdated:
		var data nativemsg.TabUpdatedData
		if h.decodeEvent(req, &data) {
			h.post(ctx, services.TabUpdated(data.URL, data.Status, data.URLChanged))
		}

	case nativemsg.ActionIdleStateChanged:
		var data nativemsg.IdleStateData
		if !h.decodeEvent(req, &data) {
			return
		}
		state := platform.IdleState(data.State)
		if !state.Valid() {
			h.logger.Warn("Ignoring unknown idle state", "state", data.State)
			return
		}
		h.post(ctx, services.IdleStateChanged(state))

	case nativemsg.ActionActiveTab:
		var data nativemsg.ActiveTabData
		if h.decodeEvent(req, &data) {
			h.post(ctx, services.ActiveTabAnswer(data.RequestID, data.URL))
		}

	default:
		resp, err := h.handleRequest(ctx, req)
		if err != nil {
			logging.LogError(h.logger, err, "Host."+req.Action, map[string]interface{}{"request_id": req.ID})
			resp = nativemsg.ErrorResponse(req.ID, err)
		}
		h.reply(req, resp)
	}
}

// reply sends resp, answering with an error response when resp does not
// fit in one outbound frame so the caller is never left waiting.
func (h *Host) reply(req nativemsg.Request, resp nativemsg.Response) {
	err := h.conn.Send(resp)
	if errors.Is(err, nativemsg.ErrFrameTooLarge) {
		h.logger.Warn("Response too large for the port", "action", req.Action, "error", err)
		err = h.conn.Send(nativemsg.ErrorResponse(req.ID, err))
	}
	if err != nil {
		h.logger.Error("Failed to send response", "action", req.Action, "error", err)
	}
}

func (h *Host) decodeEvent(req nativemsg.Request, v any) bool {
	if err := req.Decode(v); err != nil {
		h.logger.Warn("Ignoring malformed event", "action", req.Action, "error", err)
		return false
	}
	return true
}

func (h *Host) post(ctx context.Context, ev services.Event) {
	if err := h.tracker.Post(ctx, ev); err != nil {
		h.logger.Debug("Dropping event", "kind", ev.Kind.String(), "error", err)
	}
}

func (h *Host) handleRequest(ctx context.Context, req nativemsg.Request) (nativemsg.Response, error) {
	ledger := h.rt.Ledger

	switch req.Action {
	case nativemsg.ActionGetTrackingData:
		data, err := ledger.GetTrackingData(ctx)
		if err != nil {
			return nativemsg.Response{}, err
		}
		return h.trackingDataResponse(req.ID, data)

	case nativemsg.ActionTaskCompleted:
		if _, err := ledger.TaskCompleted(ctx); err != nil {
			return nativemsg.Response{}, err
		}

	case nativemsg.ActionTaskUncompleted:
		if _, err := ledger.TaskUncompleted(ctx); err != nil {
			return nativemsg.Response{}, err
		}

	case nativemsg.ActionTrackWebsite:
		var data nativemsg.TrackWebsiteData
		if err := req.Decode(&data); err != nil {
			return nativemsg.Response{}, err
		}
		if _, err := ledger.TrackWebsite(ctx, data.Domain, data.TimeSpent, data.Category); err != nil {
			return nativemsg.Response{}, err
		}

	case nativemsg.ActionUpdateProductivity:
		var fields map[string]any
		if err := req.Decode(&fields); err != nil {
			return nativemsg.Response{}, err
		}
		if err := ledger.UpdateProductivity(ctx, h.numericFields(fields)); err != nil {
			return nativemsg.Response{}, err
		}

	default:
		return nativemsg.Response{}, fmt.Errorf("unknown action %q", req.Action)
	}

	return nativemsg.SuccessResponse(req.ID), nil
}

// trackingDataResponse answers getTrackingData with the newest days of
// data whose encoding fits in one outbound frame.
func (h *Host) trackingDataResponse(id string, data types.Ledger) (nativemsg.Response, error) {
	resp := nativemsg.Response{ID: id, TrackingData: data}
	fits, err := fitsOutbound(resp)
	if err != nil {
		return nativemsg.Response{}, err
	}
	if fits {
		return resp, nil
	}

	// Largest prefix of the newest-first dates that still fits; zero days
	// always fits.
	dates := data.Dates()
	lo, hi := 0, len(dates)
	for lo+1 < hi {
		mid := (lo + hi) / 2
		fits, err := fitsOutbound(nativemsg.Response{ID: id, TrackingData: newestDays(data, dates, mid)})
		if err != nil {
			return nativemsg.Response{}, err
		}
		if fits {
			lo = mid
		} else {
			hi = mid
		}
	}

	h.logger.Warn("Tracking data truncated to fit the port", "days_sent", lo, "days_total", len(dates))
	return nativemsg.Response{ID: id, TrackingData: newestDays(data, dates, lo)}, nil
}

func fitsOutbound(resp nativemsg.Response) (bool, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return false, fmt.Errorf("marshal tracking data: %w", err)
	}
	return len(payload) <= nativemsg.MaxOutboundSize, nil
}

// newestDays returns the first n of dates (newest first) as a ledger
func newestDays(data types.Ledger, dates []string, n int) types.Ledger {
	out := make(types.Ledger, n)
	for _, date := range dates[:n] {
		out[date] = data[date]
	}
	return out
}

// numericFields keeps the numeric entries of an updateProductivity payload
func (h *Host) numericFields(fields map[string]any) map[string]float64 {
	out := make(map[string]float64, len(fields))
	for name, value := range fields {
		n, ok := value.(float64)
		if !ok {
			h.logger.Warn("Ignoring non-numeric productivity field", "field", name)
			continue
		}
		out[name] = n
	}
	return out
}
