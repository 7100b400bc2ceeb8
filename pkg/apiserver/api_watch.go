package apiserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"vpnshield/pkg/bus"
	"vpnshield/pkg/session"
)

// watchBuffer bounds the snapshots queued for one watcher; a slower watcher skips snapshots.
const watchBuffer = 32

var _ bus.Observer[session.Snapshot] = (*watchQueue)(nil)

// watchQueue buffers snapshots for one watcher and counts the ones it had to skip.
type watchQueue struct {
	clientIP string
	ch       chan session.Snapshot
	dropped  atomic.Uint64
}

func newWatchQueue(clientIP string, size int) *watchQueue {
	return &watchQueue{
		clientIP: clientIP,
		ch:       make(chan session.Snapshot, size),
	}
}

func (q *watchQueue) Notify(snap session.Snapshot) {
	select {
	case q.ch <- snap:
	default:
		dropped := q.dropped.Add(1)
		slog.Debug("watcher behind, snapshot skipped", slog.String("client_ip", q.clientIP),
			slog.Uint64("generation", snap.Generation), slog.Uint64("dropped", dropped))
	}
}

// handleWatch streams snapshots as newline-delimited JSON until the client goes away.
func (s *Service) handleWatch(w http.ResponseWriter, r *http.Request) {
	if err := s.authClient(r); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		ErrInternalServerError.WithErrorMsg("Streaming unsupported").Handle(w)
		return
	}

	clientIP := getClientIP(r)
	queue := newWatchQueue(clientIP, watchBuffer)
	handle := s.ctrl.Subscribe(queue)
	defer s.ctrl.Unsubscribe(handle)

	slog.Info("watch started", slog.String("client_ip", clientIP))
	defer func() {
		slog.Info("watch finished", slog.String("client_ip", clientIP), slog.Uint64("dropped", queue.dropped.Load()))
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	e := json.NewEncoder(w)
	if err := e.Encode(s.ctrl.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-queue.ch:
			if err := e.Encode(snap); err != nil {
				slog.Debug("watch write failed", slog.String("client_ip", clientIP), slog.Any("err", err))
				return
			}
			flusher.Flush()
		}
	}
}
