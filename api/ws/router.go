package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc processes one decoded timer-control payload.
type HandlerFunc func(ctx context.Context, session *Session, payload json.RawMessage) error

// Router maps packet types (timer_attach, quest_poll, ...) to handlers and
// enforces per-session sequence ordering before any handler runs.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers the handler for a packet type. Last registration wins.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes one raw frame and runs its handler. Frames that fail to
// decode or replay an old seq are dropped without reply; the client's next
// well-formed packet proceeds normally.
func (r *Router) Dispatch(s *Session, raw []byte) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("dropping undecodable frame",
			zap.Int64("profile_id", s.ProfileID),
			zap.Error(err))
		return
	}
	if !r.admitSeq(s, pkt.Seq) {
		return
	}

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("no handler for packet type",
			zap.String("type", pkt.Type),
			zap.Int64("profile_id", s.ProfileID))
		return
	}

	// Each dispatch gets its own trace id, tying handler logs and audit
	// rows to this packet.
	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)

	if err := fn(ctx, s, pkt.Payload); err != nil {
		r.logger.Error("packet handler failed",
			zap.String("type", pkt.Type),
			zap.Int64("profile_id", s.ProfileID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
	}
}

// admitSeq enforces a strictly increasing seq per session. Seq 0 opts out
// of tracking (clients without replay protection).
func (r *Router) admitSeq(s *Session, seq uint64) bool {
	if seq == 0 {
		return true
	}
	if seq <= s.LastSeq {
		r.logger.Warn("rejecting replayed packet",
			zap.Int64("profile_id", s.ProfileID),
			zap.Uint64("seq", seq),
			zap.Uint64("last_seq", s.LastSeq))
		return false
	}
	s.LastSeq = seq
	return true
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the dispatch trace id from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
