package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"AutoLP-Chain/internal/cooldown"
	xerrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/journal"
	"AutoLP-Chain/internal/observability/metrics"
	"AutoLP-Chain/internal/operation"
	"AutoLP-Chain/internal/web3"
)

// Server 负责暴露只读的状态接口。
type Server struct {
	addr    string
	store   journal.Store
	gates   []*cooldown.Gate
	metrics *metrics.Metrics
	chain   web3.SnapshotReader
	started time.Time
}

// Option 调整 Server 的可选依赖。
type Option func(*Server)

// WithMetrics 挂载 /metrics 并为每个请求记录指标。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCooldowns 暴露冷却门的状态。
func WithCooldowns(gates ...*cooldown.Gate) Option {
	return func(s *Server) {
		for _, g := range gates {
			if g != nil {
				s.gates = append(s.gates, g)
			}
		}
	}
}

// WithChain 暴露默认链的元数据；reader 为 nil 时接口返回 503。
func WithChain(reader web3.SnapshotReader) Option {
	return func(s *Server) { s.chain = reader }
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, store journal.Store, opts ...Option) *Server {
	s := &Server{addr: addr, store: store, started: time.Now()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由，便于测试或嵌入其他服务。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", s.instrument("healthz", s.handleHealth))
	mux.Handle("/api/v1/operations", s.instrument("operations", s.handleOperations))
	mux.Handle("/api/v1/stats", s.instrument("stats", s.handleStats))
	mux.Handle("/api/v1/cooldown", s.instrument("cooldown", s.handleCooldown))
	mux.Handle("/api/v1/chain", s.instrument("chain", s.handleChain))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "操作日志未初始化", http.StatusServiceUnavailable)
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.store.List(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"operations": records,
		"limit":      opts.Limit,
		"offset":     opts.Offset,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "操作日志未初始化", http.StatusServiceUnavailable)
		return
	}
	opts, err := parseListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.store.Stats(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type cooldownView struct {
	Key              string     `json:"key"`
	Active           bool       `json:"active"`
	LastRun          *time.Time `json:"last_run,omitempty"`
	Message          string     `json:"message,omitempty"`
	DurationSeconds  int64      `json:"duration_seconds"`
	RemainingSeconds int64      `json:"remaining_seconds"`
}

func (s *Server) handleCooldown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	views := make([]cooldownView, 0, len(s.gates))
	for _, gate := range s.gates {
		st := gate.Status(r.Context())
		view := cooldownView{
			Key:              st.Key,
			Active:           st.Active,
			Message:          st.Message,
			DurationSeconds:  int64(st.Duration.Seconds()),
			RemainingSeconds: int64(st.Remaining.Seconds()),
		}
		if st.Found {
			last := st.LastRun
			view.LastRun = &last
		}
		if s.metrics != nil {
			s.metrics.SetCooldownRemaining(st.Key, st.Remaining)
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"cooldowns": views})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.chain == nil {
		http.Error(w, "未连接链节点", http.StatusServiceUnavailable)
		return
	}
	snapshot, err := s.chain.FetchChainSnapshot(r.Context())
	if err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeChainReadFailure, err, "读取链信息失败"))
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func parseListOptions(r *http.Request) (journal.ListOptions, error) {
	q := r.URL.Query()
	var opts []journal.ListOption

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return journal.ListOptions{}, xerrors.New(xerrors.CodeInvalidArgument, "limit 必须为正整数")
		}
		opts = append(opts, journal.WithLimit(limit))
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return journal.ListOptions{}, xerrors.New(xerrors.CodeInvalidArgument, "offset 必须为非负整数")
		}
		opts = append(opts, journal.WithOffset(offset))
	}
	if raw := q.Get("kind"); raw != "" {
		var kinds []operation.Kind
		for _, part := range strings.Split(raw, ",") {
			kind := operation.Kind(strings.ToUpper(strings.TrimSpace(part)))
			if !journal.IsValidKind(kind) {
				return journal.ListOptions{}, xerrors.New(xerrors.CodeInvalidArgument, "未知的操作类型: "+part)
			}
			kinds = append(kinds, kind)
		}
		opts = append(opts, journal.WithKinds(kinds...))
	}
	if raw := q.Get("status"); raw != "" {
		var statuses []operation.Status
		for _, part := range strings.Split(raw, ",") {
			status := operation.Status(strings.ToLower(strings.TrimSpace(part)))
			if !journal.IsValidStatus(status) {
				return journal.ListOptions{}, xerrors.New(xerrors.CodeInvalidArgument, "未知的操作状态: "+part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, journal.WithStatuses(statuses...))
	}
	if raw := strings.TrimSpace(q.Get("wallet")); raw != "" {
		opts = append(opts, journal.WithWallet(raw))
	}
	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		since, err := parseSince(raw)
		if err != nil {
			return journal.ListOptions{}, err
		}
		opts = append(opts, journal.WithSince(since))
	}
	if strings.EqualFold(q.Get("order"), "asc") {
		opts = append(opts, journal.WithSortOrder(journal.SortByCreatedAsc))
	}
	return journal.NewListOptions(opts...), nil
}

// parseSince 接受 Unix 秒或 RFC3339 时间。
func parseSince(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, xerrors.New(xerrors.CodeInvalidArgument, "since 必须为 Unix 秒或 RFC3339 时间")
	}
	return ts, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case xerrors.CodeNotFound:
		status = http.StatusNotFound
	case xerrors.CodeChainReadFailure:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{
		"code":    string(xerrors.CodeOf(err)),
		"message": xerrors.Reason(err),
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(name string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			fn(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		s.metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
