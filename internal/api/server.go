package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"SeiFlow/internal/chain"
	"SeiFlow/internal/intent"
	"SeiFlow/internal/observability/metrics"
	"SeiFlow/internal/sei"
	"SeiFlow/internal/task"
	"SeiFlow/pkg/logger"
)

// IntentParser 执行同步的意图解析，*parser.Parser 满足该接口。
type IntentParser interface {
	Parse(ctx context.Context, input string) (*intent.ParsedIntentResult, error)
}

// SeiBackend 是 API 依赖的 Sei 网络能力，*sei.Service 满足该接口。
type SeiBackend interface {
	GetChainInfo(ctx context.Context) (*sei.ChainInfo, error)
	GetBalance(ctx context.Context, address string) (string, error)
	GetTokenInfo(ctx context.Context, token string) (*sei.TokenInfo, error)
	GetTokenBalance(ctx context.Context, token, owner string) (*sei.TokenBalance, error)
	GetTransaction(ctx context.Context, hash string) (*sei.TransactionResult, error)
	TransferSei(ctx context.Context, to, amount string) (*sei.TransactionResult, error)
	TransferToken(ctx context.Context, token, to, amount string) (*sei.TransactionResult, error)
	ApproveToken(ctx context.Context, token, spender, amount string) (*sei.TransactionResult, error)
	IsContract(ctx context.Context, address string) (bool, error)
	ReadContract(ctx context.Context, call sei.ContractCall) (json.RawMessage, error)
	WriteContract(ctx context.Context, call sei.ContractCall) (*sei.TransactionResult, error)
	HealthCheck(ctx context.Context) bool
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr   string
	parser IntentParser
	tasks  *task.Service
	sei    SeiBackend
	chains *chain.Registry
	logger *slog.Logger
}

// Option 定义可选配置。
type Option func(*Server)

// WithParser 启用 /api/v1/intents。
func WithParser(p IntentParser) Option {
	return func(s *Server) { s.parser = p }
}

// WithTaskService 启用 /api/v1/jobs。
func WithTaskService(svc *task.Service) Option {
	return func(s *Server) { s.tasks = svc }
}

// WithSei 启用 /api/v1/sei 下的接口。
func WithSei(backend SeiBackend) Option {
	return func(s *Server) { s.sei = backend }
}

// WithChainRegistry 指定 /api/v1/chains 使用的注册表。
func WithChainRegistry(reg *chain.Registry) Option {
	return func(s *Server) { s.chains = reg }
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{addr: addr}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.chains == nil {
		s.chains = chain.Default()
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Handler 返回完整的路由，便于测试或嵌入其他服务器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /api/v1/intents", "intents.parse", s.handleParseIntent)
	s.route(mux, "POST /api/v1/jobs", "jobs.create", s.handleCreateJob)
	s.route(mux, "GET /api/v1/jobs", "jobs.list", s.handleListJobs)
	s.route(mux, "GET /api/v1/jobs/stats", "jobs.stats", s.handleJobStats)
	s.route(mux, "GET /api/v1/jobs/{id}", "jobs.detail", s.handleJobDetail)
	s.route(mux, "GET /api/v1/chains", "chains.list", s.handleListChains)
	s.route(mux, "GET /api/v1/sei/chain-info", "sei.chain_info", s.handleChainInfo)
	s.route(mux, "GET /api/v1/sei/balances/{address}", "sei.balance", s.handleBalance)
	s.route(mux, "GET /api/v1/sei/tokens/{token}", "sei.token", s.handleTokenInfo)
	s.route(mux, "GET /api/v1/sei/tokens/{token}/balances/{owner}", "sei.token_balance", s.handleTokenBalance)
	s.route(mux, "GET /api/v1/sei/transactions/{hash}", "sei.transaction", s.handleTransaction)
	s.route(mux, "POST /api/v1/sei/transfers", "sei.transfer", s.handleTransfer)
	s.route(mux, "POST /api/v1/sei/approvals", "sei.approve", s.handleApprove)
	s.route(mux, "GET /api/v1/sei/contracts/{address}", "sei.is_contract", s.handleIsContract)
	s.route(mux, "POST /api/v1/sei/contracts/{address}/read", "sei.read_contract", s.handleReadContract)
	s.route(mux, "POST /api/v1/sei/contracts/{address}/write", "sei.write_contract", s.handleWriteContract)
	s.route(mux, "GET /healthz", "healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern, label string, h http.HandlerFunc) {
	mux.Handle(pattern, metrics.Instrument(label, h))
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
	s.logger.Info("API 服务已启动", slog.String("address", s.addr))

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
