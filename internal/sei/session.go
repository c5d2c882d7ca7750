package sei

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	xerrors "SeiFlow/internal/errors"
)

// ErrNotInitialized 在 Connect 成功之前调用操作时返回。
var ErrNotInitialized = xerrors.New(xerrors.CodeInitializationFailure, "Sei MCP not initialized")

// Factory 根据配置创建服务，便于测试替换。
type Factory func(cfg Config) (*Service, error)

// Session 持有一个已连接的服务、最近的链信息与最近一次错误。
// 每次操作先清空再记录错误。
type Session struct {
	cfg     Config
	factory Factory

	mu        sync.RWMutex
	service   *Service
	chainInfo *ChainInfo
	connected bool
	lastErr   error
}

// NewSession 创建会话，factory 为 nil 时使用 NewService。
func NewSession(cfg Config, factory Factory) *Session {
	if factory == nil {
		factory = func(cfg Config) (*Service, error) { return NewService(cfg) }
	}
	return &Session{cfg: cfg, factory: factory}
}

// Connect 创建服务并拉取链信息确认连通。重复调用会替换旧服务。
func (s *Session) Connect(ctx context.Context) error {
	svc, err := s.factory(s.cfg)
	if err != nil {
		s.fail(err)
		return err
	}
	info, err := svc.GetChainInfo(ctx)
	if err != nil {
		_ = svc.Close()
		s.fail(err)
		return err
	}

	s.mu.Lock()
	old := s.service
	s.service = svc
	s.chainInfo = info
	s.connected = true
	s.lastErr = nil
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.lastErr = err
}

// Connected 报告最近一次 Connect 是否成功。
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ChainInfo 返回 Connect 时获取的链信息，未连接时为 nil。
func (s *Session) ChainInfo() *ChainInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chainInfo == nil {
		return nil
	}
	info := *s.chainInfo
	return &info
}

// LastError 返回最近一次失败操作的错误。
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Service 返回底层服务，未连接时返回 ErrNotInitialized。
func (s *Session) Service() (*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.service == nil {
		return nil, ErrNotInitialized
	}
	return s.service, nil
}

func (s *Session) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

// run 清空上次错误后执行 fn，并记录本次错误。
func run[T any](s *Session, fn func(*Service) (T, error)) (T, error) {
	var zero T
	svc, err := s.Service()
	if err != nil {
		return zero, err
	}
	s.record(nil)
	out, err := fn(svc)
	if err != nil {
		s.record(err)
		return zero, err
	}
	return out, nil
}

// GetChainInfo 重新获取链信息并更新会话中保存的副本。
func (s *Session) GetChainInfo(ctx context.Context) (*ChainInfo, error) {
	info, err := run(s, func(svc *Service) (*ChainInfo, error) { return svc.GetChainInfo(ctx) })
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	latest := *info
	s.chainInfo = &latest
	s.mu.Unlock()
	return info, nil
}

// GetTokenInfo 见 Service.GetTokenInfo。
func (s *Session) GetTokenInfo(ctx context.Context, token string) (*TokenInfo, error) {
	return run(s, func(svc *Service) (*TokenInfo, error) { return svc.GetTokenInfo(ctx, token) })
}

// GetBalance 见 Service.GetBalance。
func (s *Session) GetBalance(ctx context.Context, address string) (string, error) {
	return run(s, func(svc *Service) (string, error) { return svc.GetBalance(ctx, address) })
}

// GetTokenBalance 见 Service.GetTokenBalance。
func (s *Session) GetTokenBalance(ctx context.Context, token, owner string) (*TokenBalance, error) {
	return run(s, func(svc *Service) (*TokenBalance, error) { return svc.GetTokenBalance(ctx, token, owner) })
}

// TransferSei 见 Service.TransferSei。
func (s *Session) TransferSei(ctx context.Context, to, amount string) (*TransactionResult, error) {
	return run(s, func(svc *Service) (*TransactionResult, error) { return svc.TransferSei(ctx, to, amount) })
}

// TransferToken 见 Service.TransferToken。
func (s *Session) TransferToken(ctx context.Context, token, to, amount string) (*TransactionResult, error) {
	return run(s, func(svc *Service) (*TransactionResult, error) { return svc.TransferToken(ctx, token, to, amount) })
}

// GetTransaction 见 Service.GetTransaction。
func (s *Session) GetTransaction(ctx context.Context, hash string) (*TransactionResult, error) {
	return run(s, func(svc *Service) (*TransactionResult, error) { return svc.GetTransaction(ctx, hash) })
}

// ApproveToken 见 Service.ApproveToken。
func (s *Session) ApproveToken(ctx context.Context, token, spender, amount string) (*TransactionResult, error) {
	return run(s, func(svc *Service) (*TransactionResult, error) { return svc.ApproveToken(ctx, token, spender, amount) })
}

// IsContract 见 Service.IsContract。
func (s *Session) IsContract(ctx context.Context, address string) (bool, error) {
	return run(s, func(svc *Service) (bool, error) { return svc.IsContract(ctx, address) })
}

// ReadContract 见 Service.ReadContract。
func (s *Session) ReadContract(ctx context.Context, call ContractCall) (json.RawMessage, error) {
	return run(s, func(svc *Service) (json.RawMessage, error) { return svc.ReadContract(ctx, call) })
}

// WriteContract 见 Service.WriteContract。
func (s *Session) WriteContract(ctx context.Context, call ContractCall) (*TransactionResult, error) {
	return run(s, func(svc *Service) (*TransactionResult, error) { return svc.WriteContract(ctx, call) })
}

// HealthCheck 未连接时返回 false。
func (s *Session) HealthCheck(ctx context.Context) bool {
	svc, err := s.Service()
	if err != nil {
		return false
	}
	return svc.HealthCheck(ctx)
}

// FormatFromWei 要求会话已连接。
func (s *Session) FormatFromWei(wei string, decimals int) (string, error) {
	return run(s, func(svc *Service) (string, error) { return svc.FormatFromWei(wei, decimals) })
}

// FormatToWei 要求会话已连接。
func (s *Session) FormatToWei(amount string, decimals int) (string, error) {
	return run(s, func(svc *Service) (string, error) { return svc.FormatToWei(amount, decimals) })
}

// Close 关闭底层服务。
func (s *Session) Close() error {
	s.mu.Lock()
	svc := s.service
	s.service = nil
	s.connected = false
	s.mu.Unlock()
	if svc == nil {
		return nil
	}
	return svc.Close()
}

// IsNotInitialized 判断错误是否因会话未连接。
func IsNotInitialized(err error) bool {
	return errors.Is(err, ErrNotInitialized)
}
