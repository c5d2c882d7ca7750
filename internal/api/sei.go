package api

import (
	"encoding/json"
	"net/http"
	"strings"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/sei"
)

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	// Token 为空时转账原生 SEI。
	Token string `json:"token,omitempty"`
}

type approvalRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type contractRequest struct {
	ABI      json.RawMessage `json:"abi"`
	Function string          `json:"function"`
	Args     []any           `json:"args,omitempty"`
}

type contractCheckResponse struct {
	Address    string `json:"address"`
	IsContract bool   `json:"isContract"`
}

type contractReadResponse struct {
	Result json.RawMessage `json:"result"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chains.Chains())
}

func (s *Server) handleChainInfo(w http.ResponseWriter, r *http.Request) {
	if s.sei == nil {
		s.writeError(w, r, unavailable("Sei 服务"))
		return
	}
	info, err := s.sei.GetChainInfo(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if s.sei == nil {
		s.writeError(w, r, unavailable("Sei 服务"))
		return
	}
	address := r.PathValue("address")
	balance, err := s.sei.GetBalance(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: address, Balance: balance})
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	if s.sei == nil {
		s.writeError(w, r, unavailable("Sei 服务"))
		return
	}
	info, err := s.sei.GetTokenInfo(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	if s.sei == nil {
		s.writeError(w, r, unavailable("Sei 服务"))
		return
	}
	bal, err := s.sei.GetTokenBalance(r.Context(), r.PathValue("token"), r.PathValue("owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	if s.sei == nil {
		s.writeError(w, r, unavailable("Sei 服务"))
		return
	}
	tx, err := s.sei.GetTransaction(r.Context(), r.PathValue("hash"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// handleTransfer 将转账转发给 MCP 服务器，签名由其完成。
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if s.sei == nil {
		s.writeError(w, r, unavailable("Sei 服务"))
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Amount) == "" {
		s.writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "to 与 amount 不能为空"))
		return
	}

	var (
		tx  *sei.TransactionResult
		err error
	)
	if token := strings.TrimSpace(req.Token); token != "" {
		tx, err = s.sei.TransferToken(r.Context(), token, req.To, req.Amount)
	} else {
		tx, err = s.sei.TransferSei(r.Context(), req.To, req.Amount)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if s.sei == nil {
		s.writeError(w, r, unavailable("Sei 服务"))
		return
	}
	var req approvalRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.Spender) == "" || strings.TrimSpace(req.Amount) == "" {
		s.writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "token、spender 与 amount 不能为空"))
		return
	}
	tx, err := s.sei.ApproveToken(r.Context(), req.Token, req.Spender, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleIsContract(w http.ResponseWriter, r *http.Request) {
	if s.sei == nil {
		s.writeError(w, r, unavailable("Sei 服务"))
		return
	}
	address := r.PathValue("address")
	ok, err := s.sei.IsContract(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contractCheckResponse{Address: address, IsContract: ok})
}

func (s *Server) contractCall(r *http.Request) (sei.ContractCall, error) {
	var req contractRequest
	if err := decodeBody(r, &req); err != nil {
		return sei.ContractCall{}, err
	}
	return sei.ContractCall{
		Contract: r.PathValue("address"),
		ABI:      req.ABI,
		Function: req.Function,
		Args:     req.Args,
	}, nil
}

func (s *Server) handleReadContract(w http.ResponseWriter, r *http.Request) {
	if s.sei == nil {
		s.writeError(w, r, unavailable("Sei 服务"))
		return
	}
	call, err := s.contractCall(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.sei.ReadContract(r.Context(), call)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contractReadResponse{Result: out})
}

// handleWriteContract 与转账一样由 MCP 服务器签名。
func (s *Server) handleWriteContract(w http.ResponseWriter, r *http.Request) {
	if s.sei == nil {
		s.writeError(w, r, unavailable("Sei 服务"))
		return
	}
	call, err := s.contractCall(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.sei.WriteContract(r.Context(), call)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type healthResponse struct {
	Status string `json:"status"`
	// MCP 为 nil 表示未启用 Sei 服务。
	MCP *bool `json:"mcp,omitempty"`
}

// handleHealth 在 MCP 不可用时仍返回 200，只在响应体中标记为 degraded。
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.sei != nil {
		healthy := s.sei.HealthCheck(r.Context())
		resp.MCP = &healthy
		if !healthy {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
