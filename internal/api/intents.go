package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/task"
)

type parseRequest struct {
	Input string `json:"input"`
}

// handleParseIntent 同步解析自然语言请求。
func (s *Server) handleParseIntent(w http.ResponseWriter, r *http.Request) {
	if s.parser == nil {
		s.writeError(w, r, unavailable("意图解析"))
		return
	}
	var req parseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		s.writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "input 不能为空"))
		return
	}
	result, err := s.parser.Parse(r.Context(), req.Input)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		s.writeError(w, r, unavailable("任务队列"))
		return
	}
	var req task.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		s.writeError(w, r, unavailable("任务队列"))
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeError(w, r, xerrors.New(xerrors.CodeInvalidArgument, "缺少任务 ID"))
		return
	}
	job, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		s.writeError(w, r, unavailable("任务队列"))
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	jobs, err := s.tasks.List(r.Context(), opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*task.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		s.writeError(w, r, unavailable("任务队列"))
		return
	}
	opts, err := listOptionsFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.tasks.Stats(r.Context(), opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listOptionsFromQuery 解析 limit、offset、status、order、q、has_result、since、until。
func listOptionsFromQuery(r *http.Request) ([]task.ListOption, error) {
	q := r.URL.Query()
	var opts []task.ListOption

	intParam := func(name string) (int, bool, error) {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			return 0, false, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, false, xerrors.New(xerrors.CodeInvalidArgument, name+" 必须是非负整数")
		}
		return v, true, nil
	}
	if v, ok, err := intParam("limit"); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, task.WithLimit(v))
	}
	if v, ok, err := intParam("offset"); err != nil {
		return nil, err
	} else if ok {
		opts = append(opts, task.WithOffset(v))
	}

	if raw := q.Get("status"); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			status := task.Status(strings.ToLower(strings.TrimSpace(part)))
			if !task.IsValidStatus(status) {
				return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的任务状态: "+part)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}

	switch strings.ToLower(q.Get("order")) {
	case "", "desc":
	case "asc":
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "order 只能是 asc 或 desc")
	}

	if query := strings.TrimSpace(q.Get("q")); query != "" {
		opts = append(opts, task.WithQuery(query))
	}
	if raw := q.Get("has_result"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "has_result 必须是布尔值")
		}
		opts = append(opts, task.WithResultPresence(v))
	}

	for name, apply := range map[string]func(time.Time) task.ListOption{
		"since": task.WithUpdatedSince,
		"until": task.WithUpdatedUntil,
	} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, name+" 必须是 RFC3339 时间")
		}
		opts = append(opts, apply(ts))
	}
	return opts, nil
}
