// Package server exposes the assembler and machine over HTTP with CBOR
// request and response bodies.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/tliron/commonlog"

	"github.com/purevm/purevm/asm"
	"github.com/purevm/purevm/sexpr"
	"github.com/purevm/purevm/store"
	"github.com/purevm/purevm/vm"
)

const contentType = "application/cbor"

// maxBodyBytes bounds request bodies; programs and calldata are small.
const maxBodyBytes = 8 << 20

var log = commonlog.GetLogger("purevm.server")

// Server wraps one Interpreter and one artifact Store.
type Server struct {
	interp    *vm.Interpreter
	artifacts *store.Store
	mux       *http.ServeMux
	httpSrv   *http.Server
}

// New creates a Server. The artifact store may be nil, in which case
// assembled programs are not persisted and /v1/artifacts is absent.
func New(interp *vm.Interpreter, artifacts *store.Store) *Server {
	s := &Server{
		interp:    interp,
		artifacts: artifacts,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /v1/assemble", s.handleAssemble)
	s.mux.HandleFunc("POST /v1/disassemble", s.handleDisassemble)
	s.mux.HandleFunc("POST /v1/execute", s.handleExecute)
	if artifacts != nil {
		s.mux.HandleFunc("GET /v1/artifacts", s.handleList)
		s.mux.HandleFunc("GET /v1/artifacts/{id}", s.handleGet)
	}
	return s
}

// Handler returns the routing handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address and blocks.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Noticef("listening on %s", addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	var req AssembleRequest
	if !readBody(w, r, reqID, &req) {
		return
	}
	code, err := sexpr.Build(req.Source)
	if err != nil {
		replyError(w, reqID, http.StatusUnprocessableEntity, err)
		return
	}
	listing, err := asm.FormatBytecode(code)
	if err != nil {
		replyError(w, reqID, http.StatusInternalServerError, err)
		return
	}
	resp := AssembleResponse{Code: code, Listing: listing}
	if s.artifacts != nil {
		if resp.ID, err = s.artifacts.Put(req.Name, code); err != nil {
			replyError(w, reqID, http.StatusInternalServerError, err)
			return
		}
	}
	log.Infof("[%s] assembled %d bytes", reqID, len(code))
	reply(w, reqID, http.StatusOK, &resp)
}

func (s *Server) handleDisassemble(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	var req DisassembleRequest
	if !readBody(w, r, reqID, &req) {
		return
	}
	listing, err := asm.FormatBytecode(req.Code)
	if err != nil {
		replyError(w, reqID, http.StatusUnprocessableEntity, err)
		return
	}
	reply(w, reqID, http.StatusOK, &DisassembleResponse{Listing: listing})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	var req ExecuteRequest
	if !readBody(w, r, reqID, &req) {
		return
	}
	code, err := s.resolveCode(&req)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		replyError(w, reqID, status, err)
		return
	}
	if len(req.Value) > 32 {
		replyError(w, reqID, http.StatusUnprocessableEntity,
			fmt.Errorf("value of %d bytes exceeds 32", len(req.Value)))
		return
	}
	value := new(uint256.Int).SetBytes(req.Value)

	res, err := s.interp.ExecBytecode(code, req.Calldata, value)
	if err != nil {
		// Execution faults are the client's problem, not the server's.
		replyError(w, reqID, http.StatusUnprocessableEntity, err)
		return
	}
	resp := ExecuteResponse{
		Stack:      make([][]byte, len(res.Stack)),
		Reverted:   res.Reverted,
		ReturnData: res.ReturnData,
	}
	for i := range res.Stack {
		resp.Stack[i] = res.Stack[i].Bytes()
	}
	log.Infof("[%s] executed %d bytes, %d words left", reqID, len(code), len(res.Stack))
	reply(w, reqID, http.StatusOK, &resp)
}

// resolveCode picks the one program source an ExecuteRequest names.
func (s *Server) resolveCode(req *ExecuteRequest) ([]byte, error) {
	set := 0
	for _, ok := range []bool{req.Source != "", len(req.Code) > 0, req.ID != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of source, code or id must be set")
	}
	switch {
	case req.Source != "":
		return sexpr.Build(req.Source)
	case len(req.Code) > 0:
		return req.Code, nil
	default:
		if s.artifacts == nil {
			return nil, errors.New("no artifact store configured")
		}
		a, err := s.artifacts.Get(req.ID)
		if err != nil {
			return nil, err
		}
		return a.Code, nil
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	all, err := s.artifacts.List()
	if err != nil {
		replyError(w, reqID, http.StatusInternalServerError, err)
		return
	}
	infos := make([]ArtifactInfo, len(all))
	for i, a := range all {
		infos[i] = ArtifactInfo{
			ID:        a.ID,
			Name:      a.Name,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
	}
	reply(w, reqID, http.StatusOK, infos)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	a, err := s.artifacts.Get(r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		replyError(w, reqID, status, err)
		return
	}
	listing, err := asm.FormatBytecode(a.Code)
	if err != nil {
		replyError(w, reqID, http.StatusInternalServerError, err)
		return
	}
	reply(w, reqID, http.StatusOK, &AssembleResponse{ID: a.ID, Code: a.Code, Listing: listing})
}

// ---------------------------------------------------------------------------
// CBOR plumbing
// ---------------------------------------------------------------------------

func readBody(w http.ResponseWriter, r *http.Request, reqID string, into any) bool {
	// Read one byte past the cap so truncation is detectable.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		replyError(w, reqID, http.StatusBadRequest, err)
		return false
	}
	if len(body) > maxBodyBytes {
		replyError(w, reqID, http.StatusRequestEntityTooLarge,
			fmt.Errorf("request body exceeds %d bytes", maxBodyBytes))
		return false
	}
	if err := cbor.Unmarshal(body, into); err != nil {
		replyError(w, reqID, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return false
	}
	return true
}

func reply(w http.ResponseWriter, reqID string, status int, body any) {
	data, err := cborEncMode.Marshal(body)
	if err != nil {
		log.Errorf("[%s] encoding response: %v", reqID, err)
		http.Error(w, "encoding response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(data)
}

func replyError(w http.ResponseWriter, reqID string, status int, err error) {
	log.Infof("[%s] request failed: %v", reqID, err)
	reply(w, reqID, status, &ErrorResponse{Error: err.Error()})
}
