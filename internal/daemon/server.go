// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"context"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dotandev/stackopt/internal/blocks"
	"github.com/dotandev/stackopt/internal/contract"
	"github.com/dotandev/stackopt/internal/coverage"
	"github.com/dotandev/stackopt/internal/db"
	"github.com/dotandev/stackopt/internal/debuginfo"
	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/logger"
	"github.com/dotandev/stackopt/internal/optimizer"
	"github.com/dotandev/stackopt/internal/telemetry"
)

// Server represents the JSON-RPC daemon server
type Server struct {
	pipeline   *optimizer.Pipeline
	store      *db.Store
	authToken  string
	bestEffort bool
}

// Config holds daemon configuration
type Config struct {
	Port      string
	AuthToken string
	// BestEffort makes Optimizer.Optimize fall back to the input contract
	// when a pass fails, unless the request asks for strict mode.
	BestEffort bool
}

// OptimizeRequest represents the Optimizer.Optimize RPC request
type OptimizeRequest struct {
	Name    string                `json:"name"`
	Script  string                `json:"script"`
	Entries []contract.EntryPoint `json:"entries"`
	Debug   *debuginfo.Info       `json:"debug,omitempty"`
	Strict  bool                  `json:"strict,omitempty"`
}

// OptimizeResponse represents the Optimizer.Optimize RPC response
type OptimizeResponse struct {
	Name          string                `json:"name"`
	Hash          string                `json:"hash"`
	Script        string                `json:"script"`
	Entries       []contract.EntryPoint `json:"entries"`
	Debug         *debuginfo.Info       `json:"debug,omitempty"`
	AddressMap    map[int]int           `json:"address_map"`
	Deleted       []int                 `json:"deleted"`
	OriginalSize  int                   `json:"original_size"`
	OptimizedSize int                   `json:"optimized_size"`
	Removed       int                   `json:"removed"`
	Fallback      bool                  `json:"fallback"`
	Error         string                `json:"error,omitempty"`
}

// AnalyzeRequest represents the Optimizer.Analyze RPC request
type AnalyzeRequest struct {
	Name    string                `json:"name"`
	Script  string                `json:"script"`
	Entries []contract.EntryPoint `json:"entries"`
}

// InstructionCoverage is the branch type of one instruction.
type InstructionCoverage struct {
	Offset int    `json:"offset"`
	OpCode string `json:"opcode"`
	Branch string `json:"branch"`
}

// Block summarizes one basic block. Offsets refer to the input script.
type Block struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Branch      string `json:"branch"`
	Next        *int   `json:"next,omitempty"`
	JumpTargets []int  `json:"jump_targets,omitempty"`
}

// AnalyzeResponse represents the Optimizer.Analyze RPC response
type AnalyzeResponse struct {
	Name         string                `json:"name"`
	Hash         string                `json:"hash"`
	Instructions []InstructionCoverage `json:"instructions"`
	Blocks       []Block               `json:"blocks"`
	Uncovered    int                   `json:"uncovered"`
}

// NewServer creates a new JSON-RPC server. store may be nil, in which case
// no reports are recorded.
func NewServer(config Config, pipeline *optimizer.Pipeline, store *db.Store) *Server {
	return &Server{
		pipeline:   pipeline,
		store:      store,
		authToken:  config.AuthToken,
		bestEffort: config.BestEffort,
	}
}

// authenticate validates the authorization token
func (s *Server) authenticate(r *http.Request) bool {
	if s.authToken == "" {
		return true // No auth required
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}

	// Support "Bearer <token>" format
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == s.authToken
	}
	return auth == s.authToken
}

var errUnauthorized = &json2.Error{Code: json2.E_INVALID_REQ, Message: "unauthorized"}

func badParams(err error) error {
	return &json2.Error{Code: json2.E_BAD_PARAMS, Message: err.Error()}
}

func decode(name, scriptHex string, entries []contract.EntryPoint, debug *debuginfo.Info) (*contract.Contract, error) {
	code, err := hex.DecodeString(strings.TrimPrefix(scriptHex, "0x"))
	if err != nil {
		return nil, badParams(fmt.Errorf("script is not hex: %w", err))
	}
	if len(code) == 0 {
		return nil, badParams(fmt.Errorf("empty script"))
	}
	c, err := contract.Decode(name, code, entries, debug)
	if err != nil {
		return nil, badParams(err)
	}
	return c, nil
}

// Optimizer is the RPC service. Its methods are exposed as
// Optimizer.Optimize and Optimizer.Analyze.
type Optimizer struct {
	s *Server
}

// Optimize handles Optimizer.Optimize RPC calls
func (o *Optimizer) Optimize(r *http.Request, req *OptimizeRequest, resp *OptimizeResponse) error {
	s := o.s
	if !s.authenticate(r) {
		return errUnauthorized
	}

	ctx, span := telemetry.GetTracer().Start(r.Context(), "rpc_optimize")
	span.SetAttributes(attribute.String("contract.name", req.Name))
	defer span.End()

	logger.Logger.Info("Processing Optimizer.Optimize RPC", "name", req.Name)

	c, err := decode(req.Name, req.Script, req.Entries, req.Debug)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	hash, err := c.Hash()
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("contract.hash", hash))

	var res *optimizer.Result
	if s.bestEffort && !req.Strict {
		res, err = s.pipeline.TryOptimize(ctx, c)
	} else {
		res, err = s.pipeline.Optimize(ctx, c)
	}
	s.record(req.Name, hash, res, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.IsStructural(err) {
			return badParams(err)
		}
		return err
	}

	deleted := res.Deleted.ToSlice()
	sort.Ints(deleted)
	*resp = OptimizeResponse{
		Name:          req.Name,
		Hash:          hash,
		Script:        hex.EncodeToString(res.Bytes),
		Entries:       res.Contract.EntryPoints(),
		Debug:         res.Contract.Debug,
		AddressMap:    res.AddressMap,
		Deleted:       deleted,
		OriginalSize:  res.Stats.OriginalSize,
		OptimizedSize: res.Stats.OptimizedSize,
		Removed:       res.Stats.Removed(),
		Fallback:      res.Fallback,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return nil
}

// Analyze handles Optimizer.Analyze RPC calls
func (o *Optimizer) Analyze(r *http.Request, req *AnalyzeRequest, resp *AnalyzeResponse) error {
	if !o.s.authenticate(r) {
		return errUnauthorized
	}

	_, span := telemetry.GetTracer().Start(r.Context(), "rpc_analyze")
	span.SetAttributes(attribute.String("contract.name", req.Name))
	defer span.End()

	logger.Logger.Info("Processing Optimizer.Analyze RPC", "name", req.Name)

	c, err := decode(req.Name, req.Script, req.Entries, nil)
	if err != nil {
		span.RecordError(err)
		return err
	}
	hash, err := c.Hash()
	if err != nil {
		return err
	}

	res, err := coverage.Analyze(c.Script, c.EntryIndices())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.IsStructural(err) {
			return badParams(err)
		}
		return err
	}
	g, err := blocks.Build(c.Script, res)
	if err != nil {
		span.RecordError(err)
		return err
	}

	*resp = AnalyzeResponse{Name: req.Name, Hash: hash, Uncovered: res.Count(coverage.UNCOVERED)}
	for i := range c.Script.Instructions {
		ins := c.Script.At(i)
		resp.Instructions = append(resp.Instructions, InstructionCoverage{
			Offset: ins.Offset,
			OpCode: ins.OpCode.String(),
			Branch: res.At(i).String(),
		})
	}
	offset := func(i int) int { return c.Script.At(i).Offset }
	for _, b := range g.Blocks {
		blk := Block{Start: offset(b.Start), End: offset(b.Last()), Branch: b.BranchType.String()}
		if b.Next != nil {
			next := offset(b.Next.Start)
			blk.Next = &next
		}
		targets := b.JumpTargets.ToSlice()
		sort.Ints(targets)
		for _, t := range targets {
			blk.JumpTargets = append(blk.JumpTargets, offset(t))
		}
		resp.Blocks = append(resp.Blocks, blk)
	}
	return nil
}

func (s *Server) record(name, hash string, res *optimizer.Result, err error) {
	if s.store == nil {
		return
	}
	if stderrors.Is(err, context.Canceled) {
		return
	}
	if serr := s.store.SaveReport(db.NewReport(name, hash, s.pipeline.Passes(), res, err)); serr != nil {
		logger.Logger.Warn("Failed to record report", "name", name, "error", serr)
	}
}

// Handler returns the HTTP handler serving /rpc and /health.
func (s *Server) Handler() (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")

	if err := server.RegisterService(&Optimizer{s: s}, ""); err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", server)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux, nil
}

// Start starts the JSON-RPC server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context, port string) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	logger.Logger.Info("Starting JSON-RPC server", "port", port)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Logger.Error("Server failed", "error", err)
		return err
	case <-ctx.Done():
	}

	logger.Logger.Info("Shutting down JSON-RPC server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
