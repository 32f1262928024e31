package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/claims-orchestrator/agent/contract"
	indexerx "github.com/tanpawarit/claims-orchestrator/agent/indexer"
)

type Config struct {
	Addr string `split_words:"true" default:":8080"`
	// PublicURL is the externally visible base URL. When set, QStash
	// signatures must name it as their subject.
	PublicURL       string        `split_words:"true"`
	ShutdownTimeout time.Duration `split_words:"true" default:"15s"`
}

type ClaimProcessor interface {
	ProcessClaim(ctx context.Context, req contractx.ClaimRequest) (contractx.ClaimDecision, error)
}

type BatchIndexer interface {
	Run(ctx context.Context) (indexerx.Report, error)
}

type SignatureVerifier interface {
	CanVerify() bool
	Verify(signature string, body []byte, requestURL string) error
}

type Server struct {
	claims   ClaimProcessor
	indexer  BatchIndexer
	verifier SignatureVerifier
	cfg      Config
}

// New wires the HTTP surface. verifier may be nil, in which case the
// indexing hook accepts unsigned requests.
func New(claims ClaimProcessor, indexer BatchIndexer, verifier SignatureVerifier, cfg Config) (*Server, error) {
	if claims == nil || indexer == nil {
		return nil, errors.New("api requires a claim processor and a batch indexer")
	}
	return &Server{claims: claims, indexer: indexer, verifier: verifier, cfg: cfg}, nil
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.Health)
	r.POST("/process-claim", s.ProcessClaim)
	r.POST("/index-conversations", s.IndexConversations)
	return r
}

// ListenAndServe blocks until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type processClaimRequest struct {
	ClaimID      string `json:"claimId"`
	PolicyNumber string `json:"policyNumber"`
}

// ProcessClaim handles POST /process-claim.
func (s *Server) ProcessClaim(c *gin.Context) {
	var body processClaimRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	decision, err := s.claims.ProcessClaim(c.Request.Context(), contractx.ClaimRequest{
		ClaimID:      strings.TrimSpace(body.ClaimID),
		PolicyNumber: strings.TrimSpace(body.PolicyNumber),
	})
	if err != nil {
		status := claimErrorStatus(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, decision)
}

func claimErrorStatus(err error) int {
	switch {
	case errors.Is(err, contractx.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, contractx.ErrOrchestrationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, contractx.ErrSynthesisUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IndexConversations handles POST /index-conversations, normally fired by a
// QStash schedule.
func (s *Server) IndexConversations(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if s.verifier != nil && s.verifier.CanVerify() {
		if err := s.verifier.Verify(c.GetHeader("Upstash-Signature"), raw, s.hookURL(c)); err != nil {
			log.Warn().Err(err).Msg("rejected unsigned indexing request")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	report, err := s.indexer.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, contractx.ErrBatchInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) hookURL(c *gin.Context) string {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.PublicURL), "/")
	if base == "" {
		return ""
	}
	return base + c.Request.URL.Path
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
