package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/glueops/tools-api/pkg/api/docs"
	"github.com/glueops/tools-api/pkg/auth"
	"github.com/glueops/tools-api/pkg/awsaccount"
	"github.com/glueops/tools-api/pkg/config"
	"github.com/glueops/tools-api/pkg/exitnode"
	"github.com/glueops/tools-api/pkg/manifests"
	"github.com/glueops/tools-api/pkg/metrics"
	"github.com/glueops/tools-api/pkg/storage"
	"github.com/glueops/tools-api/pkg/store"
	"github.com/glueops/tools-api/pkg/tenant"
	"github.com/glueops/tools-api/pkg/workflows"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds request bodies; every request is a handful of fields.
const maxBodyBytes = 1 << 20

// Server is the HTTP API server.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Handler() http.Handler
}

// ExitNodeService provisions and deletes chisel exit nodes.
type ExitNodeService interface {
	Provision(ctx context.Context, req exitnode.ProvisionRequest) (*exitnode.Result, error)
	Delete(ctx context.Context, req exitnode.DeleteRequest) (int, error)
}

// BucketService resets a tenant's storage buckets.
type BucketService interface {
	Reset(ctx context.Context, req storage.ResetRequest) (*storage.ResetResult, error)
}

// Services are the components the API fronts.
type Services struct {
	ExitNodes ExitNodeService
	Buckets   BucketService
	Accounts  awsaccount.Minter
	Workflows workflows.Dispatcher
	Store     store.Store
	Auth      auth.Service
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

// server implements Server.
type server struct {
	log         logrus.FieldLogger
	cfg         *config.Config
	svc         Services
	srv         *http.Server
	router      chi.Router
	rateLimiter *IPRateLimiter
	promHandler http.Handler
}

// Ensure server implements Server.
var _ Server = (*server)(nil)

// NewServer creates a new API server.
func NewServer(log logrus.FieldLogger, cfg *config.Config, svc Services) Server {
	s := &server{
		log: log.WithField("component", "api"),
		cfg: cfg,
		svc: svc,
	}

	if s.svc.Gatherer == nil {
		s.svc.Gatherer = prometheus.DefaultGatherer
	}

	s.promHandler = promhttp.HandlerFor(s.svc.Gatherer, promhttp.HandlerOpts{})

	if s.svc.Auth == nil {
		s.svc.Auth = auth.NewService(log, cfg.Auth)
	}

	// Initialize rate limiter if enabled.
	if cfg.Server.RateLimit.Enabled {
		s.rateLimiter = NewIPRateLimiter(cfg.Server.RateLimit.RequestsPerMinute)

		log.WithField("rpm", cfg.Server.RateLimit.RequestsPerMinute).Info("Rate limiting enabled")
	}

	s.setupRouter()

	return s
}

// Start starts the HTTP server.
func (s *server) Start(_ context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithField("addr", s.cfg.Server.Listen).Info("Starting API server")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("Server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}

	if s.srv == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}

// Handler returns the router.
func (s *server) Handler() http.Handler {
	return s.router
}

func (s *server) setupRouter() {
	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	// CORS.
	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.Server.CORSOrigins))
	}

	// Public endpoints.
	r.Group(func(r chi.Router) {
		if s.rateLimiter != nil {
			r.Use(s.rateLimiter.Middleware)
		}

		r.Get("/", s.handleRoot)
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/openapi.json", s.handleOpenAPISpec)
		r.Get("/metrics", s.handleMetrics)
	})

	// API v1.
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(s.svc.Auth))

		if s.rateLimiter != nil {
			r.Use(s.rateLimiter.Middleware)
		}

		r.Post("/storage-buckets", s.handleStorageBuckets)
		r.Post("/setup-aws-account-credentials", s.handleAWSCredentials)
		r.Delete("/nuke-aws-captain-account", s.handleNukeAWSAccount)
		r.Delete("/nuke-captain-domain-data", s.handleNukeCaptainDomainData)
		r.Delete("/reset-github-organization", s.handleResetGitHubOrganization)

		r.Post("/chisel", s.handleCreateChisel)
		r.Delete("/chisel", s.handleDeleteChisel)

		r.Post("/opsgenie", s.handleOpsgenie)
		r.Post("/captain-manifests", s.handleCaptainManifests)

		r.Get("/dispatches", s.handleListDispatches)
		r.Get("/dispatches/{id}", s.handleGetDispatch)
		r.Get("/audit", s.handleListAudit)
	})

	s.router = r
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 1 && origins[0] == "*"

	originSet := make(map[string]bool, len(origins))
	for _, origin := range origins {
		originSet[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowAll || originSet[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// metricsMiddleware records request counts and latencies by route pattern.
func (s *server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.svc.Metrics == nil {
			next.ServeHTTP(w, r)

			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.svc.Metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(status), time.Since(start).Seconds())
	})
}

// ============================================================================
// Response helpers
// ============================================================================

// MessageResponse is a plain status message.
type MessageResponse struct {
	Message string `json:"message" example:"Successfully deleted chisel nodes."`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *server) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	if _, err := io.WriteString(w, body); err != nil {
		s.log.WithError(err).Error("Failed to write text response")
	}
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))

	if err := dec.Decode(dst); err != nil {
		return trace.BadParameter("invalid request body: %v", err)
	}

	return nil
}

// audit records an action. The operation already happened, so failures are
// logged and swallowed.
func (s *server) audit(ctx context.Context, action store.AuditAction, tenantName string, details any) {
	if s.svc.Store == nil {
		return
	}

	data, err := json.Marshal(details)
	if err != nil {
		s.log.WithError(err).Warn("Failed to encode audit details")

		data = []byte("{}")
	}

	entry := &store.AuditEntry{
		ID:        uuid.New().String(),
		Action:    action,
		Tenant:    tenantName,
		Actor:     auth.ActorFromContext(ctx),
		Details:   string(data),
		CreatedAt: time.Now().UTC(),
	}

	// Detach from the request so a client disconnect does not drop the entry.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.svc.Store.CreateAuditEntry(auditCtx, entry); err != nil {
		s.log.WithError(err).WithField("action", action).Error("Failed to write audit entry")
	}
}

// queryInt parses a non-negative integer query parameter. When maxValue is
// set the value is a page size: it is clamped to maxValue and 0 means
// fallback, so a page is always bounded.
func queryInt(r *http.Request, key string, fallback, maxValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, trace.BadParameter("%s must be a non-negative integer", key)
	}

	if maxValue > 0 {
		switch {
		case v == 0:
			v = fallback
		case v > maxValue:
			v = maxValue
		}
	}

	return v, nil
}

// ============================================================================
// System handlers
// ============================================================================

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status" example:"healthy"`
}

// VersionResponse carries build metadata.
type VersionResponse struct {
	Version        string `json:"version" example:"v0.12.0"`
	CommitSHA      string `json:"commit_sha" example:"4f2c1d9"`
	BuildTimestamp string `json:"build_timestamp" example:"2024-05-01T10:00:00Z"`
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/openapi.json", http.StatusTemporaryRedirect)
}

// handleOpenAPISpec godoc
//
//	@Summary		OpenAPI specification
//	@Description	Returns the OpenAPI specification for the API
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	object	"OpenAPI specification"
//	@Router			/openapi.json [get]
func (s *server) handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	docs.SwaggerInfo.Version = s.cfg.Build.Version

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(docs.SwaggerInfo.ReadDoc()))
}

// handleMetrics godoc
//
//	@Summary		Prometheus metrics
//	@Description	Exposes request, vendor call and workflow metrics in the Prometheus text format
//	@Tags			system
//	@Produce		plain
//	@Success		200	{string}	string	"Prometheus exposition"
//	@Router			/metrics [get]
func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.promHandler.ServeHTTP(w, r)
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Returns the health status of the API server
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// handleVersion godoc
//
//	@Summary		Version
//	@Description	Contains version information about this tools-api
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	VersionResponse
//	@Router			/version [get]
func (s *server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, VersionResponse{
		Version:        s.cfg.Build.Version,
		CommitSHA:      s.cfg.Build.CommitSHA,
		BuildTimestamp: s.cfg.Build.BuildTimestamp,
	})
}

// AuditListResponse is a page of audit entries.
type AuditListResponse struct {
	Entries []*store.AuditEntry `json:"entries"`
	Total   int                 `json:"total" example:"42"`
}

// handleListAudit godoc
//
//	@Summary		List audit entries
//	@Description	Returns destructive and credential-minting actions, newest first
//	@Tags			system
//	@Security		APIKeyAuth
//	@Produce		json
//	@Param			tenant	query		string	false	"Filter by tenant"
//	@Param			action	query		string	false	"Filter by action"
//	@Param			limit	query		int		false	"Page size (default 100, max 1000)"
//	@Param			offset	query		int		false	"Offset"
//	@Success		200		{object}	AuditListResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Router			/v1/audit [get]
func (s *server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.svc.Store == nil {
		s.writeJSON(w, http.StatusOK, AuditListResponse{Entries: []*store.AuditEntry{}})

		return
	}

	limit, err := queryInt(r, "limit", 100, 1000)
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	offset, err := queryInt(r, "offset", 0, 0)
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	opts := store.AuditQueryOpts{Limit: limit, Offset: offset}

	if t := r.URL.Query().Get("tenant"); t != "" {
		opts.Tenant = &t
	}

	if a := r.URL.Query().Get("action"); a != "" {
		action := store.AuditAction(a)
		opts.Action = &action
	}

	entries, total, err := s.svc.Store.ListAuditEntries(r.Context(), opts)
	if err != nil {
		s.writeTraceError(w, r, trace.Wrap(err, "listing audit entries"))

		return
	}

	if entries == nil {
		entries = []*store.AuditEntry{}
	}

	s.writeJSON(w, http.StatusOK, AuditListResponse{Entries: entries, Total: total})
}

// ============================================================================
// Storage
// ============================================================================

// StorageBucketsRequest is the request body for resetting storage buckets.
type StorageBucketsRequest struct {
	CaptainDomain string `json:"captain_domain" example:"nonprod.foobar.onglueops.rocks"`
	Region        string `json:"region,omitempty" example:"fsn1"`
}

// handleStorageBuckets godoc
//
//	@Summary		Create/Re-create storage buckets
//	@Description	Note: this can be a DESTRUCTIVE operation. For the provided captain_domain, this will DELETE and then
//	@Description	create new/empty storage buckets for loki, tempo, and thanos.
//	@Tags			storage
//	@Security		APIKeyAuth
//	@Accept			json
//	@Produce		plain
//	@Param			body	body		StorageBucketsRequest	true	"Tenant"
//	@Success		200		{string}	string					"Storage configuration block"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/v1/storage-buckets [post]
func (s *server) handleStorageBuckets(w http.ResponseWriter, r *http.Request) {
	var req StorageBucketsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	result, err := s.svc.Buckets.Reset(r.Context(), storage.ResetRequest{
		Tenant: req.CaptainDomain,
		Region: req.Region,
	})
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	s.audit(r.Context(), store.AuditActionBucketsReset, strings.TrimSpace(req.CaptainDomain), map[string]any{
		"prefix":  result.Prefix,
		"created": result.Created,
		"deleted": result.Deleted,
	})

	s.writeText(w, http.StatusOK, result.Config)
}

// ============================================================================
// AWS
// ============================================================================

// AWSAccountRequest names an AWS organization sub-account.
type AWSAccountRequest struct {
	AWSSubAccountName string `json:"aws_sub_account_name" example:"glueops-captain-foobar"`
}

// handleAWSCredentials godoc
//
//	@Summary		Mint admin credentials in an AWS sub-account
//	@Description	Whether it's to create an EKS cluster or to test other things out in an isolated AWS account.
//	@Description	These creds will give you Admin level access to the requested account.
//	@Tags			aws
//	@Security		APIKeyAuth
//	@Accept			json
//	@Produce		plain
//	@Param			body	body		AWSAccountRequest	true	"Sub-account"
//	@Success		200		{string}	string				".env shell snippet"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/v1/setup-aws-account-credentials [post]
func (s *server) handleAWSCredentials(w http.ResponseWriter, r *http.Request) {
	var req AWSAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	grant, err := s.svc.Accounts.Mint(r.Context(), req.AWSSubAccountName)
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	s.audit(r.Context(), store.AuditActionCredentialsMinted, grant.AccountName, map[string]any{
		"account_id":    grant.AccountID,
		"access_key_id": grant.AccessKeyID,
		"role_arn":      grant.RoleARN,
	})

	s.writeText(w, http.StatusOK, grant.Snippet)
}

// handleNukeAWSAccount godoc
//
//	@Summary		Nuke an AWS sub-account
//	@Description	Run this after you are done testing within AWS. This will clean up orphaned resources.
//	@Description	Note: you may have to run this 2x.
//	@Tags			aws
//	@Security		APIKeyAuth
//	@Accept			json
//	@Produce		plain
//	@Param			body	body		AWSAccountRequest	true	"Sub-account"
//	@Success		200		{string}	string				"Workflow link"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		502		{string}	string				"GitHub rejected the dispatch"
//	@Router			/v1/nuke-aws-captain-account [delete]
func (s *server) handleNukeAWSAccount(w http.ResponseWriter, r *http.Request) {
	var req AWSAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	name := strings.TrimSpace(req.AWSSubAccountName)
	if name == "" {
		s.writeTraceError(w, r, trace.BadParameter("aws_sub_account_name is required"))

		return
	}

	s.dispatch(w, r, workflows.AWSAccountNuke(name))
}

// ============================================================================
// GitHub workflows
// ============================================================================

// CaptainDomainRequest names a tenant.
type CaptainDomainRequest struct {
	CaptainDomain string `json:"captain_domain" example:"nonprod.foobar.onglueops.rocks"`
}

// handleNukeCaptainDomainData godoc
//
//	@Summary		Delete all backups/data for a captain_domain
//	@Description	Running this before a cluster creation helps ensure a clean environment. This will remove things
//	@Description	like the vault and cert-manager backups.
//	@Tags			aws
//	@Security		APIKeyAuth
//	@Accept			json
//	@Produce		plain
//	@Param			body	body		CaptainDomainRequest	true	"Tenant"
//	@Success		200		{string}	string					"Workflow link"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		502		{string}	string					"GitHub rejected the dispatch"
//	@Router			/v1/nuke-captain-domain-data [delete]
func (s *server) handleNukeCaptainDomainData(w http.ResponseWriter, r *http.Request) {
	var req CaptainDomainRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	domain, err := tenant.Normalize(req.CaptainDomain)
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	s.dispatch(w, r, workflows.CaptainDomainNuke(domain))
}

// ResetGitHubOrganizationRequest is the request body for resetting a tenant's GitHub organization.
type ResetGitHubOrganizationRequest struct {
	CaptainDomain          string `json:"captain_domain" example:"nonprod.foobar.onglueops.rocks"`
	DeleteAllExistingRepos *bool  `json:"delete_all_existing_repos,omitempty" example:"true"`
	CustomDomain           string `json:"custom_domain,omitempty" example:""`
	EnableCustomDomain     bool   `json:"enable_custom_domain,omitempty" example:"false"`
}

// handleResetGitHubOrganization godoc
//
//	@Summary		Reset the tenant GitHub organization
//	@Description	Resets the deployment-configurations repository and brings over a working regcred and application repos.
//	@Description	WARNING: delete_all_existing_repos defaults to true.
//	@Tags			github
//	@Security		APIKeyAuth
//	@Accept			json
//	@Produce		plain
//	@Param			body	body		ResetGitHubOrganizationRequest	true	"Reset options"
//	@Success		200		{string}	string							"Workflow link"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		502		{string}	string							"GitHub rejected the dispatch"
//	@Router			/v1/reset-github-organization [delete]
func (s *server) handleResetGitHubOrganization(w http.ResponseWriter, r *http.Request) {
	var req ResetGitHubOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	domain, err := tenant.Normalize(req.CaptainDomain)
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	deleteAll := true
	if req.DeleteAllExistingRepos != nil {
		deleteAll = *req.DeleteAllExistingRepos
	}

	s.dispatch(w, r, workflows.GitHubOrgReset(workflows.OrgReset{
		CaptainDomain:          domain,
		DeleteAllExistingRepos: deleteAll,
		CustomDomain:           strings.TrimSpace(req.CustomDomain),
		EnableCustomDomain:     req.EnableCustomDomain,
	}))
}

// dispatch triggers a workflow and answers with the workflow link. A dispatch
// GitHub refused is reported as 502 with the remote status.
func (s *server) dispatch(w http.ResponseWriter, r *http.Request, req workflows.Request) {
	req.RequestedBy = auth.ActorFromContext(r.Context())

	receipt, err := s.svc.Workflows.Dispatch(r.Context(), req)
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	s.audit(r.Context(), store.AuditActionWorkflowDispatched, req.Tenant, map[string]any{
		"dispatch_id": receipt.ID,
		"workflow":    receipt.Workflow,
		"status_code": receipt.StatusCode,
		"inputs":      req.Inputs,
	})

	w.Header().Set("X-Dispatch-ID", receipt.ID)

	if !receipt.Accepted() {
		s.writeText(w, http.StatusBadGateway, fmt.Sprintf(
			"GitHub rejected the %s dispatch with status %d. %s\n", receipt.Workflow, receipt.StatusCode, receipt.Message()))

		return
	}

	s.writeText(w, http.StatusOK, receipt.Message())
}

// handleGetDispatch godoc
//
//	@Summary		Get dispatch receipt
//	@Description	Returns a workflow dispatch receipt and the run it was resolved to
//	@Tags			github
//	@Security		APIKeyAuth
//	@Produce		json
//	@Param			id	path		string	true	"Dispatch ID"
//	@Success		200	{object}	store.Dispatch
//	@Failure		404	{object}	ErrorResponse
//	@Router			/v1/dispatches/{id} [get]
func (s *server) handleGetDispatch(w http.ResponseWriter, r *http.Request) {
	record, err := s.svc.Workflows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

// handleListDispatches godoc
//
//	@Summary		List dispatch receipts
//	@Description	Returns the most recent workflow dispatch receipts
//	@Tags			github
//	@Security		APIKeyAuth
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum receipts (default 50, max 500)"
//	@Success		200		{array}		store.Dispatch
//	@Failure		400		{object}	ErrorResponse
//	@Router			/v1/dispatches [get]
func (s *server) handleListDispatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50, 500)
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	records, err := s.svc.Workflows.List(r.Context(), limit)
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	if records == nil {
		records = []*store.Dispatch{}
	}

	s.writeJSON(w, http.StatusOK, records)
}

// ============================================================================
// Chisel
// ============================================================================

// ChiselNodesRequest is the request body for provisioning exit nodes.
type ChiselNodesRequest struct {
	CaptainDomain string `json:"captain_domain" example:"nonprod.foobar.onglueops.rocks"`
	NodeCount     int    `json:"node_count,omitempty" example:"2"`
	Region        string `json:"region,omitempty" example:"hel1"`
	InstanceSize  string `json:"instance_size,omitempty" example:"cx22"`
}

// ChiselNodesDeleteRequest is the request body for deleting exit nodes.
type ChiselNodesDeleteRequest struct {
	CaptainDomain string `json:"captain_domain" example:"nonprod.foobar.onglueops.rocks"`
	Region        string `json:"region,omitempty" example:"hel1"`
}

// handleCreateChisel godoc
//
//	@Summary		Create chisel nodes
//	@Description	Creates chisel nodes for dev/k3d clusters, mimicking a cloud load balancer controller. Existing nodes
//	@Description	for the captain_domain are deleted first, so this will generally result in new IPs.
//	@Tags			chisel
//	@Security		APIKeyAuth
//	@Accept			json
//	@Produce		plain
//	@Param			body	body		ChiselNodesRequest	true	"Tenant and sizing"
//	@Success		200		{string}	string				"kubectl commands and chisel-operator manifest"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/v1/chisel [post]
func (s *server) handleCreateChisel(w http.ResponseWriter, r *http.Request) {
	var req ChiselNodesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	log := s.log.WithField("captain_domain", strings.TrimSpace(req.CaptainDomain))
	log.Info("Received request to create chisel nodes")

	result, err := s.svc.ExitNodes.Provision(r.Context(), exitnode.ProvisionRequest{
		Tenant: req.CaptainDomain,
		Count:  req.NodeCount,
		Region: req.Region,
		Size:   req.InstanceSize,
	})
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	names := make([]string, 0, len(result.Nodes))
	for _, n := range result.Nodes {
		names = append(names, n.Name)
	}

	s.audit(r.Context(), store.AuditActionExitNodesProvisioned, strings.TrimSpace(req.CaptainDomain), map[string]any{
		"nodes":   names,
		"deleted": result.Deleted,
	})

	log.Info("Successfully completed chisel node creation")

	s.writeText(w, http.StatusOK, result.Manifest)
}

// handleDeleteChisel godoc
//
//	@Summary		Delete chisel nodes
//	@Description	Deletes your chisel nodes. Please run this when you are done with development to save on costs.
//	@Tags			chisel
//	@Security		APIKeyAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ChiselNodesDeleteRequest	true	"Tenant"
//	@Success		200		{object}	MessageResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/v1/chisel [delete]
func (s *server) handleDeleteChisel(w http.ResponseWriter, r *http.Request) {
	var req ChiselNodesDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	log := s.log.WithField("captain_domain", strings.TrimSpace(req.CaptainDomain))
	log.Info("Received request to delete chisel nodes")

	deleted, err := s.svc.ExitNodes.Delete(r.Context(), exitnode.DeleteRequest{
		Tenant: req.CaptainDomain,
		Region: req.Region,
	})
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	s.audit(r.Context(), store.AuditActionExitNodesDeleted, strings.TrimSpace(req.CaptainDomain), map[string]any{
		"deleted": deleted,
	})

	log.WithField("deleted", deleted).Info("Successfully completed chisel node deletion")

	s.writeJSON(w, http.StatusOK, MessageResponse{Message: "Successfully deleted chisel nodes."})
}

// ============================================================================
// Manifests
// ============================================================================

// OpsgenieRequest is the request body for the Opsgenie alerts manifest.
type OpsgenieRequest struct {
	CaptainDomain  string `json:"captain_domain" example:"nonprod.foobar.onglueops.rocks"`
	OpsgenieAPIKey string `json:"opsgenie_api_key" example:"00000000-0000-0000-0000-000000000000"`
}

// handleOpsgenie godoc
//
//	@Summary		Create Opsgenie alerts manifest
//	@Description	Create an opsgenie/alertmanager configuration. Do this for any clusters you want alerts on.
//	@Tags			manifests
//	@Security		APIKeyAuth
//	@Accept			json
//	@Produce		plain
//	@Param			body	body		OpsgenieRequest	true	"Tenant and Opsgenie key"
//	@Success		200		{string}	string			"Argo CD Application manifest"
//	@Failure		400		{object}	ErrorResponse
//	@Router			/v1/opsgenie [post]
func (s *server) handleOpsgenie(w http.ResponseWriter, r *http.Request) {
	var req OpsgenieRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	out, err := manifests.Opsgenie(manifests.OpsgenieParams{
		CaptainDomain:  req.CaptainDomain,
		OpsgenieAPIKey: req.OpsgenieAPIKey,
	})
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	s.writeText(w, http.StatusOK, out)
}

// CaptainManifestsRequest is the request body for the captain manifests.
type CaptainManifestsRequest struct {
	CaptainDomain                                string `json:"captain_domain" example:"nonprod.antoniostaqueria.onglueops.com"`
	TenantGitHubOrganizationName                 string `json:"tenant_github_organization_name" example:"antoniostaqueria"`
	TenantDeploymentConfigurationsRepositoryName string `json:"tenant_deployment_configurations_repository_name" example:"deployment-configurations"`
}

// handleCaptainManifests godoc
//
//	@Summary		Create captain manifests
//	@Description	Renders the namespace, AppProject and ApplicationSet for the captain_domain's environment
//	@Tags			manifests
//	@Security		APIKeyAuth
//	@Accept			json
//	@Produce		plain
//	@Param			body	body		CaptainManifestsRequest	true	"Tenant and repositories"
//	@Success		200		{string}	string					"YAML documents"
//	@Failure		400		{object}	ErrorResponse
//	@Router			/v1/captain-manifests [post]
func (s *server) handleCaptainManifests(w http.ResponseWriter, r *http.Request) {
	var req CaptainManifestsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	out, err := manifests.Captain(manifests.CaptainParams{
		CaptainDomain:              req.CaptainDomain,
		GitHubOrganization:         req.TenantGitHubOrganizationName,
		DeploymentConfigRepository: req.TenantDeploymentConfigurationsRepositoryName,
	})
	if err != nil {
		s.writeTraceError(w, r, err)

		return
	}

	s.writeText(w, http.StatusOK, out)
}
