package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certregistry/internal/registry/identity"
	"certregistry/internal/registry/models"
	dErrors "certregistry/pkg/domain-errors"
	"certregistry/pkg/platform/httputil"
	"certregistry/pkg/requestcontext"
)

// Service is the registry surface the HTTP layer needs.
type Service interface {
	CreateCertificate(ctx context.Context, f identity.Fields) (*models.Certificate, error)
	Register(ctx context.Context, id identity.Identity, expirationDate int64) (*models.Certificate, error)
	Get(ctx context.Context, id identity.Identity) (*models.Certificate, error)
	Check(ctx context.Context, id identity.Identity) (models.Verification, error)
	Suspend(ctx context.Context, id identity.Identity) (*models.Certificate, error)
	CheckByCredentials(ctx context.Context, f identity.Fields) (models.Verification, error)
	SuspendByCredentials(ctx context.Context, f identity.Fields) (*models.Certificate, error)
}

// Handler serves the certificate registry over HTTP.
type Handler struct {
	service       Service
	logger        *slog.Logger
	requireWriter func(http.Handler) http.Handler
}

// New builds a Handler. requireWriter guards the mutating routes.
func New(service Service, logger *slog.Logger, requireWriter func(http.Handler) http.Handler) *Handler {
	return &Handler{
		service:       service,
		logger:        logger,
		requireWriter: requireWriter,
	}
}

// Register mounts the registry routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/certificates/{identity}", h.HandleGet)
	r.Get("/certificates/{identity}/verify", h.HandleVerify)
	r.Post("/certificates/verify", h.HandleVerifyByCredentials)

	r.Group(func(r chi.Router) {
		r.Use(h.requireWriter)
		r.Post("/certificates", h.HandleCreate)
		r.Post("/registrations", h.HandleRegister)
		r.Post("/certificates/{identity}/suspend", h.HandleSuspend)
		r.Post("/certificates/suspend", h.HandleSuspendByCredentials)
	})
}

// HandleCreate handles POST /certificates.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CredentialsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cert, err := h.service.CreateCertificate(ctx, req.Fields())
	if err != nil {
		h.writeServiceError(ctx, w, "failed to create certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCertificateResponse(cert))
}

// HandleRegister handles POST /registrations.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cert, err := h.service.Register(ctx, req.parsed, req.ExpirationDate)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to register certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCertificateResponse(cert))
}

// HandleGet handles GET /certificates/{identity}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	cert, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

// HandleVerify handles GET /certificates/{identity}/verify. Unknown
// identities answer 200 with valid=false.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	result, err := h.service.Check(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to verify certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerificationResponse(result))
}

// HandleVerifyByCredentials handles POST /certificates/verify.
func (h *Handler) HandleVerifyByCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CredentialsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.CheckByCredentials(ctx, req.Fields())
	if err != nil {
		h.writeServiceError(ctx, w, "failed to verify certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerificationResponse(result))
}

// HandleSuspend handles POST /certificates/{identity}/suspend.
func (h *Handler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.identityParam(w, r)
	if !ok {
		return
	}
	cert, err := h.service.Suspend(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to suspend certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

// HandleSuspendByCredentials handles POST /certificates/suspend.
func (h *Handler) HandleSuspendByCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CredentialsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cert, err := h.service.SuspendByCredentials(ctx, req.Fields())
	if err != nil {
		h.writeServiceError(ctx, w, "failed to suspend certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

func (h *Handler) identityParam(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, err := identity.Parse(chi.URLParam(r, "identity"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid identity in path",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "identity must be 32 bytes of hex"))
		return identity.Identity{}, false
	}
	return id, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
