// Package sp is the login pipeline of the service provider: initiating SSO
// with an AuthnRequest redirect and consuming IdP responses at the assertion
// consumer service endpoint.
package sp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openidx/samlgate/internal/common/config"
	"github.com/openidx/samlgate/internal/common/database"
	commonerrors "github.com/openidx/samlgate/internal/common/errors"
	"github.com/openidx/samlgate/internal/common/logger"
	"github.com/openidx/samlgate/internal/metrics"
	"github.com/openidx/samlgate/internal/saml"
	"github.com/openidx/samlgate/internal/tenant"
)

// TenantResolver supplies tenant trust settings to the login pipeline.
// Implemented by tenant.Service.
type TenantResolver interface {
	Resolve(ctx context.Context, id string) (*tenant.Tenant, error)
	Touch(ctx context.Context, id string)
}

// Service handles the browser-facing SAML endpoints
type Service struct {
	tenants  TenantResolver
	verifier saml.SignatureVerifier
	states   *StateStore
	cfg      *config.Config
	logger   *zap.Logger
	audit    *logger.AuditLogger
}

// NewService creates the SP service with the production XML-DSig verifier
func NewService(tenants TenantResolver, redisClient *database.RedisClient, cfg *config.Config, log *zap.Logger) *Service {
	return &Service{
		tenants:  tenants,
		verifier: saml.NewXMLDSigVerifier(),
		states:   NewStateStore(redisClient, time.Duration(cfg.LoginStateTTLMinutes)*time.Minute),
		cfg:      cfg,
		logger:   log.With(zap.String("component", "sp")),
		audit:    logger.NewAuditLogger(log),
	}
}

// RegisterRoutes registers the login pipeline endpoints. The ACS endpoint
// accepts both bindings: HTTP-POST is what we request from IdPs, but some
// deliver via HTTP-Redirect regardless.
func (s *Service) RegisterRoutes(router *gin.Engine) {
	router.GET("/saml/login/:tenant_id", s.handleLogin)
	router.POST("/saml/acs/:tenant_id", s.handleACS)
	router.GET("/saml/acs/:tenant_id", s.handleACS)
}

// handleLogin initiates SSO for a tenant
// GET /saml/login/:tenant_id
func (s *Service) handleLogin(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	t, err := s.resolveTenant(c, tenantID)
	if err != nil {
		return
	}

	extraParams := map[string]string{}
	if redirectTo := c.Query("redirect_to"); redirectTo != "" {
		if token := s.states.Stash(c.Request.Context(), redirectTo); token != "" {
			extraParams["RelayState"] = token
		}
	} else if relayState := c.Query("RelayState"); relayState != "" {
		// Callers managing their own round-trip state pass it through.
		extraParams["RelayState"] = relayState
	}

	redirectURL, err := saml.BuildAuthnRequest(t.Settings(s.cfg.BaseURL), extraParams)
	if err != nil {
		s.logger.Error("Failed to build AuthnRequest",
			zap.String("tenant_id", tenantID), zap.Error(err))
		commonerrors.HandleError(c, commonerrors.Internal("Failed to initiate login", err))
		return
	}

	metrics.RecordAuthnRequest(t.Name)
	s.logger.Info("Initiated SSO login",
		zap.String("tenant_id", tenantID),
		zap.String("tenant", t.Name),
	)

	c.Redirect(http.StatusFound, redirectURL)
}

// handleACS consumes a SAML response for a tenant
// POST|GET /saml/acs/:tenant_id
func (s *Service) handleACS(c *gin.Context) {
	tenantID := c.Param("tenant_id")

	t, err := s.resolveTenant(c, tenantID)
	if err != nil {
		return
	}

	payload := c.PostForm("SAMLResponse")
	if payload == "" {
		payload = c.Query("SAMLResponse")
	}

	start := time.Now()
	settings := t.Settings(s.cfg.BaseURL)

	resp, err := saml.ParseResponse(payload, s.verifier)
	if err != nil {
		s.rejectResponse(c, t, err, start)
		return
	}
	if err := saml.Strict(resp, settings, s.verifier); err != nil {
		s.rejectResponse(c, t, err, start)
		return
	}
	if resp.NameID == "" {
		s.rejectResponse(c, t, saml.ErrNoIdentity, start)
		return
	}

	token, expiresAt, err := s.issueSessionToken(t, resp)
	if err != nil {
		s.logger.Error("Failed to issue session token",
			zap.String("tenant_id", t.ID), zap.Error(err))
		commonerrors.HandleError(c, commonerrors.Internal("Failed to complete login", err))
		return
	}

	metrics.RecordValidationDuration(t.Name, time.Since(start))
	metrics.RecordResponseValidation(t.Name, "success")
	metrics.RecordSessionIssued(t.Name)
	s.tenants.Touch(c.Request.Context(), t.ID)

	s.logger.Info("Login completed",
		zap.String("tenant_id", t.ID),
		zap.String("tenant", t.Name),
		zap.String("name_id", resp.NameID),
	)
	s.audit.LogLoginSuccess(resp.NameID, t.ID, c.ClientIP(), c.Request.UserAgent())

	relayState := c.PostForm("RelayState")
	if relayState == "" {
		relayState = c.Query("RelayState")
	}
	if redirectTo := s.states.Pop(c.Request.Context(), relayState); redirectTo != "" {
		if target, ok := appendToken(redirectTo, token); ok {
			c.Redirect(http.StatusFound, target)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt.UTC(),
		"name_id":    resp.NameID,
		"attributes": resp.Attributes,
	})
}

// resolveTenant loads an enabled tenant or writes the error response and
// returns a non-nil error so the handler can bail.
func (s *Service) resolveTenant(c *gin.Context, tenantID string) (*tenant.Tenant, error) {
	t, err := s.tenants.Resolve(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			commonerrors.HandleError(c, commonerrors.TenantNotFound(tenantID))
			return nil, err
		}
		s.logger.Error("Failed to resolve tenant",
			zap.String("tenant_id", tenantID), zap.Error(err))
		commonerrors.HandleError(c, commonerrors.Internal("Failed to resolve tenant", err))
		return nil, err
	}
	if !t.Enabled {
		commonerrors.HandleError(c, commonerrors.TenantDisabled(tenantID))
		return nil, errors.New("tenant disabled")
	}
	return t, nil
}

// rejectResponse records and answers a failed validation. The user-facing
// body is uniform; the reason and raw payload go to the logs only.
func (s *Service) rejectResponse(c *gin.Context, t *tenant.Tenant, err error, start time.Time) {
	fields := []zap.Field{
		zap.String("tenant_id", t.ID),
		zap.String("tenant", t.Name),
		zap.Error(err),
	}
	var protoErr *saml.ProtocolError
	if errors.As(err, &protoErr) {
		fields = append(fields,
			zap.String("detail", protoErr.Detail),
			zap.String("raw_response", protoErr.RawResponse),
		)
	}
	s.logger.Warn("Rejected SAML response", fields...)

	metrics.RecordValidationDuration(t.Name, time.Since(start))
	metrics.RecordResponseValidation(t.Name, "failure")
	metrics.RecordValidationFailure(t.Name, failureReason(err))
	s.audit.LogLoginFailure(t.ID, failureReason(err), c.ClientIP(), c.Request.UserAgent())

	commonerrors.HandleError(c, commonerrors.InvalidSAMLResponse())
}

// failureReason maps a validation error to its metric label
func failureReason(err error) string {
	switch {
	case errors.Is(err, saml.ErrBlankResponse):
		return "blank"
	case errors.Is(err, saml.ErrMissingTrustMaterial):
		return "no_trust_material"
	case errors.Is(err, saml.ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, saml.ErrExpired):
		return "expired"
	case errors.Is(err, saml.ErrSignatureInvalid):
		return "bad_signature"
	case errors.Is(err, saml.ErrNoIdentity):
		return "no_identity"
	default:
		return "malformed"
	}
}

// appendToken adds the session token to a stashed return URL
func appendToken(redirectTo, token string) (string, bool) {
	u, err := url.Parse(redirectTo)
	if err != nil {
		return "", false
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), true
}
