package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openidx/samlgate/internal/common/database"
	"github.com/openidx/samlgate/internal/common/logger"
	"github.com/openidx/samlgate/internal/metrics"
)

// Service exposes tenant administration over HTTP and tenant resolution to
// the login pipeline
type Service struct {
	store  *Store
	cache  *Cache
	logger *zap.Logger
	audit  *logger.AuditLogger
}

// NewService creates the tenant service
func NewService(db *database.PostgresDB, redisClient *database.RedisClient, log *zap.Logger) *Service {
	return &Service{
		store:  NewStore(db),
		cache:  NewCache(redisClient),
		logger: log.With(zap.String("component", "tenant")),
		audit:  logger.NewAuditLogger(log),
	}
}

// EnsureSchema creates the tenant storage schema on startup
func (s *Service) EnsureSchema(ctx context.Context) error {
	return s.store.EnsureSchema(ctx)
}

// RegisterRoutes registers the tenant administration API. The group is
// expected to carry admin authentication.
func (s *Service) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/tenants", s.handleListTenants)
	group.POST("/tenants", s.handleCreateTenant)
	group.GET("/tenants/:id", s.handleGetTenant)
	group.PUT("/tenants/:id", s.handleUpdateTenant)
	group.DELETE("/tenants/:id", s.handleDeleteTenant)
}

// Resolve returns an enabled tenant for the login pipeline, reading through
// the cache.
func (s *Service) Resolve(ctx context.Context, id string) (*Tenant, error) {
	if t := s.cache.Get(ctx, id); t != nil {
		metrics.RecordTenantCacheLookup("hit")
		return t, nil
	}
	metrics.RecordTenantCacheLookup("miss")

	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, t)
	return t, nil
}

// Touch records that a tenant completed a login
func (s *Service) Touch(ctx context.Context, id string) {
	if err := s.store.Touch(ctx, id); err != nil {
		s.logger.Warn("Failed to update tenant last_used_at",
			zap.String("tenant_id", id), zap.Error(err))
	}
}

// handleListTenants lists registered tenants with pagination
// GET /api/v1/tenants
func (s *Service) handleListTenants(c *gin.Context) {
	page := getIntParam(c, "page", 1)
	pageSize := getIntParam(c, "page_size", 20)
	enabledOnly := c.Query("enabled") == "true"
	search := c.Query("search")

	tenants, total, err := s.store.List(c.Request.Context(), page, pageSize, enabledOnly, search)
	if err != nil {
		s.logger.Error("Failed to list tenants", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tenants"})
		return
	}

	c.JSON(http.StatusOK, TenantListResponse{
		Tenants:  tenants,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// handleGetTenant gets a single tenant by ID
// GET /api/v1/tenants/:id
func (s *Service) handleGetTenant(c *gin.Context) {
	id := c.Param("id")

	t, err := s.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		s.logger.Error("Failed to get tenant", zap.Error(err), zap.String("id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get tenant"})
		return
	}

	c.JSON(http.StatusOK, t)
}

// handleCreateTenant registers a new tenant
// POST /api/v1/tenants
func (s *Service) handleCreateTenant(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := validateTrustMaterial(req.IDPCert, req.IDPCertFingerprint); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exists, err := s.store.NameExists(c.Request.Context(), req.Name)
	if err == nil && exists {
		c.JSON(http.StatusConflict, gin.H{"error": "Tenant with this name already exists"})
		return
	}

	t, err := s.store.Create(c.Request.Context(), &req)
	if err != nil {
		s.logger.Error("Failed to create tenant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tenant"})
		return
	}

	s.logger.Info("Created tenant",
		zap.String("id", t.ID),
		zap.String("name", t.Name),
		zap.String("issuer", t.Issuer),
	)
	s.audit.LogTenantCreated("admin-api", t.ID, t.Name, map[string]interface{}{
		"issuer": t.Issuer,
	})

	c.JSON(http.StatusCreated, t)
}

// handleUpdateTenant updates an existing tenant
// PUT /api/v1/tenants/:id
func (s *Service) handleUpdateTenant(c *gin.Context) {
	id := c.Param("id")

	var req UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	t, err := s.store.Update(c.Request.Context(), id, &req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		s.logger.Error("Failed to update tenant", zap.Error(err), zap.String("id", id))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.cache.Invalidate(c.Request.Context(), id)
	s.logger.Info("Updated tenant", zap.String("id", id))
	s.audit.LogTenantUpdated("admin-api", id, nil)

	c.JSON(http.StatusOK, t)
}

// handleDeleteTenant deletes a tenant
// DELETE /api/v1/tenants/:id
func (s *Service) handleDeleteTenant(c *gin.Context) {
	id := c.Param("id")

	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		s.logger.Error("Failed to delete tenant", zap.Error(err), zap.String("id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete tenant"})
		return
	}

	s.cache.Invalidate(c.Request.Context(), id)
	s.logger.Info("Deleted tenant", zap.String("id", id))
	s.audit.LogTenantDeleted("admin-api", id)

	c.JSON(http.StatusOK, gin.H{"message": "Tenant deleted"})
}

// getIntParam gets an integer query parameter with a default value
func getIntParam(c *gin.Context, key string, defaultValue int) int {
	value := c.Query(key)
	if value == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(value, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}
