package services

import (
	"time"

	"github.com/nexuscrm/tablestore/internal/domain/ports"
	"github.com/nexuscrm/tablestore/pkg/cache"
	"github.com/nexuscrm/tablestore/pkg/expression"
)

// Repositories bundles the storage ports a ServiceManager is built from
type Repositories struct {
	Tx     ports.Transactor
	Schema ports.SchemaRepository
	Rows   ports.RowRepository
	Rules  ports.RuleRepository
	Grants ports.GrantRepository
	Audit  ports.AuditSink
}

// Options carries the collaborators and tunables shared by the services
type Options struct {
	Limits          ports.PlanLimits
	Cache           cache.FilterCache
	Limiter         WindowCleaner
	Now             func() time.Time
	PageSizeDefault int
	PageSizeMax     int
	SweepInterval   time.Duration
}

// ServiceManager wires every service with its dependencies
type ServiceManager struct {
	Schema       *SchemaService
	Provisioning *ProvisioningService
	Rows         *RowService
	Query        *QueryService
	Permissions  *PermissionService
	Maintenance  *MaintenanceService
}

// NewServiceManager creates the services in dependency order
func NewServiceManager(repos Repositories, opts Options) *ServiceManager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryCache(cache.DefaultTTL, cache.DefaultMaxEntries)
	}
	if opts.Limits == nil {
		opts.Limits = StaticPlanLimits{}
	}

	sm := &ServiceManager{}
	sm.Permissions = NewPermissionService(repos.Tx, repos.Schema, repos.Grants, repos.Audit, opts.Now)
	sm.Schema = NewSchemaService(repos.Tx, repos.Schema, opts.Limits, opts.Cache, opts.Now)
	sm.Provisioning = NewProvisioningService(sm.Schema, repos.Audit)

	rules := expression.NewEngine().WithClock(opts.Now)
	sm.Rows = NewRowService(repos.Tx, repos.Schema, repos.Rows, repos.Rules, opts.Limits, opts.Cache, rules, opts.Now)
	sm.Query = NewQueryService(repos.Schema, repos.Rows, sm.Permissions, opts.Cache, QueryConfig{
		DefaultPageSize: opts.PageSizeDefault,
		MaxPageSize:     opts.PageSizeMax,
		Now:             opts.Now,
	})
	sm.Maintenance = NewMaintenanceService(sm.Permissions, opts.Cache, opts.Limiter, opts.SweepInterval)
	return sm
}
