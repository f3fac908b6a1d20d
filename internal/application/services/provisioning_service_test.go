package services

import (
	"context"
	"testing"

	"github.com/nexuscrm/tablestore/internal/domain/models"
	"github.com/nexuscrm/tablestore/pkg/constants"
	apperrors "github.com/nexuscrm/tablestore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func templateIDs(templates []models.Template) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = t.ID
	}
	return out
}

func TestOrderTemplates(t *testing.T) {
	tests := []struct {
		name      string
		templates []models.Template
		want      []string
	}{
		{
			name: "independent templates keep input order",
			templates: []models.Template{
				{ID: "a"}, {ID: "b"}, {ID: "c"},
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "declared dependencies",
			templates: []models.Template{
				{ID: "deals", Dependencies: []string{"companies", "contacts"}},
				{ID: "contacts", Dependencies: []string{"companies"}},
				{ID: "companies"},
			},
			want: []string{"companies", "contacts", "deals"},
		},
		{
			name: "reference columns are dependencies",
			templates: []models.Template{
				{ID: "a", Dependencies: []string{"b"}},
				{ID: "b", Columns: []models.TemplateColumn{{Name: "c", Type: "reference", ReferenceTemplate: "c"}}},
				{ID: "c"},
			},
			want: []string{"c", "b", "a"},
		},
		{
			name: "self reference and outside dependencies are ignored",
			templates: []models.Template{
				{ID: "employees", Dependencies: []string{"users"}, Columns: []models.TemplateColumn{
					{Name: "manager", Type: "reference", ReferenceTemplate: "employees"},
				}},
				{ID: "teams", Dependencies: []string{"employees"}},
			},
			want: []string{"employees", "teams"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ordered, err := OrderTemplates(tt.templates)
			require.NoError(t, err)
			assert.Equal(t, tt.want, templateIDs(ordered))
		})
	}
}

func TestOrderTemplates_Cycles(t *testing.T) {
	_, err := OrderTemplates([]models.Template{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"c"}},
		{ID: "c", Dependencies: []string{"a"}},
	})
	assert.True(t, apperrors.IsCircularDependency(err), err)

	_, err = OrderTemplates([]models.Template{{ID: "a", Dependencies: []string{"a"}}})
	assert.True(t, apperrors.IsCircularDependency(err), err)
}

func TestProvisionTemplateBatch(t *testing.T) {
	env := newTestEnv(t, StaticPlanLimits{})
	ctx := context.Background()
	db := env.database(t, "crm")

	result, err := env.sm.Provisioning.ProvisionTemplateBatch(ctx, testTenant, db.ID, env.admin.ID, []models.Template{
		{ID: "deals", Name: "Deals", Dependencies: []string{"companies"}, Columns: []models.TemplateColumn{
			{Name: "title", Type: "text", Primary: true, Required: true},
			{Name: "company", Type: "reference", ReferenceTemplate: "companies"},
			{Name: "parent", Type: "reference", ReferenceTemplate: "deals"},
		}},
		{ID: "companies", Name: "Companies", IsPublic: true, Columns: []models.TemplateColumn{
			{Name: "name", Type: "text", Primary: true},
		}},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Created, 2)
	assert.Equal(t, "companies", result.Created[0].TemplateID)
	assert.Equal(t, "deals", result.Created[1].TemplateID)

	companies, deals := result.Created[0].Table, result.Created[1].Table
	assert.True(t, companies.IsPublic)
	require.Len(t, deals.Columns, 3)
	assert.Equal(t, companies.ID, *column(t, deals, "company").ReferenceTableID)
	assert.Equal(t, deals.ID, *column(t, deals, "parent").ReferenceTableID)
	assert.Empty(t, env.store.AuditRecords())
}

func TestProvisionTemplateBatch_FailuresAreIsolated(t *testing.T) {
	env := newTestEnv(t, StaticPlanLimits{})
	ctx := context.Background()
	db := env.database(t, "crm")
	env.table(t, db.ID, "Existing")

	result, err := env.sm.Provisioning.ProvisionTemplateBatch(ctx, testTenant, db.ID, env.admin.ID, []models.Template{
		{ID: "broken", Name: "Broken", Columns: []models.TemplateColumn{
			{Name: "title", Type: "text"},
			{Name: "owner", Type: "reference", ReferenceTemplate: "ghosts"},
		}},
		{ID: "dependent", Name: "Dependent", Dependencies: []string{"broken"}},
		{ID: "clash", Name: "Existing"},
		{ID: "fine", Name: "Fine", Columns: []models.TemplateColumn{{Name: "title"}}},
	})
	require.NoError(t, err)

	require.Len(t, result.Created, 1)
	assert.Equal(t, "fine", result.Created[0].TemplateID)

	codes := make(map[string]string)
	for _, e := range result.Errors {
		codes[e.TemplateID] = e.Code
	}
	assert.Equal(t, map[string]string{
		"broken":    "REFERENCE_RESOLUTION_ERROR",
		"dependent": "REFERENCE_RESOLUTION_ERROR",
		"clash":     "VALIDATION_ERROR",
	}, codes)
	for _, e := range result.Errors {
		if e.TemplateID == "dependent" {
			assert.Contains(t, e.Message, "table not found among created tables")
		}
	}

	// the broken table was removed after its columns failed
	tables, err := env.sm.Schema.ListTables(ctx, testTenant, db.ID)
	require.NoError(t, err)
	var names []string
	for _, tbl := range tables {
		names = append(names, tbl.Name)
	}
	assert.ElementsMatch(t, []string{"Existing", "Fine"}, names)

	records := env.store.AuditRecords()
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, constants.AuditProvisioningFailed, r.Action)
		assert.Equal(t, "template", r.ResourceType)
		assert.Equal(t, env.admin.ID, r.ActorID)
		assert.Equal(t, testTenant, r.TenantID)
	}
}

func TestProvisionTemplateBatch_RejectsBeforeCreating(t *testing.T) {
	env := newTestEnv(t, StaticPlanLimits{})
	ctx := context.Background()
	db := env.database(t, "crm")

	tests := []struct {
		name      string
		database  int64
		templates []models.Template
		check     func(error) bool
	}{
		{"empty batch", db.ID, nil, apperrors.IsValidation},
		{"missing name", db.ID, []models.Template{{ID: "a"}}, apperrors.IsValidation},
		{"missing column name", db.ID, []models.Template{{ID: "a", Name: "A", Columns: []models.TemplateColumn{{Type: "text"}}}}, apperrors.IsValidation},
		{"duplicate ids", db.ID, []models.Template{{ID: "a", Name: "A"}, {ID: "a", Name: "B"}}, apperrors.IsValidation},
		{"unknown database", 999, []models.Template{{ID: "a", Name: "A"}}, apperrors.IsNotFound},
		{"cycle", db.ID, []models.Template{
			{ID: "a", Name: "A", Dependencies: []string{"b"}},
			{ID: "b", Name: "B", Columns: []models.TemplateColumn{{Name: "a", Type: "reference", ReferenceTemplate: "a"}}},
			{ID: "c", Name: "C"},
		}, apperrors.IsCircularDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.sm.Provisioning.ProvisionTemplateBatch(ctx, testTenant, tt.database, env.admin.ID, tt.templates)
			assert.True(t, tt.check(err), err)
		})
	}

	tables, err := env.sm.Schema.ListTables(ctx, testTenant, db.ID)
	require.NoError(t, err)
	assert.Empty(t, tables)
}
