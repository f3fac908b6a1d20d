package models

// Template describes a table to provision as part of a batch.
// Dependencies name other templates of the same batch.
type Template struct {
	ID           string           `json:"id" yaml:"id" validate:"required"`
	Name         string           `json:"name" yaml:"name" validate:"required,max=64"`
	Description  string           `json:"description,omitempty" yaml:"description"`
	IsPublic     bool             `json:"isPublic" yaml:"isPublic"`
	Dependencies []string         `json:"dependencies,omitempty" yaml:"dependencies"`
	Columns      []TemplateColumn `json:"columns" yaml:"columns" validate:"dive"`
}

// TemplateColumn is a column of a template. ReferenceTemplate names the
// template whose table the column points at.
type TemplateColumn struct {
	Name              string   `json:"name" yaml:"name" validate:"required,max=64"`
	Type              string   `json:"type" yaml:"type"`
	SemanticType      string   `json:"semanticType,omitempty" yaml:"semanticType"`
	Required          bool     `json:"required" yaml:"required"`
	Primary           bool     `json:"primary" yaml:"primary"`
	Order             *int     `json:"order,omitempty" yaml:"order"`
	ReferenceTemplate string   `json:"referenceTemplate,omitempty" yaml:"referenceTemplate"`
	ReferenceTableID  *int64   `json:"referenceTableId,omitempty" yaml:"referenceTableId"`
	Options           []string `json:"options,omitempty" yaml:"options"`
}

// ProvisionedTable pairs a template with the table created for it
type ProvisionedTable struct {
	TemplateID string `json:"templateId"`
	Table      *Table `json:"table"`
}

// ProvisionError records why one template failed
type ProvisionError struct {
	TemplateID string `json:"templateId"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// ProvisionResult is the partial-success outcome of a batch
type ProvisionResult struct {
	Created []ProvisionedTable `json:"created"`
	Errors  []ProvisionError   `json:"errors"`
}
