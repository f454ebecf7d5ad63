package codec

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/exprsn/platform/common/apperr"
	"github.com/exprsn/platform/common/condition"
	"github.com/exprsn/platform/common/models"
)

// Spec is the typed body of one artifact kind
type Spec interface {
	Kind() models.ArtifactKind
	Validate() error
	applyDefaults()
}

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	semverRe     = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)$`)
	apiPathRe    = regexp.MustCompile(`^/[A-Za-z0-9/_-]*$`)
)

// Defaults applied to missing kind fields
const (
	DefaultGridPageSize = 25
	DefaultQueryTimeout = 30000
	DefaultVersion      = "1.0.0"
)

// ValidateName checks an artifact name is identifier-safe
func ValidateName(name string) error {
	if !identifierRe.MatchString(name) {
		return apperr.Validation("name %q must start with a letter or underscore and contain only letters, digits and underscores", name)
	}
	return nil
}

// ValidateVersion checks a MAJOR.MINOR.PATCH version
func ValidateVersion(version string) error {
	if !semverRe.MatchString(version) {
		return apperr.Validation("version %q is not MAJOR.MINOR.PATCH", version)
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return apperr.Validation("%s %q must be one of %v", field, value, allowed)
}

// Entity

type EntitySpec struct {
	Schema        EntitySchema     `json:"schema"`
	Relationships []map[string]any `json:"relationships,omitempty"`
	Indexes       []map[string]any `json:"indexes,omitempty"`
	SourceType    string           `json:"sourceType"`
}

type EntitySchema struct {
	Fields []EntityField `json:"fields"`
}

type EntityField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

func (s *EntitySpec) Kind() models.ArtifactKind { return models.KindEntity }

func (s *EntitySpec) applyDefaults() {
	if s.SourceType == "" {
		s.SourceType = "custom"
	}
}

func (s *EntitySpec) Validate() error {
	if err := oneOf("sourceType", s.SourceType, "custom", "forge", "external"); err != nil {
		return err
	}
	seen := make(map[string]bool, len(s.Schema.Fields))
	for i, f := range s.Schema.Fields {
		if f.Name == "" {
			return apperr.Validation("schema.fields[%d].name is required", i)
		}
		if seen[f.Name] {
			return apperr.Validation("schema.fields[%d]: duplicate field %q", i, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Form

type FormSpec struct {
	Controls        []map[string]any `json:"controls"`
	DataSources     []map[string]any `json:"dataSources,omitempty"`
	Collections     []map[string]any `json:"collections,omitempty"`
	Variables       map[string]any   `json:"variables,omitempty"`
	Events          map[string]any   `json:"events,omitempty"`
	ValidationRules []ValidationRule `json:"validationRules,omitempty"`
	Status          string           `json:"status"`
}

// ValidationRule is a boolean CEL expression over the submitted `data`
type ValidationRule struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Message    string `json:"message,omitempty"`
}

var formRules = func() *condition.Evaluator {
	e, err := condition.NewEvaluator("data", "user")
	if err != nil {
		panic(err)
	}
	return e
}()

func (s *FormSpec) Kind() models.ArtifactKind { return models.KindForm }

func (s *FormSpec) applyDefaults() {
	if s.Status == "" {
		s.Status = "draft"
	}
}

func (s *FormSpec) Validate() error {
	if err := oneOf("status", s.Status, "draft", "published", "archived"); err != nil {
		return err
	}
	for i, r := range s.ValidationRules {
		if r.Expression == "" {
			return apperr.Validation("validationRules[%d].expression is required", i)
		}
		if err := formRules.Compile(r.Expression); err != nil {
			return apperr.Validation("validationRules[%d]: %v", i, err)
		}
	}
	return nil
}

// EvaluateRules runs every validation rule against data and returns the
// messages of those that fail.
func (s *FormSpec) EvaluateRules(data map[string]any) ([]string, error) {
	var failed []string
	for _, r := range s.ValidationRules {
		ok, err := formRules.Evaluate(r.Expression, map[string]any{"data": data, "user": map[string]any{}})
		if err != nil {
			return nil, err
		}
		if !ok {
			msg := r.Message
			if msg == "" {
				msg = r.Name
			}
			failed = append(failed, msg)
		}
	}
	return failed, nil
}

// Grid

type GridSpec struct {
	Columns    []map[string]any `json:"columns"`
	Filters    []map[string]any `json:"filters,omitempty"`
	Sorting    []map[string]any `json:"sorting,omitempty"`
	Pagination Pagination       `json:"pagination"`
	GridType   string           `json:"gridType"`
}

type Pagination struct {
	Enabled  bool `json:"enabled"`
	PageSize int  `json:"pageSize"`
}

func (s *GridSpec) Kind() models.ArtifactKind { return models.KindGrid }

func (s *GridSpec) applyDefaults() {
	if s.Pagination.PageSize == 0 {
		s.Pagination.PageSize = DefaultGridPageSize
	}
	if s.GridType == "" {
		s.GridType = "readonly"
	}
}

func (s *GridSpec) Validate() error {
	if s.Pagination.PageSize < 1 || s.Pagination.PageSize > 1000 {
		return apperr.Validation("pagination.pageSize %d out of range 1-1000", s.Pagination.PageSize)
	}
	return oneOf("gridType", s.GridType, "editable", "readonly", "master-detail")
}

// Dashboard

type DashboardSpec struct {
	Layout          map[string]any   `json:"layout,omitempty"`
	Widgets         []map[string]any `json:"widgets"`
	RefreshInterval int              `json:"refreshInterval,omitempty"`
}

func (s *DashboardSpec) Kind() models.ArtifactKind { return models.KindDashboard }
func (s *DashboardSpec) applyDefaults()            {}

func (s *DashboardSpec) Validate() error {
	if s.RefreshInterval < 0 {
		return apperr.Validation("refreshInterval must not be negative")
	}
	return nil
}

// Query

type QuerySpec struct {
	QueryType       string         `json:"queryType"`
	RawSQL          string         `json:"rawSql,omitempty"`
	QueryDefinition map[string]any `json:"queryDefinition,omitempty"`
	Parameters      []any          `json:"parameters,omitempty"`
	CacheEnabled    bool           `json:"cacheEnabled"`
	CacheTTL        int            `json:"cacheTtl,omitempty"`
	Timeout         int            `json:"timeout"`
}

func (s *QuerySpec) Kind() models.ArtifactKind { return models.KindQuery }

func (s *QuerySpec) applyDefaults() {
	if s.Timeout == 0 {
		s.Timeout = DefaultQueryTimeout
	}
}

func (s *QuerySpec) Validate() error {
	if err := oneOf("queryType", s.QueryType, "visual", "sql", "function", "rest"); err != nil {
		return err
	}
	switch s.QueryType {
	case "sql":
		if s.RawSQL == "" {
			return apperr.Validation("rawSql is required for sql queries")
		}
	case "visual":
		if len(s.QueryDefinition) == 0 {
			return apperr.Validation("queryDefinition is required for visual queries")
		}
	}
	if s.Timeout < 0 || s.CacheTTL < 0 {
		return apperr.Validation("timeout and cacheTtl must not be negative")
	}
	return nil
}

// API

type APISpec struct {
	Path          string          `json:"path"`
	Method        string          `json:"method"`
	HandlerType   string          `json:"handlerType"`
	HandlerConfig json.RawMessage `json:"handlerConfig,omitempty"`
	RateLimit     map[string]any  `json:"rateLimit,omitempty"`
	Enabled       *bool           `json:"enabled,omitempty"`
}

func (s *APISpec) Kind() models.ArtifactKind { return models.KindAPI }
func (s *APISpec) applyDefaults()            {}

func (s *APISpec) Validate() error {
	if !apiPathRe.MatchString(s.Path) {
		return apperr.Validation("path %q must match %s", s.Path, apiPathRe)
	}
	if err := oneOf("method", s.Method, "GET", "POST", "PUT", "PATCH", "DELETE"); err != nil {
		return err
	}
	h, err := s.Handler()
	if err != nil {
		return err
	}
	return h.Validate()
}

// Handler decodes HandlerConfig into the variant selected by HandlerType
func (s *APISpec) Handler() (Handler, error) {
	var h Handler
	switch s.HandlerType {
	case "jsonlex":
		h = &JSONLexHandler{}
	case "external_api":
		h = &ExternalAPIHandler{}
	case "workflow":
		h = &WorkflowHandler{}
	case "custom_code":
		h = &CustomCodeHandler{}
	case "entity_query":
		h = &EntityQueryHandler{}
	default:
		return nil, oneOf("handlerType", s.HandlerType, "jsonlex", "external_api", "workflow", "custom_code", "entity_query")
	}
	if len(s.HandlerConfig) > 0 {
		if err := json.Unmarshal(s.HandlerConfig, h); err != nil {
			return nil, apperr.Validation("handlerConfig: %v", err)
		}
	}
	return h, nil
}

// Handler is the per-handler-type configuration of an API
type Handler interface {
	Validate() error
}

type JSONLexHandler struct {
	Expression string `json:"expression"`
}

func (h *JSONLexHandler) Validate() error {
	if h.Expression == "" {
		return apperr.Validation("jsonlex handler requires expression")
	}
	return nil
}

type ExternalAPIHandler struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (h *ExternalAPIHandler) Validate() error {
	if h.URL == "" {
		return apperr.Validation("external_api handler requires url")
	}
	return nil
}

type WorkflowHandler struct {
	WorkflowID string `json:"workflowId"`
	Async      bool   `json:"async,omitempty"`
}

func (h *WorkflowHandler) Validate() error {
	if h.WorkflowID == "" {
		return apperr.Validation("workflow handler requires workflowId")
	}
	return nil
}

type CustomCodeHandler struct {
	Code     string `json:"code"`
	Language string `json:"language,omitempty"`
}

func (h *CustomCodeHandler) Validate() error {
	if h.Code == "" {
		return apperr.Validation("custom_code handler requires code")
	}
	return nil
}

type EntityQueryHandler struct {
	EntityName string `json:"entityName"`
	Operation  string `json:"operation"`
}

func (h *EntityQueryHandler) Validate() error {
	if h.EntityName == "" {
		return apperr.Validation("entity_query handler requires entityName")
	}
	return oneOf("operation", h.Operation, "list", "get", "create", "update", "delete")
}

// Process

type ProcessSpec struct {
	ProcessType string           `json:"processType"`
	Definition  map[string]any   `json:"definition"`
	Triggers    []map[string]any `json:"triggers,omitempty"`
	Enabled     bool             `json:"enabled"`
}

func (s *ProcessSpec) Kind() models.ArtifactKind { return models.KindProcess }
func (s *ProcessSpec) applyDefaults()            {}

func (s *ProcessSpec) Validate() error {
	if s.ProcessType == "" {
		return apperr.Validation("processType is required")
	}
	return nil
}

// DataSource

type DataSourceSpec struct {
	Type             string         `json:"sourceType"`
	ConnectionConfig map[string]any `json:"connectionConfig"`
}

func (s *DataSourceSpec) Kind() models.ArtifactKind { return models.KindDataSource }
func (s *DataSourceSpec) applyDefaults()            {}

func (s *DataSourceSpec) Validate() error {
	if s.Type == "" {
		return apperr.Validation("sourceType is required")
	}
	return nil
}

// Application

type ApplicationSpec struct {
	Description  string           `json:"description,omitempty"`
	Settings     map[string]any   `json:"settings,omitempty"`
	Dependencies []map[string]any `json:"dependencies,omitempty"`
	Status       string           `json:"status,omitempty"`
}

func (s *ApplicationSpec) Kind() models.ArtifactKind { return models.KindApplication }
func (s *ApplicationSpec) applyDefaults()            {}
func (s *ApplicationSpec) Validate() error           { return nil }

// NewSpec returns an empty typed body for kind
func NewSpec(kind models.ArtifactKind) (Spec, error) {
	switch kind {
	case models.KindEntity:
		return &EntitySpec{}, nil
	case models.KindForm:
		return &FormSpec{}, nil
	case models.KindGrid:
		return &GridSpec{}, nil
	case models.KindDashboard:
		return &DashboardSpec{}, nil
	case models.KindQuery:
		return &QuerySpec{}, nil
	case models.KindAPI:
		return &APISpec{}, nil
	case models.KindProcess:
		return &ProcessSpec{}, nil
	case models.KindDataSource:
		return &DataSourceSpec{}, nil
	case models.KindApplication:
		return &ApplicationSpec{}, nil
	default:
		return nil, unknownKind(string(kind))
	}
}

// DecodeSpec decodes a stored body into its typed variant and validates it
func DecodeSpec(kind models.ArtifactKind, body map[string]any) (Spec, error) {
	spec, err := NewSpec(kind)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fileFormat("encode %s body: %v", kind, err)
	}
	if err := json.Unmarshal(raw, spec); err != nil {
		return nil, fileFormat("%s body: %v", kind, err)
	}
	spec.applyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return spec, nil
}
