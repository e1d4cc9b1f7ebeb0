// Package service orchestrates calculator configuration use cases: it loads a
// configuration from the store, applies a rule store edit, persists the
// result with optimistic locking and keeps the evaluation cache coherent.
package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/quotecfg/internal/definition"
	"github.com/pitabwire/quotecfg/internal/evaluator"
	"github.com/pitabwire/quotecfg/internal/importer"
	"github.com/pitabwire/quotecfg/internal/observability"
	"github.com/pitabwire/quotecfg/internal/rulestore"
	"github.com/pitabwire/quotecfg/internal/store"
	"github.com/pitabwire/quotecfg/model"
)

// Mutation operation names, used in logs and metrics.
const (
	OpCreate          = "create"
	OpClone           = "clone"
	OpDelete          = "delete"
	OpImport          = "import"
	OpAddRule         = "add_rule"
	OpUpdateRule      = "update_rule"
	OpDeleteRule      = "delete_rule"
	OpToggleRule      = "toggle_rule"
	OpUpdateComponent = "update_component"
	OpToggleComponent = "toggle_component"
)

// Options wires a ConfigService. Store, Templates and Importer are required.
type Options struct {
	Store     store.ConfigStore
	Templates *definition.Registry
	Importer  *importer.Importer
	Cache     evaluator.Cache
	Editor    *rulestore.Editor
	Validator *definition.Validator
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// ConfigService implements the configuration use cases.
type ConfigService struct {
	store     store.ConfigStore
	templates *definition.Registry
	importer  *importer.Importer
	cache     evaluator.Cache
	editor    *rulestore.Editor
	validator *definition.Validator
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// New creates a ConfigService, filling optional collaborators with defaults.
func New(opts Options) *ConfigService {
	s := &ConfigService{
		store:     opts.Store,
		templates: opts.Templates,
		importer:  opts.Importer,
		cache:     opts.Cache,
		editor:    opts.Editor,
		validator: opts.Validator,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if s.cache == nil {
		s.cache = evaluator.NopCache{}
	}
	if s.editor == nil {
		s.editor = rulestore.NewEditor()
	}
	if s.validator == nil {
		s.validator = definition.NewValidator()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// CreateInput describes a new configuration built from a template.
type CreateInput struct {
	TemplateID  string
	Name        string
	Category    string
	Description string
}

// ValidationReport is the aggregate validation of a stored configuration.
type ValidationReport struct {
	ConfigID string              `json:"configId"`
	Version  int                 `json:"version"`
	Valid    bool                `json:"valid"`
	Issues   []definition.VError `json:"issues"`
}

// Templates lists the template catalog.
func (s *ConfigService) Templates() []model.TemplateSummary {
	return s.templates.All()
}

// Template returns one template by id.
func (s *ConfigService) Template(id string) (model.Template, error) {
	t, ok := s.templates.Get(id)
	if !ok {
		return model.Template{}, model.NewNotFoundError(fmt.Sprintf("template %q not found", id))
	}
	return t, nil
}

// List returns stored configuration summaries.
func (s *ConfigService) List(ctx context.Context, filter store.ListFilter) ([]model.ConfigSummary, error) {
	var out []model.ConfigSummary
	err := s.storeCall(ctx, "list", func(ctx context.Context) error {
		var err error
		out, err = s.store.List(ctx, filter)
		return err
	})
	return out, err
}

// Get loads a configuration by id.
func (s *ConfigService) Get(ctx context.Context, id string) (model.CalculatorConfig, error) {
	var cfg model.CalculatorConfig
	err := s.storeCall(ctx, "get", func(ctx context.Context) error {
		var err error
		cfg, err = s.store.Get(ctx, id)
		return err
	})
	return cfg, err
}

// Create builds a configuration from a template's components and rules. An
// empty template id selects the built-in default.
func (s *ConfigService) Create(ctx context.Context, in CreateInput) (model.CalculatorConfig, error) {
	templateID := in.TemplateID
	if templateID == "" {
		templateID = definition.DefaultTemplateID
	}
	tmpl, err := s.Template(templateID)
	if err != nil {
		return model.CalculatorConfig{}, err
	}

	name := in.Name
	if name == "" {
		name = tmpl.Name
	}
	category := in.Category
	if category == "" {
		category = tmpl.Category
	}
	description := in.Description
	if description == "" {
		description = tmpl.Description
	}

	cfg := s.editor.NewConfig(name, category, description, tmpl.Components)
	for _, r := range tmpl.PermutationRules {
		cfg.PermutationRules = append(cfg.PermutationRules, r.DeepCopy())
	}

	err = s.storeCall(ctx, "create", func(ctx context.Context) error {
		return s.store.Create(ctx, cfg)
	})
	s.recordMutation(ctx, OpCreate, cfg.ID, err, zap.String("template_id", templateID))
	if err != nil {
		return model.CalculatorConfig{}, err
	}
	return cfg, nil
}

// Clone copies a stored configuration under a new id and name.
func (s *ConfigService) Clone(ctx context.Context, id, newName string) (model.CalculatorConfig, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return model.CalculatorConfig{}, err
	}
	cfg := s.editor.Clone(src, newName)

	err = s.storeCall(ctx, "create", func(ctx context.Context) error {
		return s.store.Create(ctx, cfg)
	})
	s.recordMutation(ctx, OpClone, cfg.ID, err, zap.String("source_id", id))
	if err != nil {
		return model.CalculatorConfig{}, err
	}
	return cfg, nil
}

// Delete removes a configuration and its cached evaluations.
func (s *ConfigService) Delete(ctx context.Context, id string) error {
	err := s.storeCall(ctx, "delete", func(ctx context.Context) error {
		return s.store.Delete(ctx, id)
	})
	s.recordMutation(ctx, OpDelete, id, err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Import validates a configuration file and, only if it is fully valid,
// replaces the stored configuration with the same id. A rejected file leaves
// the stored state untouched.
func (s *ConfigService) Import(ctx context.Context, data []byte) (model.CalculatorConfig, error) {
	cfg, err := s.importer.Import(data)
	if err != nil {
		reason := "unknown"
		if env, ok := model.AsEnvelope(err); ok && len(env.Details) > 0 {
			reason = env.Details[0].Code
		}
		s.metrics.RecordImportFailure(reason)
		s.recordMutation(ctx, OpImport, importer.PeekID(data), err)
		return model.CalculatorConfig{}, err
	}

	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = s.editor.Now()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = cfg.UpdatedAt
	}

	var stored model.CalculatorConfig
	err = s.storeCall(ctx, "replace", func(ctx context.Context) error {
		var err error
		stored, err = s.store.Replace(ctx, cfg)
		return err
	})
	s.recordMutation(ctx, OpImport, cfg.ID, err)
	if err != nil {
		return model.CalculatorConfig{}, err
	}
	s.invalidate(ctx, cfg.ID)
	return stored, nil
}

// Export serializes a stored configuration in its file form.
func (s *ConfigService) Export(ctx context.Context, id string) ([]byte, model.CalculatorConfig, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, model.CalculatorConfig{}, err
	}
	data, err := importer.Export(cfg)
	if err != nil {
		return nil, model.CalculatorConfig{}, err
	}
	return data, cfg, nil
}

// Validate runs the aggregate validator over a stored configuration.
func (s *ConfigService) Validate(ctx context.Context, id string) (ValidationReport, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return ValidationReport{}, err
	}
	issues := s.validator.ValidateConfig(cfg)
	if issues == nil {
		issues = []definition.VError{}
	}
	return ValidationReport{
		ConfigID: cfg.ID,
		Version:  cfg.Version,
		Valid:    !definition.HasErrors(issues),
		Issues:   issues,
	}, nil
}

// AddRule appends a rule. An empty id is replaced by a generated one; an id
// already present in the configuration is a CONFLICT.
func (s *ConfigService) AddRule(ctx context.Context, id string, expectedVersion int, rule model.PermutationRule) (model.CalculatorConfig, model.PermutationRule, error) {
	if rule.ID == "" {
		rule.ID = rulestore.NewRuleID()
	}
	cfg, err := s.mutate(ctx, OpAddRule, id, expectedVersion, func(cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
		if _, exists := cfg.FindRule(rule.ID); exists {
			return cfg, model.NewConflictError(fmt.Sprintf("rule %q already exists in configuration %q", rule.ID, id))
		}
		return s.editor.AddRule(cfg, rule), nil
	}, zap.String("rule_id", rule.ID))
	return cfg, rule, err
}

// UpdateRule merges patch onto the rule with ruleID.
func (s *ConfigService) UpdateRule(ctx context.Context, id string, expectedVersion int, ruleID string, patch model.RulePatch) (model.CalculatorConfig, error) {
	return s.mutate(ctx, OpUpdateRule, id, expectedVersion, func(cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
		return s.editor.UpdateRule(cfg, ruleID, patch), nil
	}, zap.String("rule_id", ruleID))
}

// DeleteRule removes the rule with ruleID.
func (s *ConfigService) DeleteRule(ctx context.Context, id string, expectedVersion int, ruleID string) (model.CalculatorConfig, error) {
	return s.mutate(ctx, OpDeleteRule, id, expectedVersion, func(cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
		return s.editor.DeleteRule(cfg, ruleID), nil
	}, zap.String("rule_id", ruleID))
}

// ToggleRule sets a rule's enabled flag.
func (s *ConfigService) ToggleRule(ctx context.Context, id string, expectedVersion int, ruleID string, enabled bool) (model.CalculatorConfig, error) {
	return s.mutate(ctx, OpToggleRule, id, expectedVersion, func(cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
		return s.editor.ToggleRule(cfg, ruleID, enabled), nil
	}, zap.String("rule_id", ruleID), zap.Bool("enabled", enabled))
}

// UpdateComponent merges patch onto the component with componentID.
func (s *ConfigService) UpdateComponent(ctx context.Context, id string, expectedVersion int, componentID string, patch model.ComponentPatch) (model.CalculatorConfig, error) {
	return s.mutate(ctx, OpUpdateComponent, id, expectedVersion, func(cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
		return s.editor.UpdateComponent(cfg, componentID, patch), nil
	}, zap.String("component_id", componentID))
}

// ToggleComponent sets a component's enabled flag.
func (s *ConfigService) ToggleComponent(ctx context.Context, id string, expectedVersion int, componentID string, enabled bool) (model.CalculatorConfig, error) {
	return s.mutate(ctx, OpToggleComponent, id, expectedVersion, func(cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
		return s.editor.ToggleComponent(cfg, componentID, enabled), nil
	}, zap.String("component_id", componentID), zap.Bool("enabled", enabled))
}

// Evaluate computes option availability for the given selections, serving
// repeated requests against the same revision from the cache. Cache failures
// degrade to a direct evaluation.
func (s *ConfigService) Evaluate(ctx context.Context, id string, selections model.Selections) (model.AvailabilityReport, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		s.metrics.RecordEvaluation("error", 0)
		return model.AvailabilityReport{}, err
	}

	ctx, span := observability.StartSpan(ctx, "config.evaluate",
		observability.AttrConfigID.String(cfg.ID),
		observability.AttrConfigVer.Int(cfg.Version),
	)
	defer span.End()

	logger := observability.RequestLogger(ctx, s.logger)
	key := evaluator.CacheKey(cfg, selections)

	report, found, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.RecordEvaluationCache("error")
		logger.Warn("evaluation cache read failed", zap.String("config_id", cfg.ID), zap.Error(err))
	case found:
		s.metrics.RecordEvaluationCache("hit")
		span.SetAttributes(observability.AttrCacheHit.Bool(true))
		logger.Debug("evaluation cache hit", zap.String("config_id", cfg.ID))
		return report, nil
	default:
		s.metrics.RecordEvaluationCache("miss")
	}
	span.SetAttributes(observability.AttrCacheHit.Bool(false))

	start := time.Now()
	report = evaluator.Evaluate(cfg, selections)
	s.metrics.RecordEvaluation("ok", time.Since(start))

	if err := s.cache.Set(ctx, key, report); err != nil {
		logger.Warn("evaluation cache write failed", zap.String("config_id", cfg.ID), zap.Error(err))
	}
	return report, nil
}

// HealthCheck verifies the store is reachable.
func (s *ConfigService) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

// mutate loads a configuration, applies edit and persists the result with a
// compare-and-swap on the loaded version. A positive expectedVersion must
// match the stored version.
func (s *ConfigService) mutate(
	ctx context.Context,
	op, id string,
	expectedVersion int,
	edit func(model.CalculatorConfig) (model.CalculatorConfig, error),
	fields ...zap.Field,
) (model.CalculatorConfig, error) {
	ctx, span := observability.StartSpan(ctx, "config."+op,
		observability.AttrConfigID.String(id),
		observability.AttrOperation.String(op),
	)

	updated, err := s.applyMutation(ctx, id, expectedVersion, edit)
	observability.EndSpanWithError(span, err)
	s.recordMutation(ctx, op, id, err, fields...)
	if err != nil {
		return model.CalculatorConfig{}, err
	}
	s.invalidate(ctx, id)
	return updated, nil
}

func (s *ConfigService) applyMutation(
	ctx context.Context,
	id string,
	expectedVersion int,
	edit func(model.CalculatorConfig) (model.CalculatorConfig, error),
) (model.CalculatorConfig, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return model.CalculatorConfig{}, err
	}
	if expectedVersion > 0 && current.Version != expectedVersion {
		return model.CalculatorConfig{}, model.NewConflictError(
			fmt.Sprintf("configuration %q version conflict (expected %d, got %d)", id, expectedVersion, current.Version),
		)
	}

	next, err := edit(current)
	if err != nil {
		return model.CalculatorConfig{}, err
	}
	next.Version = current.Version

	var updated model.CalculatorConfig
	err = s.storeCall(ctx, "update", func(ctx context.Context) error {
		var err error
		updated, err = s.store.Update(ctx, next)
		return err
	})
	return updated, err
}

func (s *ConfigService) storeCall(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "store."+op, attribute.String("db.operation", op))
	start := time.Now()
	err := fn(ctx)

	code := ""
	if err != nil {
		code = model.ErrInternalError
		if env, ok := model.AsEnvelope(err); ok {
			code = env.Code
		}
	}
	s.metrics.RecordStoreCall(op, time.Since(start), code)
	observability.EndSpanWithError(span, err)
	return err
}

func (s *ConfigService) invalidate(ctx context.Context, id string) {
	if err := s.cache.InvalidateConfig(ctx, id); err != nil {
		observability.RequestLogger(ctx, s.logger).Warn("evaluation cache invalidation failed",
			zap.String("config_id", id), zap.Error(err))
	}
}

func (s *ConfigService) recordMutation(ctx context.Context, op, id string, err error, fields ...zap.Field) {
	logger := observability.RequestLogger(ctx, s.logger).With(
		zap.String("operation", op),
		zap.String("config_id", id),
	)

	status := "ok"
	switch {
	case err == nil:
		logger.Info("configuration updated", fields...)
	case model.HasCode(err, model.ErrConflict):
		status = "conflict"
		logger.Warn("configuration update conflict", append(fields, zap.Error(err))...)
	case model.HasCode(err, model.ErrNotFound):
		status = "not_found"
		logger.Info("configuration not found", fields...)
	case model.HasCode(err, model.ErrInvalidImport):
		status = "invalid"
		logger.Warn("configuration import rejected", append(fields, zap.Error(err))...)
	default:
		status = "error"
		logger.Error("configuration update failed", append(fields, zap.Error(err))...)
	}
	s.metrics.RecordMutation(op, status)
}
