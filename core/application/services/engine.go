package services

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/go-playground/validator/v10"

	"github.com/hyperterse/queryengine/core/domain"
	"github.com/hyperterse/queryengine/core/engine"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/parser"
	"github.com/hyperterse/queryengine/core/runtime/fault"
	"github.com/hyperterse/queryengine/core/runtime/schema"
	"github.com/hyperterse/queryengine/core/shared/errors"
	"github.com/hyperterse/queryengine/core/version"
)

// ConstructorOptions create an engine with per-datasource URL overrides
type ConstructorOptions struct {
	Datamodel           string            `json:"datamodel" validate:"required"`
	DatasourceOverrides map[string]string `json:"datasourceOverrides,omitempty"`
	ConfigDir           string            `json:"configDir,omitempty"`
	Env                 map[string]string `json:"env,omitempty"`
}

// FormatParams is the JSON input of Format. Only the tab size is honoured.
type FormatParams struct {
	Options struct {
		TabSize int `json:"tabSize"`
	} `json:"options"`
}

// GetDmmfParams is the JSON input of GetDmmf
type GetDmmfParams struct {
	Schema string `json:"prismaSchema" validate:"required"`
}

// EngineService is the boundary surface. Every error it returns is an
// *errors.ApiError.
type EngineService struct {
	registry *engine.Registry
	deps     engine.Deps
	renderer *schema.Renderer
	validate *validator.Validate
	log      *logger.Logger
}

// NewEngineService creates the service around a registry. A nil renderer
// renders DMMF documents without caching.
func NewEngineService(registry *engine.Registry, deps engine.Deps, renderer *schema.Renderer) *EngineService {
	if registry == nil {
		registry = engine.NewRegistry()
	}
	if renderer == nil {
		renderer = schema.NewRenderer(nil, 0)
	}
	return &EngineService{
		registry: registry,
		deps:     deps,
		renderer: renderer,
		validate: validator.New(),
		log:      logger.New("registry"),
	}
}

// Registry returns the registry owned by the service
func (s *EngineService) Registry() *engine.Registry {
	return s.registry
}

// Create registers a new engine for the schema text. A non-empty
// datasourceURL replaces the schema's datasource URL.
func (s *EngineService) Create(datamodel, datasourceURL string) (engine.Handle, error) {
	return s.CreateEngine(engine.Options{Datamodel: datamodel, DatasourceURL: datasourceURL})
}

// CreateWithOptions decodes ConstructorOptions from JSON and registers a new
// engine.
func (s *EngineService) CreateWithOptions(options string) (engine.Handle, error) {
	var opts ConstructorOptions
	if err := json.Unmarshal([]byte(options), &opts); err != nil {
		return -1, errors.FromJSON(err)
	}
	if err := s.validate.Struct(opts); err != nil {
		return -1, errors.Wrap(errors.KindJSONDecode, err.Error(), err)
	}
	return s.CreateEngine(engine.Options{
		Datamodel:           opts.Datamodel,
		DatasourceOverrides: opts.DatasourceOverrides,
		ConfigDir:           opts.ConfigDir,
		Env:                 opts.Env,
	})
}

// CreateEngine registers a new engine built from opts
func (s *EngineService) CreateEngine(opts engine.Options) (engine.Handle, error) {
	h, err := s.registry.Create(opts, s.deps)
	if err != nil {
		return -1, err
	}
	s.log.Debugf("Registered engine %d", h)
	return h, nil
}

// Connect connects the engine registered under h
func (s *EngineService) Connect(ctx context.Context, h engine.Handle) error {
	e, err := s.registry.Lookup(h)
	if err != nil {
		return err
	}
	return e.Connect(ctx)
}

// Disconnect disconnects the engine registered under h
func (s *EngineService) Disconnect(ctx context.Context, h engine.Handle) error {
	e, err := s.registry.Lookup(h)
	if err != nil {
		return err
	}
	return e.Disconnect(ctx)
}

// Query runs a JSON protocol request, inside the transaction txID when it
// is non-nil.
func (s *EngineService) Query(ctx context.Context, h engine.Handle, body string, txID *domain.TxID) (string, error) {
	e, err := s.registry.Lookup(h)
	if err != nil {
		return "", err
	}
	return e.Query(ctx, body, txID)
}

// StartTransaction opens an interactive transaction
func (s *EngineService) StartTransaction(ctx context.Context, h engine.Handle, input string) (string, error) {
	e, err := s.registry.Lookup(h)
	if err != nil {
		return "", err
	}
	return e.StartTransaction(ctx, input)
}

// CommitTransaction commits an interactive transaction
func (s *EngineService) CommitTransaction(ctx context.Context, h engine.Handle, txID string) (string, error) {
	e, err := s.registry.Lookup(h)
	if err != nil {
		return "", err
	}
	return e.CommitTransaction(ctx, txID)
}

// RollbackTransaction rolls back an interactive transaction
func (s *EngineService) RollbackTransaction(ctx context.Context, h engine.Handle, txID string) (string, error) {
	e, err := s.registry.Lookup(h)
	if err != nil {
		return "", err
	}
	return e.RollbackTransaction(ctx, txID)
}

// Dmmf renders the DMMF document of the schema text
func (s *EngineService) Dmmf(ctx context.Context, datamodel string) (string, error) {
	return guard(ctx, "dmmf", func(ctx context.Context) (string, error) {
		doc, err := s.renderer.Render(ctx, datamodel)
		if err != nil {
			return "", withSource(err, datamodel)
		}
		return string(doc), nil
	})
}

// GetDmmf is Dmmf with the schema passed as JSON params
func (s *EngineService) GetDmmf(ctx context.Context, params string) (string, error) {
	var p GetDmmfParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "", errors.FromJSON(err)
	}
	if err := s.validate.Struct(p); err != nil {
		return "", errors.Wrap(errors.KindJSONDecode, err.Error(), err)
	}
	return s.Dmmf(ctx, p.Schema)
}

// Version reports the engine version
func (s *EngineService) Version() version.Info {
	return version.Get()
}

// Format returns the schema in canonical layout. Malformed params fall back
// to the default indentation.
func (s *EngineService) Format(datamodel, params string) string {
	var p FormatParams
	if params != "" {
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			s.log.Debugf("Ignoring format params: %v", err)
		}
	}
	out, err := guard(context.Background(), "format", func(context.Context) (string, error) {
		return parser.Format(datamodel, p.Options.TabSize), nil
	})
	if err != nil {
		return datamodel
	}
	return out
}

// Lint returns the schema's diagnostics as a JSON array
func (s *EngineService) Lint(datamodel string) string {
	out, err := guard(context.Background(), "lint", func(context.Context) (string, error) {
		return parser.Lint(datamodel), nil
	})
	if err != nil {
		return "[]"
	}
	return out
}

// GetConfig returns the configuration blocks of a schema as JSON
func (s *EngineService) GetConfig(params string) (string, error) {
	var p parser.GetConfigParams
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "", errors.FromJSON(err)
	}
	if err := s.validate.Struct(p); err != nil {
		return "", errors.Wrap(errors.KindJSONDecode, err.Error(), err)
	}
	return guard(context.Background(), "get_config", func(context.Context) (string, error) {
		config, err := parser.GetConfig(p)
		if err != nil {
			return "", withSource(err, p.Datamodel)
		}
		out, err := json.Marshal(config)
		if err != nil {
			return "", err
		}
		return string(out), nil
	})
}

// Validate returns nil for a valid schema and a Conversion error otherwise
func (s *EngineService) Validate(datamodel string) error {
	_, err := guard(context.Background(), "validate", func(context.Context) (struct{}, error) {
		diags := parser.Validate(datamodel)
		if diags.HasErrors() {
			return struct{}{}, errors.Conversion(diags, datamodel)
		}
		return struct{}{}, nil
	})
	return err
}

// withSource attaches the schema text to diagnostics failures
func withSource(err error, datamodel string) error {
	var diagErr *domain.DiagnosticsError
	if stderrors.As(err, &diagErr) {
		return errors.Conversion(diagErr.Diagnostics, datamodel)
	}
	return err
}

func guard[T any](ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	value, err := fault.Run(ctx, op, fn)
	if err != nil {
		return value, errors.From(err)
	}
	return value, nil
}
