package cmd

import (
	stderrors "errors"

	"github.com/spf13/cobra"

	"github.com/hyperterse/queryengine/core/application/services"
	"github.com/hyperterse/queryengine/core/cli/internal"
	"github.com/hyperterse/queryengine/core/engine"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/parser"
	"github.com/hyperterse/queryengine/core/shared/errors"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:           "validate [schema]",
	Short:         "Validate a schema",
	RunE:          validateSchema,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// newService returns a service for the schema utilities; they never
// register engines.
func newService() *services.EngineService {
	return services.NewEngineService(nil, engine.Deps{}, nil)
}

func validateSchema(cmd *cobra.Command, args []string) error {
	log := logger.New("validate")
	project, err := loadProject(args)
	if err != nil {
		return err
	}

	if err := newService().Validate(project.Datamodel); err != nil {
		var apiErr *errors.ApiError
		if stderrors.As(err, &apiErr) {
			return log.Fail("validation failed:\n%s", apiErr.Message)
		}
		return log.Fail("validation failed: %w", err)
	}

	printValidationSummary(log, project)
	log.Successf("Schema is valid: %s", project.SchemaPath)
	return nil
}

func printValidationSummary(log *logger.Logger, project *internal.Project) {
	schema, _ := parser.ParseSchema(project.Datamodel)
	if schema == nil {
		return
	}

	log.Info("Validation report:")
	log.Infof("  schema: %s", project.SchemaPath)
	if ds, ok := schema.Datasource(); ok {
		log.Infof("  datasource: %s (%s)", ds.Name, ds.ActiveProvider)
	}
	if schema.Datamodel != nil {
		log.Infof("  models: %d", len(schema.Datamodel.Models))
		log.Infof("  enums: %d", len(schema.Datamodel.Enums))
	}
	for _, w := range schema.Warnings {
		log.Warnf("  %s", w.Message)
	}
}
