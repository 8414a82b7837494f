package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperterse/queryengine/core/application/services"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/parser"
)

var (
	tabSize     int
	writeFormat bool
	pretty      bool
)

var dmmfCmd = &cobra.Command{
	Use:          "dmmf [schema]",
	Short:        "Print the DMMF document of a schema",
	Args:         cobra.MaximumNArgs(1),
	RunE:         printDmmf,
	SilenceUsage: true,
}

var formatCmd = &cobra.Command{
	Use:          "format [schema]",
	Short:        "Format a schema",
	Args:         cobra.MaximumNArgs(1),
	RunE:         formatSchema,
	SilenceUsage: true,
}

var lintCmd = &cobra.Command{
	Use:          "lint [schema]",
	Short:        "Print schema diagnostics as JSON",
	Args:         cobra.MaximumNArgs(1),
	RunE:         lintSchema,
	SilenceUsage: true,
}

var getConfigCmd = &cobra.Command{
	Use:          "get-config [schema]",
	Short:        "Print the datasources and generators of a schema",
	Args:         cobra.MaximumNArgs(1),
	RunE:         printConfig,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(dmmfCmd, formatCmd, lintCmd, getConfigCmd)

	dmmfCmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the output")
	getConfigCmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the output")
	formatCmd.Flags().IntVar(&tabSize, "tab-size", parser.DefaultTabSize, "Indentation width")
	formatCmd.Flags().BoolVarP(&writeFormat, "write", "w", false, "Write the result back to the schema file")
}

func printDmmf(cmd *cobra.Command, args []string) error {
	project, err := loadProject(args)
	if err != nil {
		return err
	}
	out, err := newService().Dmmf(cmd.Context(), project.Datamodel)
	if err != nil {
		return logger.New("dmmf").Fail("failed to render DMMF: %w", err)
	}
	return printJSON(cmd, out)
}

func formatSchema(cmd *cobra.Command, args []string) error {
	log := logger.New("format")
	project, err := loadProject(args)
	if err != nil {
		return err
	}

	var params services.FormatParams
	params.Options.TabSize = tabSize
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	formatted := newService().Format(project.Datamodel, string(raw))

	if !writeFormat {
		fmt.Fprint(cmd.OutOrStdout(), formatted)
		return nil
	}
	if formatted == project.Datamodel {
		log.Infof("%s is already formatted", project.SchemaPath)
		return nil
	}
	if err := os.WriteFile(project.SchemaPath, []byte(formatted), 0o644); err != nil {
		return log.Fail("failed to write %s: %w", project.SchemaPath, err)
	}
	log.Successf("Formatted %s", project.SchemaPath)
	return nil
}

func lintSchema(cmd *cobra.Command, args []string) error {
	project, err := loadProject(args)
	if err != nil {
		return err
	}
	return printJSON(cmd, newService().Lint(project.Datamodel))
}

func printConfig(cmd *cobra.Command, args []string) error {
	project, err := loadProject(args)
	if err != nil {
		return err
	}
	params, err := json.Marshal(parser.GetConfigParams{
		Datamodel:           project.Datamodel,
		DatasourceOverrides: project.DatasourceOverrides(),
		IgnoreEnvVarErrors:  true,
	})
	if err != nil {
		return err
	}
	out, err := newService().GetConfig(string(params))
	if err != nil {
		return logger.New("config").Fail("failed to resolve config: %w", err)
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, out string) error {
	if !pretty {
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return err
	}
	indented, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(indented))
	return nil
}
