package main

import (
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/funcwire/mcpgen/internal/assemble"
	"github.com/funcwire/mcpgen/internal/codegen"
	"github.com/funcwire/mcpgen/internal/config"
	"github.com/funcwire/mcpgen/internal/extract"
	"github.com/funcwire/mcpgen/internal/source"
)

// version is stamped at build time.
var version = "dev"

func rootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "mcpgen",
		Short:         "Generate a protocol server from an annotated Go package",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load()
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(generateCmd(), versionCmd())
	return cmd
}

func generateCmd() *cobra.Command {
	var (
		srcDir     string
		outDir     string
		configPath string
		module     string
		name       string
		check      bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate server sources from an annotated package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, srcDir)
			if err != nil {
				return err
			}
			if srcDir != "" {
				cfg.Source = srcDir
			}
			if outDir != "" {
				cfg.Out = outDir
			}
			if module != "" {
				cfg.Module = module
			}
			if name != "" {
				cfg.Server.Name = name
			}

			files, err := generate(cfg)
			if err != nil {
				return err
			}

			if check {
				report, err := codegen.Check(cfg.Out, files)
				if err != nil {
					return err
				}
				if report != "" {
					fmt.Fprint(cmd.OutOrStdout(), report)
					return fmt.Errorf("generated files in %s are stale", cfg.Out)
				}
				logrus.WithField("out", cfg.Out).Info("generated files are up to date")
				return nil
			}

			if err := codegen.Write(cfg.Out, files); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"out":   cfg.Out,
				"files": len(files),
			}).Info("generated server")
			return nil
		},
	}

	cmd.Flags().StringVar(&srcDir, "src", "", "directory of the annotated package (default from config)")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default from config)")
	cmd.Flags().StringVar(&configPath, "config", "", "config file (default <src>/"+config.DefaultFile+")")
	cmd.Flags().StringVar(&module, "module", "", "module path of the generated go.mod")
	cmd.Flags().StringVar(&name, "name", "", "server name advertised to clients")
	cmd.Flags().BoolVar(&check, "check", false, "diff against existing output instead of writing")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mcpgen version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mcpgen", version)
		},
	}
}

func loadConfig(configPath, srcDir string) (config.Config, error) {
	explicit := configPath != ""
	if !explicit {
		dir := srcDir
		if dir == "" {
			dir = "."
		}
		configPath = filepath.Join(dir, config.DefaultFile)
	}
	return config.Load(configPath, explicit)
}

func generate(cfg config.Config) (map[string][]byte, error) {
	logrus.WithField("source", cfg.Source).Debug("loading package")
	pkg, err := source.Load(cfg.Source)
	if err != nil {
		return nil, err
	}

	filter, err := extract.NewFilter(cfg.Include, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	fns, err := extract.Functions(pkg, filter)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"package":   pkg.PkgPath,
		"functions": len(fns),
	}).Debug("extracted annotated functions")

	srv, err := assemble.Build(pkg, fns)
	if err != nil {
		return nil, err
	}

	return codegen.Generator{Config: cfg, Server: srv}.Generate()
}
