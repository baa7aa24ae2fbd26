package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dashing-go/dashing/cli/internal/config"
	"github.com/dashing-go/dashing/cli/internal/ui"
	"github.com/dashing-go/dashing/runtime/client"
)

const exampleMapping = `# Entity mapping used by dashing explain and dashing query.
entities:
  - type: Blog
    table: blogs
    primary_key: id
    columns: [id, title]
    relations:
      - navigation: Posts
        target: Post
        cardinality: many
        foreign_key: blog_id
  - type: Post
    table: posts
    primary_key: id
    columns: [id, blog_id, title]
`

type initOptions struct {
	provider    string
	databaseURL string
	mappingPath string
	yes         bool
}

func newInitCmd() *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create .dashing.yaml and an example mapping",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if !opts.yes {
				if err := opts.ask(); err != nil {
					return err
				}
			}
			return runInit(dir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.provider, "provider", "sqlite", "Database provider (postgresql, mysql, sqlite)")
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", "", "Connection string; DATABASE_URL is used when empty")
	cmd.Flags().StringVar(&opts.mappingPath, "mapping", "mapping.yaml", "Entity mapping file")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Accept the flag values without prompting")
	return cmd
}

func (o *initOptions) ask() error {
	qs := []*survey.Question{
		{
			Name: "provider",
			Prompt: &survey.Select{
				Message: "Database provider:",
				Options: []string{"postgresql", "mysql", "sqlite"},
				Default: o.provider,
			},
		},
		{
			Name:   "databaseURL",
			Prompt: &survey.Input{Message: "Connection string (blank for DATABASE_URL):", Default: o.databaseURL},
		},
		{
			Name:     "mappingPath",
			Prompt:   &survey.Input{Message: "Mapping file:", Default: o.mappingPath},
			Validate: survey.Required,
		},
	}
	answers := struct {
		Provider    string `survey:"provider"`
		DatabaseURL string `survey:"databaseURL"`
		MappingPath string `survey:"mappingPath"`
	}{}
	if err := survey.Ask(qs, &answers); err != nil {
		return err
	}
	o.provider, o.databaseURL, o.mappingPath = answers.Provider, answers.DatabaseURL, answers.MappingPath
	return nil
}

func runInit(dir string, opts *initOptions) error {
	if client.DriverName(opts.provider) == "" {
		return fmt.Errorf("unsupported provider: %s", opts.provider)
	}
	if opts.mappingPath == "" {
		return errors.New("mapping path must not be empty")
	}

	path, err := config.SaveConfig(&config.Config{
		Provider:             opts.provider,
		DatabaseURL:          opts.databaseURL,
		MappingPath:          opts.mappingPath,
		AsyncMultiCollection: true,
	}, dir)
	if err != nil {
		return err
	}
	ui.PrintSuccess("Created %s", path)

	mappingPath := filepath.Join(dir, opts.mappingPath)
	exists, err := afero.Exists(config.AppFs, mappingPath)
	if err != nil {
		return err
	}
	if exists {
		ui.PrintWarning("Mapping %s already exists, leaving it unchanged", mappingPath)
		return nil
	}
	if err := afero.WriteFile(config.AppFs, mappingPath, []byte(exampleMapping), 0644); err != nil {
		return fmt.Errorf("failed to write mapping: %w", err)
	}
	ui.PrintSuccess("Created %s", mappingPath)
	return nil
}
