package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ndf/core/forms"
	"github.com/kilianp07/ndf/infra/logger"
	"github.com/kilianp07/ndf/infra/store"
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "Form template commands",
}

var formsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Load form templates, costs and rates from YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runFormsImport,
}

var formsSetActiveCmd = &cobra.Command{
	Use:   "set-active <name> <true|false>",
	Short: "Open or close a form to new sheets",
	Args:  cobra.ExactArgs(2),
	RunE:  runFormsSetActive,
}

func init() {
	formsCmd.AddCommand(formsImportCmd)
	formsCmd.AddCommand(formsSetActiveCmd)
	rootCmd.AddCommand(formsCmd)
}

func runFormsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	file, err := forms.ParseFile(f)
	if err != nil {
		return err
	}
	return withStore(context.Background(), func(st *store.Store) error {
		res, err := forms.NewService(st, logger.New("forms")).Import(context.Background(), file)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "forms created %d, updated %d, costs added %d, rates added %d\n",
			res.FormsCreated, res.FormsUpdated, res.CostsAdded, res.RatesAdded)
		return err
	})
}

func runFormsSetActive(cmd *cobra.Command, args []string) error {
	active, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("active flag %q: %w", args[1], err)
	}
	ctx := context.Background()
	return withStore(ctx, func(st *store.Store) error {
		f, err := st.GetFormByName(ctx, args[0])
		if err != nil {
			return fmt.Errorf("form %q: %w", args[0], err)
		}
		if f, err = forms.NewService(st, logger.New("forms")).SetActive(ctx, nil, f.ID, active); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "form %s active=%t\n", f.Name, f.Active)
		return err
	})
}
