package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/infra/store"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "User administration",
}

var newUser struct {
	email, first, last, role string
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a user",
	RunE:  runUsersCreate,
}

func init() {
	f := usersCreateCmd.Flags()
	f.StringVar(&newUser.email, "email", "", "e-mail address")
	f.StringVar(&newUser.first, "first-name", "", "first name")
	f.StringVar(&newUser.last, "last-name", "", "last name")
	f.StringVar(&newUser.role, "role", string(model.RoleEmployee), "employee or admin")
	_ = usersCreateCmd.MarkFlagRequired("email")
	usersCmd.AddCommand(usersCreateCmd)
	rootCmd.AddCommand(usersCmd)
}

func runUsersCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	return withStore(ctx, func(st *store.Store) error {
		u, err := expense.NewOrganisation(st).CreateUser(ctx, nil, model.User{
			Email:     newUser.email,
			FirstName: newUser.first,
			LastName:  newUser.last,
			Role:      model.Role(newUser.role),
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		return err
	})
}
