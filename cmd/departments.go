package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ndf/core/expense"
	"github.com/kilianp07/ndf/core/model"
	"github.com/kilianp07/ndf/infra/store"
)

var departmentsCmd = &cobra.Command{
	Use:   "departments",
	Short: "Department administration",
}

var newDept struct {
	name, code, email string
	dsf               bool
}

var departmentsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a department",
	RunE:  runDepartmentsCreate,
}

var member struct {
	user, department string
	head             bool
}

var departmentsAddMemberCmd = &cobra.Command{
	Use:   "add-member",
	Short: "Add a user to a department",
	RunE:  runDepartmentsAddMember,
}

func init() {
	f := departmentsCreateCmd.Flags()
	f.StringVar(&newDept.name, "name", "", "department name")
	f.StringVar(&newDept.code, "code", "", "unique short code")
	f.StringVar(&newDept.email, "email", "", "department e-mail, required for the DSF")
	f.BoolVar(&newDept.dsf, "dsf", false, "mark as the DSF finance department")
	_ = departmentsCreateCmd.MarkFlagRequired("name")
	_ = departmentsCreateCmd.MarkFlagRequired("code")

	m := departmentsAddMemberCmd.Flags()
	m.StringVar(&member.user, "user", "", "user id or e-mail")
	m.StringVar(&member.department, "department", "", "department id or code")
	m.BoolVar(&member.head, "head", false, "make the user a head of the department")
	_ = departmentsAddMemberCmd.MarkFlagRequired("user")
	_ = departmentsAddMemberCmd.MarkFlagRequired("department")

	departmentsCmd.AddCommand(departmentsCreateCmd, departmentsAddMemberCmd)
	rootCmd.AddCommand(departmentsCmd)
}

func runDepartmentsCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	return withStore(ctx, func(st *store.Store) error {
		d, err := expense.NewOrganisation(st).CreateDepartment(ctx, nil, model.Department{
			Name:  newDept.name,
			Code:  newDept.code,
			Email: newDept.email,
			IsDSF: newDept.dsf,
		})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), d.ID)
		return err
	})
}

func runDepartmentsAddMember(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	return withStore(ctx, func(st *store.Store) error {
		u, err := resolveUser(ctx, st, member.user)
		if err != nil {
			return err
		}
		d, err := st.GetDepartment(ctx, member.department)
		if err != nil {
			if d, err = st.GetDepartmentByCode(ctx, member.department); err != nil {
				return fmt.Errorf("department %s: %w", member.department, err)
			}
		}
		return expense.NewOrganisation(st).AddMember(ctx, nil, model.Membership{
			UserID: u.ID, DepartmentID: d.ID, IsHead: member.head,
		})
	})
}

// resolveUser accepts an id or an e-mail.
func resolveUser(ctx context.Context, st *store.Store, ref string) (model.User, error) {
	u, err := st.GetUser(ctx, ref)
	if err == nil {
		return u, nil
	}
	if u, err = st.GetUserByEmail(ctx, ref); err != nil {
		return model.User{}, fmt.Errorf("user %s: %w", ref, err)
	}
	return u, nil
}
