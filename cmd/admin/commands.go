package main

import (
	"context"
	"fmt"
	"io"
	"slices"

	"pulsifi/internal/bootstrap"
	"pulsifi/internal/config"
	"pulsifi/internal/models"
	"pulsifi/internal/service"

	"github.com/spf13/cobra"
)

// withServices runs fn against a freshly initialized runtime.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Services) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := cmd.Context()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := rt.Shutdown(ctx); shutdownErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "shutdown: %v\n", shutdownErr)
		}
	}()
	return fn(ctx, rt.Services)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Manage pulsifi staff and moderation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newPromoteCmd(),
		newDemoteCmd(),
		newListStaffCmd(),
		newEnsureGroupsCmd(),
		newAssignPendingCmd(),
	)
	return root
}

func newPromoteCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "promote <username>",
		Short: "Add a user to a staff group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(models.StaffGroupNames, group) {
				return fmt.Errorf("%q is not a staff group", group)
			}
			return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
				return promote(ctx, svc.Users, cmd.OutOrStdout(), args[0], group)
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", models.GroupModerators, "staff group to join (Moderators or Admins)")
	return cmd
}

func newDemoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demote <username>",
		Short: "Remove a user from every staff group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
				return demote(ctx, svc.Users, cmd.OutOrStdout(), args[0])
			})
		},
	}
}

func newListStaffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-staff",
		Short: "List every staff account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
				return listStaff(ctx, svc.Users, cmd.OutOrStdout())
			})
		},
	}
}

func newEnsureGroupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-groups",
		Short: "Create the Moderators and Admins groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// InitRuntime already ensures the groups.
			return withServices(cmd, func(context.Context, *service.Services) error {
				fmt.Fprintln(cmd.OutOrStdout(), "✅ staff groups present")
				return nil
			})
		},
	}
}

func newAssignPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign-pending",
		Short: "Assign a moderator to every in-progress report that has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, func(ctx context.Context, svc *service.Services) error {
				n, err := svc.Moderation.AssignPending(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ assigned %d report(s)\n", n)
				return nil
			})
		},
	}
}

func promote(ctx context.Context, users *service.UserService, out io.Writer, username, group string) error {
	u, err := users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if u.InGroup(group) {
		fmt.Fprintf(out, "User %s (ID: %d) is already in %s\n", u.Username, u.ID, group)
		return nil
	}
	if _, err := users.AddToGroup(ctx, u.ID, group); err != nil {
		return fmt.Errorf("promote %s: %w", u.Username, err)
	}
	fmt.Fprintf(out, "✅ User %s (ID: %d) joined %s\n", u.Username, u.ID, group)
	return nil
}

// demote drops every staff membership. Superusers keep Admins and their staff flag.
func demote(ctx context.Context, users *service.UserService, out io.Writer, username string) error {
	u, err := users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if !u.IsStaff && !u.InStaffGroup() {
		fmt.Fprintf(out, "User %s (ID: %d) is not staff\n", u.Username, u.ID)
		return nil
	}

	for _, group := range models.StaffGroupNames {
		if !u.InGroup(group) || (u.IsSuperuser && group == models.GroupAdmins) {
			continue
		}
		if u, err = users.RemoveFromGroup(ctx, u.ID, group); err != nil {
			return fmt.Errorf("demote %s: %w", username, err)
		}
	}
	if u.IsStaff && !u.IsSuperuser && !u.InStaffGroup() {
		staff := false
		if u, err = users.UpdateUser(ctx, u.ID, service.UpdateUserInput{IsStaff: &staff}); err != nil {
			return fmt.Errorf("demote %s: %w", username, err)
		}
	}

	if u.IsStaff {
		fmt.Fprintf(out, "⚠️  User %s (ID: %d) stays staff and in Admins as a superuser\n", u.Username, u.ID)
		return nil
	}
	fmt.Fprintf(out, "✅ User %s (ID: %d) is no longer staff\n", u.Username, u.ID)
	return nil
}

func listStaff(ctx context.Context, users *service.UserService, out io.Writer) error {
	staff, err := users.ListStaff(ctx)
	if err != nil {
		return err
	}
	if len(staff) == 0 {
		fmt.Fprintln(out, "No staff accounts found")
		return nil
	}

	fmt.Fprintf(out, "Found %d staff account(s):\n", len(staff))
	for _, u := range staff {
		var groups []string
		for _, g := range u.Groups {
			groups = append(groups, g.Name)
		}
		fmt.Fprintf(out, "  ID: %d | Username: %s | Superuser: %t | Groups: %v\n", u.ID, u.Username, u.IsSuperuser, groups)
	}
	return nil
}
