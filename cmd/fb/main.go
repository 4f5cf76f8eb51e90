package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowboard/internal/app"
	"flowboard/internal/automation"
	"flowboard/internal/config"
	"flowboard/internal/db"
	"flowboard/internal/domain"
	"flowboard/internal/engine"
	"flowboard/internal/repo"
	"flowboard/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fb",
	Short: "Flowboard CLI",
	Long: `Flowboard tracks multi-tenant project work with automation rules.
- Workspace: the .flowboard directory holding the SQLite database.
- Projects: boards with an ordered status list; the owner manages membership and rules.
- Tasks: work items that move through the project's statuses.
- Automations: owner-defined rules that react to status changes, assignments,
  and passed due dates by granting badges, moving tasks, or notifying assignees.
- Invitations and notifications: how people join boards and hear about changes.
- Event log: audit trail of changes, view with 'fb log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLOWBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "acting user identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (defaults to your only project)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(automationCmd())
	rootCmd.AddCommand(invitationCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(badgeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- project ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectMembersCmd())
	prj.AddCommand(projectRemoveMemberCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var title, desc, statuses string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.CreateProject(ctx, engine.ProjectCreateOptions{
					Title:        title,
					Description:  desc,
					TaskStatuses: splitStatuses(statuses),
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&statuses, "statuses", "", "comma-separated status list (first is the default)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListProjects(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				p, err := rt.Engine.GetProject(ctx, projectID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var title, desc, statuses string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a project (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				opts := engine.ProjectUpdateOptions{
					ID:      projectID,
					ActorID: viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &desc
				}
				if cmd.Flags().Changed("statuses") {
					opts.TaskStatuses = splitStatuses(statuses)
				}
				p, err := rt.Engine.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&statuses, "statuses", "", "comma-separated status list")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project and everything in it (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				return rt.Engine.DeleteProject(ctx, projectID, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func projectMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List project members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				members, err := rt.Engine.ListMembers(ctx, projectID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(members)
			})
		},
	}
	return cmd
}

func projectRemoveMemberCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "remove-member",
		Short: "Remove a member from the project (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				return rt.Engine.RemoveMember(ctx, projectID, user, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id to remove")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// --- task ---

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var title, desc, status, assignee, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				t, err := rt.Engine.CreateTask(ctx, engine.TaskCreateOptions{
					ProjectID:   projectID,
					Title:       title,
					Description: desc,
					Status:      status,
					AssigneeID:  assignee,
					DueDate:     due,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "initial status (defaults to the project's first)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, assignee string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				tasks, err := rt.Engine.ListTasks(ctx, repo.TaskFilters{
					ProjectID:  projectID,
					Status:     status,
					AssigneeID: assignee,
					Limit:      limit,
				}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Due"})
				for _, t := range tasks {
					assigneeID := ""
					if t.AssigneeID != nil {
						assigneeID = *t.AssigneeID
					}
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, assigneeID, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				t, err := rt.Engine.GetTask(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, desc, status, assignee, due string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Long: `Update a task. Pass --assignee "" or --due "" to clear a field;
flags you do not pass are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				opts := engine.TaskUpdateOptions{
					ID:      args[0],
					ActorID: viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &desc
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("assignee") {
					opts.Assign = &assignee
				}
				if cmd.Flags().Changed("due") {
					opts.DueDate = &due
				}
				t, err := rt.Engine.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user id (empty clears)")
	cmd.Flags().StringVar(&due, "due", "", "due date RFC3339 (empty clears)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return rt.Engine.DeleteTask(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- automation ---

func automationCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "automation",
		Short: "Manage automation rules",
	}
	a.AddCommand(automationCreateCmd())
	a.AddCommand(automationListCmd())
	a.AddCommand(automationGetCmd())
	a.AddCommand(automationUpdateCmd())
	a.AddCommand(automationDeleteCmd())
	return a
}

func automationCreateCmd() *cobra.Command {
	var name, trigger, fromStatus, toStatus, user string
	var action, badge, status, message string
	var inactive bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an automation rule (owner only)",
		Long: `Create an automation rule. Triggers: task_status_change (--from-status,
--to-status), task_assignment (--user), task_due_date_passed. Actions:
assign_badge (--badge), change_task_status (--to), send_notification (--message).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				trg := domain.Trigger{Type: trigger}
				if cmd.Flags().Changed("from-status") {
					trg.FromStatus = &fromStatus
				}
				if cmd.Flags().Changed("to-status") {
					trg.ToStatus = &toStatus
				}
				if cmd.Flags().Changed("user") {
					trg.UserID = &user
				}
				act := domain.Action{
					Type:                action,
					BadgeName:           badge,
					Status:              status,
					NotificationMessage: message,
				}
				active := !inactive
				a, err := rt.Engine.CreateAutomation(ctx, engine.AutomationCreateOptions{
					ProjectID: projectID,
					Name:      name,
					Active:    &active,
					Trigger:   trg,
					Action:    act,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().StringVar(&trigger, "trigger", "", "trigger type")
	cmd.Flags().StringVar(&fromStatus, "from-status", "", "status-change condition: previous status")
	cmd.Flags().StringVar(&toStatus, "to-status", "", "status-change condition: new status")
	cmd.Flags().StringVar(&user, "user", "", "assignment condition: assigned user")
	cmd.Flags().StringVar(&action, "action", "", "action type")
	cmd.Flags().StringVar(&badge, "badge", "", "badge name for assign_badge")
	cmd.Flags().StringVar(&status, "to", "", "target status for change_task_status")
	cmd.Flags().StringVar(&message, "message", "", "template for send_notification")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("trigger")
	_ = cmd.MarkFlagRequired("action")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the rule disabled")
	return cmd
}

func automationListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List automation rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				items, err := rt.Engine.ListAutomations(ctx, projectID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	return cmd
}

func automationGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an automation rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := rt.Engine.GetAutomation(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	return cmd
}

func automationUpdateCmd() *cobra.Command {
	var name string
	var enable, disable bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename, enable, or disable an automation rule (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are mutually exclusive")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				opts := engine.AutomationUpdateOptions{
					ID:      args[0],
					ActorID: viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if enable {
					v := true
					opts.Active = &v
				}
				if disable {
					v := false
					opts.Active = &v
				}
				a, err := rt.Engine.UpdateAutomation(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().BoolVar(&enable, "enable", false, "activate the rule")
	cmd.Flags().BoolVar(&disable, "disable", false, "deactivate the rule")
	return cmd
}

func automationDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an automation rule (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return rt.Engine.DeleteAutomation(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- invitations ---

func invitationCmd() *cobra.Command {
	inv := &cobra.Command{
		Use:   "invitation",
		Short: "Manage project invitations",
	}
	inv.AddCommand(invitationSendCmd())
	inv.AddCommand(invitationListCmd())
	inv.AddCommand(invitationRespondCmd("accept", true))
	inv.AddCommand(invitationRespondCmd("decline", false))
	return inv
}

func invitationSendCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Invite a user to the project (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				inv, err := rt.Engine.InviteUser(ctx, projectID, user, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(inv)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "invitee user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func invitationListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invitations addressed to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListInvitations(ctx, viper.GetString("actor-id"), status)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter: pending, accepted, declined")
	return cmd
}

func invitationRespondCmd(verb string, accept bool) *cobra.Command {
	short := "Accept an invitation"
	if !accept {
		short = "Decline an invitation"
	}
	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				inv, err := rt.Engine.RespondInvitation(ctx, args[0], accept, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(inv)
			})
		},
	}
	return cmd
}

// --- notifications ---

func notificationCmd() *cobra.Command {
	n := &cobra.Command{
		Use:   "notification",
		Short: "Manage notifications",
	}
	n.AddCommand(notificationListCmd())
	n.AddCommand(notificationReadCmd())
	n.AddCommand(notificationReadAllCmd())
	return n
}

func notificationListCmd() *cobra.Command {
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListNotifications(ctx, viper.GetString("actor-id"), unread, limit)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "unread only")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func notificationReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return rt.Engine.MarkNotificationRead(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func notificationReadAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read-all",
		Short: "Mark all your notifications read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				n, err := rt.Engine.MarkAllNotificationsRead(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("marked %d notifications read\n", n)
				return nil
			})
		},
	}
	return cmd
}

// --- badges ---

func badgeCmd() *cobra.Command {
	b := &cobra.Command{
		Use:   "badge",
		Short: "Inspect earned badges",
	}
	b.AddCommand(badgeListCmd())
	return b
}

func badgeListCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List badges a user has earned",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				target := user
				if target == "" {
					target = viper.GetString("actor-id")
				}
				badges, err := rt.Engine.ListBadges(ctx, target)
				if err != nil {
					return err
				}
				return printJSON(badges)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (defaults to you)")
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Inspect the event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, rt *app.Runtime, projectID string) error {
				events, err := rt.Engine.LatestEvents(ctx, n, projectID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default flowboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	return cmd
}

// --- sweep ---

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one due-date sweep over all projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rt.Engine.Rules.RunDueDateSweep(ctx)
				return nil
			})
		},
	}
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and due-date scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer rt.Close()
			if addr == "" {
				addr = rt.Config.Server.Addr
			}
			if basePath == "" {
				basePath = rt.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("FLOWBOARD_JWT_SECRET"),
				AllowLegacyActorHeader: allowActorHeader,
				Logger:                 rt.Log,
			}
			if authCfg.JWTSecret == "" && !allowActorHeader {
				return fmt.Errorf("FLOWBOARD_JWT_SECRET is required unless --allow-actor-header is set")
			}
			handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			schedCtx, stopSched := context.WithCancel(cmd.Context())
			defer stopSched()
			sched := automation.Scheduler{
				Service:  rt.Engine.Rules,
				Interval: rt.Config.SweepInterval(),
				Log:      rt.Log,
			}
			go sched.Run(schedCtx)

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Flowboard API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "trust X-Actor-Id instead of JWT (local use)")
	return cmd
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func withProject(ctx context.Context, fn func(context.Context, *app.Runtime, string) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		projectID, err := app.ResolveProject(ctx, rt.Engine, viper.GetString("project"), viper.GetString("actor-id"))
		if err != nil {
			return err
		}
		return fn(ctx, rt, projectID)
	})
}

func splitStatuses(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
