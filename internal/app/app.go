package app

import (
	"context"

	"github.com/spf13/cobra"
	liblog "trpc.group/trpc-go/trpc-a2a-go/log"

	"github.com/tuannvm/jira-dashboard/internal/logging"
	"github.com/tuannvm/jira-dashboard/internal/models"
)

var (
	rootCmd = &cobra.Command{
		Use:           "jiradash",
		Short:         "Jira metrics dashboard",
		Long:          "jiradash relays Jira searches through a caching proxy and serves live dashboard metrics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetDebug(verbose)
			liblog.Default = logging.Logger
		},
	}

	verbose bool

	serveHandler     = handleServe
	proxyHandler     = handleProxy
	dashboardHandler = handleDashboard
	fetchHandler     = handleFetch
	agentHandler     = handleAgent
	askHandler       = handleAsk
	snapshotHandler  = handleSnapshot
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to every handler
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	serveCmd.Flags().BoolVar(&serveWithAgent, "with-agent", false, "Also start the A2A dashboard agent")

	addFilterFlags(fetchCmd, &fetchOpts.Criteria)
	fetchCmd.Flags().BoolVar(&fetchOpts.Direct, "direct", false, "Query Jira directly instead of the proxy")
	fetchCmd.Flags().BoolVar(&fetchOpts.JSON, "json", false, "Print the metrics snapshot as JSON")
	fetchCmd.Flags().BoolVar(&fetchOpts.Save, "save", false, "Persist the fetched issues to the snapshot store")
	fetchCmd.Flags().IntVar(&fetchOpts.Limit, "limit", 20, "Maximum tickets to list")

	agentCmd.Flags().BoolVar(&agentDirect, "direct", false, "Query Jira directly instead of the proxy")

	addFilterFlags(askCmd, &askOpts.Criteria)
	askCmd.Flags().StringVar(&askOpts.AgentURL, "agent-url", "", "Agent URL (defaults to agent.url)")
	askCmd.Flags().BoolVar(&askOpts.JSON, "json", false, "Print data parts as JSON")

	snapshotCmd.Flags().IntVar(&snapshotLimit, "limit", 20, "Maximum tickets to list")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func addFilterFlags(cmd *cobra.Command, c *models.FilterCriteria) {
	cmd.Flags().StringVar(&c.ProjectName, "filter-project", "", "Project name contains")
	cmd.Flags().StringVar(&c.IssueType, "filter-type", "", "Issue type contains")
	cmd.Flags().StringVar(&c.Status, "filter-status", "", "Status contains")
	cmd.Flags().StringVar(&c.Priority, "filter-priority", "", "Priority contains")
}

var serveWithAgent bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy, the dashboard API and the refresh scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveHandler(cmd.Context(), serveWithAgent)
	},
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run only the Jira search proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return proxyHandler(cmd.Context())
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Run the dashboard API and refresh scheduler against a running proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboardHandler(cmd.Context())
	},
}

type fetchOptions struct {
	Criteria models.FilterCriteria
	Direct   bool
	JSON     bool
	Save     bool
	Limit    int
}

var fetchOpts = fetchOptions{}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one refresh cycle and print the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fetchHandler(cmd.Context(), fetchOpts)
	},
}

var agentDirect bool

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the A2A dashboard agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentHandler(cmd.Context(), agentDirect)
	},
}

type askOptions struct {
	Criteria models.FilterCriteria
	AgentURL string
	JSON     bool
}

var askOpts = askOptions{}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a running dashboard agent for metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return askHandler(cmd.Context(), askOpts, args)
	},
}

var snapshotLimit int

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the last persisted snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return snapshotHandler(cmd.Context(), snapshotLimit)
	},
}
