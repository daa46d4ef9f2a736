package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/meetwhen/internal/availability"
	"github.com/teemow/meetwhen/internal/calendar"
	"github.com/teemow/meetwhen/internal/credentials"
	"github.com/teemow/meetwhen/internal/google"
	"github.com/teemow/meetwhen/internal/scheduler"
	"github.com/teemow/meetwhen/internal/server"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for the MCP tools from their registered
definitions, so the reference never drifts from the implementation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// docsServerContext builds a server context that never reaches Google; tools
// only need it to register.
func docsServerContext(ctx context.Context) (*server.ServerContext, error) {
	store := credentials.NewMemoryStore()
	resolver, err := google.NewResolver(store, &google.ClientConfig{
		ClientID:     "docs",
		ClientSecret: "docs",
	})
	if err != nil {
		return nil, err
	}
	fetcher := calendar.FetcherFunc(func(context.Context, *google.Handle, availability.Interval) ([]availability.Interval, error) {
		return nil, fmt.Errorf("calendar access is unavailable while generating docs")
	})
	return server.NewServerContext(ctx, server.Dependencies{
		Store:     store,
		Resolver:  resolver,
		Scheduler: scheduler.NewService(resolver, fetcher),
	})
}

func runGenerateDocs(cmd *cobra.Command, outputFile string) error {
	sc, err := docsServerContext(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		_ = sc.Shutdown()
	}()

	mcpSrv, err := newMCPServer(&app{sc: sc})
	if err != nil {
		return err
	}
	tools := make([]mcp.Tool, 0)
	for _, st := range mcpSrv.ListTools() {
		tools = append(tools, st.Tool)
	}
	markdown := generateToolsMarkdown(tools)

	if outputFile == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), markdown)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
	return nil
}

// toolCategories maps a tool name prefix to its section.
var toolCategories = map[string]string{
	"find":       "Availability",
	"credential": "Credentials",
}

func toolCategory(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	if c, ok := toolCategories[prefix]; ok {
		return c
	}
	return "Other"
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		c := toolCategory(tool.Name)
		byCategory[c] = append(byCategory[c], tool)
	}
	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var sb strings.Builder
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools available when running `meetwhen serve --transport stdio`. Generated by `meetwhen generate-docs`.\n\n")

	sb.WriteString("## Identities\n\n")
	sb.WriteString("Tools take identities as email addresses (the primary calendar id of each person). ")
	sb.WriteString("Every identity must have authorized meetwhen through the HTTP server's `/authorize` flow; ")
	sb.WriteString("`credential_status` reports whether that has happened.\n\n")

	for _, c := range categories {
		group := byCategory[c]
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })

		fmt.Fprintf(&sb, "## %s\n\n", c)
		for _, tool := range group {
			sb.WriteString(generateToolMarkdown(tool))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// generateToolMarkdown renders one tool with its arguments as a table,
// required arguments first.
func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", tool.Description)
	}

	if len(tool.InputSchema.Properties) == 0 {
		sb.WriteString("_No arguments._\n")
		return sb.String()
	}

	names := make([]string, 0, len(tool.InputSchema.Properties))
	for name := range tool.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri := slices.Contains(tool.InputSchema.Required, names[i])
		rj := slices.Contains(tool.InputSchema.Required, names[j])
		if ri != rj {
			return ri
		}
		return names[i] < names[j]
	})

	sb.WriteString("| Argument | Type | Required | Description |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, name := range names {
		prop, ok := tool.InputSchema.Properties[name].(map[string]interface{})
		if !ok {
			continue
		}
		required := "no"
		if slices.Contains(tool.InputSchema.Required, name) {
			required = "yes"
		}
		desc, _ := prop["description"].(string)
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", name, getPropertyType(prop), required, desc)
	}

	return sb.String()
}

func getPropertyType(prop map[string]interface{}) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
