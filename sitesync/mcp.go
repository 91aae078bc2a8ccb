package sitesync

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/sitesync/kit"
)

// RegisterMCP registers the sitesync tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerGetConfig(srv)
	svc.registerSetConfig(srv)
	svc.registerRun(srv)
	svc.registerListJobs(srv)
	svc.registerListConflicts(srv)
	svc.registerResolveConflict(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var companyProp = map[string]any{"type": "string", "description": "Company ID"}

func (svc *Service) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode kit.MCPDecoder) {
	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.Logging(svc.logger, tool.Name))(endpoint), decode)
}

func (svc *Service) registerGetConfig(srv *mcp.Server) {
	type req struct {
		CompanyID string `json:"company_id"`
	}
	tool := &mcp.Tool{
		Name:        "sitesync_get_config",
		Description: "Get a company's website sync configuration",
		InputSchema: inputSchema(map[string]any{"company_id": companyProp}, []string{"company_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.GetConfig(ctx, p.CompanyID)
	}
	svc.register(srv, tool, endpoint, kit.DecodeArgs[req])
}

func (svc *Service) registerSetConfig(srv *mcp.Server) {
	type req struct {
		CompanyID              string `json:"company_id"`
		Enabled                bool   `json:"enabled"`
		WebsiteURL             string `json:"website_url"`
		SyncIntervalHours      int    `json:"sync_interval_hours"`
		AutoApproveWebsiteFAQs bool   `json:"auto_approve_website_faqs"`
		NotifyOnConflicts      bool   `json:"notify_on_conflicts"`
		NotifyOnNewFAQs        bool   `json:"notify_on_new_faqs"`
	}
	tool := &mcp.Tool{
		Name:        "sitesync_set_config",
		Description: "Create or replace a company's website sync configuration",
		InputSchema: inputSchema(map[string]any{
			"company_id":                companyProp,
			"enabled":                   map[string]any{"type": "boolean", "description": "Enable scheduled syncs"},
			"website_url":               map[string]any{"type": "string", "description": "Absolute http(s) URL of the FAQ page"},
			"sync_interval_hours":       map[string]any{"type": "integer", "description": "Hours between scheduled syncs (default 24)"},
			"auto_approve_website_faqs": map[string]any{"type": "boolean", "description": "Mark new website FAQs as confirmed"},
			"notify_on_conflicts":       map[string]any{"type": "boolean", "description": "Notify when conflicts are found"},
			"notify_on_new_faqs":        map[string]any{"type": "boolean", "description": "Notify when new FAQs are created"},
		}, []string{"company_id", "enabled"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		c := &SyncConfig{
			CompanyID:              p.CompanyID,
			Enabled:                p.Enabled,
			WebsiteURL:             p.WebsiteURL,
			SyncIntervalHours:      p.SyncIntervalHours,
			AutoApproveWebsiteFAQs: p.AutoApproveWebsiteFAQs,
			NotifyOnConflicts:      p.NotifyOnConflicts,
			NotifyOnNewFAQs:        p.NotifyOnNewFAQs,
		}
		if err := svc.SetConfig(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	}
	svc.register(srv, tool, endpoint, kit.DecodeArgs[req])
}

func (svc *Service) registerRun(srv *mcp.Server) {
	type req struct {
		CompanyID string `json:"company_id"`
	}
	tool := &mcp.Tool{
		Name:        "sitesync_run",
		Description: "Run a website sync now and return its summary",
		InputSchema: inputSchema(map[string]any{"company_id": companyProp}, []string{"company_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		job, err := svc.RunSync(ctx, p.CompanyID)
		if err != nil {
			return nil, err
		}
		return Summarize(job), nil
	}
	svc.register(srv, tool, endpoint, kit.DecodeArgs[req])
}

func (svc *Service) registerListJobs(srv *mcp.Server) {
	type req struct {
		CompanyID string `json:"company_id"`
		Limit     int    `json:"limit"`
	}
	tool := &mcp.Tool{
		Name:        "sitesync_list_jobs",
		Description: "List a company's sync jobs, newest first",
		InputSchema: inputSchema(map[string]any{
			"company_id": companyProp,
			"limit":      map[string]any{"type": "integer", "description": "Max jobs (default 20, max 100)"},
		}, []string{"company_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.ListJobs(ctx, p.CompanyID, p.Limit)
	}
	svc.register(srv, tool, endpoint, kit.DecodeArgs[req])
}

func (svc *Service) registerListConflicts(srv *mcp.Server) {
	type req struct {
		CompanyID string `json:"company_id"`
		Status    string `json:"status"`
		Limit     int    `json:"limit"`
	}
	tool := &mcp.Tool{
		Name:        "sitesync_list_conflicts",
		Description: "List knowledge conflicts detected by website syncs",
		InputSchema: inputSchema(map[string]any{
			"company_id": companyProp,
			"status":     map[string]any{"type": "string", "description": "pending, resolved or dismissed (default all)"},
			"limit":      map[string]any{"type": "integer", "description": "Max conflicts (default 20, max 100)"},
		}, []string{"company_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.ListConflicts(ctx, p.CompanyID, p.Status, p.Limit)
	}
	svc.register(srv, tool, endpoint, kit.DecodeArgs[req])
}

func (svc *Service) registerResolveConflict(srv *mcp.Server) {
	type req struct {
		CompanyID  string `json:"company_id"`
		ConflictID string `json:"conflict_id"`
		Resolution string `json:"resolution"`
		UserID     string `json:"user_id"`
	}
	tool := &mcp.Tool{
		Name:        "sitesync_resolve_conflict",
		Description: "Resolve a pending conflict: keep_current, use_website, keep_both, merge or dismiss",
		InputSchema: inputSchema(map[string]any{
			"company_id":  companyProp,
			"conflict_id": map[string]any{"type": "string", "description": "Conflict ID"},
			"resolution": map[string]any{
				"type": "string",
				"enum": []string{"keep_current", "use_website", "keep_both", "merge", "dismiss"},
			},
			"user_id": map[string]any{"type": "string", "description": "Acting user, recorded as resolved_by"},
		}, []string{"company_id", "conflict_id", "resolution"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.ResolveConflict(ctx, p.CompanyID, p.ConflictID, p.Resolution)
	}
	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		res, err := kit.DecodeArgs[req](r)
		if err != nil {
			return nil, err
		}
		if user := res.Request.(*req).UserID; user != "" {
			res.EnrichCtx = func(ctx context.Context) context.Context { return kit.WithUserID(ctx, user) }
		}
		return res, nil
	}
	svc.register(srv, tool, endpoint, decode)
}
