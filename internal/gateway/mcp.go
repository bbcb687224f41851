package gateway

import (
	"context"

	mcpTypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/praxis/acapy-mcp-gateway/internal/tools"
)

// NewMCPServer registers every catalog entry as an MCP tool.
func (g *Gateway) NewMCPServer(name, version string) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
	)

	entries := g.catalog.Entries()
	for _, e := range entries {
		mcpServer.AddTool(toolSpec(e), g.toolHandler(e.Name))
	}
	if g.metrics != nil {
		g.metrics.SetToolsCount(len(entries))
	}

	g.logger.Infof("Registered %d tools with MCP server %s", len(entries), name)
	return mcpServer
}

func (g *Gateway) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpTypes.CallToolRequest) (*mcpTypes.CallToolResult, error) {
		res := g.Call(ctx, name, req.GetArguments())
		if res.Failed {
			return mcpTypes.NewToolResultError(res.Text), nil
		}
		return mcpTypes.NewToolResultText(res.Text), nil
	}
}

// toolSpec converts a catalog entry into its MCP schema.
func toolSpec(e *tools.Entry) mcpTypes.Tool {
	opts := []mcpTypes.ToolOption{mcpTypes.WithDescription(e.Description)}

	for _, p := range e.Params {
		props := []mcpTypes.PropertyOption{mcpTypes.Description(p.Description)}
		if p.Required {
			props = append(props, mcpTypes.Required())
		}

		switch p.Type {
		case tools.TypeNumber:
			if d, ok := numberDefault(p.Default); ok {
				props = append(props, mcpTypes.DefaultNumber(d))
			}
			opts = append(opts, mcpTypes.WithNumber(p.Name, props...))
		case tools.TypeBoolean:
			if d, ok := p.Default.(bool); ok {
				props = append(props, mcpTypes.DefaultBool(d))
			}
			opts = append(opts, mcpTypes.WithBoolean(p.Name, props...))
		case tools.TypeObject:
			opts = append(opts, mcpTypes.WithObject(p.Name, props...))
		case tools.TypeArray:
			props = append(props, mcpTypes.Items(map[string]interface{}{"type": "string"}))
			opts = append(opts, mcpTypes.WithArray(p.Name, props...))
		default:
			if d, ok := p.Default.(string); ok {
				props = append(props, mcpTypes.DefaultString(d))
			}
			opts = append(opts, mcpTypes.WithString(p.Name, props...))
		}
	}

	return mcpTypes.NewTool(e.Name, opts...)
}

func numberDefault(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
