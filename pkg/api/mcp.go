package api

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/daniela2708/ganaderia/pkg/kit"
)

// NewMCPServer creates an MCP server exposing the dashboard tools.
func NewMCPServer(eps *Endpoints, version string) *server.MCPServer {
	srv := server.NewMCPServer("ganaderia", version, server.WithToolCapabilities(false))
	RegisterMCPTools(srv, eps)
	return srv
}

// RegisterMCPTools registers the dashboard MCP tools on the server.
func RegisterMCPTools(srv *server.MCPServer, eps *Endpoints) {
	kit.RegisterMCPTool(srv, mcp.NewTool("list_years",
		mcp.WithDescription("List the census years available in the Colombian cattle census dataset, with the latest one."),
	), eps.Years, noArgs)

	kit.RegisterMCPTool(srv, mcp.NewTool("list_departments",
		mcp.WithDescription("List the departments present in the cattle census."),
	), eps.Departments, noArgs)

	kit.RegisterMCPTool(srv, mcp.NewTool("department_ranking",
		append(filterOptions(true),
			mcp.WithDescription("Rank departments by total cattle head count for a year, with participation percentage and average head per farm."),
			mcp.WithNumber("top", mcp.Description("Number of departments to return (default 15)")),
		)...,
	), eps.DepartmentRanking, decodeQuery)

	kit.RegisterMCPTool(srv, mcp.NewTool("municipality_ranking",
		append(filterOptions(true),
			mcp.WithDescription("Rank municipalities by total cattle head count for a year, optionally within one department."),
			mcp.WithNumber("top", mcp.Description("Number of municipalities to return (default 50)")),
		)...,
	), eps.MunicipalityRanking, decodeQuery)

	kit.RegisterMCPTool(srv, mcp.NewTool("annual_totals",
		append(filterOptions(false),
			mcp.WithDescription("Yearly cattle head count series for the whole country, a department or a municipality, with year-over-year change in percent (null when the previous year is missing or zero)."),
		)...,
	), eps.Annual, decodeQuery)

	kit.RegisterMCPTool(srv, mcp.NewTool("kpis",
		append(filterOptions(true),
			mcp.WithDescription("Headline figures for a filter: total head count, total farms, departments, municipalities and average head per farm."),
		)...,
	), eps.KPIs, decodeQuery)

	kit.RegisterMCPTool(srv, mcp.NewTool("breakdown",
		append(filterOptions(true),
			mcp.WithDescription("Age range and sex composition of the cattle herd for a filter."),
		)...,
	), eps.Breakdown, decodeQuery)
}

// filterOptions are the arguments shared by the filtered tools.
func filterOptions(withYear bool) []mcp.ToolOption {
	opts := []mcp.ToolOption{
		mcp.WithString("department", mcp.Description("Department name, any casing or accents (e.g. antioquia, BOGOTÁ D.C.)")),
		mcp.WithString("municipality", mcp.Description("Municipality name; combine with department to disambiguate")),
	}
	if withYear {
		opts = append(opts, mcp.WithNumber("year", mcp.Description("Census year (default: latest available)")))
	}
	return opts
}

func noArgs(mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{Request: nil}, nil
}

func decodeQuery(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	args := req.GetArguments()
	q := &Query{
		Department:   kit.ArgString(args, "department"),
		Municipality: kit.ArgString(args, "municipality"),
	}
	var err error
	if q.Year, err = kit.ArgInt(args, "year"); err != nil {
		return nil, err
	}
	if q.Top, err = kit.ArgInt(args, "top"); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: q}, nil
}
