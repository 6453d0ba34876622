package mcp

import "github.com/mark3labs/mcp-go/mcp"

// registerTools registers all MCP tools with the server
func (s *Server) registerTools() {
	// Health check
	s.mcpServer.AddTool(
		mcp.NewTool("get_health",
			mcp.WithDescription("Check whether the power strip controller is connected"),
		),
		s.handleGetHealth,
	)

	// Live sysinfo
	s.mcpServer.AddTool(
		mcp.NewTool("get_system_info",
			mcp.WithDescription("Query the power strip for its system information: alias, model, firmware, signal strength and every outlet's state"),
		),
		s.handleGetSystemInfo,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_devices",
			mcp.WithDescription("List the outlets of the power strip"),
			mcp.WithBoolean("include_state",
				mcp.Description("Query the live state of every outlet (default false)"),
			),
		),
		s.handleListDevices,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_device",
			mcp.WithDescription("Get information and live state for one outlet"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Composite outlet id or outlet alias"),
			),
		),
		s.handleGetDevice,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_device_state",
			mcp.WithDescription("Get the live relay state of an outlet"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Composite outlet id or outlet alias"),
			),
		),
		s.handleGetDeviceState,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_device_state",
			mcp.WithDescription("Set the state of an outlet. The state object is validated against the outlet's schema."),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Composite outlet id or outlet alias"),
			),
			mcp.WithObject("state",
				mcp.Required(),
				mcp.Description("State to set, e.g. {\"state\": \"ON\"}, {\"state\": \"OFF\"} or {\"state\": \"TOGGLE\"}"),
			),
		),
		s.handleSetDeviceState,
	)

	// Convenience wrappers around set_device_state
	s.mcpServer.AddTool(
		mcp.NewTool("turn_on",
			mcp.WithDescription("Switch an outlet on"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Composite outlet id or outlet alias"),
			),
		),
		s.handleTurnOn,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("turn_off",
			mcp.WithDescription("Switch an outlet off"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Composite outlet id or outlet alias"),
			),
		),
		s.handleTurnOff,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("toggle",
			mcp.WithDescription("Invert the current relay state of an outlet"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Composite outlet id or outlet alias"),
			),
		),
		s.handleToggle,
	)

	// Raw protocol access over the strip's preferred transport
	s.mcpServer.AddTool(
		mcp.NewTool("send_command",
			mcp.WithDescription("Send a raw JSON command to the power strip and return its decoded reply, e.g. {\"system\":{\"get_sysinfo\":{}}}"),
			mcp.WithString("command",
				mcp.Required(),
				mcp.Description("Plaintext JSON command"),
			),
		),
		s.handleSendCommand,
	)
}
