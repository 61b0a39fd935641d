package toolexecutor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/ranya-voice/internal/observability"
	"github.com/harun/ranya-voice/internal/tracing"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTimeout bounds a single tool execution when no other timeout is set.
const DefaultTimeout = 30 * time.Second

const maxOutputSize = 10 * 1024 // 10KB

// ToolPolicy defines which tools the model may call
type ToolPolicy struct {
	Allow []string `json:"allow"` // List of allowed tools (* for all)
	Deny  []string `json:"deny"`  // List of denied tools (overrides allow)
}

// IsToolAllowed checks if a tool is allowed by the policy
func (tp *ToolPolicy) IsToolAllowed(toolName string) bool {
	if tp == nil {
		// No policy means allow all
		return true
	}

	// Check deny list first (overrides allow list)
	for _, denied := range tp.Deny {
		if denied == toolName || denied == "*" {
			return false
		}
	}

	for _, allowed := range tp.Allow {
		if allowed == toolName || allowed == "*" {
			return true
		}
	}

	// If no explicit allow, deny by default
	return false
}

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name" yaml:"name"`
	Type        string      `json:"type" yaml:"type"`
	Description string      `json:"description" yaml:"description"`
	Required    bool        `json:"required" yaml:"required"`
	Default     interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ToolCall is one invocation requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ExecutionContext provides runtime information for tool execution
type ExecutionContext struct {
	JobID       string
	Participant string
	Timeout     time.Duration
	ToolPolicy  *ToolPolicy
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Success   bool                   `json:"success"`
	Output    interface{}            `json:"output,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Truncated bool                   `json:"truncated,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ToolSchema is the model-facing description of a registered tool.
type ToolSchema struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	InputSchema map[string]interface{} `json:"input_schema" yaml:"input_schema"`
}

// ToolExecutor manages and executes tools
type ToolExecutor struct {
	tools          map[string]*ToolDefinition
	schemas        map[string]*gojsonschema.Schema
	inputSchemas   map[string]map[string]interface{}
	defaultTimeout time.Duration
	mu             sync.RWMutex
}

// New creates a new ToolExecutor
func New() *ToolExecutor {
	te := &ToolExecutor{
		tools:          make(map[string]*ToolDefinition),
		schemas:        make(map[string]*gojsonschema.Schema),
		inputSchemas:   make(map[string]map[string]interface{}),
		defaultTimeout: DefaultTimeout,
	}

	log.Debug().Msg("Tool executor initialized")

	return te
}

// SetDefaultTimeout changes the timeout used when the execution context has none.
func (te *ToolExecutor) SetDefaultTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	te.mu.Lock()
	defer te.mu.Unlock()
	te.defaultTimeout = timeout
}

// RegisterTool registers a new tool. Names must be unique.
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := te.validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schemaMap := te.buildSchemaMap(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema
	te.inputSchemas[def.Name] = schemaMap

	log.Info().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// UnregisterTool removes a tool
func (te *ToolExecutor) UnregisterTool(name string) {
	te.mu.Lock()
	defer te.mu.Unlock()

	delete(te.tools, name)
	delete(te.schemas, name)
	delete(te.inputSchemas, name)

	log.Info().Str("tool", name).Msg("Tool unregistered")
}

// GetTool returns a tool definition by name
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return te.tools[name]
}

// ListTools returns all registered tool names, sorted
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	tools := make([]string, 0, len(te.tools))
	for name := range te.tools {
		tools = append(tools, name)
	}
	sort.Strings(tools)

	return tools
}

// GetToolCount returns the number of registered tools
func (te *ToolExecutor) GetToolCount() int {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return len(te.tools)
}

// Schemas returns the model-facing schema of every tool the policy allows,
// sorted by name.
func (te *ToolExecutor) Schemas(policy *ToolPolicy) []ToolSchema {
	names := te.ListTools()

	te.mu.RLock()
	defer te.mu.RUnlock()

	out := make([]ToolSchema, 0, len(names))
	for _, name := range names {
		if !policy.IsToolAllowed(name) {
			continue
		}
		tool, ok := te.tools[name]
		if !ok {
			continue
		}
		out = append(out, ToolSchema{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: te.inputSchemas[name],
		})
	}
	return out
}

// ExecuteCall runs a model-requested call and tags the result with its call ID.
func (te *ToolExecutor) ExecuteCall(ctx context.Context, call ToolCall, execCtx *ExecutionContext) ToolResult {
	args := call.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	result := te.Execute(ctx, call.Name, args, execCtx)
	if result.Metadata == nil {
		result.Metadata = map[string]interface{}{}
	}
	result.Metadata["call_id"] = call.ID
	return result
}

// Execute executes a tool with the given parameters. It always returns exactly
// one result; handler errors, validation failures, policy denials and timeouts
// are reported through ToolResult.
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, params map[string]interface{}, execCtx *ExecutionContext) (result ToolResult) {
	startTime := time.Now()

	ctx, span := tracing.StartSpan(ctx, "ranya-voice/toolexecutor", "tool.execute",
		attribute.String("tool.name", toolName))
	defer func() {
		var spanErr error
		if !result.Success {
			spanErr = fmt.Errorf("%s", result.Error)
		}
		tracing.EndSpan(span, spanErr)

		duration := time.Since(startTime)
		observability.RecordToolExecution(toolName, duration, result.Success)

		status := "success"
		if !result.Success {
			status = "failure"
		}
		actor := tracing.GetJobID(ctx)
		if execCtx != nil && execCtx.JobID != "" {
			actor = execCtx.JobID
		}
		observability.RecordToolAudit(ctx, toolName, actor, status, map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		})
	}()

	if execCtx != nil && execCtx.ToolPolicy != nil {
		if !execCtx.ToolPolicy.IsToolAllowed(toolName) {
			log.Warn().
				Str("tool", toolName).
				Str("job_id", execCtx.JobID).
				Msg("Tool execution blocked by policy")
			return ToolResult{
				Success: false,
				Error:   fmt.Sprintf("tool '%s' is not allowed by policy", toolName),
				Metadata: map[string]interface{}{
					"policy_violation": true,
				},
			}
		}
	}

	te.mu.RLock()
	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	timeout := te.defaultTimeout
	te.mu.RUnlock()

	if tool == nil {
		log.Error().Str("tool", toolName).Msg("Tool not found")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("tool not found: %s", toolName),
		}
	}

	params = omitNullOptionals(tool, params)

	if err := te.validateParameters(schema, params); err != nil {
		log.Error().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("parameter validation failed: %v", err),
		}
	}

	log.Debug().Str("tool", toolName).Msg("Executing tool")

	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	timeoutCtx, cancel := context.WithTimeout(WithExecution(ctx, execCtx), timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("tool panicked: %v", r)
			}
		}()
		out, err := tool.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- out
		}
	}()

	select {
	case out := <-resultChan:
		duration := time.Since(startTime)

		output, truncated := te.truncateOutput(out)

		log.Debug().
			Str("tool", toolName).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")

		return ToolResult{
			Success:   true,
			Output:    output,
			Truncated: truncated,
			Metadata: map[string]interface{}{
				"duration": duration.Milliseconds(),
			},
		}

	case err := <-errChan:
		duration := time.Since(startTime)

		log.Error().
			Str("tool", toolName).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")

		return ToolResult{
			Success: false,
			Error:   err.Error(),
			Metadata: map[string]interface{}{
				"duration": duration.Milliseconds(),
			},
		}

	case <-timeoutCtx.Done():
		duration := time.Since(startTime)

		log.Error().
			Str("tool", toolName).
			Dur("duration", duration).
			Msg("Tool execution timeout")

		return ToolResult{
			Success: false,
			Error:   fmt.Sprintf("tool execution timeout after %v", timeout),
			Metadata: map[string]interface{}{
				"duration": duration.Milliseconds(),
				"timeout":  true,
			},
		}
	}
}

// validateToolDefinition validates a tool definition
func (te *ToolExecutor) validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}

	seen := make(map[string]bool, len(def.Parameters))
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if seen[param.Name] {
			return fmt.Errorf("duplicate parameter %s", param.Name)
		}
		seen[param.Name] = true
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// buildSchemaMap builds a JSON Schema object from tool parameters
func (te *ToolExecutor) buildSchemaMap(def ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return schemaMap
}

// omitNullOptionals removes optional arguments the model sent as null, which
// models use to mean "not provided". Required arguments are left for the
// schema to reject.
func omitNullOptionals(def *ToolDefinition, params map[string]interface{}) map[string]interface{} {
	var out map[string]interface{}
	for _, param := range def.Parameters {
		if param.Required {
			continue
		}
		v, ok := params[param.Name]
		if !ok || v != nil {
			continue
		}
		if out == nil {
			out = make(map[string]interface{}, len(params))
			for k, v := range params {
				out[k] = v
			}
		}
		delete(out, param.Name)
	}
	if out == nil {
		return params
	}
	return out
}

// validateParameters validates parameters against a JSON Schema
func (te *ToolExecutor) validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}

	return nil
}

// truncateOutput truncates output if it exceeds the size limit
func (te *ToolExecutor) truncateOutput(output interface{}) (interface{}, bool) {
	str := fmt.Sprintf("%v", output)

	if len(str) <= maxOutputSize {
		return output, false
	}

	truncated := str[:maxOutputSize] + "\n... [output truncated]"
	log.Warn().
		Int("original", len(str)).
		Int("truncated", maxOutputSize).
		Msg("Output truncated")

	return truncated, true
}
