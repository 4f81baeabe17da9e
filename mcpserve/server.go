package mcpserve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ServerOption represents the options for the server.
type ServerOption func(*Server)

// Server serves a fixed set of tool, prompt, and resource definitions over
// a ServerTransport. It owns the per-instance subscription state machine
// and handles the protocol message lifecycle for every session the
// transport yields.
type Server struct {
	info         Info
	instructions string
	capabilities ServerCapabilities

	tools     []ToolDefinition
	prompts   []PromptDefinition
	resources []ResourceDefinition

	toolIndex     map[string]int
	promptIndex   map[string]int
	resourceIndex map[string]int
	matchers      []uriMatcher

	transport ServerTransport
	subs      *subscriptions

	sendTimeout time.Duration
	logger      *slog.Logger

	sessionsWaitGroup *sync.WaitGroup
	done              chan struct{}
}

var defaultSendTimeout = 30 * time.Second

// NewServer creates a server for the given definitions. Capabilities are
// derived from the definition set: the subscription capability is declared
// only if at least one resource carries a subscription slot.
func NewServer(info Info, transport ServerTransport, options ...ServerOption) Server {
	s := Server{
		info:              info,
		transport:         transport,
		logger:            slog.Default(),
		sessionsWaitGroup: &sync.WaitGroup{},
		done:              make(chan struct{}),
	}
	for _, opt := range options {
		opt(&s)
	}
	if s.sendTimeout == 0 {
		s.sendTimeout = defaultSendTimeout
	}

	s.toolIndex = make(map[string]int, len(s.tools))
	for i, t := range s.tools {
		s.toolIndex[t.Name] = i
	}
	s.promptIndex = make(map[string]int, len(s.prompts))
	for i, p := range s.prompts {
		s.promptIndex[p.Name] = i
	}
	s.resourceIndex = make(map[string]int, len(s.resources))
	s.matchers = make([]uriMatcher, len(s.resources))
	for i, r := range s.resources {
		s.resourceIndex[r.Name] = i
		s.matchers[i] = newURIMatcher(r.URI)
	}

	s.capabilities = ServerCapabilities{}
	if len(s.tools) > 0 {
		s.capabilities.Tools = &ToolsCapability{}
	}
	if len(s.prompts) > 0 {
		s.capabilities.Prompts = &PromptsCapability{}
	}
	if len(s.resources) > 0 {
		s.capabilities.Resources = &ResourcesCapability{}
		for _, r := range s.resources {
			if r.SubscribeMode() != SubscribeNone {
				s.capabilities.Resources.Subscribe = true
				break
			}
		}
	}

	s.subs = newSubscriptions(s.logger)

	return s
}

// WithTools sets the tool definitions served.
func WithTools(defs ...ToolDefinition) ServerOption {
	return func(s *Server) {
		s.tools = append(s.tools, defs...)
	}
}

// WithPrompts sets the prompt definitions served.
func WithPrompts(defs ...PromptDefinition) ServerOption {
	return func(s *Server) {
		s.prompts = append(s.prompts, defs...)
	}
}

// WithResources sets the resource definitions served.
func WithResources(defs ...ResourceDefinition) ServerOption {
	return func(s *Server) {
		s.resources = append(s.resources, defs...)
	}
}

// WithInstructions sets the server instructions returned during
// initialization.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithSendTimeout sets the timeout for sending messages to clients.
func WithSendTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.sendTimeout = timeout
	}
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(
			slog.String("package", "mcpserve"),
			slog.String("component", "server"),
		)
	}
}

// Serve accepts sessions from the transport and handles their protocol
// message lifecycle. It blocks until the server is shut down.
func (s Server) Serve() {
	// This loop breaks when the transport is shut down.
	for sess := range s.transport.Sessions() {
		s.sessionsWaitGroup.Add(1)

		go func() {
			defer s.sessionsWaitGroup.Done()
			s.serveSession(sess)
		}()
	}
}

// Shutdown gracefully shuts down the server: every tracked subscription is
// marked stopping, all open sessions are closed, and the transport is shut
// down. It returns an error if the context is cancelled before the
// transport finishes closing.
func (s Server) Shutdown(ctx context.Context) error {
	// Signal all session loops to stop their sessions.
	close(s.done)

	s.subs.shutdown()

	s.sessionsWaitGroup.Wait()

	if err := s.transport.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown transport: %w", err)
	}
	return nil
}

func (s Server) serveSession(sess Session) {
	logger := s.logger.With(slog.String("sessionID", sess.ID()))

	stopOnce := sync.Once{}
	stop := func() { stopOnce.Do(sess.Stop) }

	go func() {
		<-s.done
		stop()
	}()
	defer stop()

	// This flag gates every method except ping and initialization until the
	// client confirms the handshake.
	initialized := false

	for msg := range sess.Messages() {
		if msg.JSONRPC != JSONRPCVersion {
			logger.Info("dropping message with invalid jsonrpc version",
				slog.Any("message", msg))
			continue
		}

		switch msg.Method {
		case methodPing:
			s.send(sess, logger, JSONRPCMessage{
				JSONRPC: JSONRPCVersion,
				ID:      msg.ID,
			})
		case methodInitialize:
			s.handleInitialize(sess, logger, msg)
		case methodNotificationsInitialized:
			initialized = true
		case MethodToolsList, MethodToolsCall, MethodPromptsList, MethodPromptsGet,
			MethodResourcesList, MethodResourcesRead, MethodResourcesTemplatesList,
			MethodResourcesSubscribe, MethodResourcesUnsubscribe:
			if !initialized {
				continue
			}
			go s.handleRequest(sess, logger, msg)
		default:
			if msg.ID == "" {
				continue
			}
			s.sendError(sess, logger, msg.ID, JSONRPCError{
				Code:    jsonRPCMethodNotFoundCode,
				Message: fmt.Sprintf("method %q not found", msg.Method),
			})
		}
	}
}

func (s Server) handleInitialize(sess Session, logger *slog.Logger, msg JSONRPCMessage) {
	var params initializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendError(sess, logger, msg.ID, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("failed to unmarshal params: %s", err),
		})
		return
	}

	res := initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    s.capabilities,
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}
	resBs, _ := json.Marshal(res)
	s.send(sess, logger, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      msg.ID,
		Result:  resBs,
	})
}

func (s Server) handleRequest(sess Session, logger *slog.Logger, msg JSONRPCMessage) {
	// A panicking handler must not take down the session loop or, on the
	// stdio transport, the whole process.
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("request handler panicked",
				slog.String("method", msg.Method),
				slog.Any("panic", rec))
			s.sendError(sess, logger, msg.ID, JSONRPCError{
				Code:    jsonRPCInternalErrorCode,
				Message: "internal error",
			})
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var result any
	var err error

	switch msg.Method {
	case MethodToolsList:
		result = s.listTools()
	case MethodToolsCall:
		result, err = s.callTool(ctx, msg.Params)
	case MethodPromptsList:
		result = s.listPrompts()
	case MethodPromptsGet:
		result, err = s.getPrompt(ctx, msg.Params)
	case MethodResourcesList:
		result, err = s.listResources(ctx)
	case MethodResourcesTemplatesList:
		result = s.listResourceTemplates()
	case MethodResourcesRead:
		result, err = s.readResource(ctx, msg.Params)
	case MethodResourcesSubscribe:
		err = s.subscribeResource(sess, msg.Params)
		if err == nil {
			result = struct{}{}
		}
	case MethodResourcesUnsubscribe:
		err = s.unsubscribeResource(msg.Params)
		if err == nil {
			result = struct{}{}
		}
	}

	resMsg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      msg.ID,
	}
	if err != nil {
		jsonErr := JSONRPCError{}
		if !errors.As(err, &jsonErr) {
			jsonErr = JSONRPCError{
				Code:    jsonRPCInternalErrorCode,
				Message: err.Error(),
			}
		}
		logger.Error("request failed",
			slog.String("method", msg.Method),
			slog.String("err", err.Error()))
		resMsg.Error = &jsonErr
	} else if result != nil {
		resMsg.Result, _ = json.Marshal(result)
	}

	s.send(sess, logger, resMsg)
}

func (s Server) listTools() ListToolsResult {
	tools := make([]Tool, 0, len(s.tools))
	for _, def := range s.tools {
		tools = append(tools, Tool{
			Name:         def.Name,
			Description:  def.Description,
			InputSchema:  InputSchema(def.Params),
			OutputSchema: outputSchema(def.Output),
		})
	}
	return ListToolsResult{Tools: tools}
}

func (s Server) callTool(ctx context.Context, raw json.RawMessage) (CallToolResult, error) {
	var params CallToolParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return CallToolResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("failed to unmarshal params: %s", err),
		}
	}

	idx, ok := s.toolIndex[params.Name]
	if !ok {
		return CallToolResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("tool %q not found", params.Name),
		}
	}
	def := s.tools[idx]

	args, err := decodeArgs(params.Arguments, def.Params)
	if err != nil {
		return CallToolResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: err.Error(),
		}
	}

	// Handler errors surface as tool errors, not protocol errors.
	rawResult, err := def.Handler(ctx, args)
	if err != nil {
		return CallToolResult{
			Content: []Content{{Type: ContentTypeText, Text: err.Error()}},
			IsError: true,
		}, nil
	}

	result, err := toolResult(def.Output, rawResult)
	if err != nil {
		return CallToolResult{}, JSONRPCError{
			Code:    jsonRPCInternalErrorCode,
			Message: err.Error(),
		}
	}
	return result, nil
}

func (s Server) listPrompts() ListPromptsResult {
	prompts := make([]Prompt, 0, len(s.prompts))
	for _, def := range s.prompts {
		args := make([]PromptArgument, 0, len(def.Params))
		for _, p := range def.Params {
			args = append(args, PromptArgument{
				Name:        p.Name,
				Description: p.Description,
				Required:    p.Required,
			})
		}
		prompts = append(prompts, Prompt{
			Name:        def.Name,
			Description: def.Description,
			Arguments:   args,
		})
	}
	return ListPromptsResult{Prompts: prompts}
}

func (s Server) getPrompt(ctx context.Context, raw json.RawMessage) (GetPromptResult, error) {
	var params GetPromptParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return GetPromptResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("failed to unmarshal params: %s", err),
		}
	}

	idx, ok := s.promptIndex[params.Name]
	if !ok {
		return GetPromptResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("prompt %q not found", params.Name),
		}
	}
	def := s.prompts[idx]

	if err := validatePromptArgs(params.Arguments, def.Params); err != nil {
		return GetPromptResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: err.Error(),
		}
	}

	rawResult, err := def.Handler(ctx, params.Arguments)
	if err != nil {
		return GetPromptResult{}, fmt.Errorf("failed to get prompt: %w", err)
	}

	return promptResult(def.Description, rawResult)
}

func (s Server) listResources(ctx context.Context) (ListResourcesResult, error) {
	resources := make([]Resource, 0, len(s.resources))
	for _, def := range s.resources {
		if !def.Templated() {
			resources = append(resources, Resource{
				URI:         def.URI,
				Name:        def.Name,
				Description: def.Description,
				MimeType:    def.MimeType,
			})
		}
		if !def.Listable() {
			continue
		}
		entries, err := def.List(ctx)
		if err != nil {
			return ListResourcesResult{}, fmt.Errorf("failed to list resource %q: %w", def.Name, err)
		}
		for _, e := range entries {
			resources = append(resources, displayEntry(def, e))
		}
	}
	return ListResourcesResult{Resources: resources}, nil
}

func (s Server) listResourceTemplates() ListResourceTemplatesResult {
	var templates []ResourceTemplate
	for _, def := range s.resources {
		if !def.Templated() {
			continue
		}
		templates = append(templates, ResourceTemplate{
			URITemplate: def.URI,
			Name:        def.Name,
			Description: def.Description,
			MimeType:    def.MimeType,
		})
	}
	return ListResourceTemplatesResult{Templates: templates}
}

// matchResource finds the definition whose address or address template fits
// uri, extracting template placeholder values.
func (s Server) matchResource(uri string) (ResourceDefinition, map[string]string, bool) {
	for i, def := range s.resources {
		if args, ok := s.matchers[i].match(uri); ok {
			return def, args, true
		}
	}
	return ResourceDefinition{}, nil, false
}

func (s Server) readResource(ctx context.Context, raw json.RawMessage) (ReadResourceResult, error) {
	var params ReadResourceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return ReadResourceResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("failed to unmarshal params: %s", err),
		}
	}

	def, args, ok := s.matchResource(params.URI)
	if !ok {
		return ReadResourceResult{}, JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("resource %q not found", params.URI),
		}
	}

	rawResult, err := def.Read(ctx, params.URI, args)
	if err != nil {
		return ReadResourceResult{}, fmt.Errorf("failed to read resource: %w", err)
	}

	return readResult(params.URI, def.MimeType, rawResult)
}

func (s Server) subscribeResource(sess Session, raw json.RawMessage) error {
	var params SubscribeResourceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("failed to unmarshal params: %s", err),
		}
	}

	def, _, ok := s.matchResource(params.URI)
	if !ok || def.SubscribeMode() == SubscribeNone {
		return JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: fmt.Sprintf("resource %q does not support subscription", params.URI),
		}
	}

	s.subs.subscribe(params.URI, def, func(uri string) error {
		return s.notifyResourceUpdated(sess, uri)
	})
	return nil
}

func (s Server) unsubscribeResource(raw json.RawMessage) error {
	var params UnsubscribeResourceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return JSONRPCError{
			Code:    jsonRPCInvalidParamsCode,
			Message: fmt.Sprintf("failed to unmarshal params: %s", err),
		}
	}

	s.subs.unsubscribe(params.URI)
	return nil
}

func (s Server) notifyResourceUpdated(sess Session, uri string) error {
	paramsBs, err := json.Marshal(notificationsResourcesUpdatedParams{URI: uri})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	return sess.Send(ctx, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  methodNotificationsResourcesUpdated,
		Params:  paramsBs,
	})
}

func (s Server) send(sess Session, logger *slog.Logger, msg JSONRPCMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	if err := sess.Send(ctx, msg); err != nil {
		logger.Error("failed to send message", slog.String("err", err.Error()))
	}
}

func (s Server) sendError(sess Session, logger *slog.Logger, id MustString, jsonErr JSONRPCError) {
	s.send(sess, logger, JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &jsonErr,
	})
}
