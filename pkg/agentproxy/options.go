package agentproxy

import "log/slog"

// Option is a functional option for configuring a Proxy.
type Option func(*Proxy)

// WithEnforcer sets the enforcement backend. Required.
func WithEnforcer(e Enforcer) Option {
	return func(p *Proxy) { p.enforcer = e }
}

// WithRegistrar sets the management-plane registrar used for
// best-effort agent registration at wrap time.
func WithRegistrar(r Registrar) Option {
	return func(p *Proxy) { p.registrar = r }
}

// WithMode sets the blocking mode. Defaults to ModeHard.
func WithMode(m Mode) Option {
	return func(p *Proxy) { p.mode = m }
}

// WithTenant sets the tenant id stamped on every intent event.
// Defaults to "default".
func WithTenant(tenantID string) Option {
	return func(p *Proxy) { p.tenantID = tenantID }
}

// WithOnViolation sets a callback invoked for every blocked tool call,
// in both modes, before the block is acted on.
func WithOnViolation(fn func(ToolCall, *BlockedError)) Option {
	return func(p *Proxy) { p.onViolation = fn }
}

// WithActionMapper overrides how a tool call maps to a canonical
// action. The default infers the action from the tool name via the
// vocabulary keyword table.
func WithActionMapper(fn func(ToolCall) string) Option {
	return func(p *Proxy) { p.actionMapper = fn }
}

// WithResourceTypeMapper overrides how a tool call maps to a canonical
// resource type. The default infers the type from the tool name.
func WithResourceTypeMapper(fn func(ToolCall) string) Option {
	return func(p *Proxy) { p.resourceMapper = fn }
}

// WithSDKVersion sets the SDK version reported at registration.
func WithSDKVersion(v string) Option {
	return func(p *Proxy) { p.sdkVersion = v }
}

// WithFramework sets the agent framework reported at registration.
func WithFramework(f string) Option {
	return func(p *Proxy) { p.framework = f }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Proxy) { p.logger = l }
}
