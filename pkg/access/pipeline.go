// Package access implements the pre-call checks every tool call passes
// through: permission, rate limit, then parameter validation. The checks
// run in that fixed order and fail fast, so expensive validation never
// runs for calls that will be rejected anyway.
package access

import (
	"github.com/xeipuuv/gojsonschema"
)

// Pipeline composes the three access checks
type Pipeline struct {
	permissions *PermissionChecker
	limiter     *RateLimiter
	params      *ParamValidator
}

// NewPipeline creates an access pipeline
func NewPipeline(permissions *PermissionChecker, limiter *RateLimiter, params *ParamValidator) *Pipeline {
	return &Pipeline{
		permissions: permissions,
		limiter:     limiter,
		params:      params,
	}
}

// Run executes permission, rate-limit and parameter checks in order,
// returning the first failure. The rate-limit increment only happens when
// the permission check passed; a rejected call therefore consumes no quota.
func (p *Pipeline) Run(role, toolName string, schema *gojsonschema.Schema, params map[string]interface{}) error {
	if err := p.permissions.Check(role, toolName); err != nil {
		return err
	}
	if err := p.limiter.Allow(role, toolName); err != nil {
		return err
	}
	if err := p.params.Validate(schema, params); err != nil {
		return err
	}
	return nil
}

// Limiter exposes the rate limiter for maintenance pruning
func (p *Pipeline) Limiter() *RateLimiter {
	return p.limiter
}
