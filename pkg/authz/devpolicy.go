package authz

// DevPolicy is the narrow rule set for platform operators (SystemRole DEV).
// Its capabilities are organization-independent: a DEV user holds them
// everywhere, and a non-DEV user holds them nowhere, with no fallback to
// the organization permission table.
type DevPolicy struct {
	capabilities map[Action]struct{}
}

// NewDevPolicy returns the built-in operator policy.
func NewDevPolicy() *DevPolicy {
	caps := []Action{
		ActionViewInternalData,
		ActionManageStripe,
		ActionViewLogs,
		ActionDebugSystem,
		ActionImpersonate,
	}
	p := &DevPolicy{capabilities: make(map[Action]struct{}, len(caps))}
	for _, a := range caps {
		p.capabilities[a] = struct{}{}
	}
	return p
}

// Governs reports whether the action is operator-gated. Governed actions
// are decided entirely by this policy, never by the organization table.
func (p *DevPolicy) Governs(action Action) bool {
	_, ok := p.capabilities[action]
	return ok
}

// Decide evaluates an operator-gated check.
func (p *DevPolicy) Decide(check Check) Decision {
	if !p.Governs(check.Action) {
		return Deny(ReasonInsufficientRole)
	}
	if check.SystemRole != SystemRoleDev {
		return Deny(ReasonNotOperator)
	}
	return Allow()
}

// CanImpersonate decides whether an actor may impersonate a specific
// target. Impersonating another DEV or any ADMIN is always denied, even
// for a DEV actor; that closes privilege laundering through impersonation
// chains.
func (p *DevPolicy) CanImpersonate(actor SystemRole, targetRole Role, targetSystem SystemRole) Decision {
	if actor != SystemRoleDev {
		return Deny(ReasonNotOperator)
	}
	if targetSystem == SystemRoleDev {
		return Deny("cannot impersonate system operators")
	}
	if targetRole == RoleAdmin {
		return Deny("cannot impersonate administrators")
	}
	return Allow()
}

// ValidateSystemRoleChange enforces the business rules for assigning or
// revoking the DEV flag. Only a DEV actor may change system roles, and a
// DEV actor may never grant DEV to themself. Self-revocation is permitted;
// it is a de-escalation. Violations are BusinessRuleErrors so the HTTP
// layer reports them as 422, not as a plain permission deny.
func (p *DevPolicy) ValidateSystemRoleChange(actorID int64, actor SystemRole, targetID int64, next SystemRole) error {
	if actor != SystemRoleDev {
		return NewBusinessRuleError("system_role_change", "only system operators may change system roles")
	}
	if actorID == targetID && next == SystemRoleDev {
		return NewBusinessRuleError("self_escalation", "operators may not grant the dev role to themselves")
	}
	return nil
}
