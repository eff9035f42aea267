package authz

// Claim is a (type, value, issuer) fact about a principal. Only claims of
// the permission type from the trusted issuer are meaningful here.
type Claim struct {
	Type   string
	Value  string
	Issuer string
}

// Decision is the outcome of evaluating a policy against a claim set.
type Decision int

const (
	// Deny is the default: absence of a matching claim denies the request.
	Deny Decision = iota
	Allow
)

// Evaluate checks a principal's claim set against a policy. Allows iff the
// set contains a claim matching type, value, and issuer exactly; anything
// else, including a matching value from a foreign issuer, denies.
func Evaluate(claims []Claim, policy Policy) Decision {
	for _, c := range claims {
		if c.Type == policy.ClaimType && c.Value == policy.ClaimValue && c.Issuer == policy.Issuer {
			return Allow
		}
	}
	return Deny
}
