package node

import (
	"time"

	"xdao.co/gep/gep"
)

// absorb applies server-authoritative values carried by any reply.
// Missing fields leave local values untouched.
func (s *Session) absorb(resp gep.Response) {
	credits, hasCredits := s.resolveCredits(resp)
	reputation, hasReputation := resp.Int("reputation", "reputation_score")
	ms, hasInterval := resp.Int("heartbeat_interval_ms")

	s.mu.Lock()
	defer s.mu.Unlock()
	if hasCredits {
		s.credits = credits
	}
	if hasReputation {
		s.reputation = reputation
	}
	if hasInterval && ms > 0 {
		d := time.Duration(ms) * time.Millisecond
		if d != s.interval {
			s.logger.Info("heartbeat interval changed by exchange", "from", s.interval, "to", d)
		}
		s.interval = d
	}
}

// resolveCredits reads the balance from whichever shape the exchange
// version uses: top-level "credits" or "payload.credit_balance" (either
// name at either level). Top level wins when both are present; a
// disagreement is logged, not fatal.
func (s *Session) resolveCredits(resp gep.Response) (int64, bool) {
	top, topOK := firstInt(resp.Body, "credits", "credit_balance")
	nested, nestedOK := firstInt(resp.Nested(), "credit_balance", "credits")
	switch {
	case topOK && nestedOK:
		if top != nested {
			s.logger.Warn("exchange reported conflicting credit balances", "top_level", top, "nested", nested)
		}
		return top, true
	case topOK:
		return top, true
	case nestedOK:
		return nested, true
	default:
		return 0, false
	}
}

func firstInt(m map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if n, ok := gep.AsInt(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}
