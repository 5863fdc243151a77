/*
Package resilience provides the circuit breaker that guards external
library fetches.

A Group keeps one Breaker per host so a dead CDN stops costing every
preview run a full retry cycle while other hosts keep working.

	breakers := resilience.NewGroup(resilience.DefaultSettings())
	err := breakers.Do(host, func() error {
		return fetch()
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		// host is cooling down
	}

# States

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[Probes successes]-> Closed
	                                                        |
	                                                    [failure]
	                                                        v
	                                                       Open
*/
package resilience
