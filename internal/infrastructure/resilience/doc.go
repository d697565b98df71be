/*
Package resilience provides a circuit breaker for calls to remote
collaborators (the catalog backend and remote micro-app content).

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open

Each state change starts a new generation; results of requests admitted in
an earlier generation are ignored.

# Usage

	breaker := resilience.New("catalog", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})

	apps, err := resilience.Do(breaker, func() ([]catalog.MicroApp, error) {
		return fetch(ctx)
	})
*/
package resilience
