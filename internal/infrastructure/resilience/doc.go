/*
Package resilience guards session restarts against crash loops.

# Overview

A Guard keeps one gobreaker circuit breaker per session ID. Start failures
and unexpected exits both count as failures. Once a session fails
MaxFailures times within Interval, restarts are refused with ErrCrashLoop
until Timeout elapses; then a single probe restart is let through.

# Usage

	guard := resilience.NewGuard(resilience.Settings{
		MaxFailures: 5,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
	})

	pid, err := guard.Execute(sessionID, func() (int, error) {
		return proc.Start(ctx)
	})
	if errors.Is(err, resilience.ErrCrashLoop) {
		// refuse until the breaker half-opens
	}

	// from the crash watcher
	guard.RecordCrash(sessionID)

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[success]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
