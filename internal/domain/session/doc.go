// Package session manages the live Claude Code sessions.
//
// A Registry pairs each stored session record with the terminal process
// running it. It enforces the per-owner session limit, tracks each owner's
// active session and moves records through the lifecycle:
//
//	active ──> paused ──> active
//	  │                     │
//	  ├──> crashed ──> active (restart)
//	  └──────────────┴──> terminated (final)
//
// Operations on one session are serialized by a keyed lock; different
// sessions never contend. Streaming a response happens outside the lock.
//
// A watcher per process marks the session crashed when the process exits
// on its own, and a crash-loop guard refuses restarts of sessions that keep
// dying. The Reaper terminates idle sessions on a cron schedule.
//
// Example Usage:
//
//	reg := session.NewRegistry(db, session.OptionsFromConfig(cfg.Sessions, key), logger)
//	sess, err := reg.CreateSession(ctx, owner, "api")
//	units, err := reg.SendMessage(ctx, sess.ID, "list the files")
//	for unit := range units {
//		fmt.Print(unit)
//	}
package session
