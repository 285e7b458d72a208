// Package http exposes the session registry over REST.
//
// Every route except the root, health and metrics endpoints runs behind the
// owner middleware: the caller's X-User-ID decides which sessions it can see,
// and sessions owned by someone else answer 404.
//
// Routes:
//
//	POST   /sessions                        create a session and make it active
//	GET    /sessions                        list the caller's sessions
//	GET    /sessions/active                 current session
//	PUT    /sessions/active                 switch sessions
//	GET    /sessions/:id                    session detail
//	DELETE /sessions/:id                    terminate
//	POST   /sessions/:id/restart            restart the process
//	POST   /sessions/:id/pause              suspend the process group
//	POST   /sessions/:id/resume             continue a paused session
//	POST   /sessions/:id/messages           send text and render the reply
//	POST   /sessions/:id/select             answer a numbered prompt
//	GET    /sessions/:id/messages           history
//	GET    /sessions/:id/transcript         export (text or json, optionally gzip)
//	GET    /sessions/:id/files              list or glob the workspace
//	GET    /sessions/:id/files/content      read a file
//	POST   /sessions/:id/files              upload a file
//	POST   /messages                        send to the active session
//	GET    /audit                           the caller's audit trail
package http
