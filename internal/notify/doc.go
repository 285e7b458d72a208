/*
Package notify posts "requires user action" events to an operator webhook.

The webhook receives a JSON body for every reply that is classified as a
prompt or confirmation, so that a chat bridge or pager can wake the owner
while the session waits. Delivery goes through resty over a retrying
transport; a missing webhook URL turns the notifier into a no-op.
*/
package notify
