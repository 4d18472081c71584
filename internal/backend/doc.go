// Package backend talks to the hosted deal platform: entity writes go
// through the PostgREST surface, media uploads through the edge functions
// that mint signed storage URLs. Every call is authenticated with the anon
// key plus the user's bearer token, and a 401 is retried exactly once after
// a session refresh.
package backend
