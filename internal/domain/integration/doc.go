// Package integration contains the marketplace integration bounded context.
// It models the connection between one seller account on a remote marketplace and local storage.
//
// Key concepts:
//   - AuthorizationState: single-use, expiring record of an in-flight OAuth2 authorization (PKCE verifier, return URL)
//   - Grant: the persisted OAuth2 credential pair for a connected seller, keyed by seller ID
//   - OrderRecord: canonical local copy of a remote order, upserted by remote order ID
//   - WebhookEvent: append-only audit entry for every verified inbound notification
//   - Listing: a remote product listing managed through the marketplace API
//
// Design Pattern: Ports & Adapters
//   - Ports (store and repository interfaces) are defined here in the domain layer
//   - Adapters (gorm, redis, in-memory, HTTP clients) are in the infrastructure layer
package integration
