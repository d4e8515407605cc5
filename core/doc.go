// Package core contains the integration domain contracts, entities, and
// orchestration logic: the provider registry, the integration lifecycle
// service, the automation trigger dispatcher, and the request and
// cancellation tracker. Storage, HTTP, and provider adapters depend on this
// package; core must not depend on them.
package core
