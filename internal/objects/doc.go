// Package objects defines the core identifiers shared across the account
// runtime: account ids with cross-chain provenance traces, module
// identities and version selectors, module references, and coin amounts.
//
// Everything in this package is a plain value type. Resolution, storage,
// and authorization live with the contracts that consume these objects.
package objects
