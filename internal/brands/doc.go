// Package brands owns the live set of brand profiles for the current
// identity and the single active selection.
//
// The Registry mirrors the "brands" collection of the document store through
// a subscription that is torn down and recreated whenever the identity
// changes. Local mutations are layered over the last snapshot as provisional
// state until a snapshot confirms them. Logo images supplied inline are
// promoted to durable blob URLs before any write.
//
// The active selection is persisted in a scalar preference cache so it
// survives restarts before the subscription delivers. Whenever a snapshot
// leaves the selection dangling, the registry reselects the cached value if
// it still exists, otherwise the first profile in arrival order.
package brands
