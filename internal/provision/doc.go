// Package provision stores the delegated credential obtained from a
// completed Google authorization.
//
// Provision never overwrites a stored credential with an absent one, and it
// degrades rather than fails when the account store is unreachable: the
// signed-in session remains usable, the outcome is reported as degraded,
// logged at warn and counted in provisioning_total{outcome="degraded"}.
package provision
