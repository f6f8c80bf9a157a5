// Package scoring maintains the feature weight model that feeds published
// video performance back into topic selection. Weights are decayed averages
// keyed by content feature, and absorption is commutative: folding the same
// set of results in any order produces the same model.
package scoring
