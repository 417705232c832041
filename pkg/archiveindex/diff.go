package archiveindex

import "github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"

// Diff computes the set-difference between a local and a remote entry
// index: changed is every local path absent remotely or present with a
// different digest; deleted is every remote path absent locally. The two
// sets are always disjoint and the order of each is unspecified.
func Diff(local, remote types.Index) types.Diff {
	var d types.Diff

	for path, digest := range local {
		if remoteDigest, ok := remote[path]; !ok || remoteDigest != digest {
			d.Changed = append(d.Changed, path)
		}
	}

	for path := range remote {
		if _, ok := local[path]; !ok {
			d.Deleted = append(d.Deleted, path)
		}
	}

	return d
}
