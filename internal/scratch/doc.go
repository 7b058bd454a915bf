// Package scratch defines the data model shared across the decompile pipeline:
// project identifiers, manifests and their asset keys, the error taxonomy that
// maps pipeline failures to HTTP outcomes, and the collaborator interfaces the
// pipeline is assembled from.
//
// A manifest is parsed once and validated up front. Iterating its asset keys
// afterwards cannot fail:
//
//	m, err := scratch.ParseManifest(raw)
//	if err != nil {
//		return err // KindMalformedManifest
//	}
//	for key := range m.AssetKeys() {
//		// each distinct "<md5>.<ext>" exactly once
//	}
package scratch
