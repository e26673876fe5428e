// Package protspace annotates protein sets and packages the annotations
// together with precomputed projections into parquetbundle files.
//
// # Architecture
//
// An annotation job runs a fixed sequence of stages:
//
// 1. Resolve: the requested annotation and group names are validated against
// a closed, versioned catalog and split by the source that provides them.
//
// 2. Retrieve: UniProt supplies the primary record of every protein, the
// UniProt taxonomy service supplies lineages per organism and InterPro
// supplies signature matches keyed by sequence digest. Batches that fail
// leave empty placeholders instead of aborting the job.
//
// 3. Merge and transform: lineage and signature features are joined onto the
// primary records, values are normalised per field and length categories
// are derived.
//
// 4. Write: the annotation table is encoded as parquet and stored alone or
// as the first part of a bundle, next to the projection tables and optional
// visualisation settings.
//
// # Packages
//
//   - pkg/annotation: records, catalog and request resolution
//   - pkg/retriever, pkg/clients: source retrievers and the resilient HTTP client
//   - pkg/merge, pkg/transform, pkg/binning: the record stages
//   - pkg/table, pkg/bundle, pkg/settings: parquet tables and the bundle format
//   - pkg/cache, pkg/publish: annotation cache and object storage upload
//   - pkg/config, pkg/logger, pkg/errors, pkg/metrics, pkg/observability: ambient stack
//   - internal/pipeline: the annotation job
//   - cmd/protspace: the command line tool
//
// # Basic Usage
//
//	protspace annotate -i proteins.fasta -a default,pfam,genus -o annotations.parquet
//	protspace bundle inspect out.parquetbundle
//	protspace bundle settings --merge out.parquetbundle styles.json
package protspace
